package webhookintake

import (
	"encoding/json"
	"strconv"
)

// AdapterResult is a raw webhook body normalized to the fields intake and
// the kanban projection need: the job-routing pair (event_type,
// external_id) plus the card-visibility metadata spec.md §4.10 requires
// IssueReceivedEvent to carry (title, description, labels, issue_url,
// author).
type AdapterResult struct {
	EventType   string
	ExternalID  string
	Title       string
	Description string
	IssueURL    string
	Author      string
	Labels      []string
}

// Adapter extracts an AdapterResult from a raw webhook body, or reports
// ok=false for a shape it doesn't recognize (unsupported action, missing
// the fields intake needs). Grounded in the teacher's per-provider adapter
// functions that normalize one cloud metadata shape to a common one (e.g.
// ec2_meta_data.go's handling of AWS-specific JSON into the agent's common
// tag structure).
type Adapter func(raw []byte) (AdapterResult, bool)

var adapters = map[string]Adapter{
	"github":  githubAdapter,
	"trello":  trelloAdapter,
	"discord": discordAdapter,
}

// githubIssueLike captures the fields shared by an "issues" and a
// "pull_request" payload's nested object.
type githubIssueLike struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	User struct {
		Login string `json:"login"`
	} `json:"user"`
}

// githubPayload captures only the fields intake needs from an "issues" (or
// "issue_comment", "pull_request") webhook body.
type githubPayload struct {
	Action      string           `json:"action"`
	Issue       *githubIssueLike `json:"issue"`
	PullRequest *githubIssueLike `json:"pull_request"`
}

func githubAdapter(raw []byte) (AdapterResult, bool) {
	var p githubPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Action == "" {
		return AdapterResult{}, false
	}

	switch {
	case p.Issue != nil:
		return githubResult("issues."+p.Action, p.Issue), true
	case p.PullRequest != nil:
		return githubResult("pull_request."+p.Action, p.PullRequest), true
	default:
		return AdapterResult{}, false
	}
}

func githubResult(eventType string, issue *githubIssueLike) AdapterResult {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.Name)
	}
	return AdapterResult{
		EventType:   eventType,
		ExternalID:  strconv.Itoa(issue.Number),
		Title:       issue.Title,
		Description: issue.Body,
		IssueURL:    issue.HTMLURL,
		Author:      issue.User.Login,
		Labels:      labels,
	}
}

// trelloPayload captures the shape of a Trello "action" webhook body.
type trelloPayload struct {
	Action struct {
		Type string `json:"type"`
		Data struct {
			Card *struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"card"`
		} `json:"data"`
		MemberCreator struct {
			Username string `json:"username"`
		} `json:"memberCreator"`
	} `json:"action"`
}

func trelloAdapter(raw []byte) (AdapterResult, bool) {
	var p trelloPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.Action.Type == "" {
		return AdapterResult{}, false
	}
	if p.Action.Data.Card == nil {
		return AdapterResult{}, false
	}
	return AdapterResult{
		EventType:  p.Action.Type,
		ExternalID: p.Action.Data.Card.ID,
		Title:      p.Action.Data.Card.Name,
		Author:     p.Action.MemberCreator.Username,
	}, true
}

// discordPayload captures the shape of a Discord interaction/webhook body.
type discordPayload struct {
	Type int    `json:"type"`
	ID   string `json:"id"`
}

func discordAdapter(raw []byte) (AdapterResult, bool) {
	var p discordPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ID == "" {
		return AdapterResult{}, false
	}
	return AdapterResult{EventType: strconv.Itoa(p.Type), ExternalID: p.ID}, true
}
