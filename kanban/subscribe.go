package kanban

import (
	"fmt"
	"strconv"

	"github.com/h4mn/skybridge/domainevent"
)

// skillList maps a job's skill (or agent_type) to the list it lands in
// while being worked, per the spec's JobStarted projection rule.
var skillList = map[string]string{
	"analyze-issue":  "Brainstorm",
	"resolve-issue":  "Em Andamento",
	"review-issue":   "Em Revisão",
	"publish-issue":  "Publicar",
}

// Subscribe wires the projection's event-bus handlers onto bus. It is the
// only writer to store outside of the CRUD surface mounted by httpapi.
func Subscribe(bus *domainevent.Bus, store *Store) {
	bus.Subscribe(domainevent.IssueReceived, func(e domainevent.Event) {
		store.onIssueReceived(e)
	})
	bus.Subscribe(domainevent.JobStarted, func(e domainevent.Event) {
		store.onJobStarted(e)
	})
	bus.Subscribe(domainevent.PRCreated, func(e domainevent.Event) {
		store.onPRCreated(e)
	})
	bus.Subscribe(domainevent.JobCompleted, func(e domainevent.Event) {
		store.onJobCompleted(e)
	})
	bus.Subscribe(domainevent.JobFailed, func(e domainevent.Event) {
		store.onJobFailed(e)
	})
	bus.Subscribe(domainevent.JobProgress, func(e domainevent.Event) {
		store.onJobProgress(e)
	})
}

func (s *Store) onIssueReceived(e domainevent.Event) {
	issueNumber := stringField(e.Payload, "issue_number")
	if issueNumber == "" {
		s.log.Warn("kanban: IssueReceived missing issue_number, skipping projection")
		return
	}

	title := stringField(e.Payload, "title")
	description := stringField(e.Payload, "description")
	issueURL := stringField(e.Payload, "issue_url")
	author := stringField(e.Payload, "author")
	var labels []string
	if raw, ok := e.Payload["labels"].([]string); ok {
		labels = raw
	}

	existing, err := s.findByIssueNumber(issueNumber)
	if err != nil {
		s.log.Error("kanban: IssueReceived: looking up issue %s: %v", issueNumber, err)
		return
	}
	if existing != nil {
		if _, err := s.UpdateCardWithMeta(existing.ID, &title, &description, &issueURL, &author, labels); err != nil {
			s.log.Error("kanban: IssueReceived: updating card %d: %v", existing.ID, err)
		}
		return
	}

	listID, ok := s.ListIDByName("Issues")
	if !ok {
		s.log.Error("kanban: IssueReceived: default list Issues missing from board")
		return
	}
	card, err := s.CreateCardWithMeta(listID, title, description, issueNumber, issueURL, author, labels)
	if err != nil {
		s.log.Error("kanban: IssueReceived: creating card for issue %s: %v", issueNumber, err)
		return
	}
	if err := s.setIssueNumber(card.ID, issueNumber); err != nil {
		s.log.Error("kanban: IssueReceived: stamping issue_number on card %d: %v", card.ID, err)
	}
}

func (s *Store) onJobStarted(e domainevent.Event) {
	issueNumber := stringField(e.Payload, "issue_number")
	jobID := stringField(e.Payload, "job_id")
	skill := stringField(e.Payload, "skill")

	card, err := s.findByIssueNumber(issueNumber)
	if err != nil || card == nil {
		s.log.Warn("kanban: JobStarted: no card for issue %s", issueNumber)
		return
	}

	listName, ok := skillList[skill]
	if !ok {
		listName = "Em Andamento"
	}
	listID, ok := s.ListIDByName(listName)
	if !ok {
		s.log.Error("kanban: JobStarted: list %s missing from board", listName)
		return
	}

	if err := s.startProcessing(card.ID, jobID, listID); err != nil {
		s.log.Error("kanban: JobStarted: marking card %d processing: %v", card.ID, err)
	}
}

func (s *Store) onPRCreated(e domainevent.Event) {
	jobID := stringField(e.Payload, "job_id")
	prURL := stringField(e.Payload, "pr_url")

	card, err := s.findByProcessingJobID(jobID)
	if err != nil || card == nil {
		s.log.Warn("kanban: PRCreated: no card processing job %s", jobID)
		return
	}
	if err := s.setPRURL(card.ID, prURL); err != nil {
		s.log.Error("kanban: PRCreated: recording pr_url on card %d: %v", card.ID, err)
	}
}

func (s *Store) onJobCompleted(e domainevent.Event) {
	jobID := stringField(e.Payload, "job_id")

	card, err := s.findByProcessingJobID(jobID)
	if err != nil || card == nil {
		s.log.Warn("kanban: JobCompleted: no card processing job %s", jobID)
		return
	}

	listID, ok := s.ListIDByName("Em Revisão")
	if !ok {
		s.log.Error("kanban: JobCompleted: list Em Revisão missing from board")
		return
	}
	if err := s.finishProcessing(card.ID, listID, EventProcessingCompleted, ""); err != nil {
		s.log.Error("kanban: JobCompleted: clearing card %d: %v", card.ID, err)
	}
}

func (s *Store) onJobFailed(e domainevent.Event) {
	jobID := stringField(e.Payload, "job_id")
	message := stringField(e.Payload, "message")

	card, err := s.findByProcessingJobID(jobID)
	if err != nil || card == nil {
		s.log.Warn("kanban: JobFailed: no card processing job %s", jobID)
		return
	}

	listID, ok := s.ListIDByName("Issues")
	if !ok {
		s.log.Error("kanban: JobFailed: list Issues missing from board")
		return
	}
	if err := s.finishProcessing(card.ID, listID, EventProcessingFailed, message); err != nil {
		s.log.Error("kanban: JobFailed: returning card %d to Issues: %v", card.ID, err)
		return
	}
	if err := s.addLabel(card.ID, "erro"); err != nil {
		s.log.Error("kanban: JobFailed: adding erro label to card %d: %v", card.ID, err)
	}
}

func (s *Store) onJobProgress(e domainevent.Event) {
	jobID := stringField(e.Payload, "job_id")
	step := intField(e.Payload, "step")
	total := intField(e.Payload, "total_steps")

	card, err := s.findByProcessingJobID(jobID)
	if err != nil || card == nil {
		return
	}
	if err := s.updateProgress(card.ID, step, total); err != nil {
		s.log.Error("kanban: JobProgress: updating card %d: %v", card.ID, err)
	}
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatInt(int64(t), 10)
	default:
		return fmt.Sprint(t)
	}
}
