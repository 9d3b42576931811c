package agentfacade

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// SystemPromptTemplate is loaded once at startup from system_prompt.json
// and never reloaded mid-run (confirmed per the spec's open question: no
// hot-reload).
type SystemPromptTemplate struct {
	Version  string   `json:"version"`
	Template struct {
		Role         string   `json:"role"`
		Instructions []string `json:"instructions"`
		Rules        []string `json:"rules"`
	} `json:"template"`
}

// LoadSystemPrompt reads and decodes system_prompt.json from path.
func LoadSystemPrompt(path string) (*SystemPromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("agentfacade: reading system prompt %s: %w", path, err)
	}
	var t SystemPromptTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("agentfacade: decoding system prompt %s: %w", path, err)
	}
	return &t, nil
}

// promptCache memoizes rendered prompts keyed by the substituted
// SpawnContext field values, so repeated invocations with identical context
// reuse the same rendered string rather than re-substituting every time.
// The template is not part of the key; each Facade holds one template.
type promptCache struct {
	mu    sync.Mutex
	cache map[string]string
}

func newPromptCache() *promptCache {
	return &promptCache{cache: make(map[string]string)}
}

// render substitutes SpawnContext fields into the template and returns the
// rendered prompt plus its content-address (sha256 hex of the rendered
// bytes, recomputed on every call), used for observability.
func (t *SystemPromptTemplate) render(c SpawnContext, cache *promptCache) (string, string) {
	key := fmt.Sprintf("%s|%s|%s|%s|%s|%s", c.WorktreePath, c.IssueNumber, c.IssueTitle, c.RepoName, c.BranchName, c.Skill)

	cache.mu.Lock()
	if rendered, ok := cache.cache[key]; ok {
		cache.mu.Unlock()
		return rendered, contentHash(rendered)
	}
	cache.mu.Unlock()

	replacer := strings.NewReplacer(
		"{worktree_path}", c.WorktreePath,
		"{issue_number}", c.IssueNumber,
		"{issue_title}", c.IssueTitle,
		"{repo_name}", c.RepoName,
		"{branch_name}", c.BranchName,
		"{skill}", c.Skill,
	)

	var b strings.Builder
	b.WriteString(replacer.Replace(t.Template.Role))
	b.WriteString("\n\n")
	for _, instr := range t.Template.Instructions {
		b.WriteString("- ")
		b.WriteString(replacer.Replace(instr))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, rule := range t.Template.Rules {
		b.WriteString("- ")
		b.WriteString(replacer.Replace(rule))
		b.WriteString("\n")
	}

	rendered := b.String()

	cache.mu.Lock()
	cache.cache[key] = rendered
	cache.mu.Unlock()

	return rendered, contentHash(rendered)
}

func contentHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
