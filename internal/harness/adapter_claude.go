package harness

import (
	"regexp"
	"strings"

	"github.com/fetchctl/fetch/pkg/models"
)

// claudeLikeAdapter models a flag-based coding-assistant CLI: the goal is
// passed as a flag and the tool prints structured progress lines prefixed
// with a marker this adapter recognizes.
type claudeLikeAdapter struct{ base }

// NewClaudeLikeAdapter constructs the claude-like adapter.
func NewClaudeLikeAdapter() Adapter { return claudeLikeAdapter{} }

func (claudeLikeAdapter) Agent() models.Agent { return models.AgentClaudeLike }

func (claudeLikeAdapter) BuildConfig(goal, cwd string, timeoutMs int) SpawnConfig {
	return SpawnConfig{
		Command:   "claude-like",
		Args:      []string{"--print", "--dangerously-skip-permissions", "-p", goal},
		Cwd:       cwd,
		TimeoutMs: timeoutMs,
	}
}

var claudeFileOpRe = regexp.MustCompile(`(?i)^(Creating|Modifying|Deleting)\s+(.+)$`)

func (a claudeLikeAdapter) ParseOutputLine(line string) *models.HarnessEvent {
	if m := claudeFileOpRe.FindStringSubmatch(line); m != nil {
		return &models.HarnessEvent{Type: models.HarnessFileOp, FileOp: claudeOpKind(m[1]), Path: strings.TrimSpace(m[2]), Line: line}
	}
	if a.looksLikeCompletion(line) {
		return &models.HarnessEvent{Type: models.HarnessComplete, Line: line}
	}
	if strings.HasPrefix(line, "Error:") {
		return &models.HarnessEvent{Type: models.HarnessErrorKind, ErrorText: strings.TrimPrefix(line, "Error:"), Line: line}
	}
	if strings.HasPrefix(line, "> ") {
		return &models.HarnessEvent{Type: models.HarnessProgress, Progress: strings.TrimPrefix(line, "> "), Line: line}
	}
	return nil
}

func claudeOpKind(verb string) models.FileOpKind {
	switch strings.ToLower(verb) {
	case "creating":
		return models.FileOpCreate
	case "deleting":
		return models.FileOpDelete
	default:
		return models.FileOpModify
	}
}

func (a claudeLikeAdapter) DetectQuestion(recentOutput string) string {
	line := lastNonEmptyLine(recentOutput)
	if a.looksLikeQuestion(line) {
		return line
	}
	return ""
}

func (claudeLikeAdapter) FormatResponse(text string) []byte {
	return []byte(text + "\n")
}

func (claudeLikeAdapter) ExtractFileOperations(full string) models.FilesModified {
	return extractFileOperationsByRegex(full, claudeFileOpRe, claudeOpKind)
}

func (claudeLikeAdapter) ExtractSummary(full string) string {
	return extractTrailingSummary(full)
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

func extractFileOperationsByRegex(full string, re *regexp.Regexp, kindOf func(string) models.FileOpKind) models.FilesModified {
	var out models.FilesModified
	for _, line := range strings.Split(full, "\n") {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := strings.TrimSpace(m[2])
		switch kindOf(m[1]) {
		case models.FileOpCreate:
			out.Created = append(out.Created, path)
		case models.FileOpDelete:
			out.Deleted = append(out.Deleted, path)
		default:
			out.Modified = append(out.Modified, path)
		}
	}
	return out
}

func extractTrailingSummary(full string) string {
	lines := strings.Split(strings.TrimRight(full, "\n"), "\n")
	n := len(lines)
	if n == 0 {
		return ""
	}
	start := n - 5
	if start < 0 {
		start = 0
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}
