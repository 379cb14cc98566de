package harness

import (
	"regexp"
	"strings"

	"github.com/fetchctl/fetch/pkg/models"
)

// copilotLikeAdapter models a CLI that reads its goal from stdin rather than
// argv, and prints plain-text progress with a "::" marker convention.
type copilotLikeAdapter struct{ base }

// NewCopilotLikeAdapter constructs the copilot-like adapter.
func NewCopilotLikeAdapter() Adapter { return copilotLikeAdapter{} }

func (copilotLikeAdapter) Agent() models.Agent { return models.AgentCopilotLike }

func (copilotLikeAdapter) BuildConfig(goal, cwd string, timeoutMs int) SpawnConfig {
	return SpawnConfig{
		Command:   "copilot-like",
		Args:      []string{"suggest", "--stdin"},
		Cwd:       cwd,
		TimeoutMs: timeoutMs,
		Env:       map[string]string{"COPILOT_LIKE_GOAL": goal},
	}
}

var copilotMarkerRe = regexp.MustCompile(`^::(write|edit|rm)::(.+)$`)

func (a copilotLikeAdapter) ParseOutputLine(line string) *models.HarnessEvent {
	if m := copilotMarkerRe.FindStringSubmatch(line); m != nil {
		return &models.HarnessEvent{Type: models.HarnessFileOp, FileOp: copilotOpKind(m[1]), Path: strings.TrimSpace(m[2]), Line: line}
	}
	if strings.HasPrefix(line, "!!") {
		return &models.HarnessEvent{Type: models.HarnessErrorKind, ErrorText: strings.TrimSpace(strings.TrimPrefix(line, "!!")), Line: line}
	}
	if a.looksLikeCompletion(line) {
		return &models.HarnessEvent{Type: models.HarnessComplete, Line: line}
	}
	return nil
}

func copilotOpKind(marker string) models.FileOpKind {
	switch marker {
	case "write":
		return models.FileOpCreate
	case "rm":
		return models.FileOpDelete
	default:
		return models.FileOpModify
	}
}

func (a copilotLikeAdapter) DetectQuestion(recentOutput string) string {
	line := lastNonEmptyLine(recentOutput)
	if a.looksLikeQuestion(line) {
		return line
	}
	return ""
}

func (copilotLikeAdapter) FormatResponse(text string) []byte {
	return []byte(text + "\n")
}

func (copilotLikeAdapter) ExtractFileOperations(full string) models.FilesModified {
	return extractFileOperationsByRegex(full, copilotMarkerRe, copilotOpKind)
}

func (copilotLikeAdapter) ExtractSummary(full string) string {
	return extractTrailingSummary(full)
}
