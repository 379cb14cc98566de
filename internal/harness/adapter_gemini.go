package harness

import (
	"encoding/json"
	"strings"

	"github.com/fetchctl/fetch/pkg/models"
)

// geminiLikeAdapter models a CLI that takes the goal as a positional
// argument and emits one JSON object per line on stdout.
type geminiLikeAdapter struct{ base }

// NewGeminiLikeAdapter constructs the gemini-like adapter.
func NewGeminiLikeAdapter() Adapter { return geminiLikeAdapter{} }

func (geminiLikeAdapter) Agent() models.Agent { return models.AgentGeminiLike }

func (geminiLikeAdapter) BuildConfig(goal, cwd string, timeoutMs int) SpawnConfig {
	return SpawnConfig{
		Command:   "gemini-like",
		Args:      []string{"--yolo", "--json", goal},
		Cwd:       cwd,
		TimeoutMs: timeoutMs,
	}
}

type geminiFrame struct {
	Type     string `json:"type"`
	Path     string `json:"path,omitempty"`
	Op       string `json:"op,omitempty"`
	Text     string `json:"text,omitempty"`
	Question string `json:"question,omitempty"`
}

func (a geminiLikeAdapter) ParseOutputLine(line string) *models.HarnessEvent {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		if a.looksLikeCompletion(line) {
			return &models.HarnessEvent{Type: models.HarnessComplete, Line: line}
		}
		return nil
	}
	var frame geminiFrame
	if err := json.Unmarshal([]byte(trimmed), &frame); err != nil {
		return nil
	}
	switch frame.Type {
	case "file_op":
		return &models.HarnessEvent{Type: models.HarnessFileOp, FileOp: geminiOpKind(frame.Op), Path: frame.Path, Line: line}
	case "progress":
		return &models.HarnessEvent{Type: models.HarnessProgress, Progress: frame.Text, Line: line}
	case "question":
		return &models.HarnessEvent{Type: models.HarnessQuestion, Question: frame.Question, Line: line}
	case "error":
		return &models.HarnessEvent{Type: models.HarnessErrorKind, ErrorText: frame.Text, Line: line}
	case "complete":
		return &models.HarnessEvent{Type: models.HarnessComplete, Line: line}
	default:
		return nil
	}
}

func geminiOpKind(op string) models.FileOpKind {
	switch op {
	case "create":
		return models.FileOpCreate
	case "delete":
		return models.FileOpDelete
	default:
		return models.FileOpModify
	}
}

func (a geminiLikeAdapter) DetectQuestion(recentOutput string) string {
	line := lastNonEmptyLine(recentOutput)
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var frame geminiFrame
		if err := json.Unmarshal([]byte(trimmed), &frame); err == nil && frame.Type == "question" {
			return frame.Question
		}
		return ""
	}
	if a.looksLikeQuestion(line) {
		return line
	}
	return ""
}

func (geminiLikeAdapter) FormatResponse(text string) []byte {
	payload, _ := json.Marshal(map[string]string{"reply": text})
	return append(payload, '\n')
}

func (geminiLikeAdapter) ExtractFileOperations(full string) models.FilesModified {
	var out models.FilesModified
	for _, line := range strings.Split(full, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") {
			continue
		}
		var frame geminiFrame
		if err := json.Unmarshal([]byte(trimmed), &frame); err != nil || frame.Type != "file_op" {
			continue
		}
		switch geminiOpKind(frame.Op) {
		case models.FileOpCreate:
			out.Created = append(out.Created, frame.Path)
		case models.FileOpDelete:
			out.Deleted = append(out.Deleted, frame.Path)
		default:
			out.Modified = append(out.Modified, frame.Path)
		}
	}
	return out
}

func (geminiLikeAdapter) ExtractSummary(full string) string {
	return extractTrailingSummary(full)
}
