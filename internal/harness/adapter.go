// Package harness implements the harness execution engine: it spawns coding
// assistant CLI processes inside the sandbox, streams and parses their
// output, feeds user replies back via stdin, and enforces timeouts.
package harness

import (
	"regexp"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// SpawnConfig is what an adapter's buildConfig returns: everything needed to
// spawn the child process via the sandbox's spawnInSandbox primitive.
type SpawnConfig struct {
	Command   string
	Args      []string
	Env       map[string]string
	Cwd       string
	TimeoutMs int
}

// Adapter integrates one external coding-assistant CLI (spec section 4.7 /
// GLOSSARY "Adapter"). Three adapters exist, one per harness agent name.
type Adapter interface {
	Agent() models.Agent
	BuildConfig(goal, cwd string, timeoutMs int) SpawnConfig
	ParseOutputLine(line string) *models.HarnessEvent
	DetectQuestion(recentOutput string) string
	FormatResponse(text string) []byte
	ExtractFileOperations(full string) models.FilesModified
	ExtractSummary(full string) string
}

// Common question/completion patterns shared by every adapter's base
// behavior (spec section 4.7).
var (
	questionSuffixRe  = regexp.MustCompile(`\?\s*$`)
	yesNoBracketRe    = regexp.MustCompile(`(?i)\[y/n\]`)
	yesNoParenRe      = regexp.MustCompile(`(?i)\(yes/no\)`)
	continuePromptRe  = regexp.MustCompile(`(?i)continue|proceed|confirm`)
	completionWordsRe = regexp.MustCompile(`(?i)\b(done|completed|finished)\b`)
)

// base provides the shared question/completion detection every adapter
// embeds; adapters override only argv construction and event parsing where
// their CLI's output format differs.
type base struct{}

// looksLikeQuestion implements the common detectQuestion heuristic: the last
// non-empty line matches one of the shared question patterns.
func (base) looksLikeQuestion(line string) bool {
	if line == "" {
		return false
	}
	return questionSuffixRe.MatchString(line) ||
		yesNoBracketRe.MatchString(line) ||
		yesNoParenRe.MatchString(line) ||
		continuePromptRe.MatchString(line)
}

// looksLikeCompletion implements the common detectCompletion heuristic.
func (base) looksLikeCompletion(line string) bool {
	return completionWordsRe.MatchString(line)
}

// MaxLineLength is the OutputParser's max-line-length guard (spec section 4.7).
const MaxLineLength = 10000

// QuestionTimeout is an adapter-agnostic fallback idle window used only when
// an adapter doesn't override it; the engine's own timer uses the task's
// configured timeoutMs instead.
const QuestionTimeout = 2 * time.Minute
