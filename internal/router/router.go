// Package router implements the Message Router (spec section 4.1): the
// single entry point every inbound message passes through before it
// reaches a reply. It authorizes, deduplicates, and rate-limits the
// sender, then dispatches in order to the Command Parser, the Reflex
// Registry, pending-approval interpretation, and finally the Agent Loop.
package router

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fetchctl/fetch/internal/agent"
	"github.com/fetchctl/fetch/internal/cache"
	"github.com/fetchctl/fetch/internal/commands"
	"github.com/fetchctl/fetch/internal/mode"
	"github.com/fetchctl/fetch/internal/observability"
	"github.com/fetchctl/fetch/internal/ratelimit"
	"github.com/fetchctl/fetch/internal/reflex"
	"github.com/fetchctl/fetch/internal/sessions"
	"github.com/fetchctl/fetch/pkg/models"

	"go.opentelemetry.io/otel/trace"
)

// AuthFunc reports whether userID is allowed to talk to the bot at all.
// Authorization is an external concern (spec section 1) - the Router
// calls out to it rather than implementing allow/deny lists itself.
type AuthFunc func(ctx context.Context, userID string) bool

// MatchedPath identifies which dispatch branch produced a response, for
// tracing and tests.
type MatchedPath string

const (
	PathUnauthorized MatchedPath = "unauthorized"
	PathDuplicate    MatchedPath = "duplicate"
	PathRateLimited  MatchedPath = "rate_limited"
	PathCommand      MatchedPath = "command"
	PathReflex       MatchedPath = "reflex"
	PathApproval     MatchedPath = "approval"
	PathAgent        MatchedPath = "agent"
)

// compactionThreshold is the message count beyond which a thread is
// summarized before the next turn, per section 4.10's integration point.
const compactionThreshold = 60

// Config bundles the Router's collaborators. Commands and Reflexes are
// expected to already be populated (RegisterBuiltins called) by the
// caller that wires cmd/fetch together.
type Config struct {
	Sessions  sessions.Store
	Commands  *commands.Registry
	Parser    *commands.Parser
	Reflexes  *reflex.Registry
	Mode      *mode.Manager
	Runtime   *agent.Runtime
	Authorize AuthFunc

	Dedupe  *cache.DedupeCache
	Limiter *ratelimit.Limiter
	Tracer  *observability.Tracer

	Logger *slog.Logger
}

// Router is the Message Router. It holds no per-message state; every
// method call is safe for concurrent use across many senders.
type Router struct {
	sessions  sessions.Store
	commands  *commands.Registry
	parser    *commands.Parser
	reflexes  *reflex.Registry
	mode      *mode.Manager
	runtime   *agent.Runtime
	authorize AuthFunc

	dedupe  *cache.DedupeCache
	limiter *ratelimit.Limiter
	tracer  *observability.Tracer

	logger *slog.Logger
}

// New builds a Router. Dedupe, Limiter, and Tracer are optional - a nil
// value disables that step rather than panicking, so tests can wire a
// minimal Config.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	authorize := cfg.Authorize
	if authorize == nil {
		authorize = func(context.Context, string) bool { return true }
	}
	return &Router{
		sessions:  cfg.Sessions,
		commands:  cfg.Commands,
		parser:    cfg.Parser,
		reflexes:  cfg.Reflexes,
		mode:      cfg.Mode,
		runtime:   cfg.Runtime,
		authorize: authorize,
		dedupe:    cfg.Dedupe,
		limiter:   cfg.Limiter,
		tracer:    cfg.Tracer,
		logger:    logger,
	}
}

// Outcome is what HandleMessage produced: the reply text(s) to send back
// plus which path answered, for callers that want to log or test it.
type Outcome struct {
	Responses []string
	Path      MatchedPath
}

// HandleMessage is the Router's single entry point (spec section 4.1).
// onProgress, if non-nil, receives intermediate agent events as they
// stream in - the Router still returns only the final response text(s).
func (r *Router) HandleMessage(ctx context.Context, userID, text string, onProgress func(models.AgentEvent)) (Outcome, error) {
	ctx, span, finish := r.startSpan(ctx, userID)
	defer finish()

	if !r.authorize(ctx, userID) {
		r.setPath(span, PathUnauthorized)
		return Outcome{Path: PathUnauthorized}, nil
	}

	if r.dedupe != nil && r.dedupe.Check(dedupeKey(userID, text, time.Now())) {
		r.setPath(span, PathDuplicate)
		return Outcome{Path: PathDuplicate}, nil
	}

	if r.limiter != nil && !r.limiter.Allow(ratelimit.CompositeKey("router", userID)) {
		r.setPath(span, PathRateLimited)
		return Outcome{Responses: []string{"You're sending messages too quickly. Please slow down."}, Path: PathRateLimited}, nil
	}

	session, err := r.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		return Outcome{}, fmt.Errorf("router: load session: %w", err)
	}
	session.LastActivityAt = time.Now()

	trimmed := strings.TrimSpace(text)

	if r.parser != nil && r.parser.IsCommand(trimmed) {
		out, err := r.dispatchCommand(ctx, session, trimmed)
		r.setPath(span, PathCommand)
		return out, err
	}

	if r.reflexes != nil {
		if resp, ok := r.reflexes.Match(ctx, trimmed, session, userID); ok {
			out, err := r.dispatchReflex(ctx, session, resp)
			r.setPath(span, PathReflex)
			return out, err
		}
	}

	if r.mode != nil && r.mode.Current() == models.ModeWaiting && session.PendingApproval != nil {
		if out, handled, err := r.dispatchApproval(ctx, session, trimmed); handled {
			r.setPath(span, PathApproval)
			return out, err
		}
	}

	out, err := r.dispatchAgent(ctx, session, trimmed, onProgress)
	r.setPath(span, PathAgent)
	return out, err
}

func dedupeKey(userID, text string, now time.Time) string {
	bucket := now.Unix() / 60
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", userID, text, bucket)))
	return hex.EncodeToString(sum[:16])
}

// startSpan opens the router.handle_message span (SPEC_FULL.md section
// 4.1's otel requirement) with a hashed user_id so raw identifiers never
// leave the process. finish must always be called, even on early return.
func (r *Router) startSpan(ctx context.Context, userID string) (context.Context, trace.Span, func()) {
	if r.tracer == nil {
		return ctx, nil, func() {}
	}
	sum := sha256.Sum256([]byte(userID))
	ctx, span := r.tracer.Start(ctx, "router.handle_message")
	r.tracer.SetAttributes(span, "user_id", hex.EncodeToString(sum[:8]))
	return ctx, span, span.End
}

// setPath records which dispatch branch answered the message. This is
// what correlates a trace with the resilience layer's circuit state:
// an agent-path span that ends in error alongside an open circuit means
// the breaker, not the router, rejected the request.
func (r *Router) setPath(span trace.Span, path MatchedPath) {
	if r.tracer == nil || span == nil {
		return
	}
	r.tracer.SetAttributes(span, "matched_path", string(path))
}

// dispatchCommand parses and executes a slash command.
func (r *Router) dispatchCommand(ctx context.Context, session *models.Session, text string) (Outcome, error) {
	parsed := r.parser.ParseCommand(text)
	if parsed == nil {
		return Outcome{Responses: []string{"I didn't recognize that command."}, Path: PathCommand}, nil
	}
	inv := &commands.Invocation{
		Name:     parsed.Name,
		Args:     parsed.Args,
		RawText:  text,
		Session:  session,
		ThreadID: session.ActiveThreadID,
		UserID:   session.UserID,
	}
	result, err := r.commands.Execute(ctx, inv)
	if err != nil {
		return Outcome{Responses: []string{fmt.Sprintf("Command failed: %s", err)}, Path: PathCommand}, nil
	}
	if err := r.sessions.Update(ctx, session); err != nil {
		r.logger.Error("router: persist session after command", "error", err, "session_id", session.ID)
	}
	if result.Suppress {
		return Outcome{Path: PathCommand}, nil
	}
	text2 := result.Text
	if result.Error != "" {
		text2 = result.Error
	}
	return Outcome{Responses: []string{r.prefixed(text2)}, Path: PathCommand}, nil
}

// dispatchReflex applies a matched reflex's response and, if it asked for
// a side effect, carries that effect out against the session/mode.
func (r *Router) dispatchReflex(ctx context.Context, session *models.Session, resp reflex.Response) (Outcome, error) {
	if resp.Action != nil {
		switch resp.Action.Type {
		case reflex.ActionClear:
			if thread, err := r.sessions.CreateThread(ctx, session.ID); err == nil {
				session.ActiveThreadID = thread.ID
			}
			session.ActiveFiles = nil
		case reflex.ActionStop:
			session.ActiveTaskID = ""
		case reflex.ActionUndo:
			session.GitStartCommit = ""
		case reflex.ActionPause, reflex.ActionResume, reflex.ActionSetMode:
			if r.mode != nil {
				if err := r.mode.Transition(resp.Action.Mode); err != nil {
					r.logger.Warn("router: reflex requested invalid mode transition", "error", err, "mode", resp.Action.Mode)
				}
			}
		}
		if err := r.sessions.Update(ctx, session); err != nil {
			r.logger.Error("router: persist session after reflex", "error", err, "session_id", session.ID)
		}
	}
	return Outcome{Responses: []string{r.prefixed(resp.Text)}, Path: PathReflex}, nil
}

// dispatchApproval interprets a yes/no answer to a pending tool approval.
// handled is false when the text isn't recognizable as an answer, so the
// caller falls through to the Agent Loop instead.
func (r *Router) dispatchApproval(ctx context.Context, session *models.Session, text string) (Outcome, bool, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	var approved bool
	switch normalized {
	case "yes", "y", "approve", "approved", "ok", "okay":
		approved = true
	case "no", "n", "deny", "denied", "reject", "rejected", "cancel":
		approved = false
	default:
		return Outcome{}, false, nil
	}

	pending := session.PendingApproval
	session.PendingApproval = nil
	if err := r.sessions.Update(ctx, session); err != nil {
		r.logger.Error("router: persist session after approval", "error", err, "session_id", session.ID)
	}
	if r.mode != nil {
		if err := r.mode.Transition(models.ModeListening); err != nil {
			r.logger.Warn("router: leaving WAITING after approval", "error", err)
		}
	}
	if !approved {
		return Outcome{Responses: []string{r.prefixed(fmt.Sprintf("Cancelled %s.", pending.ToolName))}, Path: PathApproval}, true, nil
	}
	return Outcome{Responses: []string{r.prefixed(fmt.Sprintf("Approved %s. Resuming.", pending.ToolName))}, Path: PathApproval}, true, nil
}

// dispatchAgent hands the message to the Agent Loop (spec section 4.4)
// via Runtime.ProcessStream, draining its event channel into a response.
func (r *Router) dispatchAgent(ctx context.Context, session *models.Session, text string, onProgress func(models.AgentEvent)) (Outcome, error) {
	if r.runtime == nil {
		return Outcome{Responses: []string{"I'm not able to process that right now."}, Path: PathAgent}, nil
	}
	msg := &models.Message{
		ID:        models.NewMessageID(),
		ThreadID:  session.ActiveThreadID,
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}

	events, err := r.runtime.ProcessStream(ctx, session, msg)
	if err != nil {
		return Outcome{}, fmt.Errorf("router: start agent run: %w", err)
	}

	var responses []string
	var turn strings.Builder
	for event := range events {
		if onProgress != nil {
			onProgress(event)
		}
		switch event.Type {
		case models.AgentEventModelDelta:
			if event.Stream != nil {
				turn.WriteString(event.Stream.Delta)
			}
		case models.AgentEventModelCompleted:
			if turn.Len() > 0 {
				responses = append(responses, turn.String())
				turn.Reset()
			}
		case models.AgentEventRunError:
			if event.Error != nil {
				responses = append(responses, fmt.Sprintf("Something went wrong: %s", event.Error.Message))
			}
		}
	}
	if turn.Len() > 0 {
		responses = append(responses, turn.String())
	}

	if history, err := r.sessions.GetHistory(ctx, session.ActiveThreadID, compactionThreshold+1); err == nil && len(history) > compactionThreshold {
		r.logger.Debug("router: thread past compaction threshold", "thread_id", session.ActiveThreadID, "messages", len(history))
	}

	if len(responses) == 0 {
		return Outcome{Path: PathAgent}, nil
	}
	out := make([]string, len(responses))
	for i, resp := range responses {
		out[i] = r.prefixed(resp)
	}
	return Outcome{Responses: out, Path: PathAgent}, nil
}

// prefixed applies the Mode Manager's glyph prefix (spec section 4.9) to
// every outgoing message, if a mode manager is wired.
func (r *Router) prefixed(text string) string {
	if r.mode == nil {
		return text
	}
	return r.mode.Prefix(text)
}
