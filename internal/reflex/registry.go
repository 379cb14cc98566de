// Package reflex implements the Message Router's fast path (spec section
// 4.2): a sorted list of deterministic handlers for common utterances
// ("stop", "status", "whoami", ...) that answer without invoking the
// language model. The Message Router consults this registry before
// falling through to the Command Parser or Agent Loop.
package reflex

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/fetchctl/fetch/pkg/models"
)

// Category groups reflexes for priority banding, per spec section 4.2.
type Category string

const (
	CategorySafety Category = "safety" // stop/undo/clear/pause/resume, priority 80-100
	CategoryInfo   Category = "info"   // help/status/commands, priority 10
	CategoryMeta   Category = "meta"   // whoami/identity/thread, priority 5-10
	CategorySystem Category = "system" // skills/tools/scheduling, priority 10
)

// ActionType is the side effect a matched reflex asks the router to take.
type ActionType string

const (
	ActionNone    ActionType = ""
	ActionStop    ActionType = "stop"
	ActionUndo    ActionType = "undo"
	ActionClear   ActionType = "clear"
	ActionPause   ActionType = "pause"
	ActionResume  ActionType = "resume"
	ActionSetMode ActionType = "set_mode"
)

// Action describes a router-level side effect a handler requested.
type Action struct {
	Type ActionType
	Mode models.Mode // set when Type == ActionSetMode
}

// Context is what a handler sees: the inbound text (already trimmed) and
// the session it arrived on.
type Context struct {
	Text    string
	Session *models.Session
	UserID  string
}

// Response is a handler's verdict. Matched=false means "not mine, keep
// looking"; the router only inspects Text/Action/ContinueProcessing when
// Matched is true.
type Response struct {
	Matched            bool
	Text               string
	Action             *Action
	ContinueProcessing bool
}

// Handler inspects a reflex Context and decides whether it owns this
// message.
type Handler func(ctx context.Context, rc *Context) Response

// Reflex is one registered fast-path handler.
type Reflex struct {
	Name     string
	Triggers []string // exact match, case-insensitive after trim
	Patterns []*regexp.Regexp
	Priority int // higher runs first
	Category Category
	Handler  Handler
}

// matches reports whether text (already trimmed+lowercased) hits one of
// this reflex's triggers or patterns.
func (r *Reflex) matches(text string) bool {
	for _, t := range r.Triggers {
		if strings.EqualFold(strings.TrimSpace(t), text) {
			return true
		}
	}
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Registry holds the sorted reflex list. Priority ties break by
// registration order (stable sort), matching the resolution order
// internal/commands' Registry uses for ambiguous matches.
type Registry struct {
	reflexes []*Reflex
	sorted   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a reflex. Safe to call before or after Match; the
// registry re-sorts lazily on the next Match call.
func (r *Registry) Register(rx *Reflex) {
	r.reflexes = append(r.reflexes, rx)
	r.sorted = false
}

func (r *Registry) ensureSorted() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.reflexes, func(i, j int) bool {
		return r.reflexes[i].Priority > r.reflexes[j].Priority
	})
	r.sorted = true
}

// Match runs text against every reflex in priority order and returns the
// first handler whose response reports Matched=true. ok is false if no
// reflex matched at all, in which case the router falls through to the
// Command Parser or Agent Loop.
func (r *Registry) Match(ctx context.Context, text string, session *models.Session, userID string) (Response, bool) {
	r.ensureSorted()
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Response{}, false
	}
	rc := &Context{Text: normalized, Session: session, UserID: userID}
	for _, rx := range r.reflexes {
		if !rx.matches(normalized) {
			continue
		}
		resp := rx.Handler(ctx, rc)
		if resp.Matched {
			return resp, true
		}
	}
	return Response{}, false
}

// List returns the registered reflexes in priority order, for introspection.
func (r *Registry) List() []*Reflex {
	r.ensureSorted()
	out := make([]*Reflex, len(r.reflexes))
	copy(out, r.reflexes)
	return out
}
