package harness

import (
	"bufio"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fetchctl/fetch/pkg/models"
)

// ansiRe strips terminal control sequences from raw adapter output.
var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripControlCodes removes ANSI escapes and other non-printable bytes.
func stripControlCodes(line string) string {
	line = ansiRe.ReplaceAllString(line, "")
	var b strings.Builder
	b.Grow(len(line))
	for _, r := range line {
		if r == '\t' || r == '\n' || (r >= 0x20 && r != 0x7f) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// OutputParser reads an adapter's stdout line by line, strips control codes,
// enforces a max-line-length guard, and emits structured HarnessEvents
// through an adapter's ParseOutputLine, buffering a rolling window of the
// full output for later summary/file-operation extraction (spec 4.7).
type OutputParser struct {
	adapter Adapter

	mu     sync.Mutex
	buffer strings.Builder // rolling window, capped at models.MaxStdoutBufferBytes

	Events chan models.HarnessEvent
}

// NewOutputParser builds a parser bound to one adapter's line grammar.
func NewOutputParser(adapter Adapter) *OutputParser {
	return &OutputParser{
		adapter: adapter,
		Events:  make(chan models.HarnessEvent, 64),
	}
}

// Run consumes r line by line until EOF or ctx-driven cancellation of the
// caller's read loop (the reader itself has no context; callers close r on
// cancel). Closes Events on return. Safe to call exactly once.
func (p *OutputParser) Run(r io.Reader) {
	defer close(p.Events)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), MaxLineLength+1)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > MaxLineLength {
			line = line[:MaxLineLength]
		}
		p.feed(stripControlCodes(line))
	}
	p.flush()
}

// feed processes one already-cleaned line.
func (p *OutputParser) feed(line string) {
	p.appendBuffer(line)

	ev := p.adapter.ParseOutputLine(line)
	if ev == nil {
		ev = &models.HarnessEvent{Type: models.HarnessLine, Line: line}
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	p.Events <- *ev

	if ev.Type == models.HarnessLine {
		if q := p.adapter.DetectQuestion(line); q != "" {
			p.Events <- models.HarnessEvent{Type: models.HarnessQuestion, Question: q, At: time.Now()}
		}
	}
}

// flush emits any trailing partial state; current adapters are line-oriented
// so there is nothing additional to emit beyond what feed already sent, but
// the hook exists so future adapters with multi-line frames have somewhere
// to drain a partial buffer on end-of-stream.
func (p *OutputParser) flush() {}

func (p *OutputParser) appendBuffer(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.WriteString(line)
	p.buffer.WriteByte('\n')
	if p.buffer.Len() > models.MaxStdoutBufferBytes {
		kept := p.buffer.String()
		drop := len(kept) - models.MaxStdoutBufferBytes
		p.buffer.Reset()
		p.buffer.WriteString(kept[drop:])
	}
}

// FullOutput returns the current rolling window, used for summary and
// file-operation extraction once the child has exited.
func (p *OutputParser) FullOutput() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.String()
}
