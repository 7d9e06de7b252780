// Package logsink carries human-readable operation status lines from
// background vehicle tasks to whatever front end is attached.
package logsink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/groundpeer/pkg/log"
)

// Line is one status line.
type Line struct {
	Time   time.Time `json:"time"`
	Role   string    `json:"role,omitempty"`
	Action string    `json:"action,omitempty"`
	Text   string    `json:"text"`
	Err    string    `json:"error,omitempty"`
}

func (l Line) String() string {
	s := l.Text
	if l.Role != "" {
		s = fmt.Sprintf("[%s] %s", l.Role, s)
	}
	if l.Err != "" {
		s += ": " + l.Err
	}
	return s
}

// Sink buffers lines for one consumer and keeps a short history. Report
// never blocks: when the buffer is full the oldest line is dropped.
type Sink struct {
	lines   chan Line
	dropped atomic.Uint64
	clock   clock.PassiveClock
	log     log.Logger

	mu      sync.Mutex
	history []Line
	keep    int
}

// Option customizes a Sink.
type Option func(*Sink)

func WithClock(c clock.PassiveClock) Option {
	return func(s *Sink) { s.clock = c }
}

// WithHistory sets how many recent lines Recent returns.
func WithHistory(n int) Option {
	return func(s *Sink) { s.keep = n }
}

func WithLogger(l log.Logger) Option {
	return func(s *Sink) { s.log = l }
}

// New returns a sink whose channel holds size lines.
func New(size int, opts ...Option) *Sink {
	if size <= 0 {
		size = 1
	}
	s := &Sink{
		lines: make(chan Line, size),
		clock: clock.RealClock{},
		log:   log.WithName("sink"),
		keep:  100,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report records a status line and mirrors it to the structured log.
func (s *Sink) Report(role, action, text string, err error) {
	l := Line{Time: s.clock.Now(), Role: role, Action: action, Text: text}
	if err != nil {
		l.Err = err.Error()
		s.log.Error(err, text, "role", role, "action", action)
	} else {
		s.log.Info(text, "role", role, "action", action)
	}

	s.remember(l)
	s.push(l)
}

// Reportf is Report with a formatted, error-free text.
func (s *Sink) Reportf(role, action, format string, args ...any) {
	s.Report(role, action, fmt.Sprintf(format, args...), nil)
}

func (s *Sink) push(l Line) {
	for {
		select {
		case s.lines <- l:
			return
		default:
		}

		select {
		case <-s.lines:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Sink) remember(l Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keep <= 0 {
		return
	}
	s.history = append(s.history, l)
	if over := len(s.history) - s.keep; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Lines returns the channel the consumer reads from.
func (s *Sink) Lines() <-chan Line { return s.lines }

// Dropped returns how many lines were discarded on overflow.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Recent returns up to n of the most recent lines, oldest first.
func (s *Sink) Recent(n int) []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.history) {
		n = len(s.history)
	}
	return append([]Line(nil), s.history[len(s.history)-n:]...)
}
