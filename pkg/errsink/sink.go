// Package errsink collects the errors, warnings and notices raised while an
// acquire run is in flight. Failures are never propagated across the event
// loop; they land here and on the per-item status instead, and callers drain
// the sink when the loop returns.
package errsink

import (
	"fmt"
	"io"
)

// Kind classifies an entry.
type Kind int

const (
	// KindError marks a failure the run could not recover from.
	KindError Kind = iota
	// KindWarning marks a recovered problem worth surfacing.
	KindWarning
	// KindNotice marks advice attached to another entry.
	KindNotice
	// KindErrno marks a failed system call; the text carries the errno.
	KindErrno
)

func (k Kind) String() string {
	switch k {
	case KindError:
		return "E"
	case KindWarning:
		return "W"
	case KindNotice:
		return "N"
	case KindErrno:
		return "E"
	}
	return "?"
}

// Entry is one recorded problem.
type Entry struct {
	Kind Kind
	Text string
}

// Sink is an ordered list of entries. It is not safe for concurrent use; the
// event loop owns it.
type Sink struct {
	entries []Entry
}

// New creates an empty sink.
func New() *Sink {
	return &Sink{}
}

// Errorf records an error and returns it as a Go error so call sites can
// keep the usual "return sink.Errorf(...)" shape.
func (s *Sink) Errorf(format string, args ...interface{}) error {
	text := fmt.Sprintf(format, args...)
	s.entries = append(s.entries, Entry{Kind: KindError, Text: text})
	return fmt.Errorf("%s", text)
}

// Warningf records a warning.
func (s *Sink) Warningf(format string, args ...interface{}) {
	s.entries = append(s.entries, Entry{Kind: KindWarning, Text: fmt.Sprintf(format, args...)})
}

// Noticef records a notice.
func (s *Sink) Noticef(format string, args ...interface{}) {
	s.entries = append(s.entries, Entry{Kind: KindNotice, Text: fmt.Sprintf(format, args...)})
}

// Errnof records a failed system call together with its error value and
// returns the combined text as a Go error.
func (s *Sink) Errnof(call string, err error, format string, args ...interface{}) error {
	text := fmt.Sprintf("%s - %s (%v)", fmt.Sprintf(format, args...), call, err)
	s.entries = append(s.entries, Entry{Kind: KindErrno, Text: text})
	return fmt.Errorf("%s", text)
}

// PendingError reports whether the sink holds at least one error entry.
func (s *Sink) PendingError() bool {
	for _, e := range s.entries {
		if e.Kind == KindError || e.Kind == KindErrno {
			return true
		}
	}
	return false
}

// Entries returns the recorded entries in order.
func (s *Sink) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Drain empties the sink and returns what it held.
func (s *Sink) Drain() []Entry {
	out := s.entries
	s.entries = nil
	return out
}

// Dump writes every entry as "K: text" lines and empties the sink.
func (s *Sink) Dump(w io.Writer) {
	for _, e := range s.Drain() {
		fmt.Fprintf(w, "%s: %s\n", e.Kind, e.Text)
	}
}
