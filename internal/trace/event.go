// Package trace records native-interop activity (DllCall invocations,
// callback entries, regex compilations) and fans it out to sinks: a SQL
// table, a live websocket feed and the log.
package trace

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event
type Kind string

const (
	KindDllCall      Kind = "dllcall"
	KindCallback     Kind = "callback"
	KindRegexCompile Kind = "regex_compile"
)

// Event is one traced operation
type Event struct {
	ID        string        `json:"id"`
	Session   string        `json:"session"`
	Kind      Kind          `json:"kind"`
	Time      time.Time     `json:"time"`
	Target    string        `json:"target"`
	Detail    string        `json:"detail,omitempty"`
	Result    string        `json:"result,omitempty"`
	LastError uint32        `json:"last_error,omitempty"`
	Exception uint32        `json:"exception,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
	Err       string        `json:"error,omitempty"`
}

// Sink receives events
type Sink interface {
	Write(ev Event) error
	Close() error
}

// Recorder stamps events and hands them to every sink. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	Session string

	mu     sync.Mutex
	sinks  []Sink
	logger *log.Logger
	count  int64
	failed int64
}

// NewRecorder creates a recorder with a fresh session ID
func NewRecorder(logger *log.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		Session: uuid.NewString(),
		sinks:   sinks,
		logger:  logger,
	}
}

// Add attaches another sink
func (r *Recorder) Add(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Enabled reports whether emitted events go anywhere
func (r *Recorder) Enabled() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sinks) > 0
}

// Emit records ev. Sink failures are logged, never returned: tracing must
// not change the outcome of the traced operation.
func (r *Recorder) Emit(ev Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sinks) == 0 {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.Session = r.Session
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	r.count++
	for _, s := range r.sinks {
		if err := s.Write(ev); err != nil {
			r.failed++
			r.logger.Printf("trace: %T: %v", s, err)
		}
	}
}

// Counts returns the number of events emitted and of failed sink writes
func (r *Recorder) Counts() (emitted, failed int64) {
	if r == nil {
		return 0, 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count, r.failed
}

// Close closes every sink
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.sinks = nil
	return errors.Join(errs...)
}
