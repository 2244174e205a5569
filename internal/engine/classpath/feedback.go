package classpath

import (
	"log/slog"
	"sync"
)

// Feedback receives mapping progress. Mapping never fails because of a single
// bad location; such locations are reported through Error instead.
type Feedback interface {
	StartClassMapping()
	Progress(msg string)
	Error(err error)
	EndClassMapping()
}

// LogFeedback reports mapping progress through slog.
type LogFeedback struct {
	Logger *slog.Logger
}

func (f LogFeedback) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}

func (f LogFeedback) StartClassMapping()  { f.logger().Debug("classpath mapping started") }
func (f LogFeedback) Progress(msg string) { f.logger().Debug("classpath mapping", "progress", msg) }
func (f LogFeedback) Error(err error)     { f.logger().Warn("classpath location skipped", "error", err) }
func (f LogFeedback) EndClassMapping()    { f.logger().Debug("classpath mapping finished") }

// RecordingFeedback keeps every message; embedding front ends use it to show
// a mapping report after the fact.
type RecordingFeedback struct {
	mu       sync.Mutex
	Started  int
	Ended    int
	Messages []string
	Errors   []error
}

func (f *RecordingFeedback) StartClassMapping() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Started++
}

func (f *RecordingFeedback) Progress(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, msg)
}

func (f *RecordingFeedback) Error(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors = append(f.Errors, err)
}

func (f *RecordingFeedback) EndClassMapping() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ended++
}

// Snapshot returns copies of the recorded messages and errors.
func (f *RecordingFeedback) Snapshot() ([]string, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Messages...), append([]error(nil), f.Errors...)
}
