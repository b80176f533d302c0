package log

import "sync"

// Entry is a single record captured by a Recorder.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Recorder is a Logger that keeps every entry in memory. Tests use it to
// assert on what a component chose to log.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) add(level string, fields map[string]any, msg string) {
	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Fields: fields})
	r.mu.Unlock()
}

func (r *Recorder) Info(f map[string]any, msg string)  { r.add("info", f, msg) }
func (r *Recorder) Error(f map[string]any, msg string) { r.add("error", f, msg) }
func (r *Recorder) Debug(f map[string]any, msg string) { r.add("debug", f, msg) }
func (r *Recorder) Warn(f map[string]any, msg string)  { r.add("warn", f, msg) }
func (r *Recorder) Panic(f map[string]any, msg string) { r.add("panic", f, msg) }
func (r *Recorder) Fatal(f map[string]any, msg string) { r.add("fatal", f, msg) }

// Entries returns a copy of the captured entries in write order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Level returns the captured entries written at the given level.
func (r *Recorder) Level(level string) []Entry {
	var out []Entry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

var _ Logger = (*Recorder)(nil)
