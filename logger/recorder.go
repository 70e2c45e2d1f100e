package logger

import "sync"

// Level of a recorded entry
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Entry is one recorded log call with normalized fields
type Entry struct {
	Level  Level
	Msg    string
	Fields map[string]any
}

// Recorder keeps every entry in memory. Tests use it to assert on what the
// engine logged; it also serves as a silent logger.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Debug(msg string, keyvals ...any) { r.add(LevelDebug, msg, keyvals) }
func (r *Recorder) Info(msg string, keyvals ...any)  { r.add(LevelInfo, msg, keyvals) }
func (r *Recorder) Error(msg string, keyvals ...any) { r.add(LevelError, msg, keyvals) }

func (r *Recorder) add(level Level, msg string, keyvals []any) {
	e := Entry{Level: level, Msg: msg, Fields: make(map[string]any, len(keyvals)/2)}
	Fields(keyvals, func(k string, v any) { e.Fields[k] = v })
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Entries returns a copy of the entries at level, or all entries when level
// is empty.
func (r *Recorder) Entries(level Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if level == "" || e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the first entry with msg.
func (r *Recorder) Find(msg string) (Entry, bool) {
	for _, e := range r.Entries("") {
		if e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}
