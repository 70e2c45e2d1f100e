package logger

import (
	"fmt"
	"reflect"
	"time"
)

// Logger is the structured logging interface used by the engine. keyvals are
// alternating key/value pairs.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc generates an id for each audit record. It should be cheap and
// safe for concurrent calls.
type TraceIDFunc func() string

// badKey labels a trailing value that has no key.
const badKey = "!BADKEY"

// Fields walks keyvals as pairs and hands each one to fn with the value
// normalized. Capabilities, roles and reason codes are named string types
// and come out as plain strings, errors as their message and times as UTC
// RFC3339Nano.
func Fields(keyvals []any, fn func(key string, val any)) {
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 == len(keyvals) {
			fn(badKey, normalize(keyvals[i]))
			return
		}
		key, ok := keyvals[i].(string)
		if !ok {
			key = fmt.Sprint(keyvals[i])
		}
		fn(key, normalize(keyvals[i+1]))
	}
}

func normalize(v any) any {
	switch vv := v.(type) {
	case nil, string, bool, int, int64, float64:
		return vv
	case error:
		return vv.Error()
	case time.Time:
		return vv.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return vv.String()
	case fmt.Stringer:
		return vv.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}
