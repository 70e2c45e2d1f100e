package logger

import (
	phlog "github.com/oarkflow/log"
)

// PhusluLogger writes through the package-level oarkflow/log logger.
type PhusluLogger struct{}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

func (p *PhusluLogger) Debug(msg string, keyvals ...any) {
	withFields(phlog.Debug(), keyvals).Msg(msg)
}

func (p *PhusluLogger) Info(msg string, keyvals ...any) {
	withFields(phlog.Info(), keyvals).Msg(msg)
}

func (p *PhusluLogger) Error(msg string, keyvals ...any) {
	withFields(phlog.Error(), keyvals).Msg(msg)
}

func withFields(e *phlog.Entry, keyvals []any) *phlog.Entry {
	Fields(keyvals, func(k string, v any) {
		switch vv := v.(type) {
		case string:
			e = e.Str(k, vv)
		case bool:
			e = e.Bool(k, vv)
		case int:
			e = e.Int(k, vv)
		case int64:
			e = e.Int64(k, vv)
		default:
			e = e.Any(k, vv)
		}
	})
	return e
}
