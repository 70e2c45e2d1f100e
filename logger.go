package clubauthz

import "github.com/oarkflow/clubauthz/logger"

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// TraceIDFunc generates audit record ids.
type TraceIDFunc = logger.TraceIDFunc

// WithLogger installs a Logger on the Engine
func WithLogger(l Logger) EngineOption {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithTraceIDFunc installs a custom audit record id generator.
func WithTraceIDFunc(f TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		if f != nil {
			e.traceIDFunc = f
		}
		return nil
	}
}
