package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger writing to stderr, so stdout stays free for
// answers printed by the CLI. When debug is true it uses the development
// config (console encoding, debug level); otherwise the production config
// (JSON, info level).
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
