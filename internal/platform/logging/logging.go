// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New returns a development logger for mode "development" and a JSON
// production logger otherwise.
func New(mode string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch mode {
	case "development":
		logger, err = zap.NewDevelopment()
	case "production", "":
		logger, err = zap.NewProduction()
	default:
		return nil, fmt.Errorf("unknown log mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
