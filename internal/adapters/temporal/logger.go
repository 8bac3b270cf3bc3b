package temporal

import (
	"log/slog"

	"go.temporal.io/sdk/log"
)

// newLogAdapter routes SDK logs through slog.
func newLogAdapter(l *slog.Logger) log.Logger {
	return log.NewStructuredLogger(l)
}
