package faerie

import (
	"log/slog"
	"os"
	"sync"

	slogmulti "github.com/samber/slog-multi"
	"github.com/xyproto/env/v2"
)

// VerboseMode is a package-level debug switch read from the environment
// with xyproto/env/v2 instead of a CLI flag -- a CLI is out of scope for
// this library, but something still has to decide whether to emit
// diagnostics. FAERIE_DEBUG=1 (or any env.Bool-truthy value) turns it on.
var VerboseMode = env.Bool("FAERIE_DEBUG")

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// Logger returns the package-wide structured logger. Handlers are composed
// with slog-multi: a text handler to stderr, gated to Debug level when
// VerboseMode is set and Warn otherwise. The package's own declare, define,
// link and emit paths do not log through it; they report every failure as a
// returned error.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		level := slog.LevelWarn
		if VerboseMode {
			level = slog.LevelDebug
		}
		handler := slogmulti.Fanout(
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
		)
		logger = slog.New(handler).With("component", "faerie")
	})
	return logger
}
