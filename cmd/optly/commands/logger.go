package commands

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/fivetwenty-io/optly/pkg/optly"
)

// zerologAdapter implements optly.Logger on top of zerolog.
type zerologAdapter struct {
	logger zerolog.Logger
}

// NewLogger creates a logger writing to out at the given level. Terminals get
// the console writer, everything else gets JSON lines.
func NewLogger(out io.Writer, level string) optly.Logger {
	parsed := zerolog.WarnLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		parsed = l
	}

	writer := out
	if isTerminal(out) {
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	return &zerologAdapter{
		logger: zerolog.New(writer).Level(parsed).With().Timestamp().Logger(),
	}
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)

	return ok && term.IsTerminal(int(file.Fd())) // #nosec G115 -- file descriptors fit in int
}

func (l *zerologAdapter) Debug(msg string, fields map[string]interface{}) {
	l.logger.Debug().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Info(msg string, fields map[string]interface{}) {
	l.logger.Info().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Warn(msg string, fields map[string]interface{}) {
	l.logger.Warn().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Error(msg string, fields map[string]interface{}) {
	l.logger.Error().Fields(fields).Msg(msg)
}
