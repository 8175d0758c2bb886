package logging

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/inboxsync/internal/model"
)

// New builds the application logger from cfg. An empty level means info.
func New(cfg model.LogConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if level < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
	}

	switch cfg.Format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// IMAPDebugWriter logs IMAP protocol traffic at trace level with
// credentials redacted. It sees both directions of one connection.
type IMAPDebugWriter struct {
	logger zerolog.Logger

	mu sync.Mutex
	// secretTag is set while a LOGIN with literal arguments or an
	// AUTHENTICATE exchange is in flight. Every line is hidden until the
	// tagged completion for it arrives.
	secretTag string
}

// NewIMAPDebugWriter returns a writer suitable for imapclient.Options.DebugWriter.
func NewIMAPDebugWriter(logger zerolog.Logger) *IMAPDebugWriter {
	return &IMAPDebugWriter{logger: logger}
}

// Write implements io.Writer.
func (w *IMAPDebugWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\r\n"), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		w.logger.Trace().Str("imap_data", w.redact(line)).Msg("imap wire")
	}
	return len(p), nil
}

var literalSuffix = regexp.MustCompile(`\{\d+\+?\}$`)

func (w *IMAPDebugWriter) redact(line string) string {
	if w.secretTag != "" {
		if strings.HasPrefix(line, w.secretTag+" ") {
			w.secretTag = ""
			return line
		}
		return "[redacted]"
	}

	fields := strings.Fields(line)
	if len(fields) >= 2 {
		switch strings.ToUpper(fields[1]) {
		case "AUTHENTICATE":
			w.secretTag = fields[0]
		case "LOGIN":
			if literalSuffix.MatchString(line) {
				w.secretTag = fields[0]
			}
		}
	}
	return Redact(line)
}

// Redact hides the arguments of LOGIN and AUTHENTICATE commands.
func Redact(line string) string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return line
	}
	switch strings.ToUpper(fields[1]) {
	case "LOGIN", "AUTHENTICATE":
		return fields[0] + " " + fields[1] + " [redacted]"
	}
	return line
}
