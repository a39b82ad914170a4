package logs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New buduje logger zapisujący JSON do pliku (append) i opcjonalnie na konsolę.
// Zwrócony Closer zamyka plik logów.
func New(logFilePath string, withConsole bool, level string) (zerolog.Logger, io.Closer) {
	_ = os.MkdirAll(filepath.Dir(logFilePath), 0o755)

	// Utwórz plik logów (append + tworzenie jeśli brak)
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal().Err(err).Msg("Nie można otworzyć pliku log")
	}

	return NewWithWriter(logFile, withConsole, level), logFile
}

// NewWithWriter – jak New, ale z dowolnym io.Writer (testy, stdout w kontenerze).
func NewWithWriter(w io.Writer, withConsole bool, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	writer := w
	if withConsole {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writer = zerolog.MultiLevelWriter(w, consoleWriter)
	}

	// Logger z timestampem i info o miejscu wywołania
	logger := zerolog.New(writer).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()

	// Ustaw globalny logger
	log.Logger = logger

	return logger
}

// ParseLevel zamienia "debug"/"warn"/... na poziom zerologa; nieznane -> info.
func ParseLevel(s string) zerolog.Level {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
