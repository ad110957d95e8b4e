package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	once     sync.Once
	instance zerolog.Logger

	fileOnce sync.Once
	logFile  io.Writer
	logPath  string
)

// GetLogPath returns the file the current process logs to. The name is fixed
// at first use so every component shares one rotating file.
func GetLogPath() string {
	fileOnce.Do(openLogFile)
	return logPath
}

func openLogFile() {
	cfg := config.Get()
	logsDir := cfg.LogDir
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to create logs directory: %v\n", err)
	}
	logPath = filepath.Join(logsDir, fmt.Sprintf("log-%s.txt", time.Now().Format("20060102-150405")))
	logFile = &lumberjack.Logger{
		Filename: logPath,
		MaxSize:  10, // MB
		MaxAge:   15, // days
		Compress: true,
	}
}

// ParseLevel maps a config level to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func consoleWriter(out io.Writer, prefix string, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    noColor,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		},
		FormatMessage: func(i interface{}) string {
			return fmt.Sprintf("[%s] %v", prefix, i)
		},
	}
}

// New returns a logger for one component. Console output always goes to
// stdout; when log_to_file is set the same lines are teed to the rotating file.
func New(prefix string) zerolog.Logger {
	cfg := config.Get()

	var w io.Writer = consoleWriter(os.Stdout, prefix, false)
	if cfg.LogToFile {
		fileOnce.Do(openLogFile)
		w = zerolog.MultiLevelWriter(w, consoleWriter(logFile, prefix, true))
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(ParseLevel(cfg.LogLevel))
}

func Default() zerolog.Logger {
	once.Do(func() {
		instance = New("pakscan")
	})
	return instance
}
