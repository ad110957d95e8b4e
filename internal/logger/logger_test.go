package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"verbose": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestConsoleWriterPrefix(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(consoleWriter(&buf, "runner", true))
	l.Info().Msg("Found 3 hashes")

	out := buf.String()
	if !strings.Contains(out, "[runner] Found 3 hashes") {
		t.Errorf("Expected prefixed message, got %q", out)
	}
	if !strings.Contains(out, "| INFO  |") {
		t.Errorf("Expected padded level, got %q", out)
	}
}
