package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestTextPrinterLevelFiltering(t *testing.T) {
	b := &bytes.Buffer{}
	l := NewConsoleLogger(&TextPrinter{Writer: b}, func(int) {})
	l.SetLevel(INFO)

	l.Debug("Debug %q", "llamas")
	l.Info("Info %q", "llamas")
	l.Warn("Warn %q", "llamas")
	l.Error("Error %q", "llamas")

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("bad number of lines, got %d: %q", len(lines), lines)
	}
	if !strings.HasSuffix(lines[0], `Info "llamas"`) {
		t.Fatalf("line 0 bad, got %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], `Warn "llamas"`) {
		t.Fatalf("line 1 bad, got %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], `Error "llamas"`) {
		t.Fatalf("line 2 bad, got %q", lines[2])
	}
}

func TestTextPrinterRendersFields(t *testing.T) {
	b := &bytes.Buffer{}
	l := NewConsoleLogger(&TextPrinter{Writer: b}, func(int) {}).WithFields(StringField("job_id", "abc123"))
	l.SetLevel(INFO)

	l.Info("dispatching")

	line := strings.TrimRight(b.String(), "\n")
	if !strings.Contains(line, "job_id=abc123") {
		t.Fatalf("expected job_id field in line, got %q", line)
	}
}

func TestJSONPrinterEmitsOneObjectPerLine(t *testing.T) {
	b := &bytes.Buffer{}
	l := NewConsoleLogger(NewJSONPrinter(b), func(int) {}).WithFields(IntField("attempt", 2))
	l.SetLevel(INFO)

	l.Info("retrying")
	l.Warn("still retrying")

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("bad number of lines, got %d: %q", len(lines), lines)
	}
	for _, want := range []string{`"msg":"retrying"`, `"attempt":"2"`} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("line 0 missing %q, got %q", want, lines[0])
		}
	}
	if !strings.Contains(lines[1], `"level":"WARN"`) {
		t.Fatalf("line 1 missing level, got %q", lines[1])
	}
}

func TestFatalCallsExitFn(t *testing.T) {
	b := &bytes.Buffer{}
	var exitCode int
	l := NewConsoleLogger(&TextPrinter{Writer: b}, func(code int) { exitCode = code })

	l.Fatal("boom")

	if exitCode != 1 {
		t.Fatalf("expected exit code 1, got %d", exitCode)
	}
	if !strings.Contains(b.String(), "boom") {
		t.Fatalf("expected message in output, got %q", b.String())
	}
}
