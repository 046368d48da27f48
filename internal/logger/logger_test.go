package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"nope", LevelInfo, true},
	}

	for _, c := range cases {
		got, err := ParseLevel(c.in)
		if (err != nil) != c.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", c.in, err, c.wantErr)
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelWarn, FormatJSON, &buf)

	log.Debug("dropped")
	log.Info("dropped")
	log.Warn("kept")
	log.Error("kept")

	lines := strings.Count(buf.String(), "\n")
	if lines != 2 {
		t.Fatalf("got %d entries, want 2: %s", lines, buf.String())
	}
}

func TestJSONEntryShape(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelInfo, FormatJSON, &buf)

	log.Info("scan complete", F("dirs", 42), F("matches", 2))

	var entry struct {
		Level   string         `json:"level"`
		Message string         `json:"msg"`
		Fields  map[string]any `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON entry: %v", err)
	}
	if entry.Level != "info" || entry.Message != "scan complete" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Fields["dirs"] != float64(42) {
		t.Fatalf("dirs field = %v, want 42", entry.Fields["dirs"])
	}
}

func TestTextFormatSortsFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelInfo, FormatText, &buf)

	log.Info("hello", F("zebra", 1), F("alpha", 2))

	line := buf.String()
	if !strings.Contains(line, "alpha=2 zebra=1") {
		t.Fatalf("fields not sorted: %s", line)
	}
}

func TestWithFieldsCarriesBaseFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(LevelInfo, FormatJSON, &buf)

	child := log.WithFields(F("worker", 3))
	child.Info("dequeued")

	if !strings.Contains(buf.String(), `"worker":3`) {
		t.Fatalf("base field missing: %s", buf.String())
	}
}
