package api

import (
	"bytes"
	"testing"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputFormatYAML, false},
		{"yaml", OutputFormatYAML, false},
		{"json", OutputFormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestOutputTo(t *testing.T) {
	data := map[string]any{"mood": "happy"}

	tests := []struct {
		format OutputFormat
		want   string
	}{
		{OutputFormatYAML, "mood: happy\n"},
		{OutputFormatJSON, "{\n  \"mood\": \"happy\"\n}\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := OutputTo(&buf, tt.format, data); err != nil {
				t.Fatalf("OutputTo() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("OutputTo() = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	if err := OutputTo(&bytes.Buffer{}, "xml", data); err == nil {
		t.Error("expected error for unknown format")
	}
}
