package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/iksnae/codetask-session/internal"
)

func TestJSONLExporter_Export(t *testing.T) {
	tests := []struct {
		name       string
		transcript *internal.Transcript
		want       []string
		wantLines  int
	}{
		{
			name:       "empty transcript",
			transcript: internal.CreateTestTranscriptWithMessages("u1", []internal.TranscriptMessage{}),
			want:       []string{},
			wantLines:  0,
		},
		{
			name:       "transcript with exchange",
			transcript: internal.CreateTestTranscript("u2"),
			want: []string{
				`"role":"user"`,
				`"role":"assistant"`,
				`"file_path":"scripts/hello.py"`,
				`"provider":"OpenAI"`,
				`"timestamp":"2024-01-02T03:04:05Z"`,
			},
			wantLines: 2,
		},
		{
			name: "attachments are listed by name",
			transcript: internal.CreateTestTranscriptWithMessages("u3", []internal.TranscriptMessage{
				{
					Role:        internal.RoleUser,
					Content:     "see attached",
					Attachments: []internal.Attachment{{Filename: "a.py", ContentLength: 12}},
				},
			}),
			want:      []string{`"attachments":["a.py"]`},
			wantLines: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter := &JSONLExporter{}
			var buf bytes.Buffer

			if err := exporter.Export(tt.transcript, &buf); err != nil {
				t.Fatalf("JSONLExporter.Export() error = %v", err)
			}

			output := buf.String()
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("JSONLExporter.Export() output missing %q\nGot: %s", want, output)
				}
			}

			lines := strings.Split(strings.TrimSpace(output), "\n")
			if output == "" {
				lines = nil
			}
			if len(lines) != tt.wantLines {
				t.Fatalf("JSONLExporter.Export() produced %d lines, want %d", len(lines), tt.wantLines)
			}
			for i, line := range lines {
				var obj map[string]interface{}
				if err := json.Unmarshal([]byte(line), &obj); err != nil {
					t.Errorf("Line %d is not valid JSON: %v", i, err)
				}
			}
		})
	}
}

func TestJSONLExporter_Extension(t *testing.T) {
	exporter := &JSONLExporter{}
	if got := exporter.Extension(); got != "jsonl" {
		t.Errorf("JSONLExporter.Extension() = %v, want jsonl", got)
	}
}
