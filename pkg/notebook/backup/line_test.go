package backup

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantKind LineKind
		wantDB   string
		wantID   string
		wantErr  bool
	}{
		{"header", `{"type":"header","database":"data||p1"}`, LineHeader, "data||p1", "", false},
		{"header with info", `{"type":"header","database":"projects","info":{"doc_count":3}}`, LineHeader, "projects", "", false},
		{"document", `{"id":"rec-1","key":"rec-1","value":{"rev":"1-a"},"doc":{"_id":"rec-1","_rev":"1-a"}}`, LineDocument, "", "rec-1", false},
		{"document without doc id", `{"id":"rec-2","doc":{"value":1}}`, LineDocument, "", "rec-2", false},
		{"blank", "   \n", LineBlank, "", "", false},
		{"invalid json", `{"id":`, 0, "", "", true},
		{"header without database", `{"type":"header"}`, 0, "", "", true},
		{"unknown type", `{"type":"footer","database":"x"}`, 0, "", "", true},
		{"document without id", `{"doc":{"_id":"a"}}`, 0, "", "", true},
		{"document without doc", `{"id":"a"}`, 0, "", "", true},
		{"not an object", `[1,2]`, 0, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := ParseLine([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedLine) {
					t.Fatalf("ParseLine() error = %v, want ErrMalformedLine", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine() failed: %v", err)
			}
			if line.Kind != tt.wantKind || line.Database != tt.wantDB || line.ID != tt.wantID {
				t.Errorf("ParseLine() = %+v", line)
			}
			if line.Kind == LineDocument && line.Doc.ID() != tt.wantID {
				t.Errorf("Doc._id = %q, want %q", line.Doc.ID(), tt.wantID)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		wantKind sectionKind
		wantID   string
	}{
		{"projects", sectionProjects, ""},
		{"projects_default", sectionProjects, ""},
		{"metadata||p1", sectionMetadata, "p1"},
		{"data||p1", sectionData, "p1"},
		{"data||p1||extra", sectionData, "p1"},
		{"data", sectionData, ""},
		{"unknown-thing", sectionUnknown, ""},
		{"_users", sectionUnknown, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, id := classify(tt.name)
			if kind != tt.wantKind || id != tt.wantID {
				t.Errorf("classify(%q) = %v, %q; want %v, %q", tt.name, kind, id, tt.wantKind, tt.wantID)
			}
		})
	}
}
