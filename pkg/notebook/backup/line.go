package backup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"faims3/conductor/pkg/docstore"
)

// LineKind discriminates backup lines.
type LineKind int

const (
	// LineBlank is an empty or whitespace-only line.
	LineBlank LineKind = iota
	// LineHeader starts the section of one database.
	LineHeader
	// LineDocument carries one document of the current section.
	LineDocument
)

func (k LineKind) String() string {
	switch k {
	case LineHeader:
		return "header"
	case LineDocument:
		return "document"
	default:
		return "blank"
	}
}

// headerType is the "type" value of header lines.
const headerType = "header"

// ErrMalformedLine is returned by ParseLine for lines that are neither a
// header nor a document.
var ErrMalformedLine = errors.New("malformed backup line")

// Line is one parsed line of a backup file.
type Line struct {
	Kind LineKind

	// Database and Info are set on header lines.
	Database string
	Info     map[string]any

	// ID and Doc are set on document lines. Doc always carries an _id.
	ID  string
	Doc docstore.Document
}

// wireLine is the union of both line shapes as written by Dumper.
type wireLine struct {
	Type     string         `json:"type,omitempty"`
	Database string         `json:"database,omitempty"`
	Info     map[string]any `json:"info,omitempty"`

	ID    string         `json:"id,omitempty"`
	Key   string         `json:"key,omitempty"`
	Value map[string]any `json:"value,omitempty"`
	Doc   map[string]any `json:"doc,omitempty"`
}

// ParseLine decodes one line of a backup file. A line with "type" set to
// "header" is a header; a line with an "id" and a "doc" object is a
// document. Anything else wraps ErrMalformedLine.
func ParseLine(data []byte) (Line, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Line{Kind: LineBlank}, nil
	}

	var w wireLine
	if err := json.Unmarshal(data, &w); err != nil {
		return Line{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	switch w.Type {
	case headerType:
		if w.Database == "" {
			return Line{}, fmt.Errorf("%w: header without database", ErrMalformedLine)
		}
		return Line{Kind: LineHeader, Database: w.Database, Info: w.Info}, nil
	case "":
	default:
		return Line{}, fmt.Errorf("%w: unknown line type %q", ErrMalformedLine, w.Type)
	}

	if w.ID == "" {
		return Line{}, fmt.Errorf("%w: document without id", ErrMalformedLine)
	}
	if w.Doc == nil {
		return Line{}, fmt.Errorf("%w: document %s without doc", ErrMalformedLine, w.ID)
	}
	doc := docstore.Document(w.Doc)
	if doc.ID() == "" {
		doc[docstore.FieldID] = w.ID
	}
	return Line{Kind: LineDocument, ID: w.ID, Doc: doc}, nil
}
