package notebook

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

const testSpec = `{
  "fields": {
    "hrid-survey": {"component-name": "TemplatedStringField", "type-returned": "faims-core::String"},
    "name": {"component-name": "TextField", "type-returned": "faims-core::String"},
    "photos": {"component-name": "TakePhoto", "type-returned": "faims-attachment::Files"},
    "location": {"component-name": "TakePoint", "type-returned": "faims-pos::Location"},
    "links": {"component-name": "RelatedRecordSelector", "type-returned": "faims-core::Relationship"},
    "identifier": {"component-name": "TemplatedStringField", "type-returned": "faims-core::String"},
    "extent": {"component-name": "MapFormField", "type-returned": "faims-core::JSON"},
    "notes": {"component-name": "TextField", "type-returned": "faims-core::JSON"}
  },
  "fviews": {
    "survey-page1": {"fields": ["hrid-survey", "name"]},
    "survey-page2": {"fields": ["photos", "location", "name"]},
    "site-page1": {"fields": ["links"]},
    "trench-page1": {"fields": ["identifier", "extent", "notes"]}
  },
  "viewsets": {
    "Survey": {"views": ["survey-page1", "survey-page2"]},
    "Site": {"views": ["site-page1"], "hridField": "links"},
    "Trench": {"views": ["trench-page1"]}
  },
  "visible_types": ["Survey"]
}`

func mustParse(t *testing.T) *UISpec {
	t.Helper()
	spec, err := ParseUISpec([]byte(testSpec))
	if err != nil {
		t.Fatalf("ParseUISpec() failed: %v", err)
	}
	return spec
}

func TestUISpec_FieldsForForm(t *testing.T) {
	spec := mustParse(t)

	fields, err := spec.FieldsForForm("Survey")
	if err != nil {
		t.Fatalf("FieldsForForm() failed: %v", err)
	}

	want := []FieldDescriptor{
		{ID: "hrid-survey", Type: TypeString, Widget: "TemplatedStringField", View: "survey-page1"},
		{ID: "name", Type: TypeString, Widget: "TextField", View: "survey-page1"},
		{ID: "photos", Type: TypeAttachments, Widget: "TakePhoto", View: "survey-page2"},
		{ID: "location", Type: TypeGeoPoint, Widget: "TakePoint", View: "survey-page2"},
	}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d: %v", len(fields), len(want), fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("fields[%d] = %+v, want %+v", i, fields[i], want[i])
		}
	}
}

func TestUISpec_FieldsForForm_NotFound(t *testing.T) {
	spec := mustParse(t)

	_, err := spec.FieldsForForm("Missing")
	if !errors.Is(err, ErrFormNotFound) {
		t.Errorf("error = %v, want ErrFormNotFound", err)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound() = false, want true")
	}
}

func TestUISpec_HRIDField(t *testing.T) {
	spec := mustParse(t)

	tests := []struct {
		form string
		want string
	}{
		{"Survey", "hrid-survey"},
		{"Site", "links"},
		{"Trench", "identifier"},
		{"Missing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.form, func(t *testing.T) {
			if got := spec.HRIDField(tt.form); got != tt.want {
				t.Errorf("HRIDField(%q) = %q, want %q", tt.form, got, tt.want)
			}
		})
	}
}

func TestUISpec_Forms(t *testing.T) {
	spec := mustParse(t)
	if got := strings.Join(spec.Forms(), ","); got != "Survey,Site,Trench" {
		t.Errorf("Forms() = %s, want Survey,Site,Trench", got)
	}
}

func TestFieldDescriptor_IsSpatial(t *testing.T) {
	spec := mustParse(t)

	spatial := make(map[string]bool)
	for _, form := range spec.Forms() {
		fields, err := spec.FieldsForForm(form)
		if err != nil {
			t.Fatalf("FieldsForForm(%q) failed: %v", form, err)
		}
		for _, f := range fields {
			if f.IsSpatial() {
				spatial[f.ID] = true
			}
		}
	}
	if len(spatial) != 2 || !spatial["location"] || !spatial["extent"] {
		t.Errorf("spatial fields = %v, want location and extent", spatial)
	}
}

func TestParseUISpec_Invalid(t *testing.T) {
	if _, err := ParseUISpec([]byte("{")); err == nil {
		t.Error("ParseUISpec() expected error for truncated JSON")
	}
}

func TestResolveHRID(t *testing.T) {
	tests := []struct {
		name      string
		data      map[string]any
		hridField string
		want      string
	}{
		{"configured field", map[string]any{"label": "Site 7", "hrid-x": "ignored"}, "label", "Site 7"},
		{"configured field empty", map[string]any{"label": "", "hrid-x": "H-1"}, "label", "H-1"},
		{"prefix match", map[string]any{"name": "a", "hridSurvey": "S-12"}, "", "S-12"},
		{"first sorted prefix", map[string]any{"hrid-b": "B", "hrid-a": "A"}, "", "A"},
		{"non-string value", map[string]any{"hrid": 42.0}, "", "42"},
		{"fallback to record id", map[string]any{"name": "a"}, "", "rec-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{RecordID: "rec-1", Data: tt.data}
			if got := ResolveHRID(rec, tt.hridField); got != tt.want {
				t.Errorf("ResolveHRID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSliceIterator(t *testing.T) {
	ctx := context.Background()
	it := NewSliceIterator(&Record{RecordID: "a"}, &Record{RecordID: "b"})

	var ids []string
	for {
		rec, done, err := it.Next(ctx)
		if err != nil {
			t.Fatalf("Next() failed: %v", err)
		}
		if done {
			break
		}
		ids = append(ids, rec.RecordID)
	}
	if strings.Join(ids, ",") != "a,b" {
		t.Errorf("ids = %v, want a,b", ids)
	}
}

func TestBytesAttachment(t *testing.T) {
	att := &BytesAttachment{ContentType: "image/png", Data: []byte("png")}
	rc, err := att.Open(context.Background())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "png" || att.MIMEType() != "image/png" {
		t.Errorf("got %q %q", data, att.MIMEType())
	}
}

func TestExportError(t *testing.T) {
	err := NewExportError("csv", "p1", "Survey", ErrFormNotFound)
	if !errors.Is(err, ErrFormNotFound) {
		t.Error("errors.Is(ExportError, ErrFormNotFound) = false")
	}
	want := "csv export failed [notebook=p1, form=Survey]: form not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRestoreError(t *testing.T) {
	cause := errors.New("boom")
	err := NewRestoreError(12, "rec-1", cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is(RestoreError, cause) = false")
	}
	if err.Error() != "restore failed at line 12 [id=rec-1]: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
}
