package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"faims3/conductor/pkg/config"
	"faims3/conductor/pkg/notebook"
)

// openErrAttachment fails on Open with a fixed error.
type openErrAttachment struct {
	mime string
	err  error
}

func (a *openErrAttachment) MIMEType() string { return a.mime }

func (a *openErrAttachment) Open(ctx context.Context) (io.ReadCloser, error) {
	return nil, a.err
}

// slowAttachment delays its read to shuffle completion order.
type slowAttachment struct {
	notebook.BytesAttachment
	delay time.Duration
}

func (a *slowAttachment) Open(ctx context.Context) (io.ReadCloser, error) {
	time.Sleep(a.delay)
	return a.BytesAttachment.Open(ctx)
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("invalid ZIP output: %v", err)
	}
	entries := make(map[string]string)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Open(%s) failed: %v", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("ReadAll(%s) failed: %v", f.Name, err)
		}
		if _, dup := entries[f.Name]; dup {
			t.Errorf("duplicate entry %s", f.Name)
		}
		entries[f.Name] = string(content)
	}
	return entries
}

func entryNames(entries map[string]string) string {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func TestZipExporter_Export(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{MaxConcurrentReads: 4}, nil)

	att := func(mime, content string, delay time.Duration) notebook.Attachment {
		return &slowAttachment{
			BytesAttachment: notebook.BytesAttachment{ContentType: mime, Data: []byte(content)},
			delay:           delay,
		}
	}
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{
			"hridSurvey": "S-1",
			"photo": []notebook.Attachment{
				att("image/jpeg", "first", 20*time.Millisecond),
				att("image/jpeg", "second", 0),
			},
			"name": "not an attachment",
		}),
		surveyRecord("rec-2", map[string]any{
			"photo": []any{att("application/pdf", "third", 5*time.Millisecond)},
			"notes": []notebook.Attachment{},
		}),
	)

	var buf bytes.Buffer
	stats, err := exporter.Export(context.Background(), it, &buf, WithHRIDField("hridSurvey"))
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if stats.Requested != 3 || stats.Entries != 3 || stats.Missing != 0 {
		t.Errorf("stats = %+v, want 3 requested and written", stats)
	}

	entries := readZip(t, buf.Bytes())
	want := "photo/S-1-photo.jpg,photo/S-1-photo_1.jpg,photo/rec-2-photo.pdf"
	if got := entryNames(entries); got != want {
		t.Errorf("entries = %s, want %s", got, want)
	}
	// Names are allocated in iteration order regardless of read timing.
	if entries["photo/S-1-photo.jpg"] != "first" || entries["photo/S-1-photo_1.jpg"] != "second" {
		t.Errorf("entry contents = %v", entries)
	}
}

func TestZipExporter_NoAttachments(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{"name": "a"}),
		surveyRecord("rec-2", map[string]any{"photo": []notebook.Attachment{}}),
	)

	done := make(chan struct{})
	var buf bytes.Buffer
	var stats ExportStats
	var err error
	go func() {
		defer close(done)
		stats, err = exporter.Export(context.Background(), it, &buf)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Export() did not finish")
	}
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes, want an aborted archive", buf.Len())
	}
	if stats.Requested != 0 {
		t.Errorf("Requested = %d, want 0", stats.Requested)
	}
}

func TestZipExporter_EmptyIterator(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)

	var buf bytes.Buffer
	if _, err := exporter.Export(context.Background(), notebook.NewSliceIterator(), &buf); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes, want none", buf.Len())
	}
}

func TestZipExporter_MissingAttachmentSkipped(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{
			"photo": []notebook.Attachment{
				&openErrAttachment{mime: "image/png", err: notebook.ErrAttachmentNotFound},
				&notebook.BytesAttachment{ContentType: "image/png", Data: []byte("ok")},
				&openErrAttachment{mime: "image/png", err: fmt.Errorf("open blob: %w", fs.ErrNotExist)},
			},
		}),
	)

	var buf bytes.Buffer
	stats, err := exporter.Export(context.Background(), it, &buf)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if stats.Entries != 1 || stats.Missing != 2 {
		t.Errorf("stats = %+v, want 1 entry and 2 missing", stats)
	}

	entries := readZip(t, buf.Bytes())
	if got := entryNames(entries); got != "photo/rec-1-photo_1.png" {
		t.Errorf("entries = %s", got)
	}
}

func TestZipExporter_OnlyMissingAttachments(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{
			"photo": []notebook.Attachment{&openErrAttachment{mime: "image/png", err: notebook.ErrAttachmentNotFound}},
		}),
	)

	var buf bytes.Buffer
	stats, err := exporter.Export(context.Background(), it, &buf)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if buf.Len() != 0 || stats.Missing != 1 {
		t.Errorf("got %d bytes, stats %+v; want aborted archive with 1 missing", buf.Len(), stats)
	}
}

func TestZipExporter_ReadErrorIsFatal(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)
	boom := errors.New("disk on fire")
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{
			"photo": []notebook.Attachment{
				&notebook.BytesAttachment{ContentType: "image/png", Data: []byte("ok")},
				&openErrAttachment{mime: "image/png", err: boom},
			},
		}),
	)

	_, err := exporter.Export(context.Background(), it, &bytes.Buffer{}, WithNotebookID("p1"))
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want %v", err, boom)
	}
	var exportErr *notebook.ExportError
	if !errors.As(err, &exportErr) || exportErr.Format != "zip" {
		t.Errorf("error = %#v, want zip ExportError", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("client hung up") }

func TestZipExporter_WriteErrorIsFatal(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)

	var atts []notebook.Attachment
	for i := 0; i < 10; i++ {
		atts = append(atts, &notebook.BytesAttachment{ContentType: "text/plain", Data: bytes.Repeat([]byte("x"), 64*1024)})
	}
	it := notebook.NewSliceIterator(surveyRecord("rec-1", map[string]any{"notes": atts}))

	if _, err := exporter.Export(context.Background(), it, failingWriter{}); err == nil {
		t.Fatal("Export() expected error for failing writer")
	}
}

func TestZipExporter_ConcurrentExports(t *testing.T) {
	exporter := NewZipExporter(config.ExportConfig{}, nil)

	newIterator := func() notebook.RecordIterator {
		var atts []notebook.Attachment
		for i := 0; i < 5; i++ {
			atts = append(atts, &notebook.BytesAttachment{ContentType: "image/gif", Data: []byte{byte(i)}})
		}
		return notebook.NewSliceIterator(surveyRecord("rec-1", map[string]any{"photo": atts}))
	}

	var wg sync.WaitGroup
	outputs := make([]bytes.Buffer, 4)
	errs := make([]error, 4)
	for i := range outputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = exporter.Export(context.Background(), newIterator(), &outputs[i])
		}(i)
	}
	wg.Wait()

	want := "photo/rec-1-photo.gif,photo/rec-1-photo_1.gif,photo/rec-1-photo_2.gif,photo/rec-1-photo_3.gif,photo/rec-1-photo_4.gif"
	for i := range outputs {
		if errs[i] != nil {
			t.Fatalf("export %d failed: %v", i, errs[i])
		}
		if got := entryNames(readZip(t, outputs[i].Bytes())); got != want {
			t.Errorf("export %d entries = %s", i, got)
		}
	}
}

func TestZipExporter_MatchesCSVNames(t *testing.T) {
	records := func() notebook.RecordIterator {
		return notebook.NewSliceIterator(
			surveyRecord("rec-1", map[string]any{
				"hridSurvey": "S-1",
				"photo": []notebook.Attachment{
					&notebook.BytesAttachment{ContentType: "image/jpeg", Data: []byte("a")},
					&notebook.BytesAttachment{ContentType: "image/jpeg", Data: []byte("b")},
				},
			}),
		)
	}

	var csvBuf, zipBuf bytes.Buffer
	if _, err := NewCSVExporter(config.ExportConfig{}, nil).Export(context.Background(), testUISpec(t), "Survey", records(), &csvBuf); err != nil {
		t.Fatalf("CSV Export() failed: %v", err)
	}
	if _, err := NewZipExporter(config.ExportConfig{}, nil).Export(context.Background(), records(), &zipBuf, WithHRIDField("hridSurvey")); err != nil {
		t.Fatalf("ZIP Export() failed: %v", err)
	}

	rows := readCSV(t, csvBuf.Bytes())
	referenced := strings.Split(rows[1][7], ";")
	entries := readZip(t, zipBuf.Bytes())
	for _, name := range referenced {
		if _, ok := entries[name]; !ok {
			t.Errorf("CSV references %s, not in archive %s", name, entryNames(entries))
		}
	}
}

func readCrate(t *testing.T, entries map[string]string) map[string]map[string]any {
	t.Helper()
	var crate struct {
		Context string           `json:"@context"`
		Graph   []map[string]any `json:"@graph"`
	}
	if err := json.Unmarshal([]byte(entries[MetadataName]), &crate); err != nil {
		t.Fatalf("invalid %s: %v", MetadataName, err)
	}
	if crate.Context != "https://w3id.org/ro/crate/1.1/context" {
		t.Errorf("@context = %s", crate.Context)
	}
	byID := make(map[string]map[string]any, len(crate.Graph))
	for _, entity := range crate.Graph {
		id, _ := entity["@id"].(string)
		byID[id] = entity
	}
	return byID
}

func partIDs(entity map[string]any) string {
	parts, _ := entity["hasPart"].([]any)
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		ids = append(ids, part.(map[string]any)["@id"].(string))
	}
	return strings.Join(ids, ",")
}

func TestZipExporter_FullArchive(t *testing.T) {
	it := notebook.NewSliceIterator(
		surveyRecord("rec-1", map[string]any{
			"hridSurvey": "S-1",
			"photo":      []notebook.Attachment{&notebook.BytesAttachment{ContentType: "image/jpeg", Data: []byte("jpeg")}},
			"loc":        point(10.5, 20.25),
		}),
		surveyRecord("rec-2", map[string]any{
			"hridSurvey": "S-2",
			"loc":        point(1.0, 2.0),
		}),
	)

	var buf bytes.Buffer
	stats, err := NewZipExporter(config.ExportConfig{}, nil).Export(context.Background(), it, &buf,
		WithNotebookID("nb-1"), WithForm("Survey"), WithFullArchive(testUISpec(t)))
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if stats.Entries != 1 || stats.Features != 2 {
		t.Errorf("stats = %+v, want 1 entry and 2 features", stats)
	}

	entries := readZip(t, buf.Bytes())
	want := "photo/S-1-photo.jpg,ro-crate-metadata.json,spatial/export.geojson,spatial/export.kml"
	if got := entryNames(entries); got != want {
		t.Fatalf("entries = %s, want %s", got, want)
	}

	var geo geoJSONOutput
	if err := json.Unmarshal([]byte(entries[SpatialGeoJSONName]), &geo); err != nil {
		t.Fatalf("invalid GeoJSON entry: %v", err)
	}
	if len(geo.Features) != 2 {
		t.Fatalf("features = %d, want 2", len(geo.Features))
	}
	// The HRID field comes from the form, so spatial properties name the
	// same attachment files as the archive.
	if got := geo.Features[0].Properties["photo"]; got != "photo/S-1-photo.jpg" {
		t.Errorf("photo property = %v", got)
	}
	assertWellFormedXML(t, entries[SpatialKMLName])

	crate := readCrate(t, entries)
	root := crate["./"]
	if root == nil {
		t.Fatal("root dataset missing")
	}
	if got := partIDs(root); got != "photo/,spatial/export.geojson,spatial/export.kml" {
		t.Errorf("hasPart = %s", got)
	}
	if root["name"] != "Export of Project nb-1" || root["spatialFeatures"] != 2.0 {
		t.Errorf("root dataset = %v", root)
	}
	if got := crate["photo/"]["attachmentCount"]; got != 1.0 {
		t.Errorf("photo/ attachmentCount = %v, want 1", got)
	}
	if got := crate[SpatialKMLName]["encodingFormat"]; got != "application/vnd.google-earth.kml+xml" {
		t.Errorf("KML encodingFormat = %v", got)
	}
}

func TestZipExporter_FullArchiveWithoutAttachments(t *testing.T) {
	it := notebook.NewSliceIterator(surveyRecord("rec-1", map[string]any{"loc": point(1.0, 2.0)}))

	var buf bytes.Buffer
	if _, err := NewZipExporter(config.ExportConfig{}, nil).Export(context.Background(), it, &buf,
		WithForm("Survey"), WithFullArchive(testUISpec(t))); err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	entries := readZip(t, buf.Bytes())
	if got := entryNames(entries); got != "ro-crate-metadata.json,spatial/export.geojson,spatial/export.kml" {
		t.Errorf("entries = %s", got)
	}
	if got := partIDs(readCrate(t, entries)["./"]); got != "spatial/export.geojson,spatial/export.kml" {
		t.Errorf("hasPart = %s", got)
	}
}

func TestZipExporter_FullArchiveWithoutSpatialFields(t *testing.T) {
	spec, err := notebook.ParseUISpec([]byte(`{
  "fields": {"photo": {"type-returned": "faims-attachment::Files"}},
  "fviews": {"p1": {"fields": ["photo"]}},
  "viewsets": {"Plain": {"views": ["p1"]}}
}`))
	if err != nil {
		t.Fatalf("ParseUISpec() failed: %v", err)
	}
	it := notebook.NewSliceIterator(surveyRecord("rec-1", map[string]any{
		"photo": []notebook.Attachment{&notebook.BytesAttachment{ContentType: "image/png", Data: []byte("png")}},
	}))

	var buf bytes.Buffer
	stats, err := NewZipExporter(config.ExportConfig{}, nil).Export(context.Background(), it, &buf,
		WithForm("Plain"), WithFullArchive(spec))
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if stats.Features != 0 {
		t.Errorf("Features = %d, want 0", stats.Features)
	}
	entries := readZip(t, buf.Bytes())
	if got := entryNames(entries); got != "photo/rec-1-photo.png,ro-crate-metadata.json" {
		t.Errorf("entries = %s", got)
	}
	if got := partIDs(readCrate(t, entries)["./"]); got != "photo/" {
		t.Errorf("hasPart = %s", got)
	}
}

func TestZipExporter_FullArchiveUnknownForm(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewZipExporter(config.ExportConfig{}, nil).Export(context.Background(), notebook.NewSliceIterator(), &buf,
		WithForm("Missing"), WithFullArchive(testUISpec(t)))
	if !errors.Is(err, notebook.ErrFormNotFound) {
		t.Fatalf("Export() error = %v, want ErrFormNotFound", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes", buf.Len())
	}
}
