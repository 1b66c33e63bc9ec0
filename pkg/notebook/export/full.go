package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"faims3/conductor/pkg/notebook"
)

// Entry names of a full archive besides the attachments.
const (
	SpatialGeoJSONName = "spatial/export.geojson"
	SpatialKMLName     = "spatial/export.kml"
	MetadataName       = "ro-crate-metadata.json"
)

// fullArchive collects the spatial outputs of a full ZIP export in memory
// during the record pass, and writes them with the metadata file once the
// attachments are in.
type fullArchive struct {
	notebookID string
	form       string
	spatial    *spatialSource
	geojson    bytes.Buffer
	kml        bytes.Buffer
	gw         *geoJSONWriter
	kw         *kmlWriter
	features   int
	logger     *slog.Logger
}

func newFullArchive(spec notebook.UISpecAccessor, notebookID, form, hridField string, logger *slog.Logger) (*fullArchive, error) {
	a := &fullArchive{notebookID: notebookID, form: form, logger: logger}

	src, err := newSpatialSource(spec, form, resolveHRIDField(spec, form, hridField), logger)
	switch {
	case errors.Is(err, notebook.ErrNoSpatialFields):
		logger.Info("no spatial fields in form, spatial files skipped")
		return a, nil
	case err != nil:
		return nil, err
	}

	a.spatial = src
	a.gw = newGeoJSONWriter(&a.geojson)
	a.kw = newKMLWriter(&a.kml)
	if err := a.gw.begin(); err != nil {
		return nil, err
	}
	if err := a.kw.begin(); err != nil {
		return nil, err
	}
	return a, nil
}

// add adds the features of rec to both spatial files.
func (a *fullArchive) add(ctx context.Context, rec *notebook.Record) {
	if a.spatial == nil {
		return
	}
	for _, f := range a.spatial.features(ctx, rec) {
		if err := a.gw.write(f); err != nil {
			a.logger.WarnContext(ctx, "feature skipped", "record_id", rec.RecordID, "error", err)
			continue
		}
		a.features++
		if err := a.kw.write(f); err != nil {
			a.logger.WarnContext(ctx, "KML placemark skipped", "record_id", rec.RecordID, "error", err)
		}
	}
}

// finish writes the spatial files and the metadata file. The archive
// goroutine must have exited: finish writes to the zip writer directly.
func (a *fullArchive) finish(run *zipRun, now time.Time) error {
	var spatialFiles []string
	if a.spatial != nil {
		if err := a.gw.end(); err != nil {
			return err
		}
		if err := a.kw.end(); err != nil {
			return err
		}
		for _, entry := range []appendRequest{
			{name: SpatialGeoJSONName, modified: now, data: a.geojson.Bytes()},
			{name: SpatialKMLName, modified: now, data: a.kml.Bytes()},
		} {
			if err := run.writeEntry(entry); err != nil {
				return fmt.Errorf("failed to write %s: %w", entry.name, err)
			}
			spatialFiles = append(spatialFiles, entry.name)
		}
	}

	run.mu.Lock()
	folders := make(map[string]int, len(run.folders))
	for k, v := range run.folders {
		folders[k] = v
	}
	run.mu.Unlock()

	data, err := json.MarshalIndent(a.metadata(folders, spatialFiles, now), "", "  ")
	if err != nil {
		return err
	}
	if err := run.writeEntry(appendRequest{name: MetadataName, modified: now, data: data}); err != nil {
		return fmt.Errorf("failed to write %s: %w", MetadataName, err)
	}
	return nil
}

// roCrate is an RO-Crate 1.1 metadata document.
type roCrate struct {
	Context string           `json:"@context"`
	Graph   []map[string]any `json:"@graph"`
}

func ref(id string) map[string]any {
	return map[string]any{"@id": id}
}

// metadata describes the archive: one dataset per attachment folder and
// one file per spatial output.
func (a *fullArchive) metadata(folders map[string]int, spatialFiles []string, now time.Time) roCrate {
	names := make([]string, 0, len(folders))
	for name := range folders {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]map[string]any, 0, len(names)+len(spatialFiles))
	for _, name := range names {
		parts = append(parts, ref(name+"/"))
	}
	for _, name := range spatialFiles {
		parts = append(parts, ref(name))
	}

	crate := roCrate{
		Context: "https://w3id.org/ro/crate/1.1/context",
		Graph: []map[string]any{
			{
				"@id":        MetadataName,
				"@type":      "CreativeWork",
				"conformsTo": ref("https://w3id.org/ro/crate/1.1"),
				"about":      ref("./"),
			},
			{
				"@id":             "./",
				"@type":           "Dataset",
				"name":            fmt.Sprintf("Export of Project %s", a.notebookID),
				"description":     fmt.Sprintf("Records of %s", a.form),
				"datePublished":   FormatTimestamp(now),
				"hasPart":         parts,
				"spatialFeatures": a.features,
			},
		},
	}

	for _, name := range names {
		crate.Graph = append(crate.Graph, map[string]any{
			"@id":             name + "/",
			"@type":           "Dataset",
			"name":            fmt.Sprintf("%s (Attachments)", name),
			"description":     fmt.Sprintf("Media and file attachments for %s", name),
			"attachmentCount": folders[name],
		})
	}
	for _, name := range spatialFiles {
		format, label := FormatGeoJSON, "GeoJSON Spatial Data"
		if name == SpatialKMLName {
			format, label = FormatKML, "KML Spatial Data"
		}
		crate.Graph = append(crate.Graph, map[string]any{
			"@id":            name,
			"@type":          "File",
			"name":           label,
			"encodingFormat": format.ContentType(),
		})
	}
	return crate
}
