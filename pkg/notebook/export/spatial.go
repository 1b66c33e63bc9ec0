package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"faims3/conductor/pkg/notebook"
	"faims3/conductor/pkg/telemetry/metrics"
	"faims3/conductor/pkg/telemetry/tracing"
)

// SpatialFormat is an output format of SpatialExporter.
type SpatialFormat string

// Spatial formats.
const (
	FormatGeoJSON SpatialFormat = "geojson"
	FormatKML     SpatialFormat = "kml"
)

// ContentType returns the MIME type of the format.
func (f SpatialFormat) ContentType() string {
	switch f {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	default:
		return "application/octet-stream"
	}
}

// Feature is one geometry of a record, carrying the record's exported
// columns as properties.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   map[string]any `json:"geometry"`
	Properties *Row           `json:"properties"`

	// Name labels the feature in KML: the record's HRID.
	Name string `json:"-"`
}

// featureWriter streams features in one output format.
type featureWriter interface {
	begin() error
	write(f Feature) error
	end() error
}

// spatialSource turns the records of one form into features. Each spatial
// field holding a geometry yields one feature.
type spatialSource struct {
	form      string
	fields    []notebook.FieldDescriptor
	spatial   []notebook.FieldDescriptor
	hridField string
	registry  *FilenameRegistry
	logger    *slog.Logger
}

func newSpatialSource(spec notebook.UISpecAccessor, form, hridField string, logger *slog.Logger) (*spatialSource, error) {
	fields, err := spec.FieldsForForm(form)
	if err != nil {
		return nil, err
	}
	var spatial []notebook.FieldDescriptor
	for _, f := range fields {
		if f.IsSpatial() {
			spatial = append(spatial, f)
		}
	}
	if len(spatial) == 0 {
		return nil, fmt.Errorf("%w: %s", notebook.ErrNoSpatialFields, form)
	}
	return &spatialSource{
		form:      form,
		fields:    fields,
		spatial:   spatial,
		hridField: hridField,
		registry:  NewFilenameRegistry(),
		logger:    logger,
	}, nil
}

// features returns the features of rec. Properties are the record columns
// followed by the formatted field columns, so attachment names match a CSV
// export of the same records.
func (s *spatialSource) features(ctx context.Context, rec *notebook.Record) []Feature {
	hrid := notebook.ResolveHRID(rec, s.hridField)

	base := NewRow()
	base.Set("hrid", hrid)
	base.Set("record_id", rec.RecordID)
	base.Set("revision_id", rec.RevisionID)
	base.Set("type", rec.Type)
	base.Set("updated_by", rec.UpdatedBy)
	base.Set("updated_time", FormatTimestamp(rec.Updated))
	row, _ := FormatRow(s.fields, rec.Data, hrid, s.registry)
	base.Merge(row)

	var out []Feature
	for _, field := range s.spatial {
		value, ok := rec.Data[field.ID]
		if !ok || value == nil || value == "" {
			continue
		}
		feature, ok := firstFeature(value)
		if !ok {
			s.logger.WarnContext(ctx, "spatial value has no geometry, skipping",
				"record_id", rec.RecordID,
				"field", field.ID,
			)
			continue
		}

		props := base.Clone()
		props.Set("geometry_source_view_id", field.View)
		props.Set("geometry_source_viewset_id", s.form)
		props.Set("geometry_source_field_id", field.ID)
		props.Set("geometry_source_type", string(field.Type))

		typ, _ := feature["type"].(string)
		geometry, _ := feature["geometry"].(map[string]any)
		out = append(out, Feature{Type: typ, Geometry: geometry, Properties: props, Name: hrid})
	}
	return out
}

// firstFeature returns a Feature value itself, or the first feature of a
// FeatureCollection, if it has geometry coordinates.
func firstFeature(value any) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	feature := obj
	switch obj["type"] {
	case "FeatureCollection":
		list, _ := obj["features"].([]any)
		if len(list) == 0 {
			return nil, false
		}
		if feature, ok = list[0].(map[string]any); !ok {
			return nil, false
		}
	case "Feature":
	default:
		return nil, false
	}
	geometry, ok := feature["geometry"].(map[string]any)
	if !ok || geometry["coordinates"] == nil {
		return nil, false
	}
	return feature, true
}

// SpatialExporter streams the geometries of one form as GeoJSON or KML.
type SpatialExporter struct {
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewSpatialExporter creates a spatial exporter. collector may be nil.
func NewSpatialExporter(collector *metrics.Collector) *SpatialExporter {
	return &SpatialExporter{
		metrics: collector,
		logger:  slog.Default().With("component", "notebook.export.spatial"),
	}
}

// Export writes one feature per geometry of the records of form to w.
//
// A form without location or map fields fails with an error matching
// notebook.ErrNoSpatialFields before anything is written. Geometries KML
// cannot express are logged and left out of KML output only.
func (e *SpatialExporter) Export(ctx context.Context, spec notebook.UISpecAccessor, form string, it notebook.RecordIterator, w io.Writer, format SpatialFormat, opts ...ExportOption) (stats ExportStats, err error) {
	o := applyOptions(opts)
	start := time.Now()
	name := string(format)

	ctx, span := tracing.Start(ctx, "export."+name, tracing.NotebookAttributes(o.notebookID, form)...)
	defer func() {
		tracing.SetExportResult(span, name, stats.Features, 0, 0)
		tracing.End(span, err)
		e.metrics.RecordExport(name, exportStatus(err), time.Since(start), stats.Features)
	}()

	var fw featureWriter
	switch format {
	case FormatGeoJSON:
		fw = newGeoJSONWriter(w)
	case FormatKML:
		fw = newKMLWriter(w)
	default:
		return stats, notebook.NewExportError(name, o.notebookID, form, fmt.Errorf("unknown spatial format %q", format))
	}

	logger := e.logger.With("notebook_id", o.notebookID, "form", form, "format", name)
	src, err := newSpatialSource(spec, form, resolveHRIDField(spec, form, o.hridField), logger)
	if err != nil {
		return stats, notebook.NewExportError(name, o.notebookID, form, err)
	}

	if err := fw.begin(); err != nil {
		return stats, notebook.NewExportError(name, o.notebookID, form, err)
	}
	for {
		rec, done, err := it.Next(ctx)
		if err != nil {
			return stats, notebook.NewExportError(name, o.notebookID, form, err)
		}
		if done {
			break
		}
		for _, f := range src.features(ctx, rec) {
			if err := fw.write(f); err != nil {
				if errors.Is(err, errUnsupportedGeometry) {
					logger.WarnContext(ctx, "geometry skipped", "record_id", rec.RecordID, "error", err)
					continue
				}
				return stats, notebook.NewExportError(name, o.notebookID, form, err)
			}
			stats.Features++
		}
	}
	if err := fw.end(); err != nil {
		return stats, notebook.NewExportError(name, o.notebookID, form, err)
	}

	logger.InfoContext(ctx, "spatial export completed",
		"features", stats.Features,
		"duration", time.Since(start),
	)
	return stats, nil
}
