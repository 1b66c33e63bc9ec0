package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"faims3/conductor/pkg/notebook"
)

// unknownRelation labels relationships without a relation type.
const unknownRelation = "unknown relation"

// Row is an ordered column accumulator. Keys keep first-seen order; setting
// an existing key replaces its value in place.
type Row struct {
	keys   []string
	values map[string]any
}

// NewRow returns an empty row.
func NewRow() *Row {
	return &Row{values: make(map[string]any)}
}

// Set stores a column value.
func (r *Row) Set(key string, value any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns a column value.
func (r *Row) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the column names in first-seen order.
func (r *Row) Keys() []string {
	return r.keys
}

// Len returns the number of columns.
func (r *Row) Len() int {
	return len(r.keys)
}

// Clone returns a copy of r.
func (r *Row) Clone() *Row {
	c := &Row{keys: append([]string(nil), r.keys...), values: make(map[string]any, len(r.values))}
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// MarshalJSON encodes the row as a JSON object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Merge copies every column of other into r.
func (r *Row) Merge(other *Row) {
	for _, k := range other.keys {
		r.Set(k, other.values[k])
	}
}

// FormatValue flattens one field value into output columns according to
// its semantic type. Attachment names are allocated from reg.
func FormatValue(field notebook.FieldDescriptor, value any, hrid string, reg *FilenameRegistry) *Row {
	row := NewRow()
	switch field.Type {
	case notebook.TypeAttachments:
		formatAttachments(row, field.ID, value, hrid, reg)
	case notebook.TypeGeoPoint:
		formatGeoPoint(row, field.ID, value)
	case notebook.TypeRelationship:
		formatRelationships(row, field.ID, value)
	case notebook.TypeJSON:
		formatMapPoint(row, field.ID, value)
	default:
		row.Set(field.ID, value)
	}
	return row
}

// FormatRow formats every field present in data. Fields absent from data
// are returned in missing.
func FormatRow(fields []notebook.FieldDescriptor, data map[string]any, hrid string, reg *FilenameRegistry) (row *Row, missing []string) {
	row = NewRow()
	for _, field := range fields {
		value, ok := data[field.ID]
		if !ok {
			missing = append(missing, field.ID)
			continue
		}
		row.Merge(FormatValue(field, value, hrid, reg))
	}
	return row, missing
}

func formatAttachments(row *Row, fieldID string, value any, hrid string, reg *FilenameRegistry) {
	mimes, ok := attachmentMIMETypes(value)
	if !ok {
		row.Set(fieldID, value)
		return
	}
	names := make([]string, 0, len(mimes))
	for _, mime := range mimes {
		names = append(names, reg.Allocate(fieldID, hrid, mime))
	}
	row.Set(fieldID, strings.Join(names, ";"))
}

// attachmentMIMETypes extracts the MIME type of each element of an
// attachment list. Elements are attachment handles or raw references with
// a "file_type" member.
func attachmentMIMETypes(value any) ([]string, bool) {
	switch list := value.(type) {
	case []notebook.Attachment:
		mimes := make([]string, 0, len(list))
		for _, att := range list {
			mimes = append(mimes, att.MIMEType())
		}
		return mimes, true
	case []any:
		mimes := make([]string, 0, len(list))
		for _, item := range list {
			switch att := item.(type) {
			case notebook.Attachment:
				mimes = append(mimes, att.MIMEType())
			case map[string]any:
				mime, _ := att["file_type"].(string)
				mimes = append(mimes, mime)
			default:
				return nil, false
			}
		}
		return mimes, true
	default:
		return nil, false
	}
}

// Attachments returns the attachment handles of a value, or nil if it is
// not a non-empty attachment list.
func Attachments(value any) []notebook.Attachment {
	switch list := value.(type) {
	case []notebook.Attachment:
		return list
	case []any:
		out := make([]notebook.Attachment, 0, len(list))
		for _, item := range list {
			att, ok := item.(notebook.Attachment)
			if !ok {
				return nil
			}
			out = append(out, att)
		}
		return out
	default:
		return nil
	}
}

func formatGeoPoint(row *Row, fieldID string, value any) {
	row.Set(fieldID, value)
	lat, lon, ok := pointCoordinates(value)
	if !ok {
		row.Set(fieldID+"_latitude", "")
		row.Set(fieldID+"_longitude", "")
		return
	}
	row.Set(fieldID+"_latitude", lat)
	row.Set(fieldID+"_longitude", lon)
}

// formatMapPoint flattens a map field whose first feature is a Point the
// way a location field is flattened. Other map values keep empty
// coordinate columns.
func formatMapPoint(row *Row, fieldID string, value any) {
	row.Set(fieldID, value)
	lat, lon, ok := firstPoint(value)
	if !ok {
		row.Set(fieldID+"_latitude", "")
		row.Set(fieldID+"_longitude", "")
		return
	}
	row.Set(fieldID+"_latitude", lat)
	row.Set(fieldID+"_longitude", lon)
}

// firstPoint reads the coordinates of features[0] of a feature collection
// if its geometry is a Point.
func firstPoint(value any) (float64, float64, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	features, ok := obj["features"].([]any)
	if !ok || len(features) == 0 {
		return 0, 0, false
	}
	feature, ok := features[0].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	geometry, _ := feature["geometry"].(map[string]any)
	if geometry["type"] != "Point" {
		return 0, 0, false
	}
	return pointCoordinates(feature)
}

// pointCoordinates reads geometry.coordinates[0] and [1] from a GeoJSON
// feature value.
func pointCoordinates(value any) (float64, float64, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return 0, 0, false
	}
	geometry, ok := obj["geometry"].(map[string]any)
	if !ok {
		return 0, 0, false
	}
	coords, ok := geometry["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return 0, 0, false
	}
	first, ok1 := toFloat(coords[0])
	second, ok2 := toFloat(coords[1])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return first, second, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func formatRelationships(row *Row, fieldID string, value any) {
	var parts []string
	switch list := value.(type) {
	case []notebook.Relationship:
		for _, rel := range list {
			parts = append(parts, relationLabel(rel.RelationTypeVocabPair)+"/"+rel.RecordID)
		}
	case []any:
		for _, item := range list {
			switch rel := item.(type) {
			case notebook.Relationship:
				parts = append(parts, relationLabel(rel.RelationTypeVocabPair)+"/"+rel.RecordID)
			case map[string]any:
				recordID, _ := rel["record_id"].(string)
				parts = append(parts, relationLabel(stringList(rel["relation_type_vocabPair"]))+"/"+recordID)
			default:
				parts = append(parts, unknownRelation+"/"+FormatCell(item))
			}
		}
	default:
		row.Set(fieldID, value)
		return
	}
	row.Set(fieldID, strings.Join(parts, ";"))
}

func relationLabel(vocab []string) string {
	if len(vocab) == 0 || vocab[0] == "" {
		return unknownRelation
	}
	return vocab[0]
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, _ := item.(string)
		out = append(out, s)
	}
	return out
}

// FormatCell renders a column value as CSV cell text. Maps and slices are
// rendered as compact JSON.
func FormatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", t)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case json.Number:
		return t.String()
	case time.Time:
		return FormatTimestamp(t)
	case fmt.Stringer:
		return t.String()
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

// timestampLayout is ISO 8601 with milliseconds.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC with millisecond precision. The zero
// time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}
