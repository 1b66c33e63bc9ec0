package export

import (
	"bufio"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// errUnsupportedGeometry marks geometries KML output leaves out.
var errUnsupportedGeometry = errors.New("unsupported geometry")

const kmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<kml xmlns="http://www.opengis.net/kml/2.2">` +
	`<Document>`

const kmlFooter = `</Document></kml>`

// kmlWriter streams one Placemark per feature.
type kmlWriter struct {
	w *bufio.Writer
}

func newKMLWriter(w io.Writer) *kmlWriter {
	return &kmlWriter{w: bufio.NewWriter(w)}
}

func (k *kmlWriter) begin() error {
	_, err := k.w.WriteString(kmlHeader)
	return err
}

// write converts the whole placemark before writing, so a feature with an
// unsupported geometry leaves no partial output.
func (k *kmlWriter) write(f Feature) error {
	geometry, err := kmlGeometry(f.Geometry)
	if err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("<Placemark><name>")
	b.WriteString(escapeXML(f.Name))
	b.WriteString("</name><ExtendedData>")
	for _, key := range f.Properties.Keys() {
		value, _ := f.Properties.Get(key)
		b.WriteString(`<Data name="`)
		b.WriteString(escapeXML(key))
		b.WriteString(`"><value>`)
		b.WriteString(escapeXML(FormatCell(value)))
		b.WriteString("</value></Data>")
	}
	b.WriteString("</ExtendedData>")
	b.WriteString(geometry)
	b.WriteString("</Placemark>")

	_, err = k.w.WriteString(b.String())
	return err
}

func (k *kmlWriter) end() error {
	if _, err := k.w.WriteString(kmlFooter); err != nil {
		return err
	}
	return k.w.Flush()
}

// kmlGeometry converts a GeoJSON geometry to its KML element. Multi
// geometries become a MultiGeometry of their parts.
func kmlGeometry(geometry map[string]any) (string, error) {
	typ, _ := geometry["type"].(string)
	coords := geometry["coordinates"]

	switch typ {
	case "Point", "LineString":
		c, err := kmlCoordinates(coords)
		if err != nil {
			return "", err
		}
		return "<" + typ + "><coordinates>" + c + "</coordinates></" + typ + ">", nil

	case "Polygon":
		return kmlPolygon(coords)

	case "MultiPoint", "MultiLineString", "MultiPolygon":
		parts, ok := coords.([]any)
		if !ok {
			return "", fmt.Errorf("%w: %s without coordinates", errUnsupportedGeometry, typ)
		}
		var b strings.Builder
		b.WriteString("<MultiGeometry>")
		for _, part := range parts {
			g, err := kmlGeometry(map[string]any{
				"type":        strings.TrimPrefix(typ, "Multi"),
				"coordinates": part,
			})
			if err != nil {
				return "", err
			}
			b.WriteString(g)
		}
		b.WriteString("</MultiGeometry>")
		return b.String(), nil

	default:
		return "", fmt.Errorf("%w: type %q", errUnsupportedGeometry, typ)
	}
}

// kmlPolygon writes the first ring as the outer boundary and the rest as
// holes.
func kmlPolygon(coords any) (string, error) {
	rings, ok := coords.([]any)
	if !ok || len(rings) == 0 {
		return "", fmt.Errorf("%w: polygon without rings", errUnsupportedGeometry)
	}
	var b strings.Builder
	b.WriteString("<Polygon>")
	for i, ring := range rings {
		c, err := kmlCoordinates(ring)
		if err != nil {
			return "", err
		}
		boundary := "innerBoundaryIs"
		if i == 0 {
			boundary = "outerBoundaryIs"
		}
		b.WriteString("<" + boundary + "><LinearRing><coordinates>" + c + "</coordinates></LinearRing></" + boundary + ">")
	}
	b.WriteString("</Polygon>")
	return b.String(), nil
}

// kmlCoordinates renders a position as "x,y,z" (z defaults to 0) and a
// list of positions separated by spaces.
func kmlCoordinates(coords any) (string, error) {
	list, ok := coords.([]any)
	if !ok || len(list) == 0 {
		return "", fmt.Errorf("%w: malformed coordinates", errUnsupportedGeometry)
	}

	if _, ok := toFloat(list[0]); ok {
		if len(list) < 2 {
			return "", fmt.Errorf("%w: position needs two numbers", errUnsupportedGeometry)
		}
		n := min(len(list), 3)
		parts := make([]string, 0, 3)
		for _, v := range list[:n] {
			f, ok := toFloat(v)
			if !ok {
				return "", fmt.Errorf("%w: non-numeric position", errUnsupportedGeometry)
			}
			parts = append(parts, strconv.FormatFloat(f, 'f', -1, 64))
		}
		if n == 2 {
			parts = append(parts, "0")
		}
		return strings.Join(parts, ","), nil
	}

	positions := make([]string, 0, len(list))
	for _, item := range list {
		c, err := kmlCoordinates(item)
		if err != nil {
			return "", err
		}
		positions = append(positions, c)
	}
	return strings.Join(positions, " "), nil
}

func escapeXML(s string) string {
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
