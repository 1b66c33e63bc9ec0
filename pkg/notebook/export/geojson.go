package export

import (
	"bufio"
	"encoding/json"
	"io"
)

// geoJSONWriter streams a FeatureCollection. Nothing reaches the
// underlying writer before the buffer fills or end is called.
type geoJSONWriter struct {
	w *bufio.Writer
	n int
}

func newGeoJSONWriter(w io.Writer) *geoJSONWriter {
	return &geoJSONWriter{w: bufio.NewWriter(w)}
}

func (g *geoJSONWriter) begin() error {
	_, err := g.w.WriteString(`{"type":"FeatureCollection","features":[`)
	return err
}

func (g *geoJSONWriter) write(f Feature) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if g.n > 0 {
		if err := g.w.WriteByte(','); err != nil {
			return err
		}
	}
	if _, err := g.w.Write(data); err != nil {
		return err
	}
	g.n++
	return nil
}

func (g *geoJSONWriter) end() error {
	if _, err := g.w.WriteString("]}"); err != nil {
		return err
	}
	return g.w.Flush()
}
