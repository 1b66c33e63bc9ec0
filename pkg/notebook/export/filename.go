package export

import (
	"fmt"
	"strings"
	"sync"
)

// mimeExtensions maps attachment MIME types to file extensions.
var mimeExtensions = map[string]string{
	"image/jpeg":       "jpg",
	"image/png":        "png",
	"image/gif":        "gif",
	"image/tiff":       "tif",
	"text/plain":       "txt",
	"application/pdf":  "pdf",
	"application/json": "json",
}

// defaultExtension is used for MIME types missing from the table.
const defaultExtension = "dat"

// ExtensionForMIME returns the file extension for a MIME type. Parameters
// such as "; charset=utf-8" are ignored.
func ExtensionForMIME(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	if ext, ok := mimeExtensions[strings.ToLower(strings.TrimSpace(base))]; ok {
		return ext
	}
	return defaultExtension
}

// FilenameRegistry hands out unique attachment file names within one export
// call. It is safe for concurrent use.
type FilenameRegistry struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewFilenameRegistry returns an empty registry.
func NewFilenameRegistry() *FilenameRegistry {
	return &FilenameRegistry{names: make(map[string]struct{})}
}

// Allocate returns "{field}/{hrid}-{field}.{ext}", or the first free
// "{field}/{hrid}-{field}_N.{ext}" when that is taken, and registers it.
// Path separators in the HRID are replaced so it stays one path segment.
func (r *FilenameRegistry) Allocate(fieldID, hrid, mime string) string {
	ext := ExtensionForMIME(mime)
	stem := fmt.Sprintf("%s/%s-%s", fieldID, sanitizeSegment(hrid), fieldID)

	r.mu.Lock()
	defer r.mu.Unlock()

	name := stem + "." + ext
	for n := 1; r.taken(name); n++ {
		name = fmt.Sprintf("%s_%d.%s", stem, n, ext)
	}
	r.names[name] = struct{}{}
	return name
}

// Len returns the number of allocated names.
func (r *FilenameRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

func (r *FilenameRegistry) taken(name string) bool {
	_, ok := r.names[name]
	return ok
}

var segmentReplacer = strings.NewReplacer("/", "_", "\\", "_")

func sanitizeSegment(s string) string {
	return segmentReplacer.Replace(s)
}
