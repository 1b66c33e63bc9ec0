package export

import "faims3/conductor/pkg/notebook"

// ExportStats summarizes one export call.
type ExportStats struct {
	// Rows is the number of CSV data rows written.
	Rows int `json:"rows"`

	// Requested is the number of ZIP entries scheduled.
	Requested int `json:"requested"`

	// Entries is the number of ZIP entries written.
	Entries int `json:"entries"`

	// Missing is the number of attachments skipped because their content
	// was not found.
	Missing int `json:"missing"`

	// Features is the number of spatial features written.
	Features int `json:"features"`
}

// ExportOption configures a single export call.
type ExportOption func(*exportOptions)

type exportOptions struct {
	notebookID string
	form       string
	hridField  string
	fullSpec   notebook.UISpecAccessor
}

// WithNotebookID tags logs, spans and errors with the notebook id.
func WithNotebookID(id string) ExportOption {
	return func(o *exportOptions) { o.notebookID = id }
}

// WithForm tags a ZIP export with the form it covers.
func WithForm(form string) ExportOption {
	return func(o *exportOptions) { o.form = form }
}

// WithHRIDField names the field holding each record's HRID.
func WithHRIDField(field string) ExportOption {
	return func(o *exportOptions) { o.hridField = field }
}

// WithFullArchive turns a ZIP export into a full archive of the form: the
// attachments plus GeoJSON and KML files of its spatial fields and an
// RO-Crate metadata file. spec resolves the fields of the WithForm form.
func WithFullArchive(spec notebook.UISpecAccessor) ExportOption {
	return func(o *exportOptions) { o.fullSpec = spec }
}

// resolveHRIDField returns configured, or the HRID field spec names for
// form.
func resolveHRIDField(spec notebook.UISpecAccessor, form, configured string) string {
	if configured != "" {
		return configured
	}
	if p, ok := spec.(notebook.HRIDFieldProvider); ok {
		return p.HRIDField(form)
	}
	return ""
}

func applyOptions(opts []ExportOption) exportOptions {
	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
