// Package notebook defines the records, UI specifications and collaborator
// interfaces shared by the export and backup pipelines.
//
// A notebook's UI spec groups fields into views and views into viewsets
// (forms). FieldsForForm resolves the ordered field list of a form together
// with each field's semantic type, which drives how the export pipelines
// flatten values:
//
//	spec, err := notebook.ParseUISpec(raw)
//	fields, err := spec.FieldsForForm("Survey")
//	if errors.Is(err, notebook.ErrFormNotFound) {
//		// report 404 before writing anything
//	}
//
// Records are pulled from a RecordIterator, one per export call.
package notebook
