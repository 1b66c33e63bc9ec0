// Package export streams notebook records as CSV tables, attachment
// archives and spatial files.
//
// CSVExporter writes one row per record of a single form. Field values are
// flattened by semantic type: attachment lists become ";"-joined file
// names, geo points gain _latitude and _longitude columns, relationship
// lists become "type/record_id" pairs. The first record fixes the header.
//
// ZipExporter writes every attachment of the same records into a ZIP
// archive under the names the CSV references:
//
//	{field}/{hrid}-{field}.{ext}
//	{field}/{hrid}-{field}_1.{ext}
//
// Attachment reads run concurrently and entries land in completion order.
// A single goroutine owns the archive writer; the archive is finalized once
// the record source is exhausted and every scheduled entry has completed.
// If no entry was written the archive is discarded and nothing is written.
//
// SpatialExporter writes one GeoJSON feature or KML placemark per geometry
// held by a location or map field, with the record's columns as
// properties. A ZIP export with WithFullArchive adds both spatial files and
// an RO-Crate metadata file to the attachments.
package export
