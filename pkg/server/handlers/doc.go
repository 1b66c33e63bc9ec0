// Package handlers implements the HTTP endpoints of the conductor server:
// CSV, ZIP, GeoJSON and KML notebook exports, record counts, backup dumps
// and restores.
//
// Errors found before any output is written are answered as JSON:
//
//	{"error": "form not found: Missing", "request_id": "..."}
//
// with 404 for unknown notebooks or views (or spatial exports of a view
// without spatial fields), 400 for bad requests and 500
// otherwise. Errors after streaming has started are only logged.
package handlers
