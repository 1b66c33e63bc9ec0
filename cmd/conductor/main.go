// Conductor exports FAIMS notebooks and backs up and restores their
// databases.
//
// It runs as an HTTP service or as one-shot commands:
//   - CSV export of one notebook form
//   - ZIP export of the attachments of one notebook form
//   - JSONL backup of every database, on demand or on a cron schedule
//   - Restore of a JSONL backup from a file, stdin, S3 or a watched inbox
//
// Usage:
//
//	# Start the HTTP service
//	conductor serve --config /etc/conductor/config.yaml
//
//	# Export a form as CSV
//	conductor export csv --notebook p1 --view Survey -o survey.csv
//
//	# Export the attachments of a form
//	conductor export zip --notebook p1 --view Survey -o survey.zip
//
//	# Dump every database
//	conductor backup -o backup.jsonl
//
//	# Restore only data databases, overwriting existing documents
//	conductor restore backup.jsonl --pattern '^data' --force
package main

func main() {
	Execute()
}
