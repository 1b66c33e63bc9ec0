// Package backup reads and writes notebook backups.
//
// A backup is a JSONL file. Each database section begins with a header
// line and is followed by one line per document:
//
//	{"type":"header","database":"data||proj1","info":{"doc_count":1}}
//	{"id":"rec-1","key":"rec-1","value":{"rev":"1-x"},"doc":{"_id":"rec-1","_rev":"1-x"}}
//
// Restorer routes each section by the prefix of its database name:
// "projects" to the projects directory, "metadata||<id>" and "data||<id>"
// to the databases of notebook <id>, and anything else nowhere. Design
// documents are never restored and revisions are stripped before writing.
// Dumper produces the same format.
//
// Scheduler takes periodic backups on a cron schedule and InboxWatcher
// restores files dropped into a directory.
package backup
