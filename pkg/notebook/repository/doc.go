// Package repository stores notebooks in a docstore.Store.
//
// Each notebook owns two databases next to the shared "projects"
// directory:
//
//	projects           one document per notebook
//	metadata||<id>     the "ui-specification" document
//	data||<id>         records (rec-*), attachments (att-*), design documents
//
// Records reference attachments by id; the record iterator turns those
// references into notebook.Attachment handles that read the content on
// demand, so ZIP exports never hold a whole notebook in memory.
package repository
