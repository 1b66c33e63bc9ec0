package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"faims3/conductor/pkg/docstore"
	"faims3/conductor/pkg/notebook"
)

// UISpecDocID is the metadata document holding a notebook's UI spec.
const UISpecDocID = "ui-specification"

// Project is a projects directory entry.
type Project struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// NotebookExists reports whether the projects directory lists id.
func (r *Repository) NotebookExists(ctx context.Context, projectID string) (bool, error) {
	projects, err := r.ProjectsDB(ctx)
	if err != nil {
		return false, err
	}
	_, err = projects.Get(ctx, projectID)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up notebook %s: %w", projectID, err)
	}
	return true, nil
}

// ListNotebooks returns every projects directory entry, skipping design
// documents.
func (r *Repository) ListNotebooks(ctx context.Context) ([]Project, error) {
	projects, err := r.ProjectsDB(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := projects.AllDocs(ctx, docstore.AllDocsOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}

	var out []Project
	for _, doc := range docs {
		if isDesign(doc.ID()) {
			continue
		}
		var p Project
		if err := convert(doc, &p); err != nil {
			r.logger.Warn("skipping malformed project document", "id", doc.ID(), "error", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadUISpec returns the UI spec of a notebook. Unknown notebooks fail
// with notebook.ErrNotebookNotFound.
func (r *Repository) LoadUISpec(ctx context.Context, projectID string) (*notebook.UISpec, error) {
	exists, err := r.NotebookExists(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", notebook.ErrNotebookNotFound, projectID)
	}

	meta, err := r.MetadataDB(ctx, projectID)
	if err != nil {
		return nil, err
	}
	doc, err := meta.Get(ctx, UISpecDocID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s has no UI specification", notebook.ErrNotebookNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read UI specification of %s: %w", projectID, err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return notebook.ParseUISpec(raw)
}

// CreateNotebook registers a notebook in the projects directory, stores its
// UI spec and prepares its data database.
func (r *Repository) CreateNotebook(ctx context.Context, project Project, spec *notebook.UISpec) error {
	projects, err := r.ProjectsDB(ctx)
	if err != nil {
		return err
	}
	projectDoc, err := toDocument(project)
	if err != nil {
		return err
	}
	if _, err := projects.Put(ctx, projectDoc, docstore.WriteOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to register notebook %s: %w", project.ID, err)
	}

	meta, err := r.MetadataDB(ctx, project.ID)
	if err != nil {
		return err
	}
	specDoc, err := toDocument(spec)
	if err != nil {
		return err
	}
	specDoc[docstore.FieldID] = UISpecDocID
	if _, err := meta.Put(ctx, specDoc, docstore.WriteOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to store UI specification of %s: %w", project.ID, err)
	}

	data, err := r.DataDB(ctx, project.ID)
	if err != nil {
		return err
	}
	if err := r.EnsureDesignDocuments(ctx, data); err != nil {
		return err
	}

	r.logger.Info("notebook created", "notebook_id", project.ID, "name", project.Name)
	return nil
}

func isDesign(id string) bool {
	return strings.HasPrefix(id, DesignPrefix)
}

// toDocument converts a JSON-tagged value into a document.
func toDocument(v any) (docstore.Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// convert decodes a document into a JSON-tagged struct.
func convert(doc docstore.Document, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func roundTrip(doc docstore.Document) (docstore.Document, error) {
	return toDocument(doc)
}
