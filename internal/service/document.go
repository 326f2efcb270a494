package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"attachkit/internal/attachment"
	"attachkit/internal/cast"
	"attachkit/internal/config"
	"attachkit/internal/model"
	"attachkit/internal/repository"
	"attachkit/internal/storage"
)

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("document not found")
)

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
}

// CreateDocumentInput describes a new document with its initial attachments.
type CreateDocumentInput struct {
	Title string
	Cover *UploadInput
	Files []UploadInput
}

// DocumentService defines the use cases for documents and their attachments.
type DocumentService interface {
	// Create uploads the cover and files, saves the record, and rolls back
	// storage if the DB save fails.
	Create(ctx context.Context, in CreateDocumentInput) (*model.Document, error)

	// List returns documents using limit/offset and a total count.
	List(ctx context.Context, limit, offset int) (*DocumentListResult, error)

	// Get returns a single document by its ID.
	Get(ctx context.Context, id string) (*model.Document, error)

	// ReplaceCover overwrites the cover attachment. A nil upload clears it.
	// When delete-on-replace is enabled the superseded file is deleted
	// best-effort after the record is saved.
	ReplaceCover(ctx context.Context, id string, upload *UploadInput) (*model.Document, error)

	// AddFiles appends uploads to the files collection.
	AddFiles(ctx context.Context, id string, uploads []UploadInput) (*model.Document, error)

	// RemoveFile drops one member (by stored object name) from the files
	// collection, deleting its file when delete-on-replace is enabled.
	RemoveFile(ctx context.Context, id string, objectName string) (*model.Document, error)

	// ArchiveFiles zips the document's files into a new stored attachment.
	ArchiveFiles(ctx context.Context, id string, name string) (attachment.Attachment, error)

	// Delete removes the record; with auto-cleanup enabled every referenced
	// attachment file is deleted best-effort afterwards.
	Delete(ctx context.Context, id string) error

	// OpenCover streams the cover's bytes for download.
	OpenCover(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error)

	// CoverURL returns a presigned URL for the cover.
	CoverURL(ctx context.Context, id string, expiry time.Duration) (string, error)
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	mgr  *Manager
	repo repository.DocumentRepository
	cfg  config.AttachmentConfig
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(mgr *Manager, repo repository.DocumentRepository, cfg config.AttachmentConfig) DocumentService {
	return &documentService{mgr: mgr, repo: repo, cfg: cfg}
}

func (s *documentService) Create(ctx context.Context, in CreateDocumentInput) (*model.Document, error) {
	doc := &model.Document{
		ID:        uuid.New().String(),
		Title:     in.Title,
		Files:     attachment.Attachments{},
		CreatedAt: time.Now().UTC(),
	}

	var uploaded attachment.Attachments
	if in.Cover != nil {
		cover, err := s.mgr.Upload(ctx, *in.Cover)
		if err != nil {
			return nil, err
		}
		doc.Cover = cover
		uploaded = append(uploaded, cover)
	}
	for _, f := range in.Files {
		a, err := s.mgr.Upload(ctx, f)
		if err != nil {
			// Files stored before the failure stay in place; cleaning them
			// up here would race the storage write that just failed.
			return nil, err
		}
		doc.Files = append(doc.Files, a)
		uploaded = append(uploaded, a)
	}

	stored, err := s.repo.Create(ctx, doc)
	if err != nil {
		// Rollback: delete the uploaded objects from storage.
		if !s.mgr.DeleteAll(ctx, uploaded) {
			return nil, fmt.Errorf("db save failed: %v; rollback delete incomplete", err)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}
	return stored, nil
}

// List returns paginated documents without exposing repository types.
func (s *documentService) List(ctx context.Context, limit, offset int) (*DocumentListResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &DocumentListResult{Items: res.Items, Total: res.Total}, nil
}

// Get returns a document by ID.
func (s *documentService) Get(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *documentService) ReplaceCover(ctx context.Context, id string, upload *UploadInput) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	old := doc.Cover
	var next attachment.Attachment
	if upload != nil {
		next, err = s.mgr.Upload(ctx, *upload)
		if err != nil {
			return nil, err
		}
	}
	doc.Cover = next

	stored, err := s.repo.Update(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.deleteStale(ctx, "cover", cast.StaleSingle(old, next))
	return stored, nil
}

func (s *documentService) AddFiles(ctx context.Context, id string, uploads []UploadInput) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	added, err := s.mgr.UploadAll(ctx, uploads)
	if err != nil {
		return nil, err
	}
	doc.Files = append(doc.Files, added...)
	return s.repo.Update(ctx, doc)
}

func (s *documentService) RemoveFile(ctx context.Context, id string, objectName string) (*model.Document, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	old := doc.Files
	kept := make(attachment.Attachments, 0, len(old))
	for _, a := range old {
		if a.Name == objectName {
			continue
		}
		kept = append(kept, a)
	}
	if len(kept) == len(old) {
		return nil, ErrNotFound
	}
	doc.Files = kept

	stored, err := s.repo.Update(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.deleteStale(ctx, "files", cast.Stale(old, kept))
	return stored, nil
}

func (s *documentService) ArchiveFiles(ctx context.Context, id string, name string) (attachment.Attachment, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return attachment.Attachment{}, err
	}
	return s.mgr.Archive(ctx, doc.Files, name, "", "")
}

// Delete removes the record, then cleans up referenced files when
// auto-cleanup is enabled. Cleanup failures never surface: the record
// deletion the caller asked for has already completed.
func (s *documentService) Delete(ctx context.Context, id string) error {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if !s.cfg.AutoCleanup {
		return nil
	}
	for _, field := range doc.AttachmentFields() {
		s.bestEffortDelete(ctx, field.Name, field.Values)
	}
	return nil
}

func (s *documentService) OpenCover(ctx context.Context, id string) (io.ReadCloser, storage.ObjectInfo, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return s.mgr.Open(ctx, doc.Cover)
}

func (s *documentService) CoverURL(ctx context.Context, id string, expiry time.Duration) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return s.mgr.TemporaryURL(ctx, doc.Cover, expiry)
}

// deleteStale deletes superseded files when delete-on-replace is enabled.
func (s *documentService) deleteStale(ctx context.Context, field string, stale attachment.Attachments) {
	if !s.cfg.DeleteOnReplace {
		return
	}
	s.bestEffortDelete(ctx, field, stale)
}

// bestEffortDelete removes files one at a time, logging failures instead of
// surfacing them: the write or delete the caller asked for has already
// completed.
func (s *documentService) bestEffortDelete(ctx context.Context, field string, stale attachment.Attachments) {
	for _, a := range stale {
		if a.IsZero() {
			continue
		}
		if err := s.mgr.Delete(ctx, a); err != nil {
			logWarn("attachment_cleanup_failed", map[string]any{
				"field": field, "disk": a.Disk, "name": a.Name, "error": err.Error(),
			})
		}
	}
}
