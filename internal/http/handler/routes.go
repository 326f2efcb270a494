package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"mime/multipart"
	"path"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"attachkit/internal/service"
	"attachkit/internal/validate"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; all attachment bookkeeping lives in the service layer.
func RegisterRoutes(app *fiber.App, db *sql.DB, docSvc service.DocumentService) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	app.Get("/documents", ListDocuments(docSvc))
	app.Post("/documents", CreateDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))

	app.Put("/documents/:id/cover", ReplaceCover(docSvc))
	app.Delete("/documents/:id/cover", ClearCover(docSvc))
	app.Get("/documents/:id/cover", DownloadCover(docSvc))
	app.Get("/documents/:id/cover/url", CoverURL(docSvc))

	app.Post("/documents/:id/files", AddFiles(docSvc))
	app.Delete("/documents/:id/files", RemoveFile(docSvc))
	app.Post("/documents/:id/archive", ArchiveFiles(docSvc))
}

// HealthCheck checks DB connectivity only.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a simple liveness probe.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListDocuments lists documents with limit & offset.
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limitStr := c.Query("limit", "10")
		offsetStr := c.Query("offset", "0")
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		res, err := svc.List(c.UserContext(), limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.JSON(res)
	}
}

// CreateDocument creates a document from multipart/form-data: a "title"
// value, an optional "cover" file and any number of "files" entries.
func CreateDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_FORM", "multipart form is required")
		}

		in := service.CreateDocumentInput{Title: c.FormValue("title")}

		var opened []multipart.File
		defer func() {
			for _, f := range opened {
				f.Close()
			}
		}()

		if covers := form.File["cover"]; len(covers) > 0 {
			up, f, err := uploadFromHeader(covers[0])
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			opened = append(opened, f)
			in.Cover = &up
		}
		for _, fh := range form.File["files"] {
			up, f, err := uploadFromHeader(fh)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			opened = append(opened, f)
			in.Files = append(in.Files, up)
		}

		doc, err := svc.Create(c.UserContext(), in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns a document by ID.
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.Get(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DeleteDocument removes a document by ID (and, per policy, its files).
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// ReplaceCover overwrites the cover attachment with an uploaded file.
func ReplaceCover(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}
		up, f, err := uploadFromHeader(fh)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.ReplaceCover(c.UserContext(), id, &up)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ClearCover removes the cover attachment.
func ClearCover(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := svc.ReplaceCover(c.UserContext(), id, nil)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// DownloadCover streams the cover's bytes.
func DownloadCover(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		rc, info, err := svc.OpenCover(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		if info.ContentType != "" {
			c.Set(fiber.HeaderContentType, info.ContentType)
		}
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", downloadName(c, info.Key)))
		return c.SendStream(rc, int(info.Size))
	}
}

// CoverURL returns a presigned URL for the cover. The expiry can be given in
// minutes via ?expiry_minutes=N; 0 uses the configured default.
func CoverURL(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		minutes, err := strconv.Atoi(c.Query("expiry_minutes", "0"))
		if err != nil || minutes < 0 {
			return writeError(c, fiber.StatusBadRequest, "INVALID_EXPIRY", "invalid expiry")
		}
		u, err := svc.CoverURL(c.UserContext(), id, time.Duration(minutes)*time.Minute)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": u})
	}
}

// AddFiles appends uploaded "files" entries to the document's collection.
func AddFiles(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		form, err := c.MultipartForm()
		if err != nil || len(form.File["files"]) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "at least one file is required")
		}

		var uploads []service.UploadInput
		var opened []multipart.File
		defer func() {
			for _, f := range opened {
				f.Close()
			}
		}()
		for _, fh := range form.File["files"] {
			up, f, err := uploadFromHeader(fh)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			opened = append(opened, f)
			uploads = append(uploads, up)
		}

		doc, err := svc.AddFiles(c.UserContext(), id, uploads)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// RemoveFile drops a member by stored object name (?name=...).
func RemoveFile(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		name := c.Query("name")
		if name == "" {
			return writeError(c, fiber.StatusBadRequest, "NAME_REQUIRED", "object name is required")
		}
		doc, err := svc.RemoveFile(c.UserContext(), id, name)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ArchiveFiles zips the document's files into a new stored attachment.
func ArchiveFiles(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := documentID(c)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		name := c.Query("name", "files")
		archive, err := svc.ArchiveFiles(c.UserContext(), id, name)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(archive)
	}
}

func documentID(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return "", err
	}
	return id, nil
}

// uploadFromHeader converts a multipart file header into an UploadInput.
// The returned file must be closed by the caller after the service call.
func uploadFromHeader(fh *multipart.FileHeader) (service.UploadInput, multipart.File, error) {
	f, err := fh.Open()
	if err != nil {
		return service.UploadInput{}, nil, err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	return service.UploadInput{
		Reader:      f,
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: ct,
	}, f, nil
}

func downloadName(c *fiber.Ctx, key string) string {
	if name := c.Query("filename"); name != "" {
		return name
	}
	return path.Base(key)
}

// writeServiceError maps service errors to the standardized envelope.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound) || errors.Is(err, sql.ErrNoRows):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
	case errors.Is(err, service.ErrEmptyArchive):
		return writeError(c, fiber.StatusUnprocessableEntity, "EMPTY_COLLECTION", "no files to archive")
	case errors.Is(err, service.ErrNoObject):
		return writeError(c, fiber.StatusNotFound, "NO_ATTACHMENT", "no attachment present")
	case validate.IsValidationError(err):
		return writeError(c, fiber.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error())
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
