package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"attachkit/internal/attachment"
	"attachkit/internal/model"
	"attachkit/internal/service"
	"attachkit/internal/service/mocks"
	"attachkit/internal/storage"
	"attachkit/internal/validate"
)

const testDocID = "11111111-1111-1111-1111-111111111111"

func newTestApp(t *testing.T, svc service.DocumentService) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterRoutes(app, db, svc)
	return app, dbMock
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var payload errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	return payload
}

func testDocument() *model.Document {
	return &model.Document{
		ID:    testDocID,
		Title: "report",
		Cover: attachment.Attachment{Disk: "minio", Name: "covers/r.png", Size: 10, MimeType: "image/png"},
		Files: attachment.Attachments{
			{Disk: "minio", Name: "files/r.pdf", Size: 20, MimeType: "application/pdf"},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		app, dbMock := newTestApp(t, new(mocks.MockDocumentService))
		dbMock.ExpectPing()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("db down", func(t *testing.T) {
		app, dbMock := newTestApp(t, new(mocks.MockDocumentService))
		dbMock.ExpectPing().WillReturnError(assert.AnError)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app, _ := newTestApp(t, new(mocks.MockDocumentService))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	t.Run("returns the page", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("List", mock.Anything, 5, 10).
			Return(&service.DocumentListResult{Items: []model.Document{*testDocument()}, Total: 1}, nil)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents?limit=5&offset=10", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res service.DocumentListResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, 1, res.Total)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "covers/r.png", res.Items[0].Cover.Name)
		svc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents?limit=abc", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})
}

func multipartBody(t *testing.T, title string, files map[string][]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if title != "" {
		require.NoError(t, w.WriteField("title", title))
	}
	for field, names := range files {
		for _, name := range names {
			fw, err := w.CreateFormFile(field, name)
			require.NoError(t, err)
			_, err = fw.Write([]byte("content of " + name))
			require.NoError(t, err)
		}
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCreateDocument(t *testing.T) {
	t.Run("creates from multipart form", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("Create", mock.Anything, mock.MatchedBy(func(in service.CreateDocumentInput) bool {
			return in.Title == "report" &&
				in.Cover != nil && in.Cover.Filename == "c.png" &&
				len(in.Files) == 2
		})).Return(testDocument(), nil)
		app, _ := newTestApp(t, svc)

		body, ct := multipartBody(t, "report", map[string][]string{
			"cover": {"c.png"},
			"files": {"a.pdf", "b.pdf"},
		})
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("missing form", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/documents", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_FORM", decodeError(t, resp).Error.Code)
	})

	t.Run("validation failure maps to 422", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("Create", mock.Anything, mock.Anything).
			Return(nil, &validate.Error{Messages: []string{"the file may not be greater than 1024 kilobytes."}})
		app, _ := newTestApp(t, svc)

		body, ct := multipartBody(t, "report", map[string][]string{"files": {"big.pdf"}})
		req := httptest.NewRequest(http.MethodPost, "/documents", body)
		req.Header.Set("Content-Type", ct)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		payload := decodeError(t, resp)
		assert.Equal(t, "VALIDATION_FAILED", payload.Error.Code)
		assert.Contains(t, payload.Error.Message, "1024 kilobytes")
	})
}

func TestGetDocument(t *testing.T) {
	t.Run("invalid id", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/not-a-uuid", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_ID", decodeError(t, resp).Error.Code)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("Get", mock.Anything, testDocID).Return(nil, service.ErrNotFound)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("found", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("Get", mock.Anything, testDocID).Return(testDocument(), nil)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var doc model.Document
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		assert.Equal(t, testDocID, doc.ID)
		require.Len(t, doc.Files, 1)
	})
}

func TestDeleteDocument(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	svc.On("Delete", mock.Anything, testDocID).Return(nil)
	app, _ := newTestApp(t, svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/"+testDocID, nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestReplaceCover(t *testing.T) {
	t.Run("replaces from uploaded file", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("ReplaceCover", mock.Anything, testDocID, mock.MatchedBy(func(up *service.UploadInput) bool {
			return up != nil && up.Filename == "new.png"
		})).Return(testDocument(), nil)
		app, _ := newTestApp(t, svc)

		body, ct := multipartBody(t, "", map[string][]string{"file": {"new.png"}})
		req := httptest.NewRequest(http.MethodPut, "/documents/"+testDocID+"/cover", body)
		req.Header.Set("Content-Type", ct)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("file is required", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodPut, "/documents/"+testDocID+"/cover", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "FILE_REQUIRED", decodeError(t, resp).Error.Code)
	})
}

func TestClearCover(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	svc.On("ReplaceCover", mock.Anything, testDocID, (*service.UploadInput)(nil)).Return(testDocument(), nil)
	app, _ := newTestApp(t, svc)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/"+testDocID+"/cover", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestDownloadCover(t *testing.T) {
	t.Run("streams with headers", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("OpenCover", mock.Anything, testDocID).Return(
			io.NopCloser(bytes.NewReader([]byte("png-bytes"))),
			storage.ObjectInfo{Key: "covers/r.png", Size: 9, ContentType: "image/png"},
			nil,
		)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID+"/cover", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
		assert.Equal(t, `attachment; filename="r.png"`, resp.Header.Get(fiber.HeaderContentDisposition))

		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(b))
	})

	t.Run("no cover present", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("OpenCover", mock.Anything, testDocID).Return(nil, storage.ObjectInfo{}, service.ErrNoObject)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID+"/cover", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NO_ATTACHMENT", decodeError(t, resp).Error.Code)
	})
}

func TestCoverURL(t *testing.T) {
	t.Run("returns the presigned url", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("CoverURL", mock.Anything, testDocID, 45*time.Minute).Return("http://signed", nil)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID+"/cover/url?expiry_minutes=45", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, "http://signed", out["url"])
	})

	t.Run("invalid expiry", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+testDocID+"/cover/url?expiry_minutes=-1", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_EXPIRY", decodeError(t, resp).Error.Code)
	})
}

func TestAddFiles(t *testing.T) {
	svc := new(mocks.MockDocumentService)
	svc.On("AddFiles", mock.Anything, testDocID, mock.MatchedBy(func(ups []service.UploadInput) bool {
		return len(ups) == 1 && ups[0].Filename == "extra.pdf"
	})).Return(testDocument(), nil)
	app, _ := newTestApp(t, svc)

	body, ct := multipartBody(t, "", map[string][]string{"files": {"extra.pdf"}})
	req := httptest.NewRequest(http.MethodPost, "/documents/"+testDocID+"/files", body)
	req.Header.Set("Content-Type", ct)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	svc.AssertExpectations(t)
}

func TestRemoveFile(t *testing.T) {
	t.Run("missing name", func(t *testing.T) {
		app, _ := newTestApp(t, new(mocks.MockDocumentService))

		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/"+testDocID+"/files", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "NAME_REQUIRED", decodeError(t, resp).Error.Code)
	})

	t.Run("unknown member", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("RemoveFile", mock.Anything, testDocID, "files/nope.pdf").Return(nil, service.ErrNotFound)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/documents/"+testDocID+"/files?name=files%2Fnope.pdf", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestArchiveFiles(t *testing.T) {
	t.Run("stores the archive", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("ArchiveFiles", mock.Anything, testDocID, "bundle").
			Return(attachment.Attachment{Disk: "minio", Name: "archives/bundle.zip", Size: 30, Extname: "zip", MimeType: "application/zip"}, nil)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/documents/"+testDocID+"/archive?name=bundle", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var a attachment.Attachment
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&a))
		assert.Equal(t, "archives/bundle.zip", a.Name)
	})

	t.Run("empty collection", func(t *testing.T) {
		svc := new(mocks.MockDocumentService)
		svc.On("ArchiveFiles", mock.Anything, testDocID, "files").
			Return(attachment.Attachment{}, service.ErrEmptyArchive)
		app, _ := newTestApp(t, svc)

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/documents/"+testDocID+"/archive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		assert.Equal(t, "EMPTY_COLLECTION", decodeError(t, resp).Error.Code)
	})
}