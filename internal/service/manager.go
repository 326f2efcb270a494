package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"attachkit/internal/attachment"
	"attachkit/internal/config"
	"attachkit/internal/storage"
	"attachkit/internal/validate"
)

var (
	ErrReaderNil    = errors.New("reader is nil")
	ErrNoObject     = errors.New("attachment has no disk and path")
	ErrEmptyArchive = errors.New("cannot archive an empty collection")
)

// Metadata keys captured automatically on upload.
const (
	MetaOriginalName = "original_name"
	MetaUploadedAt   = "uploaded_at"
	MetaUploaderID   = "uploader_id"
)

// UploadInput describes one incoming file.
type UploadInput struct {
	Reader      io.Reader
	Filename    string
	Size        int64
	ContentType string
	// Disk and Folder fall back to the configured defaults when empty.
	Disk   string
	Folder string
	// Rules overrides the default validation rule set. nil means "use the
	// default"; a pointer to an empty set skips validation entirely.
	Rules      *validate.Rules
	Metadata   map[string]string
	UploaderID string
}

// Manager performs all file operations for attachments: uploads, deletes,
// relocation and URL generation. It resolves disks through the registry and
// never reads configuration from ambient state.
type Manager struct {
	disks        *storage.Registry
	cfg          config.AttachmentConfig
	defaultRules validate.Rules
}

// NewManager constructs a Manager. The configured default rule set is parsed
// once here so a bad rule string fails at boot, not per upload.
func NewManager(disks *storage.Registry, cfg config.AttachmentConfig) (*Manager, error) {
	rules, err := validate.Parse(cfg.DefaultRules)
	if err != nil {
		return nil, fmt.Errorf("parse default rules: %w", err)
	}
	return &Manager{disks: disks, cfg: cfg, defaultRules: rules}, nil
}

// Upload validates the incoming file, stores its bytes under
// {folder}/{generatedName} on the chosen disk, and returns the resulting
// attachment value. Validation failures surface as *validate.Error; storage
// failures are wrapped and surfaced.
func (m *Manager) Upload(ctx context.Context, in UploadInput) (attachment.Attachment, error) {
	var zero attachment.Attachment
	if in.Reader == nil {
		return zero, ErrReaderNil
	}

	rules := m.defaultRules
	if in.Rules != nil {
		rules = *in.Rules
	}
	if err := rules.Validate(validate.FileInfo{
		Filename:    in.Filename,
		Size:        in.Size,
		ContentType: in.ContentType,
	}); err != nil {
		return zero, err
	}

	diskName := in.Disk
	if diskName == "" {
		diskName = m.cfg.DefaultDisk
	}
	store, err := m.disks.Disk(diskName)
	if err != nil {
		return zero, err
	}

	folder := in.Folder
	if folder == "" {
		folder = m.cfg.DefaultFolder
	}
	key := filepath.ToSlash(path.Join(folder, m.generateName(in.Filename)))

	md := m.captureMetadata(in)

	objInfo, err := store.Put(ctx, key, in.Reader, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: in.ContentType,
		Metadata:    md,
	})
	if err != nil {
		return zero, fmt.Errorf("upload to storage: %w", err)
	}

	size := objInfo.Size
	if size == 0 && in.Size > 0 {
		size = in.Size
	}
	return attachment.Attachment{
		Disk:     diskName,
		Name:     objInfo.Key,
		Size:     size,
		Extname:  strings.TrimPrefix(filepath.Ext(in.Filename), "."),
		MimeType: in.ContentType,
		Metadata: md,
	}, nil
}

// UploadAll uploads files in order, aborting on the first failure. Files
// stored before the failing member are left in place.
func (m *Manager) UploadAll(ctx context.Context, ins []UploadInput) (attachment.Attachments, error) {
	out := make(attachment.Attachments, 0, len(ins))
	for _, in := range ins {
		a, err := m.Upload(ctx, in)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// generateName builds the stored object name per the configured strategy.
func (m *Manager) generateName(original string) string {
	ext := filepath.Ext(original)
	switch m.cfg.NamingStrategy {
	case "original":
		return attachment.SanitizeFilename(original)
	case "hash":
		sum := sha256.Sum256([]byte(uuid.NewString() + original))
		return hex.EncodeToString(sum[:])[:40] + ext
	default: // uuid
		gen := uuid.NewString()
		if m.cfg.PreserveOriginalName {
			base := strings.TrimSuffix(attachment.SanitizeFilename(original), ext)
			if base != "" {
				return base + "_" + gen + ext
			}
		}
		return gen + ext
	}
}

func (m *Manager) captureMetadata(in UploadInput) map[string]string {
	if !m.cfg.MetadataEnabled {
		return nil
	}
	md := make(map[string]string, len(in.Metadata)+3)
	for k, v := range in.Metadata {
		md[k] = v
	}
	if m.cfg.CaptureOriginalName && in.Filename != "" {
		md[MetaOriginalName] = in.Filename
	}
	if m.cfg.CaptureUploadedAt {
		md[MetaUploadedAt] = time.Now().UTC().Format(time.RFC3339)
	}
	if m.cfg.CaptureUploaderID && in.UploaderID != "" {
		md[MetaUploaderID] = in.UploaderID
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

// Exists reports whether the attachment's object is present. A zero
// attachment yields false rather than an error.
func (m *Manager) Exists(ctx context.Context, a attachment.Attachment) (bool, error) {
	if a.IsZero() {
		return false, nil
	}
	store, err := m.disks.Disk(a.Disk)
	if err != nil {
		return false, err
	}
	return store.Exists(ctx, a.Name)
}

// Delete removes the attachment's object. A zero attachment is an error.
func (m *Manager) Delete(ctx context.Context, a attachment.Attachment) error {
	if a.IsZero() {
		return ErrNoObject
	}
	store, err := m.disks.Disk(a.Disk)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, a.Name); err != nil {
		return fmt.Errorf("delete %s:%s: %w", a.Disk, a.Name, err)
	}
	return nil
}

// Contents reads the full object into memory.
func (m *Manager) Contents(ctx context.Context, a attachment.Attachment) ([]byte, error) {
	rc, _, err := m.Open(ctx, a)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s:%s: %w", a.Disk, a.Name, err)
	}
	return b, nil
}

// Open returns a streaming reader for the object, for downloads.
func (m *Manager) Open(ctx context.Context, a attachment.Attachment) (io.ReadCloser, storage.ObjectInfo, error) {
	if a.IsZero() {
		return nil, storage.ObjectInfo{}, ErrNoObject
	}
	store, err := m.disks.Disk(a.Disk)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	rc, info, err := store.Get(ctx, a.Name)
	if err != nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("open %s:%s: %w", a.Disk, a.Name, err)
	}
	return rc, info, nil
}

// URL returns the unsigned public URL, tolerating failure: any error yields
// an empty string so callers can render a value even when the disk is
// unreachable or unconfigured.
func (m *Manager) URL(a attachment.Attachment) string {
	if a.IsZero() {
		return ""
	}
	store, err := m.disks.Disk(a.Disk)
	if err != nil {
		return ""
	}
	u, err := store.URL(a.Name)
	if err != nil {
		return ""
	}
	return u
}

// TemporaryURL returns a signed, time-limited URL. A non-positive expiry
// falls back to the configured default.
func (m *Manager) TemporaryURL(ctx context.Context, a attachment.Attachment, expiry time.Duration) (string, error) {
	if a.IsZero() {
		return "", ErrNoObject
	}
	if expiry <= 0 {
		expiry = time.Duration(m.cfg.TempURLExpiryMinutes) * time.Minute
	}
	store, err := m.disks.Disk(a.Disk)
	if err != nil {
		return "", err
	}
	u, err := store.PresignGet(ctx, a.Name, expiry)
	if err != nil {
		return "", fmt.Errorf("temporary url for %s:%s: %w", a.Disk, a.Name, err)
	}
	return u, nil
}

// Move relocates the object to another disk and/or folder, returning a new
// attachment. When the effective target equals the current location the move
// is a no-op and the input is returned unchanged.
func (m *Manager) Move(ctx context.Context, a attachment.Attachment, disk, folder string) (attachment.Attachment, error) {
	if a.IsZero() {
		return a, ErrNoObject
	}
	if disk == "" {
		disk = a.Disk
	}
	if folder == "" {
		folder = a.Folder()
	}
	newKey := filepath.ToSlash(path.Join(folder, path.Base(a.Name)))
	if disk == a.Disk && newKey == a.Name {
		return a, nil
	}
	moved, err := m.copyObject(ctx, a, disk, newKey)
	if err != nil {
		return a, err
	}
	// Source deletion is cleanup of superseded data: absorb failures.
	if err := m.Delete(ctx, a); err != nil {
		logWarn("attachment_move_source_delete_failed", map[string]any{
			"disk": a.Disk, "name": a.Name, "error": err.Error(),
		})
	}
	return moved, nil
}

// Duplicate copies the object, generating a collision-avoiding name when
// none is supplied.
func (m *Manager) Duplicate(ctx context.Context, a attachment.Attachment, disk, folder, name string) (attachment.Attachment, error) {
	if a.IsZero() {
		return a, ErrNoObject
	}
	if disk == "" {
		disk = a.Disk
	}
	if folder == "" {
		folder = a.Folder()
	}
	if name == "" {
		base := strings.TrimSuffix(path.Base(a.Name), path.Ext(a.Name))
		name = fmt.Sprintf("%s_copy_%d%s", base, time.Now().Unix(), path.Ext(a.Name))
	}
	newKey := filepath.ToSlash(path.Join(folder, name))
	return m.copyObject(ctx, a, disk, newKey)
}

// Rename changes the object's base name within its folder, keeping the
// extension by default.
func (m *Manager) Rename(ctx context.Context, a attachment.Attachment, newName string, keepExtension bool) (attachment.Attachment, error) {
	if a.IsZero() {
		return a, ErrNoObject
	}
	if keepExtension && a.Extname != "" && !strings.HasSuffix(newName, "."+a.Extname) {
		newName += "." + a.Extname
	}
	newKey := filepath.ToSlash(path.Join(a.Folder(), newName))
	if newKey == a.Name {
		return a, nil
	}
	renamed, err := m.copyObject(ctx, a, a.Disk, newKey)
	if err != nil {
		return a, err
	}
	if err := m.Delete(ctx, a); err != nil {
		logWarn("attachment_rename_source_delete_failed", map[string]any{
			"disk": a.Disk, "name": a.Name, "error": err.Error(),
		})
	}
	return renamed, nil
}

// copyObject streams the object to a new disk+key and returns the new value
// with metadata propagated unchanged.
func (m *Manager) copyObject(ctx context.Context, a attachment.Attachment, disk, newKey string) (attachment.Attachment, error) {
	src, err := m.disks.Disk(a.Disk)
	if err != nil {
		return a, err
	}
	dst, err := m.disks.Disk(disk)
	if err != nil {
		return a, err
	}
	rc, info, err := src.Get(ctx, a.Name)
	if err != nil {
		return a, fmt.Errorf("read %s:%s: %w", a.Disk, a.Name, err)
	}
	defer rc.Close()

	size := info.Size
	if size == 0 && a.Size > 0 {
		size = a.Size
	}
	if _, err := dst.Put(ctx, newKey, rc, storage.PutObjectOptions{
		Size:        size,
		ContentType: a.MimeType,
		Metadata:    a.Metadata,
	}); err != nil {
		return a, fmt.Errorf("write %s:%s: %w", disk, newKey, err)
	}

	out := a.WithMetadata(a.Metadata)
	out.Disk = disk
	out.Name = newKey
	return out, nil
}

// DeleteAll deletes every member, continuing past failures. It returns true
// only when every individual deletion succeeded.
func (m *Manager) DeleteAll(ctx context.Context, s attachment.Attachments) bool {
	ok := true
	for _, a := range s {
		if err := m.Delete(ctx, a); err != nil {
			ok = false
			logWarn("attachment_delete_failed", map[string]any{
				"disk": a.Disk, "name": a.Name, "error": err.Error(),
			})
		}
	}
	return ok
}

// MoveAll relocates every member in order, returning a new collection.
func (m *Manager) MoveAll(ctx context.Context, s attachment.Attachments, disk, folder string) (attachment.Attachments, error) {
	out := make(attachment.Attachments, 0, len(s))
	for _, a := range s {
		moved, err := m.Move(ctx, a, disk, folder)
		if err != nil {
			return nil, err
		}
		out = append(out, moved)
	}
	return out, nil
}

// CopyAll duplicates every member in order, returning a new collection.
func (m *Manager) CopyAll(ctx context.Context, s attachment.Attachments, disk, folder string) (attachment.Attachments, error) {
	out := make(attachment.Attachments, 0, len(s))
	for _, a := range s {
		copied, err := m.Duplicate(ctx, a, disk, folder, "")
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}
	return out, nil
}

// logWarn emits one JSON warning line, matching the migration logger shape.
func logWarn(event string, fields map[string]any) {
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"level": "warn",
		"event": event,
	}
	for k, v := range fields {
		entry[k] = v
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	log.SetFlags(0)
	log.Println(string(b))
}
