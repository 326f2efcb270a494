package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"attachkit/internal/config"
)

// localStorage implements the Storage interface on the local filesystem.
// Keys are slash-separated paths relative to the configured root; writes go
// through a temp file and rename so readers never observe partial objects.
type localStorage struct {
	root    string
	baseURL string
}

// NewLocal creates a local-filesystem disk rooted at cfg.Root.
func NewLocal(cfg config.LocalDiskConfig) (Storage, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("local disk root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, ".tmp"), 0o755); err != nil {
		return nil, err
	}
	return &localStorage{
		root:    abs,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// pathFromKey resolves a key to an absolute path, rejecting traversal outside
// the root.
func (l *localStorage) pathFromKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	p := filepath.Join(l.root, filepath.FromSlash(key))
	if p != l.root && !strings.HasPrefix(p, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// Put writes the object to a temp file first and renames it into place.
func (l *localStorage) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	var zero ObjectInfo
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return zero, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, ".tmp"), "put-*")
	if err != nil {
		return zero, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	n, err := io.Copy(tmp, r)
	if err != nil {
		cleanup()
		return zero, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return zero, err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return zero, err
	}

	info := ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
		Metadata:     opt.Metadata,
	}
	if opt.ContentType != "" || len(opt.Metadata) > 0 {
		// Sidecar keeps content type and user metadata next to the object.
		_ = l.writeSidecar(dst, info)
	}
	return info, nil
}

type localSidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (l *localStorage) writeSidecar(dst string, info ObjectInfo) error {
	b, err := json.Marshal(localSidecar{ContentType: info.ContentType, Metadata: info.Metadata})
	if err != nil {
		return err
	}
	return os.WriteFile(dst+".meta", b, 0o644)
}

func (l *localStorage) readSidecar(dst string) localSidecar {
	var sc localSidecar
	b, err := os.ReadFile(dst + ".meta")
	if err != nil {
		return sc
	}
	_ = json.Unmarshal(b, &sc)
	return sc
}

// Get opens the object for streaming.
func (l *localStorage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}
	p, err := l.pathFromKey(key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ObjectInfo{}, ErrNotFound
		}
		return nil, ObjectInfo{}, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, ObjectInfo{}, err
	}
	sc := l.readSidecar(p)
	info := ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  sc.ContentType,
		LastModified: st.ModTime(),
		Metadata:     sc.Metadata,
	}
	return f, info, nil
}

// Exists reports object presence.
func (l *localStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p, err := l.pathFromKey(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes the object. Missing files are ignored.
func (l *localStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	_ = os.Remove(p + ".meta")
	return nil
}

// URL builds the public URL from the configured base.
func (l *localStorage) URL(key string) (string, error) {
	if l.baseURL == "" {
		return "", fmt.Errorf("local disk has no public base url")
	}
	return l.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

// PresignGet has no signing mechanism locally; it falls back to the public
// URL and ignores the expiry.
func (l *localStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return l.URL(key)
}
