package service

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"attachkit/internal/attachment"
	"attachkit/internal/storage"
)

// Archive bundles every member's bytes into a single zip and stores it as a
// new attachment. The zip is built in a process-local temp file that is
// removed best-effort afterwards. Entries appear in collection order;
// members with no stored name are skipped. Archiving an empty collection
// fails before any I/O happens.
func (m *Manager) Archive(ctx context.Context, s attachment.Attachments, name, disk, folder string) (attachment.Attachment, error) {
	var zero attachment.Attachment
	if len(s) == 0 {
		return zero, ErrEmptyArchive
	}
	if disk == "" {
		disk = s[0].Disk
	}
	if folder == "" {
		folder = "archives"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}

	tmp, err := os.CreateTemp("", "attachkit-archive-*.zip")
	if err != nil {
		return zero, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	zw := zip.NewWriter(tmp)
	for _, a := range s {
		if a.Name == "" {
			continue
		}
		if err := m.writeArchiveEntry(ctx, zw, a); err != nil {
			return zero, err
		}
	}
	if err := zw.Close(); err != nil {
		return zero, fmt.Errorf("finalize archive: %w", err)
	}

	st, err := tmp.Stat()
	if err != nil {
		return zero, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return zero, err
	}

	store, err := m.disks.Disk(disk)
	if err != nil {
		return zero, err
	}
	key := filepath.ToSlash(path.Join(folder, name))
	info, err := store.Put(ctx, key, tmp, storage.PutObjectOptions{
		Size:        st.Size(),
		ContentType: "application/zip",
	})
	if err != nil {
		return zero, fmt.Errorf("store archive: %w", err)
	}

	size := info.Size
	if size == 0 {
		size = st.Size()
	}
	return attachment.Attachment{
		Disk:     disk,
		Name:     info.Key,
		Size:     size,
		Extname:  "zip",
		MimeType: "application/zip",
	}, nil
}

func (m *Manager) writeArchiveEntry(ctx context.Context, zw *zip.Writer, a attachment.Attachment) error {
	rc, _, err := m.Open(ctx, a)
	if err != nil {
		return fmt.Errorf("archive member %s:%s: %w", a.Disk, a.Name, err)
	}
	defer rc.Close()

	w, err := zw.Create(a.Name)
	if err != nil {
		return fmt.Errorf("archive entry %s: %w", a.Name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("archive entry %s: %w", a.Name, err)
	}
	return nil
}
