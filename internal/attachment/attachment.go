package attachment

import (
	"math"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// SizeUnknown marks an attachment whose byte size was never captured.
const SizeUnknown int64 = -1

// Attachment is the value object persisted as JSON metadata in a database
// column. Disk and Name together identify the physical object; the zero value
// represents "no attachment" and all file operations on it fail fast.
//
// Attachment is immutable by convention: every mutating helper returns a new
// value with the metadata map cloned, never touching the receiver.
type Attachment struct {
	Disk     string
	Name     string
	Size     int64
	Extname  string
	MimeType string
	Metadata map[string]string
}

// IsZero reports whether the attachment identifies no physical object.
func (a Attachment) IsZero() bool {
	return a.Disk == "" && a.Name == ""
}

// Path is an alias for the stored object name.
func (a Attachment) Path() string { return a.Name }

// Extension is an alias for the file extension.
func (a Attachment) Extension() string { return a.Extname }

// Folder returns the directory component of the stored name, or "" when the
// name has no directory.
func (a Attachment) Folder() string {
	dir := path.Dir(a.Name)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// SameObject reports whether other points at the same disk+name.
func (a Attachment) SameObject(other Attachment) bool {
	return !a.IsZero() && a.Disk == other.Disk && a.Name == other.Name
}

// ReadableSize formats the byte size using base-1024 units up to TB.
// Unknown size yields "unknown".
func (a Attachment) ReadableSize(precision int) string {
	return ReadableBytes(a.Size, precision)
}

var readableUnits = []string{"B", "KB", "MB", "GB", "TB"}

// ReadableBytes renders a byte count as a human-readable string, e.g.
// 1024 -> "1 KB". The unit is floor(log1024(size)), clamped to TB.
func ReadableBytes(size int64, precision int) string {
	if size < 0 {
		return "unknown"
	}
	if size == 0 {
		return "0 B"
	}
	val := float64(size)
	exp := 0
	for val >= 1024 && exp < len(readableUnits)-1 {
		val /= 1024
		exp++
	}
	if precision < 0 {
		precision = 0
	}
	p := math.Pow(10, float64(precision))
	val = math.Round(val*p) / p
	return strconv.FormatFloat(val, 'f', -1, 64) + " " + readableUnits[exp]
}

var (
	invalidFilenameChars = regexp.MustCompile(`[^A-Za-z0-9\-_ ]+`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// SanitizeFilename normalizes an uploaded filename to a safe form while
// preserving the extension: characters outside [A-Za-z0-9-_ ] are dropped,
// whitespace runs become single dashes, leading/trailing dashes are trimmed,
// and an empty result falls back to "file". Pure, no I/O.
func SanitizeFilename(name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	base = invalidFilenameChars.ReplaceAllString(base, "")
	base = whitespaceRun.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "file"
	}
	return base + ext
}

// documentMimeTypes is the fixed membership list for IsDocument.
var documentMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"text/plain": {},
	"text/csv":   {},
}

// IsImage reports whether the MIME type is an image type. All predicates
// return false when the MIME type is unknown.
func (a Attachment) IsImage() bool { return strings.HasPrefix(a.MimeType, "image/") }

// IsVideo reports whether the MIME type is a video type.
func (a Attachment) IsVideo() bool { return strings.HasPrefix(a.MimeType, "video/") }

// IsAudio reports whether the MIME type is an audio type.
func (a Attachment) IsAudio() bool { return strings.HasPrefix(a.MimeType, "audio/") }

// IsPdf reports whether the attachment is a PDF.
func (a Attachment) IsPdf() bool { return a.MimeType == "application/pdf" }

// IsDocument reports whether the MIME type belongs to the document list.
func (a Attachment) IsDocument() bool {
	_, ok := documentMimeTypes[a.MimeType]
	return ok
}

// matchesType maps a type tag to the corresponding predicate. Unknown tags
// match nothing.
func (a Attachment) matchesType(tag string) bool {
	switch tag {
	case "image":
		return a.IsImage()
	case "pdf":
		return a.IsPdf()
	case "video":
		return a.IsVideo()
	case "audio":
		return a.IsAudio()
	case "document":
		return a.IsDocument()
	default:
		return false
	}
}

func cloneMeta(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithMetadata returns a copy with the metadata map replaced.
func (a Attachment) WithMetadata(md map[string]string) Attachment {
	a.Metadata = cloneMeta(md)
	return a
}

// WithMeta returns a copy with a single metadata key set.
func (a Attachment) WithMeta(key, value string) Attachment {
	md := cloneMeta(a.Metadata)
	if md == nil {
		md = make(map[string]string, 1)
	}
	md[key] = value
	a.Metadata = md
	return a
}

// WithoutMeta returns a copy with a metadata key removed.
func (a Attachment) WithoutMeta(key string) Attachment {
	md := cloneMeta(a.Metadata)
	delete(md, key)
	if len(md) == 0 {
		md = nil
	}
	a.Metadata = md
	return a
}

// Meta returns a metadata value and whether the key exists.
func (a Attachment) Meta(key string) (string, bool) {
	v, ok := a.Metadata[key]
	return v, ok
}

// HasMeta reports whether a metadata key exists.
func (a Attachment) HasMeta(key string) bool {
	_, ok := a.Metadata[key]
	return ok
}
