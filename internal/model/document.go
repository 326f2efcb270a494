package model

import (
	"time"

	"attachkit/internal/attachment"
	"attachkit/internal/cast"
)

// Document is a record owning attachment columns: a single cover attachment
// and an ordered collection of files. Both persist as JSON metadata in the
// database while the bytes live on a storage disk.
// This is a pure domain model with no database-specific dependencies or tags.
type Document struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Cover     attachment.Attachment  `json:"cover"`
	Files     attachment.Attachments `json:"files"`
	CreatedAt time.Time              `json:"created_at"`
}

// AttachmentFields statically declares the attachment-bearing columns of a
// document. Cleanup and delete-on-replace walk this list; nothing inspects
// the struct by reflection.
func (d *Document) AttachmentFields() []cast.Field {
	return []cast.Field{
		cast.SingleField("cover", d.Cover),
		cast.ManyField("files", d.Files),
	}
}

var _ cast.HasAttachmentFields = (*Document)(nil)
