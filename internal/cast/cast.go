package cast

import "attachkit/internal/attachment"

// Package cast holds the bookkeeping between a record's attachment-bearing
// fields and the files they reference. Records declare their fields
// statically via AttachmentFields; nothing is discovered by reflection.

// Mode distinguishes single-attachment columns from collection columns.
type Mode int

const (
	// Single is a column holding one attachment object or NULL.
	Single Mode = iota
	// Many is a column holding a JSON array of attachment objects.
	Many
)

// Field is one statically-declared attachment-bearing field of a record,
// with its current members (zero or one for Single mode).
type Field struct {
	Name   string
	Mode   Mode
	Values attachment.Attachments
}

// SingleField declares a single-attachment field. A zero attachment yields a
// field with no members.
func SingleField(name string, a attachment.Attachment) Field {
	f := Field{Name: name, Mode: Single}
	if !a.IsZero() {
		f.Values = attachment.Attachments{a}
	}
	return f
}

// ManyField declares a collection field.
func ManyField(name string, s attachment.Attachments) Field {
	return Field{Name: name, Mode: Many, Values: s}
}

// HasAttachmentFields is implemented by records that own attachment columns.
// The declared list drives delete-on-replace and record-deletion cleanup.
type HasAttachmentFields interface {
	AttachmentFields() []Field
}

// Stale returns the members of old that no longer appear in new, comparing
// by disk+name. A member that survives into the new value exactly is skipped,
// so replacing a value with itself never deletes its file.
func Stale(old, new attachment.Attachments) attachment.Attachments {
	stale := make(attachment.Attachments, 0, len(old))
	for _, a := range old {
		if a.IsZero() {
			continue
		}
		if new.Contains(a) {
			continue
		}
		stale = append(stale, a)
	}
	return stale
}

// StaleSingle is Stale for single-attachment fields.
func StaleSingle(old, new attachment.Attachment) attachment.Attachments {
	var news attachment.Attachments
	if !new.IsZero() {
		news = attachment.Attachments{new}
	}
	var olds attachment.Attachments
	if !old.IsZero() {
		olds = attachment.Attachments{old}
	}
	return Stale(olds, news)
}
