package attachment

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// columnJSON is the persisted column shape:
// {disk,name,size,extname,mimeType,metadata?}. Empty metadata is omitted on
// encode and defaults to an empty map on decode.
type columnJSON struct {
	Disk     string            `json:"disk"`
	Name     string            `json:"name"`
	Size     int64             `json:"size"`
	Extname  string            `json:"extname"`
	MimeType string            `json:"mimeType"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (a Attachment) toColumn() columnJSON {
	return columnJSON{
		Disk:     a.Disk,
		Name:     a.Name,
		Size:     a.Size,
		Extname:  a.Extname,
		MimeType: a.MimeType,
		Metadata: a.Metadata,
	}
}

func (c columnJSON) toAttachment() Attachment {
	return Attachment{
		Disk:     c.Disk,
		Name:     c.Name,
		Size:     c.Size,
		Extname:  c.Extname,
		MimeType: c.MimeType,
		Metadata: c.Metadata,
	}
}

// MarshalJSON encodes the attachment in the persisted column shape; the zero
// value encodes as null.
func (a Attachment) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(a.toColumn())
}

// UnmarshalJSON decodes the persisted column shape. An object missing the
// required disk+name fields decodes to the zero value rather than an error:
// malformed persisted data never surfaces to the caller.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	*a = decodeItem(data)
	return nil
}

// decodeItem leniently decodes one column object. Malformed JSON or missing
// required fields yield the zero value.
func decodeItem(data []byte) Attachment {
	var c columnJSON
	if err := json.Unmarshal(data, &c); err != nil {
		return Attachment{}
	}
	if c.Disk == "" || c.Name == "" {
		return Attachment{}
	}
	return c.toAttachment()
}

// Scan implements sql.Scanner for a single-attachment JSON column.
// NULL and malformed payloads scan to the zero value.
func (a *Attachment) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Attachment{}
		return nil
	case []byte:
		*a = decodeItem(v)
		return nil
	case string:
		*a = decodeItem([]byte(v))
		return nil
	default:
		return fmt.Errorf("attachment: cannot scan %T", src)
	}
}

// Value implements driver.Valuer for a single-attachment JSON column.
// The zero value stores as NULL.
func (a Attachment) Value() (driver.Value, error) {
	if a.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(a.toColumn())
	if err != nil {
		return nil, err
	}
	return b, nil
}

// MarshalJSON encodes the collection as a JSON array, never null.
func (s Attachments) MarshalJSON() ([]byte, error) {
	cols := make([]columnJSON, 0, len(s))
	for _, a := range s {
		cols = append(cols, a.toColumn())
	}
	return json.Marshal(cols)
}

// UnmarshalJSON decodes a JSON array of column objects, silently skipping
// items that are malformed or missing disk+name.
func (s *Attachments) UnmarshalJSON(data []byte) error {
	*s = decodeList(data)
	return nil
}

func decodeList(data []byte) Attachments {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Attachments{}
	}
	out := make(Attachments, 0, len(raw))
	for _, item := range raw {
		a := decodeItem(item)
		if a.IsZero() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Scan implements sql.Scanner for a multi-attachment JSON column.
func (s *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = Attachments{}
		return nil
	case []byte:
		*s = decodeList(v)
		return nil
	case string:
		*s = decodeList([]byte(v))
		return nil
	default:
		return fmt.Errorf("attachments: cannot scan %T", src)
	}
}

// Value implements driver.Valuer for a multi-attachment JSON column.
// An empty collection stores as [].
func (s Attachments) Value() (driver.Value, error) {
	b, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return b, nil
}
