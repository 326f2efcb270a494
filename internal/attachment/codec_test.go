package attachment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachment_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   Attachment
	}{
		{
			name: "full tuple",
			in: Attachment{
				Disk:     "minio",
				Name:     "attachments/a.pdf",
				Size:     2048,
				Extname:  "pdf",
				MimeType: "application/pdf",
				Metadata: map[string]string{"original_name": "a.pdf"},
			},
		},
		{
			name: "empty metadata omitted and restored as empty",
			in:   Attachment{Disk: "local", Name: "x/y.png", Size: 10, Extname: "png", MimeType: "image/png"},
		},
		{
			name: "zero size",
			in:   Attachment{Disk: "minio", Name: "empty.bin", Size: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.in)
			require.NoError(t, err)

			var out Attachment
			require.NoError(t, json.Unmarshal(b, &out))
			assert.Equal(t, tt.in, out)
		})
	}
}

func TestAttachment_JSONShape(t *testing.T) {
	b, err := json.Marshal(Attachment{Disk: "minio", Name: "a.pdf", Size: 1, Extname: "pdf", MimeType: "application/pdf"})
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "minio", m["disk"])
	assert.Equal(t, "a.pdf", m["name"])
	assert.Equal(t, "pdf", m["extname"])
	assert.Equal(t, "application/pdf", m["mimeType"])
	assert.NotContains(t, m, "metadata", "empty metadata must be omitted")

	b, err = json.Marshal(Attachment{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b), "zero attachment encodes as null")
}

func TestAttachment_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want Attachment
	}{
		{
			name: "valid object",
			src:  []byte(`{"disk":"minio","name":"a.pdf","size":5,"extname":"pdf","mimeType":"application/pdf"}`),
			want: Attachment{Disk: "minio", Name: "a.pdf", Size: 5, Extname: "pdf", MimeType: "application/pdf"},
		},
		{name: "null column", src: nil, want: Attachment{}},
		{name: "malformed json", src: []byte(`{nope`), want: Attachment{}},
		{name: "missing disk", src: []byte(`{"name":"a.pdf","size":5}`), want: Attachment{}},
		{name: "missing name", src: []byte(`{"disk":"minio","size":5}`), want: Attachment{}},
		{name: "string source", src: `{"disk":"minio","name":"a.pdf","size":5}`, want: Attachment{Disk: "minio", Name: "a.pdf", Size: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Attachment
			require.NoError(t, a.Scan(tt.src))
			assert.Equal(t, tt.want, a)
		})
	}

	t.Run("unsupported source type", func(t *testing.T) {
		var a Attachment
		assert.Error(t, a.Scan(42))
	})
}

func TestAttachment_Value(t *testing.T) {
	v, err := Attachment{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v, "zero attachment stores as NULL")

	v, err = Attachment{Disk: "minio", Name: "a.pdf", Size: 5}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"disk":"minio","name":"a.pdf","size":5,"extname":"","mimeType":""}`, string(v.([]byte)))
}

func TestAttachments_ScanSkipsMalformedItems(t *testing.T) {
	raw := []byte(`[
		{"disk":"minio","name":"first.pdf","size":1},
		{"name":"no-disk.pdf","size":2},
		{"disk":"minio","name":"second.png","size":3}
	]`)

	var s Attachments
	require.NoError(t, s.Scan(raw))
	require.Len(t, s, 2)
	assert.Equal(t, "first.pdf", s[0].Name)
	assert.Equal(t, "second.png", s[1].Name)
}

func TestAttachments_RoundTripPreservesOrder(t *testing.T) {
	in := Attachments{
		{Disk: "minio", Name: "c.pdf", Size: 3},
		{Disk: "minio", Name: "a.pdf", Size: 1},
		{Disk: "local", Name: "b.pdf", Size: 2},
	}

	b, err := json.Marshal(in)
	require.NoError(t, err)

	var out Attachments
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestAttachments_Value(t *testing.T) {
	v, err := Attachments{}.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(v.([]byte)), "empty collection stores as []")

	var s Attachments
	require.NoError(t, s.Scan(nil))
	assert.Equal(t, Attachments{}, s, "NULL column scans to empty collection")

	require.NoError(t, s.Scan([]byte(`not-json`)))
	assert.Equal(t, Attachments{}, s, "malformed column scans to empty collection")
}
