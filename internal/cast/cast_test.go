package cast

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attachkit/internal/attachment"
)

func TestStale(t *testing.T) {
	a := attachment.Attachment{Disk: "minio", Name: "docs/a.pdf"}
	b := attachment.Attachment{Disk: "minio", Name: "docs/b.pdf"}
	c := attachment.Attachment{Disk: "minio", Name: "docs/c.pdf"}

	tests := []struct {
		name string
		old  attachment.Attachments
		new  attachment.Attachments
		want attachment.Attachments
	}{
		{
			name: "replaced member is stale",
			old:  attachment.Attachments{a, b},
			new:  attachment.Attachments{a, c},
			want: attachment.Attachments{b},
		},
		{
			name: "identical sets leave nothing stale",
			old:  attachment.Attachments{a, b},
			new:  attachment.Attachments{b, a},
			want: attachment.Attachments{},
		},
		{
			name: "cleared field leaves everything stale",
			old:  attachment.Attachments{a, b},
			new:  nil,
			want: attachment.Attachments{a, b},
		},
		{
			name: "zero members are skipped",
			old:  attachment.Attachments{{}, a},
			new:  attachment.Attachments{a},
			want: attachment.Attachments{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Stale(tt.old, tt.new))
		})
	}
}

func TestStaleSingle(t *testing.T) {
	a := attachment.Attachment{Disk: "minio", Name: "cover/a.png"}
	b := attachment.Attachment{Disk: "minio", Name: "cover/b.png"}

	assert.Equal(t, attachment.Attachments{a}, StaleSingle(a, b))
	assert.Empty(t, StaleSingle(a, a), "self-replacement must not delete the file")
	assert.Equal(t, attachment.Attachments{a}, StaleSingle(a, attachment.Attachment{}), "clearing the field leaves the old file stale")
	assert.Empty(t, StaleSingle(attachment.Attachment{}, b))
}

func TestFieldConstructors(t *testing.T) {
	a := attachment.Attachment{Disk: "minio", Name: "cover/a.png"}

	f := SingleField("cover", a)
	assert.Equal(t, "cover", f.Name)
	assert.Equal(t, Single, f.Mode)
	assert.Equal(t, attachment.Attachments{a}, f.Values)

	empty := SingleField("cover", attachment.Attachment{})
	assert.Empty(t, empty.Values, "zero attachment declares no members")

	m := ManyField("files", attachment.Attachments{a})
	assert.Equal(t, Many, m.Mode)
	assert.Len(t, m.Values, 1)
}
