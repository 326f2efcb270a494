package attachment

// Attachments is an ordered collection of attachments. Members need not be
// unique; insertion order is preserved through the JSON round-trip.
type Attachments []Attachment

// Attach returns the collection with a new member appended.
func (s Attachments) Attach(a Attachment) Attachments {
	return append(s, a)
}

// TotalSize sums the member sizes, treating unknown sizes as 0.
func (s Attachments) TotalSize() int64 {
	var total int64
	for _, a := range s {
		if a.Size > 0 {
			total += a.Size
		}
	}
	return total
}

// TotalReadableSize formats TotalSize with the given precision.
func (s Attachments) TotalReadableSize(precision int) string {
	return ReadableBytes(s.TotalSize(), precision)
}

// OfType filters members by type tag (image, pdf, video, audio, document).
// An unrecognized tag yields an empty collection.
func (s Attachments) OfType(tag string) Attachments {
	out := make(Attachments, 0, len(s))
	for _, a := range s {
		if a.matchesType(tag) {
			out = append(out, a)
		}
	}
	return out
}

// Contains reports whether any member points at the same disk+name.
func (s Attachments) Contains(a Attachment) bool {
	for _, m := range s {
		if m.SameObject(a) {
			return true
		}
	}
	return false
}
