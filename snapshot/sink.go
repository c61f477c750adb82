package snapshot

// Sink accepts the bytes produced by a serialization pass, in order.
// The description passed with each byte is diagnostic only and never
// affects the accumulated output.
type Sink interface {
	Put(b byte, description string)
	PutBytes(p []byte, description string)
	Position() int
}

// ListSink is a Sink backed by a growable byte slice.
type ListSink struct {
	data []byte
}

// NewListSink creates an empty sink. sizeHint preallocates capacity.
func NewListSink(sizeHint int) *ListSink {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &ListSink{data: make([]byte, 0, sizeHint)}
}

// Put appends a single byte.
func (s *ListSink) Put(b byte, _ string) {
	s.data = append(s.data, b)
}

// PutBytes appends p.
func (s *ListSink) PutBytes(p []byte, _ string) {
	s.data = append(s.data, p...)
}

// Position returns the number of bytes accepted so far.
func (s *ListSink) Position() int {
	return len(s.data)
}

// Bytes returns the accumulated buffer. The sink must not be written to
// after the buffer has been handed to a Writer.
func (s *ListSink) Bytes() []byte {
	return s.data
}
