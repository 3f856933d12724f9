package email

import "context"

// Inline is a file embedded in the message and referenced from the HTML body
// as cid:<ContentID>.
type Inline struct {
	ContentID   string
	Filename    string
	ContentType string
	Data        []byte
}

type Message struct {
	From    string
	To      string
	Subject string
	// Body is HTML. TextBody, when set, is sent as the plain-text alternative.
	Body     string
	TextBody string
	Inline   []Inline
}

// Size is the payload size of the message before transfer encoding.
func (m Message) Size() int64 {
	size := int64(len(m.Body) + len(m.TextBody))
	for _, inline := range m.Inline {
		size += int64(len(inline.Data))
	}
	return size
}

type Sender interface {
	Send(ctx context.Context, message Message) error
}
