package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/posterdigest/internal/outputs/email"
)

// Sender records messages. Err fails every send; FailFirst fails that many
// sends before succeeding.
type Sender struct {
	mu        sync.Mutex
	Messages  []email.Message
	Err       error
	FailFirst int
	Attempts  int
}

func (s *Sender) Send(ctx context.Context, message email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attempts++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Err != nil {
		if s.FailFirst <= 0 || s.Attempts <= s.FailFirst {
			return s.Err
		}
	}
	s.Messages = append(s.Messages, message)
	return nil
}
