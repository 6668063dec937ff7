// Package support implements the feedback form.
package support

import (
	"context"
	"log/slog"
	"sync"
)

const (
	MaxEmail   = 40
	MaxMessage = 500
)

// Feedback is the slice of hub.Gateway the form uses.
type Feedback interface {
	Connect()
	SendFeedback(ctx context.Context, email, message string) error
}

type Form struct {
	hub Feedback
	log *slog.Logger

	mu      sync.Mutex
	email   string
	message string
}

// Open connects lazily, without sending a location.
func Open(h Feedback, logger *slog.Logger) *Form {
	if logger == nil {
		logger = slog.Default()
	}
	h.Connect()
	return &Form{hub: h, log: logger.With("component", "support")}
}

func (f *Form) SetEmail(s string) {
	f.mu.Lock()
	f.email = clamp(s, MaxEmail)
	f.mu.Unlock()
}

func (f *Form) SetMessage(s string) {
	f.mu.Lock()
	f.message = clamp(s, MaxMessage)
	f.mu.Unlock()
}

func (f *Form) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

func (f *Form) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Send submits the form. The fields are cleared whatever the outcome.
func (f *Form) Send(ctx context.Context) error {
	f.mu.Lock()
	email, message := f.email, f.message
	f.email, f.message = "", ""
	f.mu.Unlock()

	if err := f.hub.SendFeedback(ctx, email, message); err != nil {
		f.log.Error("send feedback", "error", err)
		return err
	}
	return nil
}

// Submit fills the form with email and message and sends it in one step.
// Concurrent submissions never mix fields.
func (f *Form) Submit(ctx context.Context, email, message string) error {
	email, message = clamp(email, MaxEmail), clamp(message, MaxMessage)
	f.mu.Lock()
	f.email, f.message = "", ""
	f.mu.Unlock()

	if err := f.hub.SendFeedback(ctx, email, message); err != nil {
		f.log.Error("send feedback", "error", err)
		return err
	}
	return nil
}

func clamp(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
