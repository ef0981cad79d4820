package transport

import (
	"context"
	"errors"
)

// ErrCredentialsRejected signals that the provider refused our
// credentials. The dispatcher treats it as fatal for the whole run;
// every other send error stays scoped to its one recipient.
var ErrCredentialsRejected = errors.New("transport credentials rejected")

// Message is one outbound email or SMS.
type Message struct {
	To       string
	Subject  string
	Body     string
	Text     string // plain-text alternative (email only)
	Metadata map[string]string
}

// Sender delivers a single message and returns the provider's message
// id. Failures are per message; callers must tolerate an error without
// aborting their batch.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Manager routes sends to the channel-appropriate provider.
type Manager struct {
	email Sender
	sms   Sender
}

func NewManager(email, sms Sender) *Manager {
	return &Manager{email: email, sms: sms}
}

// ForChannel returns the sender for a channel.
func (m *Manager) ForChannel(channel string) (Sender, error) {
	switch channel {
	case "email":
		if m.email == nil {
			return nil, errors.New("email transport not configured")
		}
		return m.email, nil
	case "sms":
		if m.sms == nil {
			return nil, errors.New("sms transport not configured")
		}
		return m.sms, nil
	}
	return nil, errors.New("unknown channel: " + channel)
}
