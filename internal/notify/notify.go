// Package notify emits sign-in prompts as JSON lines for whatever drives the shim.
//
// Each notification is written as a single line so a parent process can read stdout line by line:
//
//	{"type":"captcha","url":"https://..."}
//	{"type":"otp"}
//	{"type":"approval","message":"Approval alert detected! ..."}
//	{"type":"message","message":"auth from file failed... Using OAuth"}
package notify

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/desertthunder/abx/internal/retailer"
)

// TypeMessage is the notification type for free-form status text.
const TypeMessage = "message"

// Notification is one line written by a [Notifier].
type Notification struct {
	Type    string `json:"type"`
	URL     string `json:"url,omitempty"`
	Message string `json:"message,omitempty"`
}

// Notifier writes notifications to an [io.Writer], one JSON object per line.
//
// Safe for concurrent use; lines are never interleaved.
type Notifier struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a [Notifier] writing to w, or to stdout when w is nil.
func New(w io.Writer) *Notifier {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Notifier{enc: enc}
}

// Send writes a notification as a single line.
func (n *Notifier) Send(notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.enc.Encode(notification); err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Challenge announces a pending sign-in challenge.
func (n *Notifier) Challenge(c retailer.Challenge) error {
	return n.Send(Notification{Type: string(c.Kind), URL: c.URL, Message: c.Prompt})
}

// Message announces status text.
func (n *Notifier) Message(text string) error {
	return n.Send(Notification{Type: TypeMessage, Message: text})
}
