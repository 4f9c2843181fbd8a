// Package transporttest provides an in-memory transport.Sender for tests.
package transporttest

import (
	"context"
	"strings"
	"sync"

	"github.com/psds-microservice/citizen-desk/internal/transport"
)

// Sent is one recorded outbound operation.
type Sent struct {
	Op        string
	ChatID    int64
	MessageID int
	Text      string
	MediaRef  string
	Location  *transport.Location
	Document  *transport.Document
	Keyboard  *transport.Keyboard
}

// Recorder records every send. Chats listed in Fail return FailErr.
type Recorder struct {
	mu     sync.Mutex
	sent   []Sent
	nextID int

	Fail    map[int64]bool
	FailErr error
}

func NewRecorder() *Recorder {
	return &Recorder{Fail: make(map[int64]bool), FailErr: context.DeadlineExceeded}
}

func (r *Recorder) add(s Sent) error {
	_, err := r.addID(s)
	return err
}

func (r *Recorder) addID(s Sent) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail[s.ChatID] {
		return 0, r.FailErr
	}
	r.nextID++
	if s.MessageID == 0 {
		s.MessageID = r.nextID
	}
	r.sent = append(r.sent, s)
	return r.nextID, nil
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string, kb *transport.Keyboard) (int, error) {
	return r.addID(Sent{Op: "message", ChatID: chatID, Text: text, Keyboard: kb})
}

func (r *Recorder) SendMedia(_ context.Context, chatID int64, mediaRef, caption string, kb *transport.Keyboard) error {
	return r.add(Sent{Op: "media", ChatID: chatID, MediaRef: mediaRef, Text: caption, Keyboard: kb})
}

func (r *Recorder) SendLocation(_ context.Context, chatID int64, loc transport.Location) error {
	return r.add(Sent{Op: "location", ChatID: chatID, Location: &loc})
}

func (r *Recorder) SendDocument(_ context.Context, chatID int64, doc transport.Document, caption string) error {
	return r.add(Sent{Op: "document", ChatID: chatID, Document: &doc, Text: caption})
}

func (r *Recorder) EditMessage(_ context.Context, chatID int64, messageID int, text string, kb *transport.Keyboard) error {
	return r.add(Sent{Op: "edit", ChatID: chatID, MessageID: messageID, Text: text, Keyboard: kb})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	return r.add(Sent{Op: "callback", Text: text})
}

// All returns a copy of everything sent so far.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// To returns what was sent to chatID.
func (r *Recorder) To(chatID int64) []Sent {
	var out []Sent
	for _, s := range r.All() {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

// Last returns the last message sent to chatID, or a zero Sent.
func (r *Recorder) Last(chatID int64) Sent {
	to := r.To(chatID)
	if len(to) == 0 {
		return Sent{}
	}
	return to[len(to)-1]
}

// Contains reports whether any message to chatID contains substr.
func (r *Recorder) Contains(chatID int64, substr string) bool {
	for _, s := range r.To(chatID) {
		if strings.Contains(s.Text, substr) {
			return true
		}
	}
	return false
}

// Reset forgets recorded sends.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}
