// Package transport defines the chat boundary: inbound events and the
// outbound operations the core needs. Adapters live in subpackages.
package transport

import (
	"context"
	"strings"
)

// ChatKind distinguishes private chats from groups used as department targets.
type ChatKind string

const (
	ChatPrivate ChatKind = "private"
	ChatGroup   ChatKind = "group"
)

// Location is a geo point shared by a participant.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Callback is an inline button press.
type Callback struct {
	ID        string
	Data      string
	MessageID int
}

// Inbound is one event received from the chat transport. Exactly one of
// Text, MediaRef, Location or Callback is the payload; Caption accompanies media.
type Inbound struct {
	ParticipantID int64
	ChatID        int64
	Username      string
	DisplayName   string
	ChatKind      ChatKind

	Text     string
	Caption  string
	MediaRef string
	Location *Location
	Callback *Callback

	// Command is set when Text starts with "/", without the slash or bot suffix.
	Command string
	Args    []string
}

// ParseCommand splits "/cmd@bot a b" into ("cmd", ["a","b"]). Non-commands return "".
func ParseCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

// CommandRest returns everything after the command word, untouched. Used for
// free text arguments such as broadcast messages.
func CommandRest(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\n' || r == '\t' })
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i+1:])
}

// Button is one inline button.
type Button struct {
	Text string
	Data string
}

// Keyboard is either an inline keyboard or a persistent reply keyboard.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
}

// Document is a generated file sent to a chat.
type Document struct {
	Name    string
	Content []byte
}

// Sender is the outbound side of the transport.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb *Keyboard) (int, error)
	SendMedia(ctx context.Context, chatID int64, mediaRef, caption string, kb *Keyboard) error
	SendLocation(ctx context.Context, chatID int64, loc Location) error
	SendDocument(ctx context.Context, chatID int64, doc Document, caption string) error
	EditMessage(ctx context.Context, chatID int64, messageID int, text string, kb *Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Handler consumes inbound events.
type Handler interface {
	Handle(ctx context.Context, in Inbound)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, in Inbound)

func (f HandlerFunc) Handle(ctx context.Context, in Inbound) { f(ctx, in) }
