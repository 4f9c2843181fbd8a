// Package callback encodes inline button payloads as "action:arg:arg".
// Chat transports cap payloads at 64 bytes, which every encoding here fits.
package callback

import "strings"

type Action string

const (
	Open       Action = "open"
	SetStatus  Action = "st"
	AssignMenu Action = "asm"
	Assign     Action = "as"
	Reply      Action = "rp"
	Dialog     Action = "dg"
	StopDialog Action = "sd"
	Category   Action = "cat"
	Cancel     Action = "cancel"
)

const sep = ":"

// Encode joins action and args.
func Encode(a Action, args ...string) string {
	if len(args) == 0 {
		return string(a)
	}
	return string(a) + sep + strings.Join(args, sep)
}

// Decode splits data into its action and args.
func Decode(data string) (Action, []string) {
	parts := strings.Split(data, sep)
	return Action(parts[0]), parts[1:]
}
