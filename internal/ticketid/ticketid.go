// Package ticketid generates public ticket identifiers of the form
// "T" + UTC "YYYYMMDDHHMMSS" + 3-digit milliseconds. The format is shown to
// citizens and sorts lexicographically in creation order.
package ticketid

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

const layout = "20060102150405"

var pattern = regexp.MustCompile(`^T\d{17}$`)

// Generator issues ids that are strictly increasing even when several
// tickets are created within the same millisecond: a colliding id is pushed
// forward by one millisecond.
type Generator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewGenerator returns a generator reading time from now (time.Now if nil).
func NewGenerator(now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{now: now}
}

// Next returns the next identifier together with the instant it encodes.
func (g *Generator) Next() (string, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.now().UTC().Truncate(time.Millisecond)
	if !t.After(g.last) {
		t = g.last.Add(time.Millisecond)
	}
	g.last = t
	return Format(t), t
}

// Format renders t as a ticket id.
func Format(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("T%s%03d", t.Format(layout), t.Nanosecond()/int(time.Millisecond))
}

// Parse returns the instant encoded in id.
func Parse(id string) (time.Time, error) {
	if !Valid(id) {
		return time.Time{}, fmt.Errorf("malformed ticket id %q", id)
	}
	t, err := time.ParseInLocation(layout, id[1:15], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed ticket id %q: %w", id, err)
	}
	var ms int
	fmt.Sscanf(id[15:], "%03d", &ms)
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// Valid reports whether id has the public ticket id shape.
func Valid(id string) bool {
	return pattern.MatchString(id)
}
