// Package notify delivers best-effort outbound messages. A failed delivery is
// logged and counted; it never fails the operation that triggered it.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/psds-microservice/citizen-desk/internal/transport"
	"github.com/psds-microservice/citizen-desk/pkg/logger"
	"github.com/psds-microservice/citizen-desk/pkg/metrics"
)

// Kinds label notifications in logs and metrics.
const (
	KindAuthorStatus = "author_status"
	KindDepartment   = "department"
	KindStaff        = "staff"
	KindDialog       = "dialog"
	KindBroadcast    = "broadcast"
)

// Message is what gets delivered. Media is sent with Text as its caption;
// a location follows as a separate message.
type Message struct {
	Text     string
	MediaRef string
	Location *transport.Location
	Keyboard *transport.Keyboard
}

// Outcome is the per-recipient delivery result.
type Outcome struct {
	Kind   string
	Target int64
	Err    error
}

type Notifier struct {
	sender  transport.Sender
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup

	mu        sync.RWMutex
	onOutcome func(Outcome)
}

func New(sender transport.Sender, timeout time.Duration, log *logger.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Notifier{sender: sender, timeout: timeout, log: log.Named("notify")}
}

// OnOutcome registers a hook called after every delivery attempt.
func (n *Notifier) OnOutcome(fn func(Outcome)) {
	n.mu.Lock()
	n.onOutcome = fn
	n.mu.Unlock()
}

// Notify sends msg to target on its own goroutine and returns immediately.
func (n *Notifier) Notify(kind string, target int64, msg Message) {
	if n == nil || target == 0 {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		n.record(kind, target, n.deliver(ctx, target, msg))
	}()
}

// NotifyMany fans msg out to every target.
func (n *Notifier) NotifyMany(kind string, targets []int64, msg Message) {
	for _, t := range targets {
		n.Notify(kind, t, msg)
	}
}

// Send delivers synchronously with the per-send timeout and returns the error.
func (n *Notifier) Send(ctx context.Context, kind string, target int64, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err := n.deliver(ctx, target, msg)
	n.record(kind, target, err)
	return err
}

// Broadcast delivers msg to each target in turn and reports how many
// deliveries succeeded and failed.
func (n *Notifier) Broadcast(ctx context.Context, targets []int64, msg Message) (delivered, failed int) {
	for _, t := range targets {
		if ctx.Err() != nil {
			failed++
			continue
		}
		if err := n.Send(ctx, KindBroadcast, t, msg); err != nil {
			failed++
		} else {
			delivered++
		}
	}
	return delivered, failed
}

// Wait blocks until every asynchronous notification has finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) deliver(ctx context.Context, target int64, msg Message) error {
	if msg.MediaRef != "" {
		if err := n.sender.SendMedia(ctx, target, msg.MediaRef, msg.Text, msg.Keyboard); err != nil {
			return err
		}
	} else if msg.Text != "" {
		if _, err := n.sender.SendMessage(ctx, target, msg.Text, msg.Keyboard); err != nil {
			return err
		}
	}
	if msg.Location != nil {
		return n.sender.SendLocation(ctx, target, *msg.Location)
	}
	return nil
}

func (n *Notifier) record(kind string, target int64, err error) {
	metrics.RecordNotification(kind, err)
	if err != nil {
		n.log.Warn("notification failed",
			zap.String("kind", kind), zap.Int64("target", target), zap.Error(err))
	} else {
		n.log.Debug("notification delivered", zap.String("kind", kind), zap.Int64("target", target))
	}
	n.mu.RLock()
	hook := n.onOutcome
	n.mu.RUnlock()
	if hook != nil {
		hook(Outcome{Kind: kind, Target: target, Err: err})
	}
}
