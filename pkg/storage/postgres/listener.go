package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricestate/internal/price"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ErrListenerClosed is reported when the notification channel closes underneath a subscriber.
var ErrListenerClosed = errors.New("postgres: listener closed")

const pingInterval = 90 * time.Second

// ResetListener turns NOTIFY messages on a Postgres channel into reset signals.
// Every subscription opens its own LISTEN connection.
type ResetListener struct {
	DSN          string
	Channel      string
	MinReconnect time.Duration
	MaxReconnect time.Duration
	Logger       *zap.Logger
}

func (l *ResetListener) Subscribe(ctx context.Context) (<-chan price.Reset, <-chan error) {
	out := make(chan price.Reset)
	errs := make(chan error, 1)
	go l.run(ctx, out, errs)
	return out, errs
}

func (l *ResetListener) run(ctx context.Context, out chan<- price.Reset, errs chan<- error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	failures := make(chan error, 1)
	listener := pq.NewListener(l.DSN, l.MinReconnect, l.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed:
			select {
			case failures <- fmt.Errorf("reset listener connect: %w", err):
			default:
			}
		case pq.ListenerEventDisconnected:
			l.Logger.Warn("reset listener disconnected", zap.Error(err))
		case pq.ListenerEventReconnected:
			l.Logger.Info("reset listener reconnected", zap.String("channel", l.Channel))
		}
	})
	defer listener.Close()

	if err := listener.Listen(l.Channel); err != nil {
		errs <- fmt.Errorf("listen %s: %w", l.Channel, err)
		return
	}
	l.Logger.Info("listening for resets", zap.String("channel", l.Channel))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := listener.Ping(); err != nil {
					l.Logger.Warn("reset listener ping failed", zap.Error(err))
				}
			}
		}
	}()

	if err := forward(ctx, listener.Notify, failures, out); err != nil {
		errs <- err
	}
}

// forward emits one reset per notification until ctx ends or the listener fails.
func forward(ctx context.Context, notify <-chan *pq.Notification, failures <-chan error, out chan<- price.Reset) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failures:
			return err
		case n, ok := <-notify:
			if !ok {
				return ErrListenerClosed
			}
			if n == nil {
				// sent after a reconnect; nothing to fold
				continue
			}
			select {
			case out <- price.Reset{}:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
