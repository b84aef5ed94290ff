package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

// OrderChannel is the NOTIFY channel carrying order events.
const OrderChannel = "cafe_orders"

const (
	notifySQL       = `SELECT pg_notify($1, $2)`
	listenRetryWait = 2 * time.Second
)

var _ order.Publisher = (*Notifier)(nil)

// Notifier publishes order events through PostgreSQL NOTIFY so every API
// instance sees them.
type Notifier struct {
	pool *pgxpool.Pool
}

// NewNotifier returns a Notifier that uses the given pool.
func NewNotifier(pool *pgxpool.Pool) *Notifier {
	return &Notifier{pool: pool}
}

// Publish sends e on OrderChannel.
func (n *Notifier) Publish(ctx context.Context, e order.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling order event: %w", err)
	}
	if _, err := n.pool.Exec(ctx, notifySQL, OrderChannel, string(payload)); err != nil {
		return fmt.Errorf("notifying %s: %w", OrderChannel, err)
	}
	return nil
}

// Listen relays events received on OrderChannel to sink until ctx is done.
// A lost connection is re-established after a short pause.
func Listen(ctx context.Context, pool *pgxpool.Pool, sink order.Publisher) error {
	lg := zctx.From(ctx)
	for {
		err := listenOnce(ctx, pool, sink)
		if ctx.Err() != nil {
			return nil
		}
		lg.Warn("Order event listener interrupted", zap.Error(err))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(listenRetryWait):
		}
	}
}

func listenOnce(ctx context.Context, pool *pgxpool.Pool, sink order.Publisher) error {
	c, err := pool.Acquire(ctx)
	if err != nil {
		return errors.Wrap(err, "acquire")
	}
	defer c.Release()

	if _, err := c.Exec(ctx, "LISTEN "+pgx.Identifier{OrderChannel}.Sanitize()); err != nil {
		return errors.Wrap(err, "listen")
	}

	for {
		n, err := c.Conn().WaitForNotification(ctx)
		if err != nil {
			return errors.Wrap(err, "wait for notification")
		}
		var e order.Event
		if err := json.Unmarshal([]byte(n.Payload), &e); err != nil {
			zctx.From(ctx).Warn("Dropping malformed order event", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		if err := sink.Publish(ctx, e); err != nil {
			zctx.From(ctx).Warn("Relaying order event failed", zap.Error(err))
		}
	}
}
