package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"nhooyr.io/websocket"
)

const dialTimeout = 10 * time.Second

// Consumer keeps a websocket subscription to the node feed alive, resuming
// from the indexer cursor after every reconnect.
type Consumer struct {
	endpoint   *url.URL
	indexer    *Indexer
	logger     *slog.Logger
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewConsumer builds a consumer for the supplied ws endpoint.
func NewConsumer(endpoint string, ix *Indexer, backoff, maxBackoff time.Duration, logger *slog.Logger) (*Consumer, error) {
	if ix == nil {
		return nil, fmt.Errorf("indexer required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse ws endpoint: %w", err)
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return nil, fmt.Errorf("ws endpoint must be ws or wss")
	}
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		endpoint:   parsed,
		indexer:    ix,
		logger:     logger,
		backoff:    backoff,
		maxBackoff: maxBackoff,
	}, nil
}

// Run blocks, consuming the feed until the context is cancelled. Disconnects
// and apply failures tear the connection down and redial from the stored
// cursor, so nothing is lost and replays are skipped by the indexer.
func (c *Consumer) Run(ctx context.Context) error {
	wait := c.backoff
	for {
		connected, err := c.consumeOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			wait = c.backoff
		}
		c.logger.Error("event stream interrupted", "error", err, "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
		if wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) (bool, error) {
	cursor, err := c.indexer.Cursor()
	if err != nil {
		return false, err
	}
	target := *c.endpoint
	query := target.Query()
	query.Set("cursor", strconv.FormatUint(cursor, 10))
	target.RawQuery = query.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, target.String(), nil)
	cancel()
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", target.Host, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "shutting down")
	c.logger.Info("event stream connected", "cursor", cursor)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		var update Update
		if err := json.Unmarshal(data, &update); err != nil {
			c.logger.Error("decode feed entry", "error", err)
			continue
		}
		if err := c.indexer.Apply(update); err != nil {
			return true, fmt.Errorf("apply sequence %d: %w", update.Sequence, err)
		}
	}
}
