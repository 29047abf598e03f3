// Package transport dials the websocket feed and hands every binary message
// to a Handler, reconnecting with backoff when the connection drops.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmylchreest/livefeed/internal/observability"
	"github.com/jmylchreest/livefeed/internal/urlutil"
)

// ErrHandler marks errors returned by the Handler; they end Run without a
// reconnect.
var ErrHandler = errors.New("handler rejected message")

// ErrFeedClosed is returned when the server ends the feed with a normal close.
var ErrFeedClosed = errors.New("feed closed by server")

// Handler receives connection and message callbacks. Chunks are owned by the
// handler once delivered.
type Handler interface {
	OnOpen() error
	OnChunk(chunk []byte) error
}

// Config configures a Client.
type Config struct {
	URL               string
	Header            http.Header
	HandshakeTimeout  time.Duration
	ReadLimit         int64
	Reconnect         bool
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// Stats holds transport counters.
type Stats struct {
	Connects      uint64 `json:"connects"`
	Messages      uint64 `json:"messages"`
	Bytes         uint64 `json:"bytes"`
	IgnoredFrames uint64 `json:"ignored_frames"`
}

// Client is a websocket feed reader.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger

	connects      atomic.Uint64
	messages      atomic.Uint64
	bytes         atomic.Uint64
	ignoredFrames atomic.Uint64
}

// NewClient creates a client for cfg.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectDelay < cfg.ReconnectDelay {
		cfg.MaxReconnectDelay = cfg.ReconnectDelay
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Stats returns the transport counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connects:      c.connects.Load(),
		Messages:      c.messages.Load(),
		Bytes:         c.bytes.Load(),
		IgnoredFrames: c.ignoredFrames.Load(),
	}
}

// Run connects and reads until ctx is cancelled, the handler fails, or the
// connection drops with reconnect disabled.
func (c *Client) Run(ctx context.Context, h Handler) error {
	delay := c.cfg.ReconnectDelay
	for attempt := 1; ; attempt++ {
		connected, err := c.session(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrHandler) || !c.cfg.Reconnect {
			return err
		}
		if connected {
			delay = c.cfg.ReconnectDelay
			attempt = 1
		}

		observability.WithError(c.logger, err).Warn("feed connection lost, reconnecting",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, c.cfg.MaxReconnectDelay)
	}
}

// session runs one connection. connected reports whether the dial succeeded.
func (c *Client) session(ctx context.Context, h Handler) (connected bool, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return false, fmt.Errorf("dialing feed: %w", err)
	}
	defer conn.Close()

	if c.cfg.ReadLimit > 0 {
		conn.SetReadLimit(c.cfg.ReadLimit)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	c.connects.Add(1)
	c.logger.Info("feed connected", slog.String("url", urlutil.Redact(c.cfg.URL)))

	if err := h.OnOpen(); err != nil {
		return true, fmt.Errorf("%w: %w", ErrHandler, err)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return true, fmt.Errorf("%w: %w", ErrFeedClosed, err)
			}
			return true, fmt.Errorf("reading message: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			c.ignoredFrames.Add(1)
			c.logger.Debug("ignoring non-binary frame", slog.Int("type", msgType), slog.Int("bytes", len(data)))
			continue
		}

		c.messages.Add(1)
		c.bytes.Add(uint64(len(data)))
		if err := h.OnChunk(data); err != nil {
			return true, fmt.Errorf("%w: %w", ErrHandler, err)
		}
	}
}
