// Package wsfeed reads JSON tick frames from a websocket feed.
package wsfeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/util"
)

// Client implements TickStream over a websocket. Each text frame carries
// either one tick object or an array of ticks:
//
//	{"seq":1,"src_ts":1700000000.1,"price":100.5,"size":10}
type Client struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger
	now            func() time.Time

	mu        sync.Mutex // guards conn and serializes writes
	conn      *websocket.Conn
	connected atomic.Bool
	dropped   atomic.Uint64
}

// New creates a websocket tick stream.
func New(url string, reconnectDelay, pingInterval time.Duration, lgr *logger.Logger) *Client {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Client{
		url:            url,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            lgr.With("wsfeed"),
		now:            time.Now,
	}
}

var _ drepo.TickStream = (*Client)(nil)

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("wsfeed connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.log.Info("connected", logger.String("url", c.url))
	return nil
}

type frameTick struct {
	Seq   uint64  `json:"seq"`
	SrcTs float64 `json:"src_ts"`
	Price float64 `json:"price"`
	Size  uint32  `json:"size"`
}

// decodeFrame accepts a single tick object or an array of them.
func decodeFrame(b []byte) ([]frameTick, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var many []frameTick
		if err := json.Unmarshal(b, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one frameTick
	if err := json.Unmarshal(b, &one); err != nil {
		return nil, err
	}
	return []frameTick{one}, nil
}

// Read streams ticks and errors. Frames that do not decode are dropped.
func (c *Client) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- fmt.Errorf("wsfeed: not connected")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	readCtx, cancel := context.WithCancel(ctx)

	// ping loop
	if c.pingInterval > 0 {
		go func() {
			ticker := time.NewTicker(c.pingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-readCtx.Done():
					return
				case <-ticker.C:
					c.mu.Lock()
					err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
					c.mu.Unlock()
					if err != nil {
						c.log.Debug("ping failed", logger.Error(err))
					}
				}
			}
		}()
	}

	stop := context.AfterFunc(readCtx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	// read loop
	go func() {
		defer close(errs)
		defer close(ticks)
		defer stop()
		defer cancel()
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errs <- fmt.Errorf("wsfeed read: %w", err)
				return
			}
			recvTs := util.EpochSeconds(c.now())

			frame, err := decodeFrame(b)
			if err != nil {
				c.dropped.Add(1)
				continue
			}
			for _, ft := range frame {
				t := models.Tick{
					Sequence:         ft.Seq,
					SourceTimestamp:  ft.SrcTs,
					ReceiveTimestamp: recvTs,
					Price:            ft.Price,
					Size:             ft.Size,
				}
				select {
				case ticks <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ticks, errs
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-time.After(c.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.Connect(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// Dropped returns the number of undecodable frames discarded so far.
func (c *Client) Dropped() uint64 { return c.dropped.Load() }
