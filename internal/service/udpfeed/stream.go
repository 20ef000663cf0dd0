// Package udpfeed receives CSV tick datagrams over UDP.
package udpfeed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"OFISignal/internal/domain/models"
	drepo "OFISignal/internal/domain/repository"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/metrics"
	"OFISignal/pkg/util"
)

const maxDatagram = 2048

// Stream implements TickStream over a bound UDP socket. Ticks are delivered
// in datagram arrival order; malformed lines are dropped and counted.
type Stream struct {
	host       string
	port       int
	readBuffer int
	log        *logger.Logger
	metrics    drepo.Metrics
	now        func() time.Time

	mu        sync.Mutex
	conn      *net.UDPConn
	connected atomic.Bool
	dropped   atomic.Uint64
}

// Option configures a Stream.
type Option func(*Stream)

// WithMetrics reports malformed records as "udp_malformed" errors.
func WithMetrics(m drepo.Metrics) Option {
	return func(s *Stream) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New creates a UDP tick stream. Port 0 binds an ephemeral port.
func New(host string, port, readBuffer int, lgr *logger.Logger, opts ...Option) *Stream {
	if lgr == nil {
		lgr = logger.Nop()
	}
	s := &Stream{
		host:       host,
		port:       port,
		readBuffer: readBuffer,
		log:        lgr.With("udpfeed"),
		metrics:    metrics.Nop{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ drepo.TickStream = (*Stream)(nil)

// Connect binds the socket.
func (s *Stream) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return fmt.Errorf("udp listen %s: %w", addr, err)
	}
	conn := pc.(*net.UDPConn)
	if s.readBuffer > 0 {
		if err := conn.SetReadBuffer(s.readBuffer); err != nil {
			s.log.Warn("set read buffer failed", logger.Int("bytes", s.readBuffer), logger.Error(err))
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.connected.Store(true)
	s.log.Info("listening", logger.String("addr", conn.LocalAddr().String()))
	return nil
}

// Read starts the receive loop. Both channels are closed when the loop
// exits; a non-nil error is sent first unless ctx was cancelled.
func (s *Stream) Read(ctx context.Context) (<-chan models.Tick, <-chan error) {
	ticks := make(chan models.Tick, 1024)
	errs := make(chan error, 1)

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		errs <- fmt.Errorf("udpfeed: not connected")
		close(ticks)
		close(errs)
		return ticks, errs
	}

	// unblock ReadFromUDP on cancellation
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})

	go func() {
		defer close(errs)
		defer close(ticks)
		defer stop()

		buf := make([]byte, maxDatagram)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				errs <- fmt.Errorf("udp read: %w", err)
				return
			}
			recvTs := util.EpochSeconds(s.now())

			for _, line := range bytes.Split(buf[:n], []byte{'\n'}) {
				if len(bytes.TrimSpace(line)) == 0 {
					continue
				}
				t, err := ParseRecord(string(line), recvTs)
				if err != nil {
					s.dropped.Add(1)
					s.metrics.RecordError("udp_malformed")
					s.log.Debug("dropping record", logger.Error(err))
					continue
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

// Reconnect closes and re-binds the socket.
func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	return s.Connect(ctx)
}

// Close releases the socket.
func (s *Stream) Close() error {
	s.connected.Store(false)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Stream) IsConnected() bool { return s.connected.Load() }

// Dropped returns the number of malformed records discarded so far.
func (s *Stream) Dropped() uint64 { return s.dropped.Load() }

// LocalAddr returns the bound address, or nil before Connect.
func (s *Stream) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}
