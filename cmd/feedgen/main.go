// Command feedgen sends synthetic CSV ticks over UDP for local runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OFISignal/internal/domain/models"
	"OFISignal/internal/service/udpfeed"
	"OFISignal/pkg/logger"
	"OFISignal/pkg/util"
)

func main() {
	host := flag.String("host", "127.0.0.1", "destination host")
	port := flag.Int("port", 9000, "destination UDP port")
	rate := flag.Float64("rate", 2000, "ticks per second")
	start := flag.Float64("price", 100, "starting price")
	drift := flag.Float64("drift", -0.5, "mean price step")
	vol := flag.Float64("vol", 0.5, "price step standard deviation")
	count := flag.Uint64("count", 0, "stop after this many ticks (0 = run until interrupted)")
	flag.Parse()

	lgr := logger.NewWithWriter(os.Stderr, "info").With("feedgen")
	if *rate <= 0 {
		lgr.Error("rate must be positive", logger.Float64("rate", *rate))
		os.Exit(2)
	}

	addr := net.JoinHostPort(*host, fmt.Sprint(*port))
	conn, err := net.Dial("udp", addr)
	if err != nil {
		lgr.Error("dial failed", logger.String("addr", addr), logger.Error(err))
		os.Exit(1)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interval := time.Duration(float64(time.Second) / *rate)
	lgr.Info("sending ticks",
		logger.String("addr", addr),
		logger.Float64("rate_hz", *rate),
		logger.Duration("interval", interval),
	)

	g := newGenerator(*start, *drift, *vol, rand.New(rand.NewSource(time.Now().UnixNano())))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var sent, failed uint64
	for *count == 0 || sent < *count {
		select {
		case <-ctx.Done():
			lgr.Info("terminated", logger.Uint64("sent", sent), logger.Uint64("failed", failed))
			return
		case <-ticker.C:
		}
		t := g.next(util.NowEpoch())
		if _, err := conn.Write([]byte(udpfeed.FormatRecord(t))); err != nil {
			failed++
			continue
		}
		sent++
	}
	lgr.Info("done", logger.Uint64("sent", sent), logger.Uint64("failed", failed))
}

// generator walks the price with Gaussian steps and draws sizes uniformly
// from 1..1000.
type generator struct {
	seq   uint64
	price float64
	drift float64
	vol   float64
	rnd   *rand.Rand
}

func newGenerator(price, drift, vol float64, rnd *rand.Rand) *generator {
	return &generator{price: price, drift: drift, vol: vol, rnd: rnd}
}

func (g *generator) next(ts float64) models.Tick {
	g.price += g.drift + g.vol*g.rnd.NormFloat64()
	t := models.Tick{
		Sequence:        g.seq,
		SourceTimestamp: ts,
		Price:           g.price,
		Size:            uint32(g.rnd.Intn(1000) + 1),
	}
	g.seq++
	return t
}
