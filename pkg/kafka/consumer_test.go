package kafka

import (
	"testing"
	"time"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %v outside (0, %v]", attempt, d, max)
		}
	}
	if d := backoffWithJitter(min, max, 1); d < min/2 || d > min {
		t.Fatalf("first attempt backoff %v, want within [%v, %v]", d, min/2, min)
	}
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	if _, err := NewConsumer(); err == nil {
		t.Fatal("expected error without brokers")
	}
	c, err := NewConsumer(WithConsumerBrokers([]string{"localhost:9092"}), WithConsumerWorkers(0))
	if err != nil {
		t.Fatal(err)
	}
	if c.cfg.WorkerCount != 1 {
		t.Fatalf("workers = %d, want 1", c.cfg.WorkerCount)
	}
	if err := c.Start(); err == nil {
		t.Fatal("expected error starting without handlers")
	}
}
