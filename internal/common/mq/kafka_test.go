package mq

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestToKafkaMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &Message{
		ID:        "evt-1",
		Key:       "room-9",
		Body:      []byte(`{"ok":true}`),
		Headers:   map[string]string{"event": "duel.finished"},
		Timestamp: ts,
	}
	km := toKafkaMessage("duel.finished", msg)

	if km.Topic != "duel.finished" {
		t.Fatalf("unexpected topic %q", km.Topic)
	}
	if string(km.Key) != "room-9" {
		t.Fatalf("expected partition key from message key, got %q", km.Key)
	}
	if !km.Time.Equal(ts) {
		t.Fatalf("expected timestamp to be kept")
	}
	found := map[string]string{}
	for _, h := range km.Headers {
		found[h.Key] = string(h.Value)
	}
	if found[headerID] != "evt-1" {
		t.Fatalf("expected id header, got %v", found)
	}
	if found["event"] != "duel.finished" {
		t.Fatalf("expected custom header, got %v", found)
	}
}

func TestToKafkaMessageFallsBackToIDKey(t *testing.T) {
	km := toKafkaMessage("t", &Message{ID: "abc"})
	if string(km.Key) != "abc" {
		t.Fatalf("expected id as key, got %q", km.Key)
	}
	if km.Time.IsZero() {
		t.Fatalf("expected timestamp to be stamped")
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]kafka.Compression{
		"gzip":  kafka.Gzip,
		"ZSTD":  kafka.Zstd,
		"lz4":   kafka.Lz4,
		"":      kafka.Compression(0),
		"bogus": kafka.Compression(0),
	}
	for raw, want := range cases {
		if got := parseCompression(raw); got != want {
			t.Fatalf("parseCompression(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestPingUnreachableBroker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	producer, err := NewKafkaProducer(KafkaConfig{Brokers: []string{addr}, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := producer.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail for a closed broker address")
	}
}
