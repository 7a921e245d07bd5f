package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	goredis "github.com/redis/go-redis/v9"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(SeverityError, "Error updating usage.")
	if e.Summary != "Error" {
		t.Errorf("Summary = %q, want Error", e.Summary)
	}
	if e.ID == "" || e.Timestamp == "" {
		t.Errorf("event missing id or timestamp: %+v", e)
	}
	if NewEvent(SeveritySuccess, "ok").ID == e.ID {
		t.Error("event ids should be unique")
	}
}

func TestConsoleNotify(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	c := NewConsole(&buf)

	if err := c.Notify(context.Background(), NewEvent(SeveritySuccess, "Job added.")); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(buf.String(), "Success: Job added.") {
		t.Errorf("output = %q", buf.String())
	}
}

type failingNotifier struct{}

func (failingNotifier) Notify(ctx context.Context, e Event) error {
	return errors.New("sink down")
}

func TestMultiTriesEverySink(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()
	defer cancel()

	m := Multi{failingNotifier{}, hub, nil}
	err := m.Notify(context.Background(), NewEvent(SeverityInfo, "hello"))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("Notify() error = %v, want joined sink error", err)
	}

	select {
	case e := <-ch:
		if e.Detail != "hello" {
			t.Errorf("Detail = %q", e.Detail)
		}
	case <-time.After(time.Second):
		t.Fatal("hub subscriber did not receive event")
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	hub := NewHub(1)
	ch, cancel := hub.Subscribe()

	ctx := context.Background()
	hub.Notify(ctx, NewEvent(SeverityInfo, "first"))
	hub.Notify(ctx, NewEvent(SeverityInfo, "second")) // dropped, must not block

	if e := <-ch; e.Detail != "first" {
		t.Errorf("got %q, want first", e.Detail)
	}
	if hub.Count() != 1 {
		t.Errorf("Count() = %d, want 1", hub.Count())
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if hub.Count() != 0 {
		t.Errorf("Count() = %d, want 0", hub.Count())
	}
}

func TestNewRedisPublisher(t *testing.T) {
	tests := []struct {
		name        string
		config      RedisPublisherConfig
		wantErr     bool
		wantChannel string
		wantStream  string
	}{
		{
			name:        "defaults",
			config:      RedisPublisherConfig{RedisURL: "redis://localhost:6379"},
			wantChannel: "capacity:events",
			wantStream:  "capacity:events:stream",
		},
		{
			name:        "overrides",
			config:      RedisPublisherConfig{RedisURL: "redis://localhost:6379", Channel: "c", Stream: "s"},
			wantChannel: "c",
			wantStream:  "s",
		},
		{
			name:    "invalid redis URL",
			config:  RedisPublisherConfig{RedisURL: "not-a-valid-url"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := NewRedisPublisher(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("NewRedisPublisher() should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRedisPublisher() error = %v", err)
			}
			defer pub.Close()

			if pub.PubSubChannel() != tt.wantChannel {
				t.Errorf("PubSubChannel() = %v, want %v", pub.PubSubChannel(), tt.wantChannel)
			}
			if pub.StreamName() != tt.wantStream {
				t.Errorf("StreamName() = %v, want %v", pub.StreamName(), tt.wantStream)
			}
		})
	}
}

func TestRedisPublisherNotify(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	pub, err := NewRedisPublisher(RedisPublisherConfig{RedisURL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisPublisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	ctx := context.Background()
	if err := pub.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { raw.Close() })

	// Subscribe BEFORE publishing (Pub/Sub has no replay)
	sub := raw.Subscribe(ctx, pub.PubSubChannel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}

	event := NewEvent(SeveritySuccess, "Usage updated.")
	event.MachineID = 3
	if err := pub.Notify(ctx, event); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	var got Event
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != event.ID || got.MachineID != 3 {
		t.Errorf("received %+v, want %+v", got, event)
	}

	entries, err := raw.XRange(ctx, pub.StreamName(), "-", "+").Result()
	if err != nil {
		t.Fatalf("XRange: %v", err)
	}
	if len(entries) != 1 || entries[0].Values["id"] != event.ID {
		t.Errorf("stream entries = %+v", entries)
	}
}
