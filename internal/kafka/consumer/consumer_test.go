package consumer

import (
	"context"
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, "group", zerolog.Nop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := New([]string{"localhost:9092"}, "", zerolog.Nop()); err == nil {
		t.Fatalf("expected error without group id")
	}
}

func TestCommitRequiresSession(t *testing.T) {
	c := &Consumer{}
	if err := c.Commit(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
	if err := c.Commit(context.Background(), &Record{Topic: "leads.requests"}); err == nil {
		t.Fatalf("expected error for record without session")
	}
}

func TestFromHeaders(t *testing.T) {
	value := []byte("abc")
	got := fromHeaders([]*sarama.RecordHeader{
		{Key: []byte("idempotency_key"), Value: value},
		{Key: nil, Value: []byte("ignored")},
		nil,
	})
	value[0] = 'X'
	if len(got) != 1 || string(got["idempotency_key"]) != "abc" {
		t.Fatalf("unexpected headers %v", got)
	}
	if fromHeaders(nil) != nil {
		t.Fatalf("expected nil for no headers")
	}
}

func TestDefaultConfigDisablesAutoCommit(t *testing.T) {
	cfg := defaultConfig()
	if cfg.Consumer.Offsets.AutoCommit.Enable {
		t.Fatalf("offsets must be committed manually")
	}
	clone := cloneConfig(cfg)
	clone.ClientID = "other"
	if cfg.ClientID == "other" {
		t.Fatalf("cloneConfig must not alias the original")
	}
}
