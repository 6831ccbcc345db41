package producer

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rs/zerolog"
)

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := New(nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestPublishSyncTracksReadiness(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"eventType":"lead.synced"}` {
			return errors.New("unexpected payload " + string(val))
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := newProducer(sp, nil, time.Minute, zerolog.Nop())
	if err := p.PublishSync("leads.events", []byte("key"), map[string][]byte{"source": []byte("test")}, []byte(`{"eventType":"lead.synced"}`)); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}
	if !p.IsReady() {
		t.Fatalf("expected producer ready after acknowledged send")
	}

	err := p.PublishSync("leads.events", nil, nil, []byte(`{}`))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
	if p.IsReady() {
		t.Fatalf("expected producer not ready after failed send")
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPublishSyncRequiresTopic(t *testing.T) {
	p := newProducer(mocks.NewSyncProducer(t, nil), nil, time.Minute, zerolog.Nop())
	defer p.Close()
	if err := p.PublishSync("", nil, nil, []byte(`{}`)); err == nil {
		t.Fatalf("expected error for empty topic")
	}
}

func TestToRecordHeadersCopiesValues(t *testing.T) {
	value := []byte("retryable")
	headers := toRecordHeaders(map[string][]byte{"failure_type": value})
	value[0] = 'X'
	if len(headers) != 1 || string(headers[0].Key) != "failure_type" || string(headers[0].Value) != "retryable" {
		t.Fatalf("unexpected headers %+v", headers)
	}
	if toRecordHeaders(nil) != nil {
		t.Fatalf("expected nil headers for empty map")
	}
}
