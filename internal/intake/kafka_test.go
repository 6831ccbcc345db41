package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/engine"
	"github.com/example/c2s-leadsync/internal/kafka/consumer"
)

type recordingSubmitter struct {
	got    []engine.Submission
	result engine.Outcome
	cancel context.CancelFunc
}

func (r *recordingSubmitter) Submit(_ context.Context, sub engine.Submission) engine.Outcome {
	r.got = append(r.got, sub)
	if r.cancel != nil {
		r.cancel()
	}
	return r.result
}

type commitCounter struct {
	commits int
}

func (c *commitCounter) handler() CommitFunc {
	return func(context.Context, *consumer.Record) error {
		c.commits++
		return nil
	}
}

func TestKafkaHandlerSubmitsAndCommits(t *testing.T) {
	sub := &recordingSubmitter{result: engine.Outcome{LeadResult: crm.LeadResult{Success: true, LeadID: "1"}}}
	commits := &commitCounter{}
	handle := KafkaHandler(sub, commits.handler(), zerolog.Nop())

	rec := &consumer.Record{Topic: "leads.requests", Value: []byte(`{"lead":{"name":"Maria Silva","phone":"48999991234"},"property":{"code":"AP-1"}}`)}
	if err := handle(context.Background(), rec); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(sub.got) != 1 || sub.got[0].Lead.Name != "Maria Silva" || sub.got[0].Property.Code != "AP-1" {
		t.Fatalf("unexpected submissions %+v", sub.got)
	}
	if commits.commits != 1 {
		t.Fatalf("expected one commit, got %d", commits.commits)
	}
}

func TestKafkaHandlerDropsUndecodableRecords(t *testing.T) {
	sub := &recordingSubmitter{}
	commits := &commitCounter{}
	handle := KafkaHandler(sub, commits.handler(), zerolog.Nop())

	for _, body := range []string{`not json`, `{}`, `{"lead":{}}`, `[]`} {
		if err := handle(context.Background(), &consumer.Record{Value: []byte(body)}); err != nil {
			t.Fatalf("%s: handler: %v", body, err)
		}
	}
	if len(sub.got) != 0 {
		t.Fatalf("expected nothing submitted, got %+v", sub.got)
	}
	if commits.commits != 4 {
		t.Fatalf("expected poison records to be committed, got %d", commits.commits)
	}
}

func TestKafkaHandlerLeavesRecordOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &recordingSubmitter{cancel: cancel, result: engine.Outcome{LeadResult: crm.LeadResult{Message: "cancelado"}}}
	commits := &commitCounter{}
	handle := KafkaHandler(sub, commits.handler(), zerolog.Nop())

	err := handle(ctx, &consumer.Record{Value: []byte(`{"name":"Ana"}`)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if commits.commits != 0 {
		t.Fatalf("record must stay uncommitted")
	}
}

func TestDecodeSubmissionBareLead(t *testing.T) {
	sub, err := DecodeSubmission([]byte(`{"name":"Ana","intent":"rent","propertyCode":"CA-2"}`))
	if err != nil {
		t.Fatalf("DecodeSubmission: %v", err)
	}
	if sub.Lead.Name != "Ana" || sub.Lead.PropertyCode != "CA-2" || sub.Property != nil {
		t.Fatalf("unexpected submission %+v", sub)
	}
}
