package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/freelancehub/backend/internal/config"
	"github.com/hibiken/asynq"
)

func TestTaskTypeEffect_Constant(t *testing.T) {
	if TaskTypeEffect != "effect:run" {
		t.Errorf("TaskTypeEffect = %q, expected %q", TaskTypeEffect, "effect:run")
	}
}

func TestEffect_PayloadRoundTrip(t *testing.T) {
	effect := Effect{
		Kind:      EffectInvoicePDF,
		InvoiceID: "inv-1",
		EmailTo:   "client@example.com",
	}

	payload, err := json.Marshal(effect)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Effect
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != "invoice document inv-1" {
		t.Errorf("String() = %q", decoded.String())
	}
	if decoded.Email != nil || decoded.Audit != nil {
		t.Error("unset parts should stay nil")
	}
}

func TestSyncQueue_RunsProcessorInline(t *testing.T) {
	q := NewSyncQueue()
	if q.IsAsync() {
		t.Error("SyncQueue should not be async")
	}

	// no processor: dropped without error
	if err := q.Enqueue(context.Background(), &Effect{Kind: EffectAudit}); err != nil {
		t.Errorf("Enqueue without processor returned %v", err)
	}

	var seen []string
	q.SetProcessor(func(_ context.Context, e *Effect) error {
		seen = append(seen, e.Kind)
		if e.Kind == EffectEmail {
			return errors.New("smtp down")
		}
		return nil
	})

	if err := q.Enqueue(context.Background(), &Effect{Kind: EffectNotify}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := q.Enqueue(context.Background(), &Effect{Kind: EffectEmail}); err == nil {
		t.Error("processor error should be returned")
	}
	if len(seen) != 2 {
		t.Errorf("processor called %d times, expected 2", len(seen))
	}
	if err := q.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestWorker_HandleEffectTask(t *testing.T) {
	w := &Worker{}
	var got *Effect
	w.SetProcessor(func(_ context.Context, e *Effect) error {
		got = e
		return nil
	})

	payload, _ := json.Marshal(Effect{Kind: EffectContractPDF, ContractID: "c-1"})
	if err := w.handleEffectTask(context.Background(), asynq.NewTask(TaskTypeEffect, payload)); err != nil {
		t.Fatalf("handleEffectTask: %v", err)
	}
	if got == nil || got.ContractID != "c-1" {
		t.Errorf("processor got %+v", got)
	}

	if err := w.handleEffectTask(context.Background(), asynq.NewTask(TaskTypeEffect, []byte("{"))); err == nil {
		t.Error("malformed payload should fail")
	}
}

func TestNewWorker_DisabledRedis(t *testing.T) {
	if w := NewWorker(&config.RedisConfig{Enabled: false}); w != nil {
		t.Error("worker should be nil when Redis is disabled")
	}
}
