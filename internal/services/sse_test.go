package services

import (
	"testing"
	"time"

	"github.com/freelancehub/backend/internal/models"
)

func TestSSEHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewSSEHub()
	if hub.ClientCount() != 0 {
		t.Fatalf("new hub should have 0 clients, got %d", hub.ClientCount())
	}

	hub.Subscribe("c1", "user-1")
	hub.Subscribe("c2", "user-2")
	if hub.ClientCount() != 2 {
		t.Fatalf("expected 2 clients, got %d", hub.ClientCount())
	}

	hub.Unsubscribe("c1")
	hub.Unsubscribe("nonexistent")
	if hub.ClientCount() != 1 {
		t.Errorf("expected 1 client after unsubscribe, got %d", hub.ClientCount())
	}
}

func TestSSEHub_PublishRoutesToRecipient(t *testing.T) {
	hub := NewSSEHub()
	mine := hub.Subscribe("c1", "user-1")
	other := hub.Subscribe("c2", "user-2")

	hub.Publish(&models.Notification{
		Base:    models.Base{ID: "n-1"},
		UserID:  "user-1",
		Type:    models.NotifyInvoiceCreated,
		Title:   "Invoice",
		Message: "INV-202601-0001",
	})

	select {
	case ev := <-mine:
		if ev.ID != "n-1" || ev.Type != models.NotifyInvoiceCreated {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timed out waiting for event")
	}

	select {
	case ev := <-other:
		t.Errorf("other user received %+v", ev)
	default:
	}
}

func TestSSEHub_SameUserMultipleStreams(t *testing.T) {
	hub := NewSSEHub()
	ch1 := hub.Subscribe("tab-1", "user-1")
	ch2 := hub.Subscribe("tab-2", "user-1")

	hub.Publish(&models.Notification{Base: models.Base{ID: "n-2"}, UserID: "user-1"})

	for i, ch := range []<-chan NotificationEvent{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.ID != "n-2" {
				t.Errorf("stream %d: ID = %q", i+1, ev.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Errorf("stream %d: timed out", i+1)
		}
	}
}

func TestSSEHub_NonBlockingPublish(t *testing.T) {
	hub := NewSSEHub()
	hub.Subscribe("slow", "user-1")

	for i := 0; i < 200; i++ {
		hub.Publish(&models.Notification{UserID: "user-1"})
	}
}

func TestGetSSEHub_Singleton(t *testing.T) {
	if GetSSEHub() != GetSSEHub() {
		t.Error("GetSSEHub should return the same instance")
	}
}
