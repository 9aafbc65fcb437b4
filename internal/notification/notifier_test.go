package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chartengine/internal/model"
)

func TestWebhookDeliversAlert(t *testing.T) {
	got := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode: %v", err)
		}
		got <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(nil, NewWebhookNotifier(srv.URL))
	d.Notify(model.PriceAlert{
		ID:        "alr-1",
		Symbol:    "BTCUSD",
		Price:     68000,
		Direction: model.AlertAbove,
	})

	select {
	case payload := <-got:
		if payload["symbol"] != "BTCUSD" {
			t.Fatalf("symbol = %v", payload["symbol"])
		}
		if payload["direction"] != "above" {
			t.Fatalf("direction = %v", payload["direction"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
}

func TestWebhookRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), model.PriceAlert{Symbol: "BTCUSD", Price: 1})
	if err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestAlertText(t *testing.T) {
	above := alertText(model.PriceAlert{Symbol: "ETHUSD", Price: 3500, Direction: model.AlertAbove})
	if above != "ETHUSD rose above 3500.00" {
		t.Fatalf("above text = %q", above)
	}
	below := alertText(model.PriceAlert{Symbol: "ETHUSD", Price: 3400, Direction: model.AlertBelow})
	if below != "ETHUSD fell below 3400.00" {
		t.Fatalf("below text = %q", below)
	}
}
