package trades

import (
	"encoding/json"
	"testing"
	"time"

	"chartengine/internal/model"
)

func TestDispatchRoutesLifecycleEvents(t *testing.T) {
	var got []model.TradeEvent
	s := NewSubscriber(nil, nil)
	s.OnEvent = func(ev model.TradeEvent) { got = append(got, ev) }

	placed := model.TradeEvent{
		Kind: model.TradePlaced, ID: "trd-1", Symbol: "BTCUSD",
		TS: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Price: 67000, Direction: model.TradeUp, Amount: 50,
	}
	settled := placed
	settled.Kind = model.TradeSettled
	settled.Price = 67105
	settled.Profit = 40

	for _, ev := range []model.TradeEvent{placed, settled} {
		payload, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		s.dispatch(payload)
	}

	if len(got) != 2 {
		t.Fatalf("dispatched = %d, want 2", len(got))
	}
	if got[0].Kind != model.TradePlaced || got[0].Price != 67000 {
		t.Fatalf("placed event = %+v", got[0])
	}
	if got[1].Kind != model.TradeSettled || got[1].Profit != 40 {
		t.Fatalf("settled event = %+v", got[1])
	}
}

func TestDispatchDropsMalformedPayload(t *testing.T) {
	s := NewSubscriber(nil, nil)
	s.OnEvent = func(model.TradeEvent) { t.Fatal("malformed payload was dispatched") }

	s.dispatch([]byte(`{not json`))
}

func TestDispatchDropsUnknownKind(t *testing.T) {
	s := NewSubscriber(nil, nil)
	s.OnEvent = func(model.TradeEvent) { t.Fatal("unknown kind was dispatched") }

	s.dispatch([]byte(`{"kind":"cancelled","id":"trd-2","symbol":"BTCUSD"}`))
}
