package replay

import (
	"context"
	"testing"
	"time"

	"chartengine/internal/model"
)

func buffer(n int) []model.Candle {
	out := make([]model.Candle, n)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		p := 100 + float64(i)
		out[i] = model.Candle{Symbol: "BTCUSD", TS: base.Add(time.Duration(i) * time.Minute), Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1}
	}
	return out
}

func TestSeek_ClampsToBounds(t *testing.T) {
	e := New(buffer(200), nil)

	e.Seek(-10)
	if e.Index() != 0 {
		t.Errorf("Seek(-10): index = %d, want 0", e.Index())
	}

	e.Seek(1_000_000)
	if want := 200 - DefaultWindowSize; e.Index() != want {
		t.Errorf("Seek(big): index = %d, want %d", e.Index(), want)
	}
}

func TestSeek_ShortBufferClampsToZero(t *testing.T) {
	e := New(buffer(10), nil) // shorter than the window
	e.Seek(5)
	if e.Index() != 0 {
		t.Errorf("index = %d, want 0 for buffer shorter than window", e.Index())
	}
	if got := len(e.Window()); got != 10 {
		t.Errorf("Window() len = %d, want 10", got)
	}
}

func TestWindow_SlidesWithIndex(t *testing.T) {
	e := New(buffer(200), nil)
	e.Seek(7)

	w := e.Window()
	if len(w) != DefaultWindowSize {
		t.Fatalf("window len = %d, want %d", len(w), DefaultWindowSize)
	}
	if w[0].Close != 107 {
		t.Errorf("window[0].Close = %v, want 107", w[0].Close)
	}
}

func TestPlay_AdvancesAndStopsAtEnd(t *testing.T) {
	e := New(buffer(DefaultWindowSize+3), nil) // maxIndex = 3
	steps := make(chan struct{}, 16)
	e.OnStep = func() { steps <- struct{}{} }
	e.SetSpeed(100) // 10ms per step

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.Play(ctx)

	// Expect exactly 3 advancing steps plus the final end-of-buffer notification.
	for i := 0; i < 4; i++ {
		select {
		case <-steps:
		case <-ctx.Done():
			t.Fatalf("timed out waiting for step %d (index=%d)", i, e.Index())
		}
	}

	if e.Index() != 3 {
		t.Errorf("index = %d, want 3 (never past len-windowSize)", e.Index())
	}
	if e.Playing() {
		t.Error("engine should auto-stop at end of buffer")
	}
}

func TestPause_KeepsIndex(t *testing.T) {
	e := New(buffer(200), nil)
	e.Seek(42)
	e.Pause()
	if e.Index() != 42 {
		t.Errorf("index = %d, want 42 after pause", e.Index())
	}

	e.Stop()
	if e.Index() != 0 {
		t.Errorf("index = %d, want 0 after stop", e.Index())
	}
}

func TestProgress_Bounds(t *testing.T) {
	e := New(buffer(150), nil)
	if p := e.Progress(); p != 0 {
		t.Errorf("initial progress = %v, want 0", p)
	}
	e.Seek(1_000_000)
	if p := e.Progress(); p != 1 {
		t.Errorf("end progress = %v, want 1", p)
	}

	empty := New(nil, nil)
	if p := empty.Progress(); p != 1 {
		t.Errorf("empty-buffer progress = %v, want 1", p)
	}
}
