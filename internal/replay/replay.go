// Package replay steps a frozen historical candle buffer forward and
// backward at a configurable rate, substituting for the live aggregator
// while active.
package replay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chartengine/internal/model"
)

// DefaultWindowSize is how many candles each replay frame exposes.
const DefaultWindowSize = 50

// Engine owns a frozen buffer, an index into it, and the single replay
// ticker. The ticker is cancelled on Stop, Seek past the end, or teardown;
// it is never shared with the live-tick path.
type Engine struct {
	log *slog.Logger

	mu         sync.Mutex
	buffer     []model.Candle
	index      int
	windowSize int
	speed      float64
	playing    bool
	cancel     context.CancelFunc

	// OnStep is invoked (outside the lock) after every index change so the
	// session can schedule a redraw.
	OnStep func()
}

// New creates a replay engine over a frozen copy of the given buffer.
func New(buffer []model.Candle, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	frozen := append([]model.Candle(nil), buffer...)
	return &Engine{
		log:        log,
		buffer:     frozen,
		windowSize: DefaultWindowSize,
		speed:      1.0,
	}
}

// Play starts the stepping ticker at 1000/speed ms per step. Restarting
// while already playing replaces the ticker.
func (e *Engine) Play(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	tickCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.playing = true
	speed := e.speed
	e.mu.Unlock()

	go e.run(tickCtx, speed)
}

// Pause stops the ticker but keeps the current index.
func (e *Engine) Pause() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.playing = false
	e.mu.Unlock()
}

// Stop is Pause plus a rewind to the start. Idempotent.
func (e *Engine) Stop() {
	e.Pause()
	e.mu.Lock()
	e.index = 0
	e.mu.Unlock()
}

// SetSpeed changes the playback rate. Applies on the next Play; a running
// ticker is restarted by the caller (the session) to pick it up.
func (e *Engine) SetSpeed(speed float64) {
	if speed <= 0 {
		speed = 1.0
	}
	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()
}

// Seek sets the index directly, clamped to [0, len-windowSize].
func (e *Engine) Seek(index int) {
	e.mu.Lock()
	e.index = e.clampIndex(index)
	e.mu.Unlock()
	e.step()
}

// Playing reports whether the ticker is running.
func (e *Engine) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// Index returns the current position in the frozen buffer.
func (e *Engine) Index() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index
}

// Window returns the windowSize candles starting at the current index.
func (e *Engine) Window() []model.Candle {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.buffer) == 0 {
		return nil
	}
	end := e.index + e.windowSize
	if end > len(e.buffer) {
		end = len(e.buffer)
	}
	return append([]model.Candle(nil), e.buffer[e.index:end]...)
}

// Progress returns playback progress through the buffer in [0,1].
func (e *Engine) Progress() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	max := e.maxIndex()
	if max == 0 {
		return 1
	}
	return float64(e.index) / float64(max)
}

func (e *Engine) run(ctx context.Context, speed float64) {
	interval := time.Duration(float64(time.Second) / speed)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.index >= e.maxIndex() {
				// End of available data: stop automatically rather than
				// windowing past the buffer.
				e.playing = false
				if e.cancel != nil {
					e.cancel()
					e.cancel = nil
				}
				e.mu.Unlock()
				e.log.Info("replay reached end of buffer")
				e.step()
				return
			}
			e.index++
			e.mu.Unlock()
			e.step()
		}
	}
}

func (e *Engine) step() {
	if e.OnStep != nil {
		e.OnStep()
	}
}

// maxIndex returns len - windowSize, floored at 0. Callers hold e.mu.
func (e *Engine) maxIndex() int {
	m := len(e.buffer) - e.windowSize
	if m < 0 {
		return 0
	}
	return m
}

func (e *Engine) clampIndex(i int) int {
	if i < 0 {
		return 0
	}
	if m := e.maxIndex(); i > m {
		return m
	}
	return i
}
