package tickfeed

import (
	"context"
	"log/slog"
	"sync"

	"chartengine/internal/model"
)

// FanOut broadcasts ticks from a single input channel to N output
// channels. If an output channel is full, the tick is dropped for that
// consumer to prevent a slow session from blocking the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Tick
	bufSize int
	log     *slog.Logger

	// OnDrop is called when a tick is dropped for a subscriber.
	// subscriberIdx is the 0-based index of the slow consumer.
	OnDrop func(subscriberIdx int)
}

// NewFanOut creates a FanOut with the given buffer size for output channels.
func NewFanOut(outputBufferSize int, log *slog.Logger) *FanOut {
	if log == nil {
		log = slog.Default()
	}
	return &FanOut{bufSize: outputBufferSize, log: log}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe() <-chan model.Tick {
	ch := make(chan model.Tick, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
// Safe to call while Run is active.
func (f *FanOut) Unsubscribe(sub <-chan model.Tick) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ch := range f.outputs {
		if ch == sub {
			f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Tick) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- tick:
				default:
					if f.OnDrop != nil {
						f.OnDrop(i)
					} else {
						f.log.Warn("subscriber channel full, dropping tick", "subscriber", i, "symbol", tick.Symbol)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat reports (length, capacity) for one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats returns saturation stats for every subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
