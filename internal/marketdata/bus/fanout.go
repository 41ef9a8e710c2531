// Package bus distributes decisions from the pipeline to slow consumers.
package bus

import (
	"context"
	"sync"

	"trading-signalv1/internal/model"
)

// FanOut broadcasts decisions to N named subscriber channels. If a
// subscriber's channel is full the decision is dropped for that subscriber
// only, so a slow sink never blocks the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	outputs []subscriber
	bufSize int
	closed  bool

	// OnDrop is called when a decision is dropped for a subscriber.
	OnDrop func(name string, d model.Decision)
}

type subscriber struct {
	name string
	ch   chan model.Decision
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe creates and returns a new output channel.
func (f *FanOut) Subscribe(name string) <-chan model.Decision {
	ch := make(chan model.Decision, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, subscriber{name: name, ch: ch})
	f.mu.Unlock()
	return ch
}

// Attach subscribes sink and drains its channel in a goroutine until ctx is
// cancelled or the FanOut is closed. Publish errors go to onErr.
func (f *FanOut) Attach(ctx context.Context, sink model.DecisionSink, onErr func(sink string, err error)) *sync.WaitGroup {
	ch := f.Subscribe(sink.Name())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-ch:
				if !ok {
					return
				}
				if err := sink.Publish(ctx, d); err != nil && onErr != nil {
					onErr(sink.Name(), err)
				}
			}
		}
	}()
	return &wg
}

// Broadcast offers d to every subscriber without blocking.
func (f *FanOut) Broadcast(d model.Decision) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, s := range f.outputs {
		select {
		case s.ch <- d:
		default:
			if f.OnDrop != nil {
				f.OnDrop(s.name, d)
			}
		}
	}
}

// Close closes every subscriber channel. Later broadcasts are ignored.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.outputs {
		close(s.ch)
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Name string `json:"name"`
	Len  int    `json:"len"`
	Cap  int    `json:"cap"`
}

// ChannelStats returns the fill level of each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, s := range f.outputs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
