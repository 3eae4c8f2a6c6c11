// Package kernel runs the consumer side of the engine: it pulls packets
// off the channel, drives the decoder, and fans fired events out to
// registered handlers.
package kernel

import (
	"sync/atomic"

	"firestige.xyz/strix/internal/channel"
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
	"firestige.xyz/strix/internal/metrics"
)

// Callback receives the property of the packet that fired the event.
// It must not retain the property past return and must not block.
type Callback func(prop *core.Property)

// HandlerID identifies a registered handler. HandlerNone is returned
// from On for unknown event names.
type HandlerID uint64

const HandlerNone HandlerID = 0

type entry struct {
	id      HandlerID
	cb      Callback
	ev      core.EventID
	cleared atomic.Bool
}

// Kernel owns one channel and one decoder and dispatches events.
// Handlers for one event fire in registration order; cleared handlers
// are tombstoned in place and compacted lazily.
type Kernel struct {
	ch  *channel.Channel[core.Packet]
	dec *decoder.Decoder

	recvPkt  atomic.Uint64
	recvSize atomic.Uint64

	handlers   [][]*entry
	handlerMap map[HandlerID]*entry
	nextID     uint64
}

// New wires a kernel to its channel and decoder. The decoder must be
// fully set up; the event table size is fixed from here on.
func New(ch *channel.Channel[core.Packet], dec *decoder.Decoder) *Kernel {
	return &Kernel{
		ch:         ch,
		dec:        dec,
		handlers:   make([][]*entry, dec.Registry().EventSize()),
		handlerMap: make(map[HandlerID]*entry),
	}
}

// On registers a callback for a named event and returns its handler id,
// HandlerNone when the event name is unknown. Registration from inside
// a handler takes effect no earlier than the next event.
func (k *Kernel) On(eventName string, cb Callback) HandlerID {
	eid := k.dec.Registry().LookupEventID(eventName)
	if eid == core.EventNone {
		return HandlerNone
	}
	k.nextID++
	e := &entry{id: HandlerID(k.nextID), cb: cb, ev: eid}
	k.handlerMap[e.id] = e
	k.handlers[eid] = append(k.handlers[eid], e)
	return e.id
}

// Clear unregisters a handler. Returns false when the id is unknown.
// The entry is tombstoned immediately and swept from the per-event list
// on the next dispatch of that event.
func (k *Kernel) Clear(hid HandlerID) bool {
	e, ok := k.handlerMap[hid]
	if !ok {
		return false
	}
	delete(k.handlerMap, hid)
	e.cleared.Store(true)
	return true
}

// RecvPkt returns the number of packets processed.
func (k *Kernel) RecvPkt() uint64 { return k.recvPkt.Load() }

// RecvSize returns the number of captured bytes processed.
func (k *Kernel) RecvSize() uint64 { return k.recvSize.Load() }

// Run is the consumer loop. It exits when the channel closes and
// drains. Everything below Pull is non-blocking; a handler that blocks
// stalls the pipeline by design.
func (k *Kernel) Run() {
	var pd core.Payload
	prop := core.NewProperty(k.dec.Registry().ParamSize())

	for {
		pkt := k.ch.Pull()
		if pkt == nil {
			return
		}

		k.recvPkt.Add(1)
		k.recvSize.Add(uint64(pkt.CapLen()))
		metrics.PacketsTotal.Inc()
		metrics.BytesTotal.Add(float64(pkt.CapLen()))

		prop.Init(pkt)
		pd.Reset(pkt)
		k.dec.Decode(&pd, prop)

		// Events fire in push order; the event count is pinned before
		// dispatch so a handler firing events cannot extend this
		// packet's walk.
		evSize := prop.EventIdx()
		for i := 0; i < evSize; i++ {
			k.dispatch(prop.Event(i), prop)
		}

		k.ch.Release(pkt)
	}
}

func (k *Kernel) dispatch(eid core.EventID, prop *core.Property) {
	// Pin the list length: handlers registered during this event become
	// visible at the next event.
	list := k.handlers[eid]
	n := len(list)
	swept := false
	for i := 0; i < n; i++ {
		e := list[i]
		if e.cleared.Load() {
			swept = true
			continue
		}
		e.cb(prop)
	}
	if swept {
		k.sweep(eid)
	}
	metrics.EventsTotal.WithLabelValues(k.dec.Registry().EventName(eid)).Inc()
}

// sweep drops tombstoned entries from one event list.
func (k *Kernel) sweep(eid core.EventID) {
	list := k.handlers[eid]
	kept := list[:0]
	for _, e := range list {
		if !e.cleared.Load() {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(list); i++ {
		list[i] = nil
	}
	k.handlers[eid] = kept
}
