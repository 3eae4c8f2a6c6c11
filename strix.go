// Package strix is a streaming packet dissection engine. A capture
// producer feeds raw frames into a bounded channel; a single decoder
// goroutine walks the protocol module chain, tracks TCP sessions, and
// fires named events to registered handlers.
//
// Minimal embedding:
//
//	m, _ := strix.New()
//	m.On("established", func(p *strix.Property) { ... })
//	m.Start()
//	// producer side
//	pkt := m.Retain()
//	pkt.Store(frame, len(frame), len(frame), ts)
//	m.Push(pkt)
//	m.Close()
package strix

import (
	"fmt"
	"sync"

	"firestige.xyz/strix/internal/channel"
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
	"firestige.xyz/strix/internal/kernel"

	// Built-in protocol modules register themselves at init.
	_ "firestige.xyz/strix/internal/modules"
)

// Property is the per-packet record handed to event handlers. Handlers
// must not retain it past return.
type Property = core.Property

// Packet is one pooled capture frame.
type Packet = core.Packet

// Callback is an event handler.
type Callback = kernel.Callback

// HandlerID identifies a registered handler.
type HandlerID = kernel.HandlerID

// Config tunes the engine.
type Config struct {
	// ChannelCapacity bounds the producer/consumer queue. Zero means
	// the default (64).
	ChannelCapacity int
}

// Machine is the assembled engine: channel, decoder chain and kernel.
type Machine struct {
	reg  *decoder.Registry
	dec  *decoder.Decoder
	ch   *channel.Channel[core.Packet]
	kern *kernel.Kernel

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// New assembles a machine with the built-in module set and default
// configuration.
func New() (*Machine, error) {
	return NewWithConfig(Config{})
}

// NewWithConfig assembles a machine with the built-in module set.
func NewWithConfig(cfg Config) (*Machine, error) {
	reg := decoder.NewRegistry()
	if err := reg.RegisterDefaults(); err != nil {
		return nil, err
	}
	if err := reg.Setup(); err != nil {
		return nil, err
	}
	dec, err := decoder.NewDecoder(reg, "ethernet")
	if err != nil {
		return nil, err
	}

	capacity := cfg.ChannelCapacity
	if capacity == 0 {
		capacity = channel.DefaultCapacity
	}
	ch := channel.NewWithCapacity[core.Packet](capacity)

	return &Machine{
		reg:  reg,
		dec:  dec,
		ch:   ch,
		kern: kernel.New(ch, dec),
	}, nil
}

// On registers a handler for a named event, e.g. "new_session",
// "established" or "closed". Register before Start, or from inside a
// handler; the kernel goroutine owns the handler tables while running.
func (m *Machine) On(event string, cb Callback) (HandlerID, error) {
	hid := m.kern.On(event, cb)
	if hid == kernel.HandlerNone {
		return kernel.HandlerNone, fmt.Errorf("strix: unknown event %q", event)
	}
	return hid, nil
}

// Clear unregisters a handler. Returns false for an unknown id.
func (m *Machine) Clear(hid HandlerID) bool {
	return m.kern.Clear(hid)
}

// LookupParam resolves a qualified parameter name such as "tcp.data",
// for reading values off the Property inside handlers.
func (m *Machine) LookupParam(name string) *core.ParamDef {
	return m.reg.LookupParam(name)
}

// Start launches the kernel goroutine. Idempotent.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.kern.Run()
	}()
}

// Retain hands the producer a writable packet from the pool.
func (m *Machine) Retain() *Packet { return m.ch.Retain() }

// Push enqueues a filled packet, blocking while the queue is full.
func (m *Machine) Push(pkt *Packet) { m.ch.Push(pkt) }

// Channel exposes the raw packet channel for capture sources.
func (m *Machine) Channel() *channel.Channel[core.Packet] { return m.ch }

// Close ends the stream: the kernel drains the queue and exits. Safe to
// call once from the producer side.
func (m *Machine) Close() {
	m.ch.Close()
	m.wg.Wait()
}

// RecvPkt returns the number of packets the kernel has processed.
func (m *Machine) RecvPkt() uint64 { return m.kern.RecvPkt() }

// RecvSize returns the number of captured bytes the kernel has
// processed.
func (m *Machine) RecvSize() uint64 { return m.kern.RecvSize() }
