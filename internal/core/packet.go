// Package core defines the data structures shared by every decode stage:
// the pooled Packet, the Payload cursor, typed parameter Values and the
// per-packet Property record.
package core

import "time"

// Packet owns one captured link-layer frame. Packets are pool-allocated
// by the channel; a packet is only ever touched by the goroutine that
// currently holds it.
type Packet struct {
	buf     []byte
	capLen  int
	wireLen int
	ts      time.Time
}

// Store copies a captured frame into the packet, reusing the internal
// buffer across pool round-trips.
func (p *Packet) Store(data []byte, capLen, wireLen int, ts time.Time) {
	p.buf = append(p.buf[:0], data...)
	p.capLen = capLen
	p.wireLen = wireLen
	p.ts = ts
}

// Data returns the captured bytes.
func (p *Packet) Data() []byte { return p.buf }

// CapLen returns the number of bytes actually captured.
func (p *Packet) CapLen() int { return p.capLen }

// WireLen returns the original frame length on the wire.
func (p *Packet) WireLen() int { return p.wireLen }

// Timestamp returns the capture timestamp.
func (p *Packet) Timestamp() time.Time { return p.ts }
