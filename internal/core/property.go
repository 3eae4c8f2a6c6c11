package core

import "time"

type valueSlot struct {
	val *Value
	gen uint64
}

// Property is the per-packet scratch record every module writes into
// during a decode pass and every handler reads from afterwards. Slots
// are materialized lazily and invalidated between packets by bumping a
// generation counter, so the steady state allocates nothing.
type Property struct {
	pkt *Packet
	ts  time.Time

	srcAddr []byte
	dstAddr []byte
	srcPort uint16
	dstPort uint16

	slots  []valueSlot
	gen    uint64
	events []EventID
}

// NewProperty returns a Property sized for paramCount slots. The slot
// table still grows on demand if more parameters are defined later.
func NewProperty(paramCount int) *Property {
	return &Property{slots: make([]valueSlot, paramCount)}
}

// Init binds the property to a packet and resets all per-packet state.
func (p *Property) Init(pkt *Packet) {
	p.pkt = pkt
	p.ts = pkt.Timestamp()
	p.srcAddr = nil
	p.dstAddr = nil
	p.srcPort = 0
	p.dstPort = 0
	p.gen++
	p.events = p.events[:0]
}

// Packet returns the packet under decode.
func (p *Property) Packet() *Packet { return p.pkt }

// Timestamp returns the capture timestamp of the packet under decode.
func (p *Property) Timestamp() time.Time { return p.ts }

// RetainValue returns the mutable slot for def, creating it on first
// touch and clearing it on first touch of a new packet.
func (p *Property) RetainValue(def *ParamDef) *Value {
	idx := int(def.ID())
	for idx >= len(p.slots) {
		p.slots = append(p.slots, valueSlot{})
	}
	s := &p.slots[idx]
	if s.val == nil {
		s.val = def.factory()
	}
	if s.gen != p.gen {
		s.val.clear()
		s.gen = p.gen
	}
	return s.val
}

// Value returns the slot for def if a module touched it during this
// packet's decode, nil otherwise.
func (p *Property) Value(def *ParamDef) *Value {
	idx := int(def.ID())
	if idx < 0 || idx >= len(p.slots) {
		return nil
	}
	s := &p.slots[idx]
	if s.val == nil || s.gen != p.gen {
		return nil
	}
	return s.val
}

// PushEvent appends an event to the packet's fired-event list.
func (p *Property) PushEvent(def *EventDef) {
	p.events = append(p.events, def.ID())
}

// EventIdx returns the number of events fired so far.
func (p *Property) EventIdx() int { return len(p.events) }

// Event returns the i-th fired event id.
func (p *Property) Event(i int) EventID { return p.events[i] }

// SetSrcAddr records the network-layer source address. The view points
// into the packet buffer; consumers needing it past the decode pass
// must copy.
func (p *Property) SetSrcAddr(a []byte) { p.srcAddr = a }

// SetDstAddr records the network-layer destination address.
func (p *Property) SetDstAddr(a []byte) { p.dstAddr = a }

// SetSrcPort records the transport-layer source port.
func (p *Property) SetSrcPort(port uint16) { p.srcPort = port }

// SetDstPort records the transport-layer destination port.
func (p *Property) SetDstPort(port uint16) { p.dstPort = port }

func (p *Property) SrcAddr() []byte { return p.srcAddr }
func (p *Property) DstAddr() []byte { return p.dstAddr }
func (p *Property) SrcPort() uint16 { return p.srcPort }
func (p *Property) DstPort() uint16 { return p.dstPort }
