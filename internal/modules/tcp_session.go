package modules

import (
	"time"

	"firestige.xyz/strix/internal/core"
)

// sessionStatus tracks the 3-way-handshake and close progress of one
// bidirectional flow.
//
//	-- Client -------------- Server --
//	    |      ---(SYN)--->     |      => statusSynSent
//	    |      <-(SYN|ACK)-     |      => statusSynAckSent
//	    |      ---(ACK)--->     |      => statusEstablished
//	    |      --- (FIN) -->    |      => statusClosing
//	    |      <-- (FIN) ---    |      => statusClosed
type sessionStatus int

const (
	statusNone sessionStatus = iota
	statusSynSent
	statusSynAckSent
	statusEstablished
	statusClosing
	statusClosed
)

// segment is one out-of-order payload parked until the gap before it
// closes. Arrivals at the same relative sequence chain in order.
type segment struct {
	data  []byte
	seq   uint32
	flags uint8
	next  *segment
	tail  *segment
}

func newSegment(data []byte, seq uint32, flags uint8) *segment {
	s := &segment{
		data:  append([]byte(nil), data...),
		seq:   seq,
		flags: flags,
	}
	s.tail = s
	return s
}

func (s *segment) append(other *segment) {
	s.tail.next = other
	s.tail = other
}

// stream is one direction of a TCP flow.
type stream struct {
	addr []byte
	port uint16

	hasBaseSeq bool
	baseSeq    uint32
	nextSeq    uint32
	ack        uint32
	winSize    uint32
	txSize     uint64
}

func newStream(addr []byte, port uint16) *stream {
	return &stream{addr: append([]byte(nil), addr...), port: port}
}

func (s *stream) isSrc(prop *core.Property) bool {
	return s.match(prop.SrcAddr(), prop.SrcPort())
}

func (s *stream) match(addr []byte, port uint16) bool {
	if s.port != port || len(s.addr) != len(addr) {
		return false
	}
	for i := range addr {
		if s.addr[i] != addr[i] {
			return false
		}
	}
	return true
}

// inWindow is a stub pending window-scale option tracking.
func (s *stream) inWindow(seq uint32) bool {
	return true
}

func (s *stream) toRelSeq(seq uint32) uint32 {
	// Sequence numbers are modular 2^32; uint32 subtraction wraps.
	return seq - s.baseSeq
}

func (s *stream) setBaseSeq(seq uint32, segLen int) {
	s.hasBaseSeq = true
	s.baseSeq = seq
	s.nextSeq = 1 + uint32(segLen)
}

func (s *stream) incSeq(step uint32) {
	s.nextSeq += step
}

// send validates the sender-side sequence. Until the direction has a
// base sequence (SYN not yet seen) everything is accepted. In-order
// segments advance nextSeq; anything else is out-of-order and the
// caller parks it.
func (s *stream) send(flags uint8, seq, ack uint32, dataLen int) bool {
	if !s.hasBaseSeq {
		return true
	}
	relSeq := seq - s.baseSeq
	if s.nextSeq != relSeq {
		return false
	}
	s.nextSeq += uint32(dataLen)
	s.txSize += uint64(dataLen)
	return true
}

func (s *stream) recv(ack, winSize uint32) {
	s.ack = ack
	s.winSize = winSize
}

// session is one tracked bidirectional TCP flow. Owned by the module's
// LRU table; ownership moves to the expiry drain on timeout.
type session struct {
	mod *tcp
	id  uint64

	status  sessionStatus
	client  *stream
	server  *stream
	closing *stream

	tsInit time.Time
	tsEstb time.Time
	rtt    time.Duration

	buf    []byte
	segMap map[uint32]*segment
}

// newSession starts tracking the flow of the current packet. The packet
// source becomes the client side.
func newSession(prop *core.Property, mod *tcp, id uint64) *session {
	return &session{
		mod:    mod,
		id:     id,
		status: statusNone,
		client: newStream(prop.SrcAddr(), prop.SrcPort()),
		server: newStream(prop.DstAddr(), prop.DstPort()),
		segMap: make(map[uint32]*segment),
	}
}

// transState applies one packet's distilled flags to the state machine
// and returns the freshly entered status, statusNone when nothing
// changed.
func (s *session) transState(flags uint8, sender *stream, seq uint32, segLen int, ts time.Time) sessionStatus {
	newStatus := statusNone

	switch s.status {
	case statusNone:
		if flags == flagSYN && sender == s.client {
			s.status = statusSynSent
			newStatus = s.status
			s.tsInit = ts
			sender.setBaseSeq(seq, segLen)
		}

	case statusSynSent:
		if flags == flagSYN|flagACK && sender == s.server {
			s.status = statusSynAckSent
			newStatus = s.status
			sender.setBaseSeq(seq, segLen)
		}

	case statusSynAckSent:
		if flags == flagACK && sender == s.client {
			s.status = statusEstablished
			newStatus = s.status
			s.tsEstb = ts
			s.rtt = s.tsEstb.Sub(s.tsInit)
		}

	case statusEstablished:
		if flags&flagFIN > 0 {
			s.status = statusClosing
			newStatus = s.status
			s.closing = sender
			// FIN consumes one sequence number.
			sender.incSeq(1)
		}

	case statusClosing:
		if flags&flagFIN > 0 && s.closing != sender {
			s.status = statusClosed
			newStatus = s.status
			sender.incSeq(1)
		}

	case statusClosed:
		// pass
	}

	return newStatus
}

// decodeStream validates one segment against the sender stream, fires
// state-machine events, exposes in-order data and drains any parked
// segments the advance uncovered. Parked segments re-enter here so the
// state machine sees them in sequence order.
func (s *session) decodeStream(prop *core.Property, flags uint8, seq, ack uint32,
	segData []byte, winSize uint16, sender, recver *stream) bool {

	if !sender.send(flags, seq, ack, len(segData)) {
		if sender.inWindow(seq) {
			relSeq := sender.toRelSeq(seq)
			seg := newSegment(segData, seq, flags)
			if head, ok := s.segMap[relSeq]; ok {
				head.append(seg)
			} else {
				s.segMap[relSeq] = seg
			}
		}
		return false
	}
	recver.recv(ack, uint32(winSize))

	switch s.transState(flags, sender, seq, len(segData), prop.Timestamp()) {
	case statusEstablished:
		prop.PushEvent(s.mod.evEstb)
		us := uint32(s.rtt.Microseconds())
		prop.RetainValue(s.mod.pRtt3wh).PutUint32(us, core.Little)
	case statusClosed:
		prop.PushEvent(s.mod.evClose)
	}

	if s.buf != nil {
		s.buf = append(s.buf, segData...)
		prop.RetainValue(s.mod.pData).Set(s.buf)
	} else {
		prop.RetainValue(s.mod.pData).Set(segData)
	}

	if len(s.segMap) > 0 {
		if head, ok := s.segMap[sender.nextSeq]; ok {
			if s.buf == nil {
				s.buf = append(s.buf, segData...)
			}
			delete(s.segMap, sender.nextSeq)
			for tgt := head; tgt != nil; tgt = tgt.next {
				s.decodeStream(prop, tgt.flags, tgt.seq, ack, tgt.data,
					winSize, sender, recver)
			}
		}
	}

	return true
}

// decode processes one packet that belongs to this session.
func (s *session) decode(prop *core.Property, flags uint8, seq, ack uint32,
	segData []byte, winSize uint16) {

	// The reassembly buffer lives for a single packet's walk.
	s.buf = nil

	var sender, recver *stream
	if s.client.isSrc(prop) {
		sender, recver = s.client, s.server
	} else {
		sender, recver = s.server, s.client
	}

	s.decodeStream(prop, flags, seq, ack, segData, winSize, sender, recver)

	txServer := uint32(s.client.txSize) // client to server
	txClient := uint32(s.server.txSize) // server to client
	prop.RetainValue(s.mod.pTxServer).PutUint32(txServer, core.Little)
	prop.RetainValue(s.mod.pTxClient).PutUint32(txClient, core.Little)
}
