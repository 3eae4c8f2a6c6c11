package modules

import (
	"bytes"
	"encoding/binary"

	"firestige.xyz/strix/internal/cache"
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/metrics"
)

const tcpHdrLen = 20

const (
	flagFIN  uint8 = 0x01
	flagSYN  uint8 = 0x02
	flagRST  uint8 = 0x04
	flagPUSH uint8 = 0x08
	flagACK  uint8 = 0x10
	flagURG  uint8 = 0x20
	flagECE  uint8 = 0x40
	flagCWR  uint8 = 0x80
)

// sessionTTL is the idle lifetime of a tracked session in seconds. It
// is refreshed on every packet that touches the session.
const sessionTTL = 300

// tcp parses the transport header and runs the session tracker: flow
// identification, handshake state machine, in-order delivery with
// out-of-order buffering, and time-based expiry.
type tcp struct {
	pSrcPort *core.ParamDef
	pDstPort *core.ParamDef
	pSeq     *core.ParamDef
	pAck     *core.ParamDef
	pOffset  *core.ParamDef
	pFlags   *core.ParamDef
	pWindow  *core.ParamDef
	pChksum  *core.ParamDef
	pUrgptr  *core.ParamDef

	pFlagFin  *core.ParamDef
	pFlagSyn  *core.ParamDef
	pFlagRst  *core.ParamDef
	pFlagPush *core.ParamDef
	pFlagAck  *core.ParamDef
	pFlagUrg  *core.ParamDef
	pFlagEce  *core.ParamDef
	pFlagCwr  *core.ParamDef

	pOptdata  *core.ParamDef
	pSegment  *core.ParamDef
	pData     *core.ParamDef
	pRtt3wh   *core.ParamDef
	pTxServer *core.ParamDef
	pTxClient *core.ParamDef
	pSsnID    *core.ParamDef

	evNew   *core.EventDef
	evEstb  *core.EventDef
	evClose *core.EventDef

	ssnTable *cache.LruHash[*session]
	ssnCount uint64
	curTS    int64
	initTS   bool
}

func init() {
	decoder.RegisterModule("tcp", newTCP)
}

func newTCP(ctx *decoder.DefContext) decoder.Module {
	return &tcp{
		pSrcPort: ctx.DefineParam("src_port"),
		pDstPort: ctx.DefineParam("dst_port"),
		pSeq:     ctx.DefineParam("seq"),
		pAck:     ctx.DefineParam("ack"),
		pOffset:  ctx.DefineParam("offset"),
		pFlags:   ctx.DefineParam("flags"),
		pWindow:  ctx.DefineParam("window"),
		pChksum:  ctx.DefineParam("chksum"),
		pUrgptr:  ctx.DefineParam("urgptr"),

		pFlagFin:  ctx.DefineParam("flag_fin"),
		pFlagSyn:  ctx.DefineParam("flag_syn"),
		pFlagRst:  ctx.DefineParam("flag_rst"),
		pFlagPush: ctx.DefineParam("flag_push"),
		pFlagAck:  ctx.DefineParam("flag_ack"),
		pFlagUrg:  ctx.DefineParam("flag_urg"),
		pFlagEce:  ctx.DefineParam("flag_ece"),
		pFlagCwr:  ctx.DefineParam("flag_cwr"),

		pOptdata:  ctx.DefineParam("optdata"),
		pSegment:  ctx.DefineParam("segment"),
		pData:     ctx.DefineParam("data"),
		pRtt3wh:   ctx.DefineParam("rtt_3wh"),
		pTxServer: ctx.DefineParam("tx_server"),
		pTxClient: ctx.DefineParam("tx_client"),
		pSsnID:    ctx.DefineParam("id"),

		evNew:   ctx.DefineEvent("new_session"),
		evEstb:  ctx.DefineEvent("established"),
		evClose: ctx.DefineEvent("closed"),

		ssnTable: cache.New[*session](cache.DefaultWheelSize, 0xffff),
	}
}

func (m *tcp) Setup(rt *decoder.Registry) error { return nil }

func (m *tcp) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(tcpHdrLen)
	if hdr == nil {
		return decoder.ModNone
	}

	srcPort := binary.BigEndian.Uint16(hdr[0:2])
	dstPort := binary.BigEndian.Uint16(hdr[2:4])
	prop.SetSrcPort(srcPort)
	prop.SetDstPort(dstPort)

	prop.RetainValue(m.pSrcPort).Set(hdr[0:2])
	prop.RetainValue(m.pDstPort).Set(hdr[2:4])
	prop.RetainValue(m.pSeq).Set(hdr[4:8])
	prop.RetainValue(m.pAck).Set(hdr[8:12])

	offset := (hdr[12] & 0xf0) >> 2
	prop.RetainValue(m.pOffset).Cpy([]byte{offset}, core.Big)

	flagsRaw := hdr[13]
	prop.RetainValue(m.pFlags).Set(hdr[13:14])
	prop.RetainValue(m.pWindow).Set(hdr[14:16])
	prop.RetainValue(m.pChksum).Set(hdr[16:18])
	prop.RetainValue(m.pUrgptr).Set(hdr[18:20])

	setFlag := func(def *core.ParamDef, mask uint8) {
		f := byte(0)
		if flagsRaw&mask > 0 {
			f = 1
		}
		prop.RetainValue(def).Cpy([]byte{f}, core.Big)
	}
	setFlag(m.pFlagFin, flagFIN)
	setFlag(m.pFlagSyn, flagSYN)
	setFlag(m.pFlagRst, flagRST)
	setFlag(m.pFlagPush, flagPUSH)
	setFlag(m.pFlagAck, flagACK)
	setFlag(m.pFlagUrg, flagURG)
	setFlag(m.pFlagEce, flagECE)
	setFlag(m.pFlagCwr, flagCWR)

	if optLen := int(offset) - tcpHdrLen; optLen > 0 {
		opt := pd.Retain(optLen)
		if opt == nil {
			return decoder.ModNone
		}
		prop.RetainValue(m.pOptdata).Set(opt)
	}

	var segData []byte
	if segLen := pd.Length(); segLen > 0 {
		segData = pd.Retain(segLen)
		prop.RetainValue(m.pSegment).Set(segData)
	}

	// Session clock runs on capture timestamps and never steps back.
	ts := prop.Timestamp().Unix()
	if m.curTS < ts {
		diff := ts - m.curTS
		m.curTS = ts
		if m.initTS {
			m.ssnTable.Step(int(diff))
		} else {
			m.initTS = true
		}
	}

	for m.ssnTable.HasExpired() {
		old, _ := m.ssnTable.PopExpired()
		metrics.SessionsExpired.Inc()
		if lg := log.GetLogger(); lg != nil && lg.IsDebugEnabled() {
			lg.WithField("session", old.id).Debug("tcp session expired")
		}
	}

	flags := flagsRaw & (flagFIN | flagSYN | flagRST | flagACK)
	seq := binary.BigEndian.Uint32(hdr[4:8])
	ack := binary.BigEndian.Uint32(hdr[8:12])
	win := binary.BigEndian.Uint16(hdr[14:16])

	key := sessionKey(prop)
	ssn, ok := m.ssnTable.Get(key)
	if !ok {
		m.ssnCount++
		ssn = newSession(prop, m, m.ssnCount)
		metrics.SessionsOpened.Inc()
		prop.PushEvent(m.evNew)
	}
	// Re-put on every packet so activity pushes expiry forward.
	m.ssnTable.Put(sessionTTL, key, ssn)

	prop.RetainValue(m.pSsnID).PutUint64(ssn.id, core.Little)
	ssn.decode(prop, flags, seq, ack, segData, win)

	return decoder.ModNone
}

// sessionKey canonicalizes the 4-tuple so both directions of a flow map
// to the same key: the lexicographically larger (addr, port) side goes
// first.
func sessionKey(prop *core.Property) string {
	srcAddr, dstAddr := prop.SrcAddr(), prop.DstAddr()
	srcPort, dstPort := prop.SrcPort(), prop.DstPort()

	key := make([]byte, 0, len(srcAddr)+len(dstAddr)+4)
	rc := bytes.Compare(srcAddr, dstAddr)
	if rc > 0 || (rc == 0 && srcPort > dstPort) {
		key = append(key, srcAddr...)
		key = binary.BigEndian.AppendUint16(key, srcPort)
		key = append(key, dstAddr...)
		key = binary.BigEndian.AppendUint16(key, dstPort)
	} else {
		key = append(key, dstAddr...)
		key = binary.BigEndian.AppendUint16(key, dstPort)
		key = append(key, srcAddr...)
		key = binary.BigEndian.AppendUint16(key, srcPort)
	}
	return string(key)
}
