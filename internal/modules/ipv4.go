package modules

import (
	"encoding/binary"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
)

const ipv4HdrLen = 20

const (
	ipProtoICMP = 1
	ipProtoTCP  = 6
	ipProtoUDP  = 17
)

type ipv4 struct {
	pHdrLen *core.ParamDef
	pTotLen *core.ParamDef
	pTTL    *core.ParamDef
	pProto  *core.ParamDef
	pChksum *core.ParamDef
	pSrc    *core.ParamDef
	pDst    *core.ParamDef
	pOpt    *core.ParamDef

	modICMP decoder.ModID
	modTCP  decoder.ModID
	modUDP  decoder.ModID
}

func init() {
	decoder.RegisterModule("ipv4", newIPv4)
}

func newIPv4(ctx *decoder.DefContext) decoder.Module {
	return &ipv4{
		pHdrLen: ctx.DefineParam("hdr_len"),
		pTotLen: ctx.DefineParam("total_len"),
		pTTL:    ctx.DefineParam("ttl"),
		pProto:  ctx.DefineParam("proto"),
		pChksum: ctx.DefineParam("chksum"),
		pSrc:    ctx.DefineParam("src"),
		pDst:    ctx.DefineParam("dst"),
		pOpt:    ctx.DefineParam("optdata"),
	}
}

func (m *ipv4) Setup(rt *decoder.Registry) error {
	var err error
	if m.modICMP, err = rt.LookupModule("icmp"); err != nil {
		return err
	}
	if m.modTCP, err = rt.LookupModule("tcp"); err != nil {
		return err
	}
	if m.modUDP, err = rt.LookupModule("udp"); err != nil {
		return err
	}
	return nil
}

func (m *ipv4) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(ipv4HdrLen)
	if hdr == nil {
		return decoder.ModNone
	}
	if hdr[0]>>4 != 4 {
		return decoder.ModNone
	}

	hdrLen := int(hdr[0]&0x0f) * 4
	if hdrLen < ipv4HdrLen {
		return decoder.ModNone
	}
	totLen := int(binary.BigEndian.Uint16(hdr[2:4]))

	hl := uint8(hdrLen)
	prop.RetainValue(m.pHdrLen).Cpy([]byte{hl}, core.Big)
	prop.RetainValue(m.pTotLen).Set(hdr[2:4])
	prop.RetainValue(m.pTTL).Set(hdr[8:9])
	prop.RetainValue(m.pProto).Set(hdr[9:10])
	prop.RetainValue(m.pChksum).Set(hdr[10:12])
	prop.RetainValue(m.pSrc).Set(hdr[12:16])
	prop.RetainValue(m.pDst).Set(hdr[16:20])

	if optLen := hdrLen - ipv4HdrLen; optLen > 0 {
		opt := pd.Retain(optLen)
		if opt == nil {
			return decoder.ModNone
		}
		prop.RetainValue(m.pOpt).Set(opt)
	}

	prop.SetSrcAddr(hdr[12:16])
	prop.SetDstAddr(hdr[16:20])

	// Drop any link-layer trailer beyond the datagram.
	pd.Shrink(totLen - hdrLen)

	switch hdr[9] {
	case ipProtoICMP:
		return m.modICMP
	case ipProtoTCP:
		return m.modTCP
	case ipProtoUDP:
		return m.modUDP
	}
	return decoder.ModNone
}
