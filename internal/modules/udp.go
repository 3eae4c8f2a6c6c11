package modules

import (
	"encoding/binary"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
)

const udpHdrLen = 8

type udp struct {
	pSrcPort *core.ParamDef
	pDstPort *core.ParamDef
	pLen     *core.ParamDef
	pChksum  *core.ParamDef
	pData    *core.ParamDef
}

func init() {
	decoder.RegisterModule("udp", newUDP)
}

func newUDP(ctx *decoder.DefContext) decoder.Module {
	return &udp{
		pSrcPort: ctx.DefineParam("src_port"),
		pDstPort: ctx.DefineParam("dst_port"),
		pLen:     ctx.DefineParam("len"),
		pChksum:  ctx.DefineParam("chksum"),
		pData:    ctx.DefineParam("data"),
	}
}

func (m *udp) Setup(rt *decoder.Registry) error { return nil }

func (m *udp) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(udpHdrLen)
	if hdr == nil {
		return decoder.ModNone
	}

	prop.RetainValue(m.pSrcPort).Set(hdr[0:2])
	prop.RetainValue(m.pDstPort).Set(hdr[2:4])
	prop.RetainValue(m.pLen).Set(hdr[4:6])
	prop.RetainValue(m.pChksum).Set(hdr[6:8])

	prop.SetSrcPort(binary.BigEndian.Uint16(hdr[0:2]))
	prop.SetDstPort(binary.BigEndian.Uint16(hdr[2:4]))

	if n := pd.Length(); n > 0 {
		prop.RetainValue(m.pData).Set(pd.Retain(n))
	}
	return decoder.ModNone
}
