package modules

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
)

const icmpHdrLen = 4

type icmp struct {
	pType   *core.ParamDef
	pCode   *core.ParamDef
	pChksum *core.ParamDef
	pData   *core.ParamDef
}

func init() {
	decoder.RegisterModule("icmp", newICMP)
}

func newICMP(ctx *decoder.DefContext) decoder.Module {
	return &icmp{
		pType:   ctx.DefineParam("type"),
		pCode:   ctx.DefineParam("code"),
		pChksum: ctx.DefineParam("chksum"),
		pData:   ctx.DefineParam("data"),
	}
}

func (m *icmp) Setup(rt *decoder.Registry) error { return nil }

func (m *icmp) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(icmpHdrLen)
	if hdr == nil {
		return decoder.ModNone
	}

	prop.RetainValue(m.pType).Set(hdr[0:1])
	prop.RetainValue(m.pCode).Set(hdr[1:2])
	prop.RetainValue(m.pChksum).Set(hdr[2:4])

	if n := pd.Length(); n > 0 {
		prop.RetainValue(m.pData).Set(pd.Retain(n))
	}
	return decoder.ModNone
}
