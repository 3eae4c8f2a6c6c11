package modules

import (
	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
)

// arpHdrLen covers hardware/protocol types and lengths plus the opcode;
// the four addresses follow with lengths taken from the header.
const arpHdrLen = 8

type arp struct {
	pHwType *core.ParamDef
	pPrType *core.ParamDef
	pOp     *core.ParamDef
	pSrcHw  *core.ParamDef
	pSrcPr  *core.ParamDef
	pDstHw  *core.ParamDef
	pDstPr  *core.ParamDef
}

func init() {
	decoder.RegisterModule("arp", newARP)
}

func newARP(ctx *decoder.DefContext) decoder.Module {
	return &arp{
		pHwType: ctx.DefineParam("hw_type"),
		pPrType: ctx.DefineParam("pr_type"),
		pOp:     ctx.DefineParam("op"),
		pSrcHw:  ctx.DefineParam("src_hw"),
		pSrcPr:  ctx.DefineParam("src_pr"),
		pDstHw:  ctx.DefineParam("dst_hw"),
		pDstPr:  ctx.DefineParam("dst_pr"),
	}
}

func (m *arp) Setup(rt *decoder.Registry) error { return nil }

func (m *arp) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(arpHdrLen)
	if hdr == nil {
		return decoder.ModNone
	}

	hwLen := int(hdr[4])
	prLen := int(hdr[5])

	prop.RetainValue(m.pHwType).Set(hdr[0:2])
	prop.RetainValue(m.pPrType).Set(hdr[2:4])
	prop.RetainValue(m.pOp).Set(hdr[6:8])

	addrs := pd.Retain(2 * (hwLen + prLen))
	if addrs == nil {
		return decoder.ModNone
	}
	off := 0
	prop.RetainValue(m.pSrcHw).Set(addrs[off : off+hwLen])
	off += hwLen
	prop.RetainValue(m.pSrcPr).Set(addrs[off : off+prLen])
	off += prLen
	prop.RetainValue(m.pDstHw).Set(addrs[off : off+hwLen])
	off += hwLen
	prop.RetainValue(m.pDstPr).Set(addrs[off : off+prLen])

	return decoder.ModNone
}
