// Package modules holds the built-in protocol modules. Each module
// registers a factory with the decoder at init time and resolves its
// next-layer references during Setup.
package modules

import (
	"encoding/binary"

	"firestige.xyz/strix/internal/core"
	"firestige.xyz/strix/internal/decoder"
)

const (
	etherTypeIPv4 = 0x0800
	etherTypeARP  = 0x0806
)

const etherHdrLen = 14

type ethernet struct {
	pDst  *core.ParamDef
	pSrc  *core.ParamDef
	pType *core.ParamDef

	modARP  decoder.ModID
	modIPv4 decoder.ModID
}

func init() {
	decoder.RegisterModule("ethernet", newEthernet)
}

func newEthernet(ctx *decoder.DefContext) decoder.Module {
	return &ethernet{
		pDst:  ctx.DefineParam("dst_addr"),
		pSrc:  ctx.DefineParam("src_addr"),
		pType: ctx.DefineParam("type"),
	}
}

func (m *ethernet) Setup(rt *decoder.Registry) error {
	var err error
	if m.modARP, err = rt.LookupModule("arp"); err != nil {
		return err
	}
	if m.modIPv4, err = rt.LookupModule("ipv4"); err != nil {
		return err
	}
	return nil
}

func (m *ethernet) Decode(pd *core.Payload, prop *core.Property) decoder.ModID {
	hdr := pd.Retain(etherHdrLen)
	if hdr == nil {
		return decoder.ModNone
	}

	prop.RetainValue(m.pDst).Set(hdr[0:6])
	prop.RetainValue(m.pSrc).Set(hdr[6:12])
	prop.RetainValue(m.pType).Set(hdr[12:14])

	switch binary.BigEndian.Uint16(hdr[12:14]) {
	case etherTypeARP:
		return m.modARP
	case etherTypeIPv4:
		return m.modIPv4
	}
	return decoder.ModNone
}
