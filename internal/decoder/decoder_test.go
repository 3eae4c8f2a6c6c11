package decoder

import (
	"testing"
	"time"

	"firestige.xyz/strix/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainMod consumes n bytes and forwards to the named next module.
type chainMod struct {
	pLen    *core.ParamDef
	consume int
	nextRef string
	next    ModID
}

func (m *chainMod) Setup(rt *Registry) error {
	if m.nextRef == "" {
		m.next = ModNone
		return nil
	}
	id, err := rt.LookupModule(m.nextRef)
	if err != nil {
		return err
	}
	m.next = id
	return nil
}

func (m *chainMod) Decode(pd *core.Payload, prop *core.Property) ModID {
	if pd.Retain(m.consume) == nil {
		return ModNone
	}
	prop.RetainValue(m.pLen).PutUint32(uint32(pd.Length()), core.Big)
	return m.next
}

func chainFactory(consume int, next string) Factory {
	return func(ctx *DefContext) Module {
		return &chainMod{
			pLen:    ctx.DefineParam("rest"),
			consume: consume,
			nextRef: next,
		}
	}
}

func buildProperty(reg *Registry, data []byte) (*core.Payload, *core.Property) {
	pkt := &core.Packet{}
	pkt.Store(data, len(data), len(data), time.Now())
	prop := core.NewProperty(reg.ParamSize())
	prop.Init(pkt)
	pd := &core.Payload{}
	pd.Reset(pkt)
	return pd, prop
}

func TestWalkStopsAtNone(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("a", chainFactory(2, "b"))
	require.NoError(t, err)
	_, err = reg.Register("b", chainFactory(2, ""))
	require.NoError(t, err)
	require.NoError(t, reg.Setup())

	d, err := NewDecoder(reg, "a")
	require.NoError(t, err)

	pd, prop := buildProperty(reg, []byte{1, 2, 3, 4, 5, 6})
	d.Decode(pd, prop)

	// Both modules consumed their share.
	assert.Equal(t, 2, pd.Length())
	assert.NotNil(t, prop.Value(reg.LookupParam("a.rest")))
	assert.NotNil(t, prop.Value(reg.LookupParam("b.rest")))
}

func TestShortPayloadStopsWalk(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("a", chainFactory(2, "b"))
	require.NoError(t, err)
	_, err = reg.Register("b", chainFactory(8, ""))
	require.NoError(t, err)
	require.NoError(t, reg.Setup())

	d, err := NewDecoder(reg, "a")
	require.NoError(t, err)

	pd, prop := buildProperty(reg, []byte{1, 2, 3})
	d.Decode(pd, prop)

	// b saw a short payload, returned ModNone and touched nothing.
	assert.Nil(t, prop.Value(reg.LookupParam("b.rest")))
}

func TestDuplicateModuleName(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("a", chainFactory(1, ""))
	require.NoError(t, err)
	_, err = reg.Register("a", chainFactory(1, ""))
	assert.Error(t, err)
}

func TestUnknownReferenceFailsSetup(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("a", chainFactory(1, "missing"))
	require.NoError(t, err)
	assert.Error(t, reg.Setup())
}

func TestCycleRejectedAtSetup(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Register("a", chainFactory(1, "b"))
	require.NoError(t, err)
	_, err = reg.Register("b", chainFactory(1, "a"))
	require.NoError(t, err)
	assert.Error(t, reg.Setup())
}

func TestEventLookup(t *testing.T) {
	reg := NewRegistry()
	var ev *core.EventDef
	_, err := reg.Register("m", func(ctx *DefContext) Module {
		ev = ctx.DefineEvent("something_seen")
		return &chainMod{pLen: ctx.DefineParam("rest"), consume: 0}
	})
	require.NoError(t, err)
	require.NoError(t, reg.Setup())

	assert.Equal(t, ev.ID(), reg.LookupEventID("something_seen"))
	assert.Equal(t, core.EventNone, reg.LookupEventID("nope"))
	assert.Equal(t, 1, reg.EventSize())
}
