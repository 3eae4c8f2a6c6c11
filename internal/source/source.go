// Package source implements the capture producers. A source retains
// packets from the engine channel, fills them with captured frames, and
// pushes them back; it closes the channel when the capture ends.
package source

import (
	"context"
	"fmt"

	"firestige.xyz/strix/internal/channel"
	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/core"
)

// Source is one capture producer. Run blocks until the capture is
// exhausted or ctx is cancelled, then closes the channel.
type Source interface {
	Run(ctx context.Context, ch *channel.Channel[core.Packet]) error
}

// Factory builds a source from the untyped options of its config
// section.
type Factory func(options map[string]any) (Source, error)

var factories = make(map[string]Factory)

// Register adds a source factory under a type name. Source files call
// this from init.
func Register(name string, f Factory) {
	factories[name] = f
}

// New builds the source selected by cfg.Type.
func New(cfg config.SourceConfig) (Source, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("source: unknown type %q", cfg.Type)
	}
	return f(cfg.Options)
}
