package source

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/gopacket/pcap"
	"github.com/mitchellh/mapstructure"

	"firestige.xyz/strix/internal/channel"
	"firestige.xyz/strix/internal/core"
)

type fileCfg struct {
	Path string `mapstructure:"path"`
}

// fileSource replays a pcap file into the channel.
type fileSource struct {
	path string
}

func init() {
	Register("file", func(options map[string]any) (Source, error) {
		var cfg fileCfg
		if err := mapstructure.Decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("source: file options: %w", err)
		}
		if cfg.Path == "" {
			return nil, errors.New("source: file requires options.path")
		}
		return &fileSource{path: cfg.Path}, nil
	})
}

func (s *fileSource) Run(ctx context.Context, ch *channel.Channel[core.Packet]) error {
	handle, err := pcap.OpenOffline(s.path)
	if err != nil {
		return fmt.Errorf("source: open pcap %s: %w", s.path, err)
	}
	defer handle.Close()
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := handle.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("source: read packet: %w", err)
		}

		pkt := ch.Retain()
		pkt.Store(data, ci.CaptureLength, ci.Length, ci.Timestamp)
		ch.Push(pkt)
	}
}
