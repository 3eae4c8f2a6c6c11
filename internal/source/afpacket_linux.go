//go:build linux

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/net/bpf"

	"firestige.xyz/strix/internal/channel"
	"firestige.xyz/strix/internal/core"
)

type afpacketCfg struct {
	Device       string `mapstructure:"device"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BpfFilter    string `mapstructure:"bpf_filter"`
}

// afpacketSource captures live traffic from a TPacket v3 ring.
type afpacketSource struct {
	cfg afpacketCfg
}

func init() {
	Register("afpacket", func(options map[string]any) (Source, error) {
		var cfg afpacketCfg
		if err := mapstructure.Decode(options, &cfg); err != nil {
			return nil, fmt.Errorf("source: afpacket options: %w", err)
		}
		if cfg.Device == "" {
			return nil, errors.New("source: afpacket requires options.device")
		}
		if cfg.SnapLen == 0 {
			cfg.SnapLen = 65535
		}
		if cfg.BufferSizeMB == 0 {
			cfg.BufferSizeMB = 8
		}
		if cfg.TimeoutMs == 0 {
			cfg.TimeoutMs = 100
		}
		return &afpacketSource{cfg: cfg}, nil
	})
}

func (s *afpacketSource) open() (*afpacket.TPacket, error) {
	frameSize, blockSize, numBlocks, err := ringSizes(s.cfg.BufferSizeMB, s.cfg.SnapLen)
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.cfg.Device),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(time.Duration(s.cfg.TimeoutMs)*time.Millisecond),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, err
	}

	if s.cfg.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, s.cfg.FanoutID); err != nil {
			tp.Close()
			return nil, err
		}
	}

	if s.cfg.BpfFilter != "" {
		pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, frameSize, s.cfg.BpfFilter)
		if err != nil {
			tp.Close()
			return nil, err
		}
		rawBPF := make([]bpf.RawInstruction, len(pcapBPF))
		for i, inst := range pcapBPF {
			rawBPF[i] = bpf.RawInstruction{
				Op: inst.Code,
				Jt: inst.Jt,
				Jf: inst.Jf,
				K:  inst.K,
			}
		}
		if err := tp.SetBPF(rawBPF); err != nil {
			tp.Close()
			return nil, err
		}
	}

	return tp, nil
}

func (s *afpacketSource) Run(ctx context.Context, ch *channel.Channel[core.Packet]) error {
	tp, err := s.open()
	if err != nil {
		return fmt.Errorf("source: afpacket open %s: %w", s.cfg.Device, err)
	}
	defer tp.Close()
	defer ch.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, ci, err := tp.ZeroCopyReadPacketData()
		if err != nil {
			if errors.Is(err, afpacket.ErrTimeout) {
				continue
			}
			return fmt.Errorf("source: afpacket read: %w", err)
		}

		pkt := ch.Retain()
		pkt.Store(data, ci.CaptureLength, ci.Length, ci.Timestamp)
		ch.Push(pkt)
	}
}

// ringSizes splits the requested buffer into page-aligned blocks large
// enough for snapLen frames.
func ringSizes(bufferSizeMB, snapLen int) (frameSize, blockSize, numBlocks int, err error) {
	pageSize := os.Getpagesize()

	if snapLen < pageSize {
		frameSize = pageSize / (pageSize / snapLen)
	} else {
		frameSize = (snapLen/pageSize + 1) * pageSize
	}

	blockSize = frameSize * 128
	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks == 0 {
		return 0, 0, 0, fmt.Errorf("source: buffer size %dMB too small for snap_len %d",
			bufferSizeMB, snapLen)
	}
	return frameSize, blockSize, numBlocks, nil
}
