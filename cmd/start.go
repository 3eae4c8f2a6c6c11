package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	strix "firestige.xyz/strix"
	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/internal/log"
	"firestige.xyz/strix/internal/metrics"
	"firestige.xyz/strix/internal/source"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the engine",
	Long: `
Start the engine with the configured capture source.

Examples:
  strix start                    # capture per ./config.yaml
  strix start -c /etc/strix.yml  # explicit config path
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		logCfg := cfg.Log
		if logCfg == nil {
			logCfg = log.DefaultConfig()
		}
		if err := log.Init(logCfg); err != nil {
			return err
		}
		lg := log.GetLogger()

		if cfg.Metrics.Enabled {
			go func() {
				if err := metrics.Serve(cfg.Metrics.Listen); err != nil {
					lg.WithError(err).Error("metrics listener stopped")
				}
			}()
		}

		machine, err := strix.NewWithConfig(strix.Config{
			ChannelCapacity: cfg.Engine.ChannelCapacity,
		})
		if err != nil {
			return err
		}

		src, err := source.New(cfg.Source)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(),
			os.Interrupt, syscall.SIGTERM)
		defer stop()

		machine.On("new_session", func(p *strix.Property) {
			lg.WithFields(map[string]interface{}{
				"src_port": p.SrcPort(),
				"dst_port": p.DstPort(),
			}).Debug("new tcp session")
		})

		machine.Start()
		lg.WithField("source", cfg.Source.Type).Info("engine started")

		err = src.Run(ctx, machine.Channel())
		machine.Close()

		lg.WithFields(map[string]interface{}{
			"recv_pkt":  machine.RecvPkt(),
			"recv_size": machine.RecvSize(),
		}).Info("engine stopped")

		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
