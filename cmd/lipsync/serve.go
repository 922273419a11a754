package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexlipsync/internal/config"
	"github.com/normanking/cortexlipsync/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, frame stream and animation loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dir, logs, err := opts.load()
			if err != nil {
				return err
			}
			defer logs.Close()
			if addr != "" {
				cfg.Server.Addr = addr
			}

			rt, err := newRuntime(cfg, logs)
			if err != nil {
				logs.Error("serve", "Failed to start", err, nil)
				return err
			}
			defer rt.Close()

			hub := server.NewHub(rt.layout, rt.animator.FPS(), logs.Component("frame-hub"))
			hub.Subscribe(rt.bus)
			rt.animator.OnFrame(hub.BroadcastFrame)

			srv := server.New(cfg.Server, server.Dependencies{
				Assistant: rt.assistant,
				Player:    rt.synchronizer,
				Hub:       hub,
				Store:     rt.store,
				Logs:      logs,
				Health:    rt.health,
			}, logs.Zerolog())

			if err := config.Watch(dir, func(next *config.Config, err error) {
				if err != nil {
					logs.Warn("config", "Ignoring invalid config change", map[string]interface{}{"error": err.Error()})
					return
				}
				rt.blender.SetDefaultExpression(next.Animation.DefaultExpression)
				logs.Info("config", "Default expression reloaded", map[string]interface{}{
					"expression": next.Animation.DefaultExpression,
				})
			}); err != nil {
				logs.Warn("config", "Config hot reload disabled", map[string]interface{}{"error": err.Error()})
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return rt.animator.Run(ctx) })
			g.Go(func() error { return srv.Run(ctx) })

			logs.Info("serve", "Lipsync service started", map[string]interface{}{
				"addr":     cfg.Server.Addr,
				"device":   cfg.Playback.Device,
				"fps":      rt.animator.FPS(),
				"channels": len(rt.layout.Names()),
			})

			err = g.Wait()
			logs.Info("serve", "Lipsync service stopped", nil)
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
