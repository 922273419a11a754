package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/normanking/cortexlipsync/internal/pipeline"
	"github.com/normanking/cortexlipsync/internal/playback"
)

func newSayCmd(opts *rootOptions) *cobra.Command {
	var (
		lang       string
		expression string
	)

	cmd := &cobra.Command{
		Use:   "say [text]...",
		Short: "Speak one or more utterances headless, in order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, logs, err := opts.load()
			if err != nil {
				return err
			}
			defer logs.Close()

			rt, err := newRuntime(cfg, logs)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.bus.SubscribeMultiple([]bus.EventType{
				bus.EventTypePlaybackStateChanged,
				bus.EventTypeSynthesisFallback,
				bus.EventTypeExtractionFailed,
			}, func(e bus.Event) {
				logs.Info("say", string(e.Type), e.Data)
			})

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// Requests are reserved in argument order before any of them runs.
			pending := make([]<-chan error, 0, len(args))
			for _, text := range args {
				u, done := rt.pipeline.SpeakAsync(ctx, pipeline.Request{
					Text:       text,
					Language:   lang,
					Expression: expression,
				})
				if u != nil {
					logs.Info("say", "Utterance requested", map[string]interface{}{
						"utteranceId": u.ID,
						"seq":         u.Seq,
						"text":        text,
					})
				}
				pending = append(pending, done)
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error { return rt.animator.Run(gctx) })

			var failures []error
			g.Go(func() error {
				defer cancel()
				for i, done := range pending {
					if err := <-done; err != nil {
						failures = append(failures, fmt.Errorf("%q: %w", args[i], err))
					}
				}
				return waitDrained(gctx, rt.synchronizer)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			if len(failures) > 0 {
				msgs := make([]string, len(failures))
				for i, f := range failures {
					msgs[i] = f.Error()
				}
				return fmt.Errorf("%d of %d utterances failed: %s", len(failures), len(args), strings.Join(msgs, "; "))
			}
			return ctx.Err()
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "language tag, e.g. hi-IN (default tts.default_language)")
	cmd.Flags().StringVar(&expression, "expression", "", "facial expression while speaking")
	return cmd
}

// waitDrained blocks until nothing is playing or queued.
func waitDrained(ctx context.Context, s *playback.Synchronizer) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := s.Snapshot()
		if snap.State == playback.StateIdle && snap.Queued == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
