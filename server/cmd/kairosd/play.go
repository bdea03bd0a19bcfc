package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"kairos-demo/server/internal/catalog"
	"kairos-demo/server/internal/config"
	"kairos-demo/server/internal/model"
	"kairos-demo/server/internal/playback"
	"kairos-demo/server/internal/render"
	"kairos-demo/server/internal/script"

	"github.com/spf13/cobra"
)

type playOptions struct {
	agentID     string
	topic       int
	instant     bool
	catalogPath string
	width       int
	verbose     bool
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one agent topic in the terminal",
		Long: `Runs the playback engine in-process and renders the conversation as it streams.
Ctrl+C cancels the playback; messages already shown are kept.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			if opts.catalogPath != "" {
				cfg.Catalog.Path = opts.catalogPath
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runPlay(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.agentID, "agent", "", "agent id (required)")
	cmd.Flags().IntVar(&opts.topic, "topic", 0, "topic index")
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "skip all delays")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "catalog file (overrides config)")
	cmd.Flags().IntVar(&opts.width, "width", 72, "render width")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "write engine logs")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func runPlay(ctx context.Context, out io.Writer, cfg *config.Config, opts *playOptions) error {
	logger := log.New(io.Discard, "", 0)
	if opts.verbose {
		l, closer, err := cfg.Logging.NewLogger()
		if err != nil {
			return err
		}
		defer closer.Close()
		logger = l
	}

	cat, err := catalog.Load(cfg.Catalog.Path, logger)
	if err != nil {
		return err
	}

	agent := model.Agent{ID: opts.agentID}
	if entry, ok := cat.Lookup(opts.agentID); ok {
		agent = entry.Agent
	} else {
		fmt.Fprintf(out, "⚠️  agent %q is not in the catalog, playing the default script\n\n", opts.agentID)
	}

	timing := cfg.Playback.Timing()
	var pacer playback.Pacer = playback.RandomPacer{}
	if opts.instant {
		timing = playback.Timing{}
		pacer = playback.FixedPacer{}
	}

	engine := playback.New(playback.Config{
		Agent:         agent,
		Resolver:      script.NewResolver(cat, logger),
		Pacer:         pacer,
		Timing:        timing,
		FallbackReply: cat.FallbackReply(),
		Logger:        logger,
	})

	r := render.New(render.DefaultTheme(), opts.width)
	printer := render.NewPrinter(out, r, agent)
	defer engine.Transcript().Subscribe(printer.OnChange)()

	var (
		final     model.PlaybackState
		once      sync.Once
		completed = make(chan struct{})
	)
	defer engine.Subscribe(func(s model.PlaybackState) {
		if s.Status == model.PlaybackCompleted {
			once.Do(func() {
				final = s
				close(completed)
			})
		}
	})()

	if err := engine.Start(opts.topic); err != nil {
		return err
	}

	select {
	case <-completed:
	case <-ctx.Done():
		fmt.Fprintln(out, "\n⏹️  cancelled")
	}
	engine.Cancel()
	engine.Wait()
	if final.Status == "" {
		final = engine.State()
	}

	fmt.Fprintln(out, r.Status(final))
	return nil
}
