package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(e *env) *cobra.Command {
	o := &generateOptions{}
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Regenerate a mesh whenever its snapshot changes",
		Long: `Watch a snapshot file and rewrite the mesh each time it is saved.
Bursts of file events are debounced into one regeneration.

Example:
  plantarium watch -i fern.json -o fern.obj`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.output == "" {
				return fmt.Errorf("watch requires --output")
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, e, o, delay)
		},
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", "", "snapshot file")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "mesh file")
	cmd.Flags().StringVar(&o.inputFormat, "format", "", "snapshot format: json or yaml (default from extension)")
	cmd.Flags().StringVar(&o.meshFormat, "mesh", "obj", "mesh format: obj or json")
	cmd.Flags().DurationVar(&delay, "debounce", 300*time.Millisecond, "quiet interval before regenerating")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

// watch regenerates once up front and then after every settled burst of
// writes to o.input, until ctx is done. The parent directory is watched so
// editors that replace the file are followed.
func watch(ctx context.Context, e *env, o *generateOptions, delay time.Duration) error {
	input, err := filepath.Abs(o.input)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(input)); err != nil {
		return err
	}

	logger := e.logger.With(zap.String("input", input))
	var (
		mu      sync.Mutex
		stopped bool
	)
	regenerate := func() {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		if err := o.run(e, os.Stdout); err != nil {
			logger.Error("regenerate failed", zap.Error(err))
			return
		}
		logger.Info("regenerated", zap.String("output", o.output))
	}
	regenerate()

	debounced := debounce.New(delay)
	// A regeneration still pending or running when watch returns must not
	// write the output afterwards.
	defer func() {
		debounced(func() {})
		mu.Lock()
		stopped = true
		mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != input {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				logger.Debug("snapshot changed", zap.String("op", ev.Op.String()))
				debounced(regenerate)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
