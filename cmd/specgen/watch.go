package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"specgen/pkg/manifest"
	"specgen/pkg/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var flags projectFlags
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch [suite files...]",
		Short: "Generate, then regenerate whenever a suite file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.loadProject(&flags, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := a.generate(cmd.Context(), p, false, out); err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					a.logger.Info("received shutdown signal")
					cancel()
				case <-ctx.Done():
				}
			}()

			w, err := watch.New(suiteDirs(p.paths), debounce, func(path string) {
				a.logger.Info("suite changed", zap.String("path", path))
				if err := a.regenerate(ctx, &flags, args, p.sources, out); err != nil {
					a.logger.Error("regenerate failed", zap.Error(err))
				}
			}, a.logger)
			if err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				w.Stop()
				return err
			}
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 300*time.Millisecond, "Quiet period before regenerating")
	return cmd
}

// regenerate reloads the project and compiles it again. Git sources were fetched when
// the watch started, so their suite files are reused instead of fetched again.
func (a *app) regenerate(ctx context.Context, flags *projectFlags, args, sources []string, out io.Writer) error {
	p, err := a.resolveProject(flags, args, func(*manifest.Manifest) ([]string, error) {
		return sources, nil
	})
	if err != nil {
		return err
	}
	return a.generate(ctx, p, false, out)
}

// suiteDirs returns the distinct directories holding paths, sorted.
func suiteDirs(paths []string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, path := range paths {
		dir := filepath.Dir(path)
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
