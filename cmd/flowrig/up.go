package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bft-labs/flowrig/internal/watch"
	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/release"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

func newUpCommand(a *app) *cobra.Command {
	var watchFlow bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Set up the environment and keep it until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			envCfg, err := a.environment()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			flowLogger := a.logger.With("flowengine")
			sup := newFlowSupervisor(func(ctx context.Context, f flowengine.Flow) (release.Termination, error) {
				return flowengine.Start(ctx, f, flowengine.WithLogger(flowLogger))
			}, flowLogger)

			opts := append(a.setupOptions(), testenv.WithFlowStarter(sup.Start))
			env, err := testenv.Setup(ctx, envCfg, opts...)
			if err != nil {
				return err
			}

			var w *watch.Watcher
			if watchFlow {
				if envCfg.Flow == nil {
					a.logger.Warn("--watch given but no [flow] is configured")
				} else {
					w = watch.New(watch.Config{}, a.logger.With("watch"))
					path := flowFile(*envCfg.Flow)
					err := w.Start(ctx, path, func(ctx context.Context) {
						if err := sup.Restart(ctx); err != nil {
							a.logger.Error("flow engine restart failed", log.Err(err))
							return
						}
						a.logger.Info("flow engine restarted", log.String("path", path))
					})
					if err != nil {
						a.logger.Error("watch flow file", log.Err(err))
						w = nil
					}
				}
			}

			names := make([]string, 0, len(env.Values()))
			for name := range env.Values() {
				names = append(names, name)
			}
			sort.Strings(names)
			a.logger.Info("environment ready, interrupt to tear down", log.Strings("resources", names))

			<-ctx.Done()
			a.logger.Info("received signal, tearing down...")
			if w != nil {
				w.Stop()
			}
			return testenv.Teardown(context.WithoutCancel(ctx), env)
		},
	}
	cmd.Flags().BoolVar(&watchFlow, "watch", false, "restart the flow engine when the flow file changes")
	return cmd
}

// flowFile is where the engine reads its flows: Path, relative to UserDir.
func flowFile(f flowengine.Flow) string {
	path := f.Path
	if path == "" {
		path = flowengine.DefaultPath
	}
	if filepath.IsAbs(path) {
		return path
	}
	dir := f.UserDir
	if dir == "" {
		dir = flowengine.DefaultUserDir
	}
	return filepath.Join(dir, path)
}

var errFlowNotStarted = errors.New("flow engine was never started")

// flowSupervisor owns the running flow engine so it can be restarted in
// place. Its Stop is what the test environment releases.
type flowSupervisor struct {
	mu      sync.Mutex
	start   testenv.FlowStarter
	logger  log.Logger
	flow    flowengine.Flow
	started bool
	stop    release.Termination
}

func newFlowSupervisor(start testenv.FlowStarter, logger log.Logger) *flowSupervisor {
	return &flowSupervisor{start: start, logger: log.OrNoop(logger)}
}

// Start is a testenv.FlowStarter.
func (s *flowSupervisor) Start(ctx context.Context, f flowengine.Flow) (release.Termination, error) {
	stop, err := s.start(ctx, f)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.flow = f
	s.started = true
	s.stop = stop
	s.mu.Unlock()
	return s.Stop, nil
}

// Restart stops the running engine and starts the same flow again.
func (s *flowSupervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return errFlowNotStarted
	}
	if s.stop != nil {
		stop := s.stop
		s.stop = nil
		if err := stop(ctx); err != nil {
			return fmt.Errorf("stop flow engine: %w", err)
		}
	}
	s.logger.Debug("starting flow engine again")
	stop, err := s.start(ctx, s.flow)
	if err != nil {
		return fmt.Errorf("restart flow engine: %w", err)
	}
	s.stop = stop
	return nil
}

// Stop stops the running engine, if any.
func (s *flowSupervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return nil
	}
	stop := s.stop
	s.stop = nil
	return stop(ctx)
}
