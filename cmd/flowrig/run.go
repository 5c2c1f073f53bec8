package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bft-labs/flowrig/internal/cliconfig"
	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/flowtest/amqpbroker"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

// environment builds the testenv configuration from the loaded file.
func (a *app) environment() (testenv.Config, error) {
	env, err := a.file.Environment()
	if err != nil {
		return testenv.Config{}, err
	}
	if a.cfg.Verbose {
		for i := range env.Containers {
			env.Containers[i].Stdout = os.Stderr
			env.Containers[i].Stderr = os.Stderr
		}
		if env.Flow != nil {
			env.Flow.Stdout = os.Stderr
			env.Flow.Stderr = os.Stderr
		}
	}
	return env, nil
}

func newRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Set up the environment, run every case and tear it down",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd); err != nil {
				return err
			}
			envCfg, err := a.environment()
			if err != nil {
				return err
			}
			cases, err := a.file.TestCases(a.cfg.Timeout)
			if err != nil {
				return err
			}
			if len(cases) == 0 {
				a.logger.Warn("no cases configured", log.String("config", a.cfg.ConfigPath))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			env, err := testenv.Setup(ctx, envCfg, a.setupOptions()...)
			if err != nil {
				return err
			}

			runner := caseRunner{logger: a.logger.With("flowtest"), connect: connectAMQP}
			runErr := runner.run(ctx, env, cases)

			// Teardown must not be cut short by the signal that ended the run.
			tdErr := testenv.Teardown(context.WithoutCancel(ctx), env)
			if tdErr != nil {
				a.logger.Error("teardown failed", log.Err(tdErr))
			}
			return fault.NewComposite("flowrig run failed", runErr, tdErr)
		},
	}
}

func connectAMQP(v any) (flowtest.Connection, error) {
	return amqpbroker.FromValue(v)
}

// caseRunner runs cases one after another against a ready environment.
type caseRunner struct {
	logger  log.Logger
	connect func(v any) (flowtest.Connection, error)
}

// run returns nil when every case passed, otherwise a composite of the
// failed cases.
func (r caseRunner) run(ctx context.Context, env *testenv.Context, cases []cliconfig.Case) error {
	var errs []error
	for _, c := range cases {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("case %q: %w", c.Name, ctx.Err()))
			break
		}
		start := time.Now()
		err := r.runCase(ctx, env, c)
		if err != nil {
			r.logger.Error("case failed",
				log.String("case", c.Name),
				log.Duration("elapsed", time.Since(start)),
				log.Err(err))
			errs = append(errs, fmt.Errorf("case %q: %w", c.Name, err))
			continue
		}
		r.logger.Info("case passed",
			log.String("case", c.Name),
			log.Duration("elapsed", time.Since(start)))
	}
	r.logger.Info("cases finished",
		log.Int("total", len(cases)),
		log.Int("failed", len(errs)))
	return fault.NewComposite("flow tests failed", errs...)
}

func (r caseRunner) runCase(ctx context.Context, env *testenv.Context, c cliconfig.Case) error {
	v, ok := env.Value(c.Connection)
	if !ok {
		return fault.Configf("connection", "no resource named %q", c.Connection)
	}
	conn, err := r.connect(v)
	if err != nil {
		return err
	}
	verifier := flowtest.NewVerifier(
		flowtest.WithTimeout(c.Timeout),
		flowtest.WithLogger(r.logger),
	)
	return verifier.TestFlow(ctx, conn, c.Input, c.Output)
}
