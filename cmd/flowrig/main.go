package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/flowrig/internal/adapters/docker"
	"github.com/bft-labs/flowrig/internal/cliconfig"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/log"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

const helpDescription = `
Bring up the containers, flow engine and connections a message flow needs,
publish a stimulus and check which queues receive what.

The environment is described in a TOML file:
  [[container]]  images to run, their ports and readiness probes
  [flow]         the flow engine command, flow file and port
  [[resource]]   amqp, redis or static values handed to test cases
  [[case]]       a stimulus and the expected queue, payload and properties
`

var exampleUsage = strings.TrimSpace(`
  flowrig run --config rig.toml
  flowrig up --config rig.toml --watch
  FLOWRIG_LOG_LEVEL=debug flowrig run
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

// app carries the resolved settings shared by all commands.
type app struct {
	cfg    cliconfig.Config
	file   cliconfig.FileConfig
	logger *log.ZerologAdapter
}

// load resolves settings with precedence flags > env > file > defaults.
func (a *app) load(cmd *cobra.Command) error {
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	// The config path itself may come from the environment.
	cfgPath := a.cfg
	if err := cliconfig.ApplyEnvConfig(&cfgPath, changed); err != nil {
		return err
	}
	a.cfg.ConfigPath = cfgPath.ConfigPath

	if !cliconfig.FileExists(a.cfg.ConfigPath) {
		return fmt.Errorf("config file %s not found", a.cfg.ConfigPath)
	}
	fc, err := cliconfig.LoadFileConfig(a.cfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
		return err
	}
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	a.file = fc

	a.logger = log.NewZerologAdapter(a.cfg.LogLevel)
	a.logger.Debug("configuration",
		log.String("config", a.cfg.ConfigPath),
		log.String("docker", a.cfg.Docker),
		log.Duration("timeout", a.cfg.Timeout),
		log.Bool("keep_on_probe_failure", a.cfg.KeepOnProbeFailure))
	return nil
}

// setupOptions wires the docker engine and orchestrator into testenv.Setup.
func (a *app) setupOptions() []testenv.Option {
	policy := lifecycle.StopOnProbeFailure
	if a.cfg.KeepOnProbeFailure {
		policy = lifecycle.LeaveRunning
	}
	engine := docker.New(
		docker.WithBinary(a.cfg.Docker),
		docker.WithLogger(a.logger.With("docker")),
	)
	orch := lifecycle.NewOrchestrator(engine,
		lifecycle.WithLogger(a.logger.With("lifecycle")),
		lifecycle.WithProbeFailurePolicy(policy),
	)
	return []testenv.Option{
		testenv.WithLogger(a.logger.With("testenv")),
		testenv.WithOrchestrator(orch),
	}
}

func newRootCommand() *cobra.Command {
	a := &app{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "flowrig",
		Short:         "Spin up a message-flow test environment and verify flows against it",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfg.ConfigPath, "config", a.cfg.ConfigPath, "path to the environment file")
	flags.StringVar(&a.cfg.Docker, "docker", a.cfg.Docker, "container CLI binary")
	flags.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level: debug, info, warn or error")
	flags.DurationVar(&a.cfg.Timeout, "timeout", a.cfg.Timeout, "per-queue delivery timeout of cases without their own")
	flags.BoolVar(&a.cfg.KeepOnProbeFailure, "keep-on-probe-failure", a.cfg.KeepOnProbeFailure, "leave a container running when its readiness probe fails")
	flags.BoolVarP(&a.cfg.Verbose, "verbose", "v", a.cfg.Verbose, "stream container and flow engine output")

	root.AddCommand(newRunCommand(a), newUpCommand(a), newVersionCommand())
	return root
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.NewZerologAdapter(log.LevelError).Error("flowrig", log.Err(err))
		os.Exit(1)
	}
}
