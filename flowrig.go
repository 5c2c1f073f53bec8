// Package flowrig sets up disposable environments for message-flow tests and
// verifies flows against them.
//
// Example usage:
//
//	env, err := flowrig.Setup(ctx, flowrig.Config{
//	    Containers: []flowrig.Container{{
//	        Image: "rabbitmq:3",
//	        Ports: []flowrig.PortBinding{{Host: 5672, Container: 5672}},
//	        ReadinessProbe: &flowrig.ProbeSpec{Check: probe.AMQP("")},
//	    }},
//	    Flow:      &flowrig.Flow{Path: "flows.json"},
//	    Resources: flowrig.Factories{}.Add("amqp", resource.AMQP("")),
//	}, flowrig.WithEngine(flowrig.NewDockerEngine("docker")))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer flowrig.Teardown(ctx, env)
//
//	conn, _ := amqpbroker.FromValue(env.Values()["amqp"])
//	err = flowrig.TestFlow(ctx, conn, flowrig.Input{...}, flowrig.Output{...})
package flowrig

import (
	"context"

	"github.com/bft-labs/flowrig/internal/adapters/docker"
	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/resource"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

// Config lists the containers, flow engine and resources of an environment.
type Config = testenv.Config

// Context is a ready test environment.
type Context = testenv.Context

// Option configures Setup.
type Option = testenv.Option

type (
	Container   = lifecycle.Container
	PortBinding = lifecycle.PortBinding
	Flow        = flowengine.Flow
	ProbeSpec   = probe.Spec
	Factories   = resource.Factories

	Input      = flowtest.Input
	Output     = flowtest.Output
	Binding    = flowtest.Binding
	Properties = flowtest.Properties
	Connection = flowtest.Connection
)

var (
	WithEngine       = testenv.WithEngine
	WithOrchestrator = testenv.WithOrchestrator
	WithLogger       = testenv.WithLogger
)

// Setup starts the environment. See testenv.Setup.
func Setup(ctx context.Context, cfg Config, opts ...Option) (*Context, error) {
	return testenv.Setup(ctx, cfg, opts...)
}

// Teardown releases everything Setup acquired, in reverse order.
func Teardown(ctx context.Context, env *Context) error {
	return testenv.Teardown(ctx, env)
}

// TestFlow publishes in and checks the observed queues against out.
func TestFlow(ctx context.Context, conn Connection, in Input, out Output) error {
	return flowtest.TestFlow(ctx, conn, in, out)
}

// NewDockerEngine returns a container engine driving the given CLI binary.
func NewDockerEngine(binary string) lifecycle.Engine {
	return docker.New(docker.WithBinary(binary))
}
