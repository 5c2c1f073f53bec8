package lifecycle

import (
	"context"
	"fmt"
	"io"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/release"
)

// PortBinding publishes container port Container on host port Host.
type PortBinding struct {
	Name      string
	Host      int
	Container int
}

// Container describes one process to run through an Engine.
//
// A Container with a Name is idempotent: when a process with that name is
// already running it is adopted instead of started again.
type Container struct {
	Image          string
	Name           string
	Ports          []PortBinding
	Env            map[string]string
	ReadinessProbe *probe.Spec
	Stdout         io.Writer
	Stderr         io.Writer
}

// HostPorts returns the host side of every binding, in declaration order.
func (c *Container) HostPorts() []int {
	ports := make([]int, 0, len(c.Ports))
	for _, p := range c.Ports {
		ports = append(ports, p.Host)
	}
	return ports
}

// Validate checks the fields Start requires.
func (c *Container) Validate() error {
	if c == nil {
		return fault.Configf("container", "missing container configuration")
	}
	if c.Image == "" {
		return fault.Configf("container.image", "is required")
	}
	if len(c.Ports) == 0 {
		return fault.Configf("container.ports", "at least one port binding is required")
	}
	for i, p := range c.Ports {
		if p.Host <= 0 || p.Container <= 0 {
			return fault.Configf(fmt.Sprintf("container.ports[%d]", i), "host and container ports must be positive")
		}
	}
	if c.ReadinessProbe != nil {
		if err := c.ReadinessProbe.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Image
}

// RunRequest is what an Engine needs to spawn one container.
type RunRequest struct {
	Name   string
	Image  string
	Ports  []PortBinding
	Env    map[string]string
	Stdout io.Writer
	Stderr io.Writer
}

// Engine runs, finds and removes containers.
type Engine interface {
	// Run starts a detached container. A non-zero exit is an error.
	Run(ctx context.Context, req RunRequest) error

	// FindID returns the id of the running container named name, or "" when
	// none is running.
	FindID(ctx context.Context, name string) (string, error)

	// Remove force-removes the container with id. A container name is
	// accepted in place of the id.
	Remove(ctx context.Context, id string) error
}

// Target is either a raw container id or a Termination. Build one with ByID
// or ByTermination.
type Target struct {
	id   string
	term release.Termination
}

// ByID targets a container by id.
func ByID(id string) Target { return Target{id: id} }

// ByTermination targets whatever t releases.
func ByTermination(t release.Termination) Target { return Target{term: t} }

// String describes the target for logs.
func (t Target) String() string {
	if t.term != nil {
		return "termination"
	}
	return "id " + t.id
}
