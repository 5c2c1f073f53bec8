package cliconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bft-labs/flowrig/pkg/fault"
	"github.com/bft-labs/flowrig/pkg/flowengine"
	"github.com/bft-labs/flowrig/pkg/flowtest"
	"github.com/bft-labs/flowrig/pkg/lifecycle"
	"github.com/bft-labs/flowrig/pkg/probe"
	"github.com/bft-labs/flowrig/pkg/resource"
	"github.com/bft-labs/flowrig/pkg/testenv"
)

// Case is a runnable flow test read from a [[case]] table.
type Case struct {
	Name       string
	Connection string
	Timeout    time.Duration
	Input      flowtest.Input
	Output     flowtest.Output
}

// Environment converts the file tables into a testenv.Config.
func (fc FileConfig) Environment() (testenv.Config, error) {
	var env testenv.Config

	for i, cc := range fc.Containers {
		c, err := cc.container(fmt.Sprintf("container[%d]", i))
		if err != nil {
			return testenv.Config{}, err
		}
		env.Containers = append(env.Containers, c)
	}

	if fc.Flow != nil {
		f, err := fc.Flow.flow()
		if err != nil {
			return testenv.Config{}, err
		}
		env.Flow = &f
	}

	seen := map[string]bool{}
	for i, rc := range fc.Resources {
		field := fmt.Sprintf("resource[%d]", i)
		if rc.Name == "" {
			return testenv.Config{}, fault.Configf(field+".name", "missing name")
		}
		if seen[rc.Name] {
			return testenv.Config{}, fault.Configf(field+".name", "duplicate resource %q", rc.Name)
		}
		seen[rc.Name] = true

		f, err := rc.factory(field)
		if err != nil {
			return testenv.Config{}, err
		}
		env.Resources = env.Resources.Add(rc.Name, f)
	}

	return env, nil
}

// TestCases converts the [[case]] tables. fallback is the timeout of cases
// that do not set their own.
func (fc FileConfig) TestCases(fallback time.Duration) ([]Case, error) {
	cases := make([]Case, 0, len(fc.Cases))
	for i, cc := range fc.Cases {
		field := fmt.Sprintf("case[%d]", i)
		name := cc.Name
		if name == "" {
			name = field
		}
		if cc.Connection == "" {
			return nil, fault.Configf(field+".connection", "missing amqp resource name")
		}
		timeout := fallback
		if cc.Timeout != "" {
			d, err := time.ParseDuration(cc.Timeout)
			if err != nil {
				return nil, fault.Configf(field+".timeout", "%v", err)
			}
			timeout = d
		}

		out := flowtest.Output{
			Queues:             cc.Output.Queues,
			ExpectedQueue:      cc.Output.ExpectedQueue,
			ExpectedPayload:    cc.Output.ExpectedPayload,
			ExpectedProperties: cc.Output.ExpectedProperties,
		}
		for _, b := range cc.Output.Bindings {
			out.Bindings = append(out.Bindings, flowtest.Binding(b))
		}

		cases = append(cases, Case{
			Name:       name,
			Connection: cc.Connection,
			Timeout:    timeout,
			Input: flowtest.Input{
				Exchange:     cc.Input.Exchange,
				ExchangeType: cc.Input.ExchangeType,
				RoutingKey:   cc.Input.RoutingKey,
				Payload:      cc.Input.Payload,
				Properties:   flowtest.Properties(cc.Input.Properties),
			},
			Output: out,
		})
	}
	return cases, nil
}

func (cc ContainerConfig) container(field string) (lifecycle.Container, error) {
	c := lifecycle.Container{
		Name:  cc.Name,
		Image: cc.Image,
		Env:   cc.Env,
	}
	for _, p := range cc.Ports {
		c.Ports = append(c.Ports, lifecycle.PortBinding(p))
	}
	if cc.Probe != nil {
		spec, err := cc.Probe.spec(field + ".probe")
		if err != nil {
			return lifecycle.Container{}, err
		}
		c.ReadinessProbe = spec
	}
	return c, nil
}

func (fl FlowConfig) flow() (flowengine.Flow, error) {
	f := flowengine.Flow{
		Command:  fl.Command,
		Path:     fl.Path,
		Port:     fl.Port,
		UserDir:  fl.UserDir,
		Settings: fl.Settings,
		Env:      fl.Env,
	}
	if fl.Probe != nil {
		spec, err := fl.Probe.spec("flow.probe")
		if err != nil {
			return flowengine.Flow{}, err
		}
		f.ReadinessProbe = spec
	}
	return f, nil
}

func (pc ProbeConfig) spec(field string) (*probe.Spec, error) {
	spec := &probe.Spec{
		FailureThreshold: pc.FailureThreshold,
		SuccessThreshold: pc.SuccessThreshold,
	}
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"initial_delay", pc.InitialDelay, &spec.InitialDelay},
		{"period", pc.Period, &spec.Period},
		{"timeout", pc.Timeout, &spec.Timeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fault.Configf(field+"."+d.name, "%v", err)
		}
		*d.dst = v
	}

	switch strings.ToLower(pc.Kind) {
	case "", "http":
		spec.Check = probe.HTTP(probe.HTTPOptions{Path: pc.Path})
	case "amqp":
		spec.Check = probe.AMQP(pc.URL)
	case "redis":
		spec.Check = probe.Redis(redisOptions(pc.Addr, "", 0))
	default:
		return nil, fault.Configf(field+".kind", "unknown probe kind %q", pc.Kind)
	}
	return spec, nil
}

func (rc ResourceConfig) factory(field string) (resource.Factory, error) {
	switch strings.ToLower(rc.Kind) {
	case "amqp":
		return resource.AMQP(rc.URL), nil
	case "redis":
		return resource.Redis(redisOptions(rc.Addr, rc.Password, rc.DB)), nil
	case "static":
		return resource.Static(rc.Value, nil), nil
	default:
		return nil, fault.Configf(field+".kind", "unknown resource kind %q", rc.Kind)
	}
}

func redisOptions(addr, password string, db int) *redis.Options {
	if addr == "" {
		addr = resource.DefaultRedisAddr
	}
	return &redis.Options{Addr: addr, Password: password, DB: db}
}
