// Package lifecycle starts and stops the containers a test run depends on.
//
// An [Orchestrator] drives an [Engine] (the docker CLI in production, a fake
// in tests) and tracks every container with a small state machine:
//
//	Unstarted -> Starting -> Probing -> Running -> Stopped
//	                 |           |
//	                 +-> Failed <+
//
// Adopted containers go straight from Unstarted to Running.
//
// # Usage
//
//	orch := lifecycle.NewOrchestrator(docker.New(), lifecycle.WithLogger(logger))
//
//	terms, err := orch.StartAll(ctx, []lifecycle.Container{{
//	    Image: "rabbitmq:3-management",
//	    Ports: []lifecycle.PortBinding{{Host: 5672, Container: 5672}},
//	    ReadinessProbe: &probe.Spec{Check: probe.AMQP("")},
//	}})
//	if err != nil {
//	    return err
//	}
//	defer release.Sweep(ctx, "stop containers", terms)
//
// StartAll is all-or-nothing. StopAll never short-circuits.
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package lifecycle
