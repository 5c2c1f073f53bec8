// Package probe runs readiness checks under a bounded retry policy.
//
// A [Spec] pairs a check [Func] with the retry policy: an optional initial
// delay, a failure budget, a consecutive-success requirement and an optional
// cumulative timeout. Between attempts the runner waits a randomized backoff
// that starts at [MinBackoff] and doubles up to Spec.Period.
//
// Builtin checks cover HTTP reachability ([HTTP]), broker connectivity
// ([AMQP]) and cache ping ([Redis]); any func(ctx, ports) error works.
//
//	spec := &probe.Spec{
//	    InitialDelay:     2 * time.Second,
//	    FailureThreshold: 5,
//	    Check:            probe.HTTP(probe.HTTPOptions{Path: "/"}),
//	}
//	if err := probe.Perform(ctx, spec, []int{1880}); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package probe
