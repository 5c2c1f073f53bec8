// Package testenv assembles a test environment and tears it down.
//
// Setup starts containers, the flow engine and resources in that order and
// returns a [Context] holding their terminations and the resource values:
//
//	env, err := testenv.Setup(ctx, testenv.Config{
//	    Containers: containers,
//	    Flow:       &flowengine.Flow{Path: "flows.json"},
//	    Resources:  resource.Factories{}.Add("amqp", resource.AMQP("")),
//	}, testenv.WithEngine(docker.New()))
//	if err != nil {
//	    return err
//	}
//	defer testenv.Teardown(ctx, env)
//
//	conn, err := testenv.Get[*amqp091.Connection](env, "amqp")
//
// Values are passed explicitly to whatever consumes them; nothing is
// published globally.
package testenv
