package probe

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bft-labs/flowrig/pkg/resource"
)

// AMQP returns a check that opens and closes a broker connection at url.
// Ports are ignored; the url carries the address.
func AMQP(url string) Func {
	return viaFactory("amqp", resource.AMQP(url))
}

// Redis returns a check that connects with opts and issues PING.
func Redis(opts *redis.Options) Func {
	return viaFactory("redis", resource.Redis(opts))
}

func viaFactory(kind string, f resource.Factory) Func {
	return func(ctx context.Context, _ []int) error {
		res, err := f(ctx)
		if err != nil {
			return fmt.Errorf("%s probe: %w", kind, err)
		}
		if err := res.Terminate(ctx); err != nil {
			return fmt.Errorf("%s probe: close: %w", kind, err)
		}
		return nil
	}
}
