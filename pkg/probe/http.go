package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// HTTPOptions configures the HTTP reachability check.
type HTTPOptions struct {
	// Path is requested on every port. Default "/".
	Path string
	// Method defaults to GET.
	Method string
	// Scheme is "http" or "https". Default "http".
	Scheme string
	// Host defaults to 127.0.0.1.
	Host string
	// Client defaults to a client with a 5 second timeout.
	Client *http.Client
}

// HTTP returns a check that requests Path on every port concurrently and
// passes when all of them answer with a 2xx status.
func HTTP(opts HTTPOptions) Func {
	if opts.Path == "" {
		opts.Path = "/"
	}
	if !strings.HasPrefix(opts.Path, "/") {
		opts.Path = "/" + opts.Path
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	opts.Scheme = strings.TrimSuffix(opts.Scheme, ":")
	if opts.Scheme == "" {
		opts.Scheme = "http"
	}
	if opts.Host == "" {
		opts.Host = "127.0.0.1"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Second}
	}

	return func(ctx context.Context, ports []int) error {
		if len(ports) == 0 {
			return fmt.Errorf("http probe: no ports to check")
		}
		g, ctx := errgroup.WithContext(ctx)
		for _, port := range ports {
			port := port
			g.Go(func() error {
				return httpRequest(ctx, opts, port)
			})
		}
		return g.Wait()
	}
}

func httpRequest(ctx context.Context, opts HTTPOptions, port int) error {
	url := fmt.Sprintf("%s://%s:%d%s", opts.Scheme, opts.Host, port, opts.Path)
	req, err := http.NewRequestWithContext(ctx, opts.Method, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := opts.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", opts.Method, url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: unexpected status %d", opts.Method, url, resp.StatusCode)
	}
	return nil
}
