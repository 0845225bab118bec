package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openrig/openrig/pkg/engine"
)

// maxKeySize bounds how much key material a single fetch may return.
const maxKeySize = 1 << 20

// HTTPKeyFetcher retrieves signing keys over HTTP. It implements
// engine.KeyFetcher.
type HTTPKeyFetcher struct {
	client *http.Client
}

// NewHTTPKeyFetcher creates a key fetcher with a bounded request timeout.
func NewHTTPKeyFetcher(timeout time.Duration) *HTTPKeyFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPKeyFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads key material from url. Network failures and non-success
// statuses are transient: the key may well be reachable on the next run.
func (f *HTTPKeyFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, engine.NewInternalError(fmt.Sprintf("invalid key URL %s", url), err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, engine.NewTransientError(fmt.Sprintf("failed to fetch signing key from %s", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, engine.NewTransientError(fmt.Sprintf("signing key fetch from %s returned %s", url, resp.Status), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxKeySize))
	if err != nil {
		return nil, engine.NewTransientError(fmt.Sprintf("failed to read signing key from %s", url), err)
	}
	if len(data) == 0 {
		return nil, engine.NewTransientError(fmt.Sprintf("signing key fetch from %s returned an empty body", url), nil)
	}
	return data, nil
}
