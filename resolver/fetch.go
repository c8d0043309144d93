package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"xdao.co/nftcard/locator"
	"xdao.co/nftcard/storage"
)

// DefaultMaxBytes bounds a metadata document fetched over HTTP.
const DefaultMaxBytes = 1 << 20

// Fetcher retrieves the bytes a content-addressed locator names.
type Fetcher interface {
	Fetch(ctx context.Context, l locator.Locator) ([]byte, error)
}

// FetchError describes a failed fetch. StatusCode is set when the gateway
// answered with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// GatewayFetcher fetches <Base>/<cid>[/path] over HTTP(S).
type GatewayFetcher struct {
	Base     string
	Client   *http.Client
	MaxBytes int64
}

func (g *GatewayFetcher) Fetch(ctx context.Context, l locator.Locator) ([]byte, error) {
	if l.Kind() != locator.KindContentAddressed {
		return nil, locator.ErrUnsupported
	}
	u := l.GatewayURL(g.Base)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	req.Header.Set("Accept", "application/json, */*;q=0.5")

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: u, StatusCode: resp.StatusCode}
	}

	limit := g.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &FetchError{URL: u, Err: err}
	}
	if int64(len(b)) > limit {
		return nil, &FetchError{URL: u, Err: fmt.Errorf("response exceeds %d bytes", limit)}
	}
	return b, nil
}

// CASFetcher reads directly from a content-addressed store, consulting
// adapters in order. Sub-paths are not supported: a raw block has no
// directory structure.
type CASFetcher struct {
	CAS storage.CAS
}

// NewCASFetcher builds a fetcher over one or more stores.
func NewCASFetcher(adapters ...storage.CAS) *CASFetcher {
	if len(adapters) == 1 {
		return &CASFetcher{CAS: adapters[0]}
	}
	return &CASFetcher{CAS: storage.MultiCAS{Adapters: adapters}}
}

func (f *CASFetcher) Fetch(ctx context.Context, l locator.Locator) ([]byte, error) {
	if l.Kind() != locator.KindContentAddressed || l.Path() != "" {
		return nil, locator.ErrUnsupported
	}
	if f.CAS == nil {
		return nil, &FetchError{URL: l.String(), Err: errors.New("no content store configured")}
	}
	b, err := f.CAS.Get(ctx, l.CID())
	if err != nil {
		return nil, &FetchError{URL: l.String(), Err: err}
	}
	return b, nil
}

// detail renders the precise cause of a fetch failure for Card.Detail.
func detail(err error) string {
	var fe *FetchError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &fe) && fe.StatusCode != 0:
		return fmt.Sprintf("http %d", fe.StatusCode)
	case errors.Is(err, storage.ErrNotFound):
		return "not found"
	case errors.As(err, &fe) && fe.Err != nil:
		return strings.TrimSpace(fe.Err.Error())
	default:
		return err.Error()
	}
}
