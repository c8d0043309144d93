package resolver

import (
	"time"

	"github.com/rs/zerolog"

	"xdao.co/nftcard/cache"
	"xdao.co/nftcard/metrics"
)

// Mode selects how aggressively the resolver rejects content it cannot verify.
//
// Both modes check fetched bytes against raw-codec CIDs. Strict mode also
// degrades cards whose metadata is not addressed by a verifiable CID.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "permissive"
}

// ParseMode accepts "strict" or "permissive" (empty means permissive).
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "", "permissive":
		return Permissive, true
	case "strict":
		return Strict, true
	default:
		return Permissive, false
	}
}

const (
	DefaultTimeout     = 30 * time.Second
	DefaultConcurrency = 8
)

type Options struct {
	// GatewayBase is used to normalize locators for display and, with the
	// default fetcher, to fetch them.
	GatewayBase string
	// Fetcher retrieves content bytes. Defaults to a GatewayFetcher on GatewayBase.
	Fetcher Fetcher
	Mode    Mode
	// Timeout bounds one metadata fetch.
	Timeout time.Duration
	// Cache stores verified content bytes by CID. Optional.
	Cache cache.Cache
	// Concurrency caps in-flight resolutions in ResolveAll.
	Concurrency int

	// ExplorerBase and Contract build Card.ExplorerURL
	// (<ExplorerBase>/token/<Contract>?a=<tokenId>). Empty disables links.
	ExplorerBase string
	Contract     string

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}
