package ipfs

import (
	"flag"
	"strconv"
	"strings"
	"time"

	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/casregistry"
)

var (
	flagEndpoint  string
	flagAuthToken string
	flagPin       bool
	flagTimeout   time.Duration
)

func init() {
	casregistry.MustRegister(casregistry.Backend{
		Name:        "ipfs",
		Description: "IPFS node or pinning service via the Kubo RPC API",
		Usage:       casregistry.UsageCLI | casregistry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagEndpoint, "ipfs-endpoint", DefaultEndpoint, "Kubo RPC endpoint (for --backend=ipfs)")
			fs.StringVar(&flagAuthToken, "ipfs-auth-token", "", "RPC credentials: user:secret (Basic) or a bearer token")
			fs.BoolVar(&flagPin, "ipfs-pin", true, "Pin written blocks")
			fs.DurationVar(&flagTimeout, "ipfs-timeout", 30*time.Second, "Per-RPC timeout")
		},
		Open: func() (storage.CAS, func() error, error) {
			return open(flagEndpoint, flagAuthToken, flagPin, flagTimeout)
		},
		OpenConfig: func(cfg map[string]string) (storage.CAS, func() error, error) {
			pin := true
			if v := strings.TrimSpace(cfg["pin"]); v != "" {
				b, err := strconv.ParseBool(v)
				if err != nil {
					return nil, nil, err
				}
				pin = b
			}
			timeout := 30 * time.Second
			if v := strings.TrimSpace(cfg["timeout"]); v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, nil, err
				}
				timeout = d
			}
			return open(cfg["endpoint"], cfg["auth-token"], pin, timeout)
		},
	})
}

func open(endpoint, token string, pin bool, timeout time.Duration) (storage.CAS, func() error, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, nil, errMissingEndpoint
	}
	return New(Options{Endpoint: endpoint, AuthToken: token, Pin: pin, Timeout: timeout}), nil, nil
}
