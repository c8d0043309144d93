// Package app assembles the card components from a loaded configuration.
// Both binaries share it so the daemon and the CLI see the same stack.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"xdao.co/nftcard/cache"
	"xdao.co/nftcard/cardsvc"
	"xdao.co/nftcard/config"
	"xdao.co/nftcard/ledger"
	"xdao.co/nftcard/ledger/evm"
	"xdao.co/nftcard/ledger/memledger"
	"xdao.co/nftcard/metrics"
	"xdao.co/nftcard/publisher"
	"xdao.co/nftcard/resolver"
	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/casregistry"
	"xdao.co/nftcard/wallet"

	_ "xdao.co/nftcard/storage/grpccas"
	_ "xdao.co/nftcard/storage/ipfs"
	_ "xdao.co/nftcard/storage/localfs"
	_ "xdao.co/nftcard/storage/memory"
	_ "xdao.co/nftcard/storage/s3cas"
)

// ErrNoContract is returned when the evm ledger is selected without a
// contract address.
var ErrNoContract = errors.New("network.contract is not configured")

type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	CAS       storage.CAS
	Cache     cache.Cache
	Publisher *publisher.Publisher
	Resolver  *resolver.Resolver

	// Client is the node connection for the evm ledger; nil for memory.
	Client *ethclient.Client
	// Ledger and Cards are nil when no contract is configured.
	Ledger  ledger.Ledger
	Account *wallet.Account
	Cards   *cardsvc.Service

	closers []func() error
}

// Options choose which parts are required for a given command.
type Options struct {
	// Usage selects CAS backends allowed for the caller.
	Usage casregistry.Usage
	// RequireLedger fails Open when no ledger can be built.
	RequireLedger bool
	// RequireSigner fails Open when no wallet account is configured.
	RequireSigner bool
}

// Open builds every component. Close releases what it opened.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (_ *App, err error) {
	if opts.Usage == 0 {
		opts.Usage = casregistry.UsageCLI
	}
	a := &App{Config: cfg, Log: log, Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	cas, closeCAS, err := cfg.Storage.Open(opts.Usage, "")
	if err != nil {
		return nil, err
	}
	a.CAS = cas
	a.onClose(closeCAS)

	if a.Cache, err = openCache(ctx, cfg.Cache); err != nil {
		return nil, err
	}
	if a.Cache != nil {
		a.onClose(a.Cache.Close)
	}

	a.Publisher = publisher.New(a.CAS, publisher.Options{
		GatewayBase: cfg.Gateway,
		ExternalURL: cfg.Publisher.ExternalURL,
		Timeout:     cfg.Publisher.Timeout,
		MaxAttempts: cfg.Publisher.MaxAttempts,
		RetryMin:    cfg.Publisher.RetryMin,
		RetryMax:    cfg.Publisher.RetryMax,
		Logger:      log,
		Metrics:     a.Metrics,
	})
	a.Resolver = resolver.New(resolver.Options{
		GatewayBase:  cfg.Gateway,
		Fetcher:      &resolver.GatewayFetcher{Base: cfg.Gateway, MaxBytes: cfg.Resolver.MaxBodyBytes},
		Mode:         cfg.Resolver.ResolverMode(),
		Timeout:      cfg.Resolver.Timeout,
		Cache:        a.Cache,
		Concurrency:  cfg.Resolver.Concurrency,
		ExplorerBase: cfg.Network.Explorer,
		Contract:     cfg.Network.Contract,
		Logger:       log,
		Metrics:      a.Metrics,
	})

	if a.Account, err = LoadAccount(cfg.Wallet); err != nil && opts.RequireSigner {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	err = nil

	if err = a.openLedger(ctx); err != nil {
		if opts.RequireLedger || !errors.Is(err, ErrNoContract) {
			return nil, err
		}
		err = nil
	}
	if a.Ledger != nil {
		a.Cards = cardsvc.New(a.Publisher, a.Ledger, a.Resolver, cardsvc.Options{
			ConfirmTimeout: cfg.Ledger.ConfirmTimeout,
			Logger:         log,
		})
	}
	return a, nil
}

func (a *App) onClose(fn func() error) {
	if fn != nil {
		a.closers = append(a.closers, fn)
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func openCache(ctx context.Context, c config.Cache) (cache.Cache, error) {
	switch c.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(ctx, cache.MemoryConfig{LifeWindow: c.LifeWindow, MaxSizeMB: c.MaxSizeMB})
	case "redis":
		r := cache.NewRedis(cache.RedisConfig{
			Addr:      c.RedisAddr,
			Password:  c.RedisPass,
			DB:        c.RedisDB,
			KeyPrefix: c.RedisPrefix,
			TTL:       c.RedisTTL,
		})
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("cache: redis %s: %w", c.RedisAddr, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("cache: unknown backend %q", c.Backend)
	}
}

// LoadAccount resolves the signing account from wallet settings.
func LoadAccount(w config.Wallet) (*wallet.Account, error) {
	store, err := wallet.Open(w.Dir)
	if err != nil {
		return nil, err
	}
	return store.Load(w.Key, w.Name, w.Role, w.KeyFile)
}

// Dial connects to the configured node and checks its chain id.
func Dial(ctx context.Context, n config.Network) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, n.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", n.RPCURL, err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if id.Cmp(n.ChainIDBig()) != 0 {
		client.Close()
		return nil, fmt.Errorf("node is on chain %s, configured chain_id is %d", id, n.ChainID)
	}
	return client, nil
}

func (a *App) openLedger(ctx context.Context) error {
	cfg := a.Config
	if cfg.Ledger.Backend == "memory" {
		a.Ledger = memledger.New()
		return nil
	}
	if cfg.Network.Contract == "" {
		return ErrNoContract
	}
	client, err := Dial(ctx, cfg.Network)
	if err != nil {
		return err
	}
	a.Client = client
	a.onClose(func() error { client.Close(); return nil })

	opts := evm.Options{
		PollMin: cfg.Ledger.PollMin,
		PollMax: cfg.Ledger.PollMax,
		Logger:  a.Log,
		Metrics: a.Metrics,
	}
	if a.Account != nil {
		if opts.Signer, err = a.Account.TransactOpts(cfg.Network.ChainIDBig()); err != nil {
			return err
		}
	}
	a.Ledger = evm.New(cfg.Network.ContractAddress(), client, opts)
	return nil
}
