package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"xdao.co/nftcard/config"
	"xdao.co/nftcard/internal/app"
)

// cli carries what every subcommand shares: streams and root flags.
type cli struct {
	out    io.Writer
	errOut io.Writer

	cfgPath  string
	logLevel string
	verbose  bool

	// openApp replaces app assembly in tests.
	openApp func(ctx context.Context, opts app.Options) (*app.App, error)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	return (&cli{out: out, errOut: errOut}).execute(ctx, args)
}

func (c *cli) execute(ctx context.Context, args []string) int {
	out, errOut := c.out, c.errOut
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cardctl",
		Short:         "Publish, mint and browse NFT business cards",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", os.Getenv("NFTCARD_CONFIG"), "path to YAML config")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level (overrides log.level)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.publishCmd(),
		c.mintCmd(),
		c.resolveCmd(),
		c.cardsCmd(),
		c.cardCmd(),
		c.deployCmd(),
		c.casCmd(),
		c.keyCmd(),
		c.avatarCmd(),
	)
	return root
}

func (c *cli) config() (*config.Config, error) {
	cfg, err := config.Load(c.cfgPath)
	if err != nil {
		return nil, err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func (c *cli) logger(cfg *config.Config) zerolog.Logger {
	return cfg.Log.Logger(c.errOut).With().Str("service", "cardctl").Logger()
}

func (c *cli) open(ctx context.Context, opts app.Options) (*app.App, error) {
	if c.openApp != nil {
		return c.openApp(ctx, opts)
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, c.logger(cfg), opts)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
