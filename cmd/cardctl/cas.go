package main

import (
	"flag"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"

	"xdao.co/nftcard/internal/app"
	"xdao.co/nftcard/storage"
	"xdao.co/nftcard/storage/bundle"
	"xdao.co/nftcard/storage/casregistry"
)

type casFlags struct {
	backend string
}

// store opens --backend when given, otherwise the configured storage.
func (c *cli) store(f *casFlags) (storage.CAS, func() error, error) {
	if f.backend != "" {
		return casregistry.Open(f.backend, casregistry.UsageCLI)
	}
	cfg, err := c.config()
	if err != nil {
		return nil, nil, err
	}
	return cfg.Storage.Open(casregistry.UsageCLI, "")
}

func closeStore(closeFn func() error) {
	if closeFn != nil {
		_ = closeFn()
	}
}

func (c *cli) casCmd() *cobra.Command {
	f := &casFlags{}
	cmd := &cobra.Command{
		Use:   "cas",
		Short: "Work with the content-addressed store directly",
	}
	cmd.PersistentFlags().StringVar(&f.backend, "backend", "", "CAS backend name (default: configured storage)")
	gfs := flag.NewFlagSet("cas", flag.ContinueOnError)
	casregistry.RegisterFlags(gfs, casregistry.UsageCLI)
	cmd.PersistentFlags().AddGoFlagSet(gfs)

	cmd.AddCommand(
		c.casBackendsCmd(),
		c.casPutCmd(f),
		c.casGetCmd(f),
		c.casExportCmd(f),
		c.casImportCmd(f),
	)
	return cmd
}

func (c *cli) casBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List linked CAS backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, b := range casregistry.List(casregistry.UsageCLI) {
				if b.Description == "" {
					_, _ = fmt.Fprintf(c.out, "%s\n", b.Name)
					continue
				}
				_, _ = fmt.Fprintf(c.out, "%s\t%s\n", b.Name, b.Description)
			}
			return nil
		},
	}
}

func (c *cli) casPutCmd(f *casFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Store a file as a raw block and print its CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", filepath.Base(args[0]), err)
			}
			cas, closeFn, err := c.store(f)
			if err != nil {
				return err
			}
			defer closeStore(closeFn)

			id, err := cas.Put(cmd.Context(), b)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, id.String())
			return err
		},
	}
}

func (c *cli) casGetCmd(f *casFlags) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "get <cid>",
		Short: "Fetch a block by CID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cid.Decode(args[0])
			if err != nil {
				return storage.ErrInvalidCID
			}
			cas, closeFn, err := c.store(f)
			if err != nil {
				return err
			}
			defer closeStore(closeFn)

			b, err := cas.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err = c.out.Write(b)
				return err
			}
			return os.WriteFile(outPath, b, 0o600)
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output file (default stdout)")
	return cmd
}

func (c *cli) casExportCmd(f *casFlags) *cobra.Command {
	var outPath string
	var noIndex bool
	var tokens []string
	cmd := &cobra.Command{
		Use:   "export [cid]...",
		Short: "Write blocks, or every block behind the given tokens, to a deterministic TAR bundle",
		Long: "Export writes the named blocks to a TAR bundle. With --token, the metadata and\n" +
			"image blocks of each minted card are added and labelled card-<id>/metadata and\n" +
			"card-<id>/image in index.json.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			if len(args) == 0 && len(tokens) == 0 {
				return fmt.Errorf("give at least one cid or --token")
			}
			if noIndex && len(tokens) > 0 {
				return fmt.Errorf("--no-index drops the card labels; leave it off with --token")
			}
			ids := make([]cid.Cid, 0, len(args))
			for _, s := range args {
				id, err := cid.Decode(s)
				if err != nil {
					return fmt.Errorf("%s: %w", s, storage.ErrInvalidCID)
				}
				ids = append(ids, id)
			}

			var (
				cas    storage.CAS
				labels map[string]cid.Cid
			)
			if len(tokens) > 0 {
				a, err := c.open(cmd.Context(), app.Options{RequireLedger: true})
				if err != nil {
					return err
				}
				defer a.Close()
				cas = a.CAS
				if f.backend != "" {
					store, closeFn, err := c.store(f)
					if err != nil {
						return err
					}
					defer closeStore(closeFn)
					cas = store
				}
				labels = map[string]cid.Cid{}
				for _, t := range tokens {
					tokenID, err := parseTokenID(t)
					if err != nil {
						return err
					}
					blocks, err := a.Cards.Blocks(cmd.Context(), cas, tokenID)
					if err != nil {
						return fmt.Errorf("token %s: %w", t, err)
					}
					ids = append(ids, blocks.CIDs()...)
					maps.Copy(labels, blocks.Labels())
				}
			} else {
				store, closeFn, err := c.store(f)
				if err != nil {
					return err
				}
				defer closeStore(closeFn)
				cas = store
			}

			file, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			opts := bundle.ExportOptions{IncludeIndex: !noIndex, Labels: labels}
			if err := bundle.Export(cmd.Context(), file, cas, ids, opts); err != nil {
				_ = file.Close()
				return err
			}
			return file.Close()
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "bundle file to write")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "omit index.json")
	cmd.Flags().StringSliceVar(&tokens, "token", nil, "token id whose metadata and image blocks to export (repeatable)")
	return cmd
}

func (c *cli) casImportCmd(f *casFlags) *cobra.Command {
	var ignoreUnknown bool
	cmd := &cobra.Command{
		Use:   "import <bundle>",
		Short: "Import every block from a TAR bundle",
		Long:  "Import prints each imported CID, then each index label as <label>\t<cid>.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			cas, closeFn, err := c.store(f)
			if err != nil {
				return err
			}
			defer closeStore(closeFn)

			got, err := bundle.ImportWithOptions(cmd.Context(), file, cas, bundle.ImportOptions{IgnoreUnknown: ignoreUnknown})
			if err != nil {
				return err
			}
			for _, id := range got.CIDs {
				if _, err := fmt.Fprintln(c.out, id.String()); err != nil {
					return err
				}
			}
			for _, name := range slices.Sorted(maps.Keys(got.Labels)) {
				if _, err := fmt.Fprintf(c.out, "%s\t%s\n", name, got.Labels[name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&ignoreUnknown, "ignore-unknown", false, "skip entries that are not blocks")
	return cmd
}
