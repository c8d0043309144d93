package main

import (
	"fmt"
	"math/big"
	"mime"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"xdao.co/nftcard/card"
	"xdao.co/nftcard/internal/app"
	"xdao.co/nftcard/model"
	"xdao.co/nftcard/resolver"
)

type cardFlags struct {
	name        string
	description string
	avatar      string
}

func (f *cardFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.description, "description", "", "bio")
	cmd.Flags().StringVar(&f.avatar, "avatar", "", "avatar image file (default: generated initials)")
}

func (f *cardFlags) input() (card.Input, error) {
	in := card.Input{DisplayName: f.name, Bio: f.description}
	if f.avatar == "" {
		return in, nil
	}
	data, err := os.ReadFile(f.avatar)
	if err != nil {
		return in, fmt.Errorf("read %s: %w", filepath.Base(f.avatar), err)
	}
	in.Avatar = &card.Blob{Data: data, MIMEType: mime.TypeByExtension(filepath.Ext(f.avatar))}
	return in, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%q is not a hex address", s)
	}
	return common.HexToAddress(s), nil
}

func parseTokenID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("token id %q must be a non-negative integer", s)
	}
	return id, nil
}

func (c *cli) publishCmd() *cobra.Command {
	var f cardFlags
	var creator string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload a card's avatar and metadata without minting",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := f.input()
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			var addr common.Address
			switch {
			case creator != "":
				if addr, err = parseAddress(creator); err != nil {
					return err
				}
			case a.Account != nil:
				addr = a.Account.Address()
			default:
				return fmt.Errorf("--creator is required without a configured wallet")
			}
			pub, err := a.Publisher.Publish(cmd.Context(), in, addr)
			if err != nil {
				return err
			}
			return c.printJSON(model.FromPublication(pub))
		},
	}
	f.add(cmd)
	cmd.Flags().StringVar(&creator, "creator", "", "creator address (default: wallet address)")
	return cmd
}

func (c *cli) mintCmd() *cobra.Command {
	var f cardFlags
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Publish a card and mint it to the wallet account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := f.input()
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), app.Options{RequireLedger: true, RequireSigner: true})
			if err != nil {
				return err
			}
			defer a.Close()

			m, err := a.Cards.Mint(cmd.Context(), in, a.Account.Address())
			if err != nil {
				return err
			}
			return c.printJSON(model.FromMinted(m))
		},
	}
	f.add(cmd)
	return cmd
}

func (c *cli) resolveCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "resolve <token-uri>",
		Short: "Resolve a token URI into a render-ready card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()
			return c.printJSON(a.Resolver.Resolve(cmd.Context(), resolver.OnChain{
				Name:        name,
				Description: description,
				MetadataURI: args[0],
			}))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "on-chain name to fall back to")
	cmd.Flags().StringVar(&description, "description", "", "on-chain description to fall back to")
	return cmd
}

func (c *cli) cardsCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "cards",
		Short: "List minted cards, newest first, or those held by --owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context(), app.Options{RequireLedger: true})
			if err != nil {
				return err
			}
			defer a.Close()

			var cards []resolver.Card
			if owner != "" {
				addr, err := parseAddress(owner)
				if err != nil {
					return err
				}
				cards, err = a.Cards.OwnedCards(cmd.Context(), addr)
				if err != nil {
					return err
				}
			} else if cards, err = a.Cards.AllCards(cmd.Context()); err != nil {
				return err
			}
			return c.printJSON(model.NewCardList(cards))
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only cards held by this address")
	return cmd
}

func (c *cli) cardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "card <token-id>",
		Short: "Resolve one minted card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context(), app.Options{RequireLedger: true})
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.Cards.Card(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printJSON(out)
		},
	}
}
