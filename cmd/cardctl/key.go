package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xdao.co/nftcard/wallet"
)

func (c *cli) keyCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage local signing keys",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "key directory (default ~/.xdao/nftcard/keys)")
	open := func() (*wallet.Store, error) { return wallet.Open(dir) }

	var keyHex string
	var overwrite bool
	initCmd := &cobra.Command{
		Use:   "init <name>",
		Short: "Create (or import with --key) a root key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			var raw []byte
			if keyHex != "" {
				raw, err = wallet.ParseKeyHex(keyHex)
			} else {
				raw, err = wallet.GenerateKey(nil)
			}
			if err != nil {
				return err
			}
			addr, path, err := s.Init(args[0], raw, overwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s\t%s\n", addr, path)
			return err
		},
	}
	initCmd.Flags().StringVar(&keyHex, "key", "", "import this hex private key instead of generating one")
	initCmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing key")

	var deriveOverwrite bool
	deriveCmd := &cobra.Command{
		Use:   "derive <name> <role>",
		Short: "Derive a role key from a root key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			addr, path, err := s.Derive(args[0], args[1], deriveOverwrite)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(c.out, "%s\t%s\n", addr, path)
			return err
		},
	}
	deriveCmd.Flags().BoolVar(&deriveOverwrite, "overwrite", false, "replace an existing role key")

	var role string
	addressCmd := &cobra.Command{
		Use:   "address <name>",
		Short: "Print the address of a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			addr, err := s.Address(args[0], role)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, addr)
			return err
		},
	}
	addressCmd.Flags().StringVar(&role, "role", "", "role key instead of the root key")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			entries, err := s.List()
			if err != nil {
				return err
			}
			for _, e := range entries {
				if _, err := fmt.Fprintf(c.out, "%s\t%s\t%v\n", e.Name, e.Address, e.Roles); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, deriveCmd, addressCmd, listCmd)
	return cmd
}
