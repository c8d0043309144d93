package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"xdao.co/nftcard/internal/app"
	"xdao.co/nftcard/ledger/evm"
)

func (c *cli) deployCmd() *cobra.Command {
	var bytecodePath string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the card contract and print deployment info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if bytecodePath == "" {
				return fmt.Errorf("--bytecode is required")
			}
			raw, err := os.ReadFile(bytecodePath)
			if err != nil {
				return err
			}
			code, err := evm.DecodeBytecode(string(raw))
			if err != nil {
				return err
			}

			cfg, err := c.config()
			if err != nil {
				return err
			}
			log := c.logger(cfg)
			acct, err := app.LoadAccount(cfg.Wallet)
			if err != nil {
				return fmt.Errorf("wallet: %w", err)
			}
			signer, err := acct.TransactOpts(cfg.Network.ChainIDBig())
			if err != nil {
				return err
			}
			client, err := app.Dial(cmd.Context(), cfg.Network)
			if err != nil {
				return err
			}
			defer client.Close()

			log.Info().Str("deployer", acct.Address().Hex()).Str("network", cfg.Network.Name).Msg("deploying")
			_, info, err := evm.Deploy(cmd.Context(), client, signer, code, cfg.Network.Name, evm.Options{
				PollMin: cfg.Ledger.PollMin,
				PollMax: cfg.Ledger.PollMax,
				Logger:  log,
			})
			if err != nil {
				return err
			}
			return c.printJSON(info)
		},
	}
	cmd.Flags().StringVar(&bytecodePath, "bytecode", "", "file holding the contract creation bytecode as hex")
	return cmd
}
