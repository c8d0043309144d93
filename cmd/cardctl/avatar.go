package main

import (
	"github.com/spf13/cobra"

	"xdao.co/nftcard/avatar"
)

func (c *cli) avatarCmd() *cobra.Command {
	var fallback bool
	cmd := &cobra.Command{
		Use:   "avatar <name>",
		Short: "Print the generated SVG avatar for a display name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svg := avatar.SVG(args[0])
			if fallback {
				svg = avatar.FallbackSVG(args[0])
			}
			_, err := c.out.Write(append(svg, '\n'))
			return err
		},
	}
	cmd.Flags().BoolVar(&fallback, "fallback", false, "print the fallback glyph instead")
	return cmd
}
