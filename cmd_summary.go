package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the variable and layer table of a configured network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		applyFlags(cmd, &c)
		if cmd.Flags().Changed("x-dim") {
			c.Model.XDim = summaryXDim
		}
		if cmd.Flags().Changed("y-dim") {
			c.Model.YDim = summaryYDim
		}

		model, err := NewMDN(c.Model, newRand(c.Train.Seed+1))
		if err != nil {
			return err
		}
		if _, err := model.Summary().WriteTo(cmd.OutOrStdout()); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
		return nil
	},
}

var summaryXDim, summaryYDim int

func init() {
	summaryCmd.Flags().IntVar(&summaryXDim, "x-dim", 0, "Input dimension")
	summaryCmd.Flags().IntVar(&summaryYDim, "y-dim", 0, "Output dimension")
	summaryCmd.Flags().StringVar(&flagVariant, "variant", "", "Mixture variant: shared or independent")
	addModelFlags(summaryCmd)
}
