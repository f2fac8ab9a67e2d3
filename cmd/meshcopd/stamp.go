package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meshcop/internal/random"
	"meshcop/internal/timestamp"
)

func newStampCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stamp",
		Short: "Inspect dataset timestamps (written as seconds.ticks, suffix a for authoritative)",
	}
	cmd.AddCommand(newStampCompareCommand(), newStampAdvanceCommand(), newStampEncodeCommand())
	return cmd
}

func newStampCompareCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compare A B",
		Short: "Print -1, 0 or 1 as A sorts before, equal to or after B (\"none\" is absent)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parseOptional(args[0])
			if err != nil {
				return err
			}
			b, err := parseOptional(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), timestamp.CompareOptional(a, b))
			return nil
		},
	}
}

func newStampAdvanceCommand() *cobra.Command {
	var count int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "advance TS",
		Short: "Advance a timestamp by random ticks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := timestamp.Parse(args[0])
			if err != nil {
				return err
			}

			var src random.Source = random.NewNonCrypto()
			if cmd.Flags().Changed("seed") {
				src = random.NewSeeded(seed, seed)
			}

			for i := 0; i < count; i++ {
				ts.AdvanceRandomTicks(src)
				fmt.Fprintln(cmd.OutOrStdout(), ts)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of advances")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Seed for a reproducible sequence")
	return cmd
}

func newStampEncodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode TS",
		Short: "Print the packed 8-byte wire form of a timestamp in hex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := timestamp.Parse(args[0])
			if err != nil {
				return err
			}
			data, err := ts.MarshalBinary()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%x\n", data)
			return nil
		},
	}
}

func parseOptional(s string) (*timestamp.Timestamp, error) {
	if s == "none" {
		return nil, nil
	}
	ts, err := timestamp.Parse(s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
