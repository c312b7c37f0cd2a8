package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/pollen-map/internal/verify"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [output-dir]",
		Short: "Check a generated site for payload and index integrity",
		Long: `Verifies that every map document's payload decodes strictly with levels in
range and one entry per city, that the index lists each document in date order
and defaults to the latest date, and that the run manifest matches the files.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			root := e.cfg.OutputDir
			if len(args) == 1 {
				root = args[0]
			}

			report, err := verify.Tree(root)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range report.Phases {
				status := "PASS"
				if !p.Passed() {
					status = "FAIL"
				}
				fmt.Fprintf(out, "[%s] %s (%d checked)\n", status, p.Name, p.Checked)
				for _, msg := range p.Errors {
					fmt.Fprintf(out, "  - %s\n", msg)
				}
			}
			if !report.Passed() {
				return errors.New("validation failed")
			}
			fmt.Fprintln(out, "all checks passed")
			return nil
		},
	}
}
