package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
)

var validateCmd = &cobra.Command{
	Use:   "validate <catalog.yaml>",
	Short: "Check a crop catalog file for errors",
	Long: `Parse and validate a crop catalog YAML file: every profile must carry a
known category, all five optimal values, and strictly positive tolerances.

Example:
  croprisk validate configs/crops.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kb, err := catalog.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: OK (%d crops, fingerprint %s)\n", args[0], kb.Len(), kb.Fingerprint())
		for _, name := range kb.Names() {
			profile, _ := kb.Get(name)
			fmt.Printf("  %-14s %s\n", name, profile.Category)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
