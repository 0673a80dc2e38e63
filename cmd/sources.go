package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured data sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := source.LoadRegistry(cfg.Sources)
		if err != nil {
			return err
		}

		for _, name := range registry.List() {
			m := registry.Get(name).Meta()
			states := "all states"
			if len(m.States) > 0 {
				states = strings.Join(m.States, ",")
			}
			cats := make([]string, len(m.Categories))
			for i, c := range m.Categories {
				cats[i] = string(c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-24s conf=%-5.0f %-10s %-20s %s\n",
				m.Name, m.BaseConfidence, m.Precision, strings.Join(cats, ","), states)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}
