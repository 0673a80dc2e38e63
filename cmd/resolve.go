package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bekeleftw/utility-lookup-api-sub000/internal/source"
)

var resolveFlags struct {
	category string
	address  string
	lat      float64
	lon      float64
	state    string
	county   string
	city     string
	zip      string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the provider for one location",
	Example: `  utility-lookup resolve --category electric --lat 35.2271 --lon -80.8431 --state NC
  utility-lookup resolve --category water --state NC --county Mecklenburg --zip 28202`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, _, err := buildResolver(cfg)
		if err != nil {
			return err
		}

		res, err := r.Resolve(cmd.Context(), source.QueryContext{
			Category:  source.Category(resolveFlags.category),
			Address:   resolveFlags.address,
			Latitude:  resolveFlags.lat,
			Longitude: resolveFlags.lon,
			State:     resolveFlags.state,
			County:    resolveFlags.county,
			City:      resolveFlags.city,
			ZIP:       resolveFlags.zip,
		})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFlags.category, "category", "electric", "utility category (electric, gas, water)")
	resolveCmd.Flags().StringVar(&resolveFlags.address, "address", "", "free-text address")
	resolveCmd.Flags().Float64Var(&resolveFlags.lat, "lat", 0, "latitude")
	resolveCmd.Flags().Float64Var(&resolveFlags.lon, "lon", 0, "longitude")
	resolveCmd.Flags().StringVar(&resolveFlags.state, "state", "", "state code")
	resolveCmd.Flags().StringVar(&resolveFlags.county, "county", "", "county name")
	resolveCmd.Flags().StringVar(&resolveFlags.city, "city", "", "city name")
	resolveCmd.Flags().StringVar(&resolveFlags.zip, "zip", "", "ZIP code")
	rootCmd.AddCommand(resolveCmd)
}
