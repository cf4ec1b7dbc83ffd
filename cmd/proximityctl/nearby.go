package main

import (
	"context"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

func runNearby(ctx context.Context, c *apiClient, kind string, lat, lon, radius float64, limit int, out io.Writer) error {
	q := map[string]string{
		"lat": strconv.FormatFloat(lat, 'f', -1, 64),
		"lon": strconv.FormatFloat(lon, 'f', -1, 64),
	}
	if radius > 0 {
		q["radius"] = strconv.FormatFloat(radius, 'f', -1, 64)
	}
	if limit > 0 {
		q["limit"] = strconv.Itoa(limit)
	}
	return c.request(ctx, "GET", "/api/nearby/"+kind, q, nil, out)
}

func init() {
	var lat, lon, radius float64
	var limit int
	nearbyCmd := &cobra.Command{
		Use:       "nearby users|groups|activities",
		Short:     "Find entities near a point",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"users", "groups", "activities"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx := clientFor(cmd)
			return runNearby(ctx, c, args[0], lat, lon, radius, limit, cmd.OutOrStdout())
		},
	}
	nearbyCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (required)")
	nearbyCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude (required)")
	nearbyCmd.Flags().Float64VarP(&radius, "radius", "r", 0, "Radius in meters (server default when 0)")
	nearbyCmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum results (server default when 0)")
	_ = nearbyCmd.MarkFlagRequired("lat")
	_ = nearbyCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(nearbyCmd)
}
