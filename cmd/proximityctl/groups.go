package main

import (
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	groupsCmd := &cobra.Command{Use: "groups", Short: "Group operations"}

	var creator, name, locationName, description, password string
	var lat, lon float64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a group at a location",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{
				"creatorId":    creator,
				"name":         name,
				"locationName": locationName,
				"location":     map[string]float64{"latitude": lat, "longitude": lon},
			}
			if description != "" {
				payload["description"] = description
			}
			if password != "" {
				payload["password"] = password
			}
			c, ctx := clientFor(cmd)
			return c.request(ctx, "POST", "/api/groups", nil, payload, cmd.OutOrStdout())
		},
	}
	createCmd.Flags().StringVarP(&creator, "creator", "u", "", "Creator user ID (required)")
	createCmd.Flags().StringVarP(&name, "name", "n", "", "Group name (required)")
	createCmd.Flags().StringVar(&locationName, "place", "", "Location name (required)")
	createCmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Join password")
	createCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (required)")
	createCmd.Flags().Float64Var(&lon, "lon", 0, "Longitude (required)")
	for _, f := range []string{"creator", "name", "place", "lat", "lon"} {
		_ = createCmd.MarkFlagRequired(f)
	}
	groupsCmd.AddCommand(createCmd)

	var joinUser, joinPassword string
	joinCmd := &cobra.Command{
		Use:   "join GROUP_ID",
		Short: "Join a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"userId": joinUser}
			if joinPassword != "" {
				body["password"] = joinPassword
			}
			c, ctx := clientFor(cmd)
			return c.request(ctx, "POST", "/api/groups/"+args[0]+"/join", nil, body, cmd.OutOrStdout())
		},
	}
	joinCmd.Flags().StringVarP(&joinUser, "user", "u", "", "User ID (required)")
	joinCmd.Flags().StringVarP(&joinPassword, "password", "p", "", "Group password")
	_ = joinCmd.MarkFlagRequired("user")
	groupsCmd.AddCommand(joinCmd)

	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search NAME",
		Short: "Search groups by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := map[string]string{"name": args[0]}
			if searchLimit > 0 {
				q["limit"] = strconv.Itoa(searchLimit)
			}
			c, ctx := clientFor(cmd)
			return c.request(ctx, "GET", "/api/groups/search", q, nil, cmd.OutOrStdout())
		},
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 0, "Maximum results")
	groupsCmd.AddCommand(searchCmd)

	rootCmd.AddCommand(groupsCmd)
}
