package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	usersCmd := &cobra.Command{Use: "users", Short: "User operations"}

	// create
	var nickname, password string
	var temporary bool
	var lat, lon float64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"nickname": nickname, "isTemporary": temporary}
			if password != "" {
				payload["password"] = password
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
				payload["location"] = map[string]float64{"latitude": lat, "longitude": lon}
			}
			c, ctx := clientFor(cmd)
			return c.request(ctx, "POST", "/api/users", nil, payload, cmd.OutOrStdout())
		},
	}
	createCmd.Flags().StringVarP(&nickname, "nickname", "n", "", "Nickname (required)")
	createCmd.Flags().StringVarP(&password, "password", "p", "", "Password (required unless --temporary)")
	createCmd.Flags().BoolVarP(&temporary, "temporary", "t", false, "Create a temporary user")
	createCmd.Flags().Float64Var(&lat, "lat", 0, "Initial latitude")
	createCmd.Flags().Float64Var(&lon, "lon", 0, "Initial longitude")
	_ = createCmd.MarkFlagRequired("nickname")
	usersCmd.AddCommand(createCmd)

	// get
	getCmd := &cobra.Command{
		Use:   "get USER_ID",
		Short: "Get user by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx := clientFor(cmd)
			return c.request(ctx, "GET", "/api/users/"+args[0], nil, nil, cmd.OutOrStdout())
		},
	}
	usersCmd.AddCommand(getCmd)

	// locate
	var locLat, locLon float64
	locateCmd := &cobra.Command{
		Use:   "locate USER_ID",
		Short: "Report a user's position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx := clientFor(cmd)
			body := map[string]float64{"latitude": locLat, "longitude": locLon}
			return c.request(ctx, "PUT", fmt.Sprintf("/api/users/%s/location", args[0]), nil, body, cmd.OutOrStdout())
		},
	}
	locateCmd.Flags().Float64Var(&locLat, "lat", 0, "Latitude (required)")
	locateCmd.Flags().Float64Var(&locLon, "lon", 0, "Longitude (required)")
	_ = locateCmd.MarkFlagRequired("lat")
	_ = locateCmd.MarkFlagRequired("lon")
	usersCmd.AddCommand(locateCmd)

	// delete
	deleteCmd := &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user with their memberships and activities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx := clientFor(cmd)
			return c.request(ctx, "DELETE", "/api/users/"+args[0], nil, nil, cmd.OutOrStdout())
		},
	}
	usersCmd.AddCommand(deleteCmd)

	rootCmd.AddCommand(usersCmd)
}
