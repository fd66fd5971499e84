package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "connectors",
		Short:         "Card hub connectors for ServiceNow, Coupa, Concur and Salesforce",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (default ./config.toml)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "routes",
		Short: "Print the mounted routes and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printRoutes(cmd.Context(), configPath, cmd.OutOrStdout())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			v := version
			if v == "" {
				v = "dev"
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
		},
	})
	return root
}
