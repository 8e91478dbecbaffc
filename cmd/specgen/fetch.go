package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Check out the git sources in specgen.yml and update specgen.lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := findManifest(manifestPath, true)
			if err != nil {
				return err
			}
			if m == nil {
				return errors.New("no specgen.yml found")
			}
			if len(m.Sources) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sources to fetch")
				return nil
			}
			paths, err := a.fetchSources(m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d source(s), %d suite file(s)\n", len(m.Sources), len(paths))
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Path to specgen.yml (default: search upwards from the working directory)")
	return cmd
}
