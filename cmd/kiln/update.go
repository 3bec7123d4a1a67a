package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilnworks/kiln/internal/updater"
)

// version is stamped by the release build via -ldflags.
var version = "dev"

var updateCheck bool

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the kiln version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update kiln to the latest release",
		RunE:  runUpdate,
	}
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "only check for a newer release")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	latest, err := updater.LatestVersion()
	if err != nil {
		return err
	}

	if !updater.NeedsUpdate(version, latest) {
		fmt.Printf("kiln %s is up to date\n", version)
		return nil
	}
	if updateCheck {
		fmt.Printf("kiln %s is available (running %s); run `kiln update` to install\n", latest, version)
		return nil
	}

	fmt.Printf("Updating %s -> %s\n", version, latest)
	if err := updater.SelfUpdate(latest); err != nil {
		return err
	}
	fmt.Println("Updated. Restart any running `kiln run` to pick up the new binary.")
	return nil
}
