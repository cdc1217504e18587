// Command bucketvis manages public visibility and download links for
// objects in S3-compatible buckets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
	output   string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bucketvis",
		Short: "Bucket visibility and download links for S3-compatible storage",
		Long: `bucketvis reads and edits the anonymous-read entries of bucket policies
and issues download links: direct URLs for public objects, presigned URLs
for private ones.

Examples:
  # Serve the HTTP API
  bucketvis serve -c bucketvis.yaml

  # Make a directory public, then check a file below it
  bucketvis public reports reports/2026/
  bucketvis visibility reports reports/2026/q1.csv

  # List every public entry and remove one
  bucketvis resources reports
  bucketvis prune reports 'arn:aws:s3:::reports/2026/*'

  # Get a download link
  bucketvis link reports private/summary.pdf`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVisibilityCmd())
	rootCmd.AddCommand(newToggleCmd(true))
	rootCmd.AddCommand(newToggleCmd(false))
	rootCmd.AddCommand(newResourcesCmd())
	rootCmd.AddCommand(newPruneCmd())
	rootCmd.AddCommand(newLinkCmd())
	rootCmd.AddCommand(newLsCmd())
	rootCmd.AddCommand(newBucketsCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "bucketvis", Version)
		},
	})

	return rootCmd
}
