// Command tgspider crawls configured Telegram channels and downloads
// their media to local disk.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tgspider",
	Short: "Crawl Telegram channels and download their media to disk",
	Long: `tgspider logs into a Telegram account, watches a configured set of
channels (or every channel the account is a member of), and downloads new
photos, videos, audio and files as they appear, picking up from each
channel's last seen message on every run.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "tgspider.yaml", "path to the YAML config file")
	rootCmd.AddCommand(runCmd, listChannelsCmd, resumeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
