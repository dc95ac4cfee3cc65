package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cephview/cephview/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┌─┐┬ ┬┬  ┬┬┌─┐┬ ┬
  │  ├┤ ├─┘├─┤└┐┌┘│├┤ │││
  └─┘└─┘┴  ┴ ┴ └┘ ┴└─┘└┴┘
`

func main() {
	configureColors(false, os.Getenv)
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "cephview",
		Short: "Cephalometric comparison overlay server",
		Long: `cephview serves comparison sessions for cephalometric images.

Each session holds an overlay registry: the images being compared,
their visibility, opacity and color filters, which image is active,
and whether the viewer shows them overlaid or side by side.

  • JSON API for every overlay operation
  • Live snapshots over WebSocket
  • Image uploads to disk or S3`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configureColors(noColor, os.Getenv)
		},
	}
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output (NO_COLOR is honored too)")

	cmd.AddCommand(
		serveCmd(),
		configCmd(),
		versionCmd(),
	)
	return cmd
}

// configureColors turns terminal colors off for --no-color or a non-empty
// NO_COLOR (https://no-color.org).
func configureColors(noColor bool, getenv func(string) string) {
	if noColor || getenv("NO_COLOR") != "" {
		errors.DisableColors()
		return
	}
	errors.EnableColors()
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	mark := "✓"
	if errors.ColorsEnabled() {
		mark = "\033[32m✓\033[0m"
	}
	fmt.Printf("%s %s\n", mark, fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}
