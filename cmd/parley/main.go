// parley is the conversational assistant service and its operator
// tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set via ldflags.
var Version = "dev"

var configFile string

func main() {
	root := &cobra.Command{
		Use:     "parley",
		Short:   "Conversational assistant service",
		Version: Version,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", envOr("CONFIG_FILE", "config/parley.yaml"), "configuration file")

	root.AddCommand(
		newServeCmd(),
		newChatCmd(),
		newPersonaCmd(),
		newImageModelsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
