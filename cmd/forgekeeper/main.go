package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every subcommand
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	remoteFlags := &RemoteFlags{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createVersionCommand(),
		createStatusCommand(remoteFlags),
		createCommandCommand(remoteFlags),
		createSubmitCommand(remoteFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "forgekeeper",
		Short: "Minecraft Forge server lifecycle agent",
		Long: `Forgekeeper installs, starts, stops and kills a single Minecraft Forge
server on behalf of a controller and reports task progress back to it.

Examples:
  forgekeeper serve --config=forgekeeper.toml
  forgekeeper status --api-url=http://localhost:3000/api
  forgekeeper command "say hello"
  forgekeeper submit start --file=request.json`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the forgekeeper version",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "forgekeeper "+version)
		},
	}
}
