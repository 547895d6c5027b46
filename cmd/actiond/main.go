package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goclaw/actiond/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   version.Service,
		Short: "actiond notification orchestration daemon",
		Long: "actiond turns application actions into user notifications. It runs the " +
			"cooperative task scheduler, the toast stack and their HTTP/WebSocket surface.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("log-level", "", "Override log level")

	root.Version = version.Version
	root.SetVersionTemplate(fmt.Sprintf("%s\n", version.String()))

	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())
	root.AddCommand(newConfigCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.Info()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "actiond - notification orchestration daemon\n")
			fmt.Fprintf(out, "Version:    %s\n", info["version"])
			fmt.Fprintf(out, "Build Time: %s\n", info["buildTime"])
			fmt.Fprintf(out, "Git Commit: %s\n", info["gitCommit"])
			fmt.Fprintf(out, "Go Version: %s\n", info["goVersion"])
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, loader, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), loader.Print())
			return nil
		},
	}
}
