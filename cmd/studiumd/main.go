package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/studium-labs/studium/internal/cli"
	"github.com/studium-labs/studium/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "studiumd",
		Short: "Studium daemon and CLI",
		Long:  "Studium daemon for running the tutoring API server and managing its configuration",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ConfigCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
