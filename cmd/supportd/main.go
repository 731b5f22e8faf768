package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cloo-solutions/supportdesk/internal/cli"
	"github.com/cloo-solutions/supportdesk/internal/cli/admin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "supportd",
		Short: "Support desk daemon and CLI",
		Long: `Support desk daemon: knowledge retrieval, WhatsApp replies and template campaigns.

Configuration is read from SUPPORTDESK_* environment variables (and .env).
Running without a command starts the server.`,
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.IngestDBCmd())
	rootCmd.AddCommand(admin.SearchCmd())
	rootCmd.AddCommand(admin.ResetCmd())
	rootCmd.AddCommand(admin.CampaignCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if handled, err := cli.CheckHelpJSON(rootCmd, os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
