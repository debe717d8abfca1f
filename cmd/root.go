package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/graphmcp/internal/logging"
)

var (
	logLevel  string
	logFormat string
)

// rootCmd represents the base command for the graphmcp application
var rootCmd = &cobra.Command{
	Use:   "graphmcp",
	Short: "MCP server for Microsoft Entra ID and Microsoft Graph",
	Long: `graphmcp is an MCP (Model Context Protocol) server that exposes
Microsoft Entra ID identity and Microsoft Graph tools to AI assistants.

Callers authenticate with an Entra ID bearer token; the server exchanges
it via the On-Behalf-Of flow to call Microsoft Graph on their behalf.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Setup(logLevel, logFormat)
	},
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "graphmcp version %s\n" .Version}}`)

	// If no subcommand is provided, run the serve command by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
