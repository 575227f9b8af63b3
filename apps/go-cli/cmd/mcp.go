package cmd

import (
	"github.com/slush-dev/push-bridge/apps/go-cli/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdio",
	Long: `Start an MCP server that exposes the push bridge as tools and resources
for LLM integration.

The server communicates via JSON-RPC over stdin/stdout, so a "prompt"
authorization mode always refuses. Use --authorize grant to allow
notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}

		s, err := mcpserver.New(cfg, rootCmd.Version, newLogger())
		if err != nil {
			return err
		}
		return s.Run(cmd.Context())
	},
}

func init() {
	addConfigFlags(mcpCmd.Flags())
	rootCmd.AddCommand(mcpCmd)
}
