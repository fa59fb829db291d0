package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/bugboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for AI agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets MCP clients read and file bug reports natively. Configure a
client with:

  {
    "mcpServers": {
      "bugboard": { "command": "bugboard", "args": ["mcp"] }
    }
  }

Available tools: bug_list, bug_get, bug_create, bug_update, bug_delete,
bug_search`,
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := getService()
		if err != nil {
			return err
		}
		return mcp.NewServer(svc, buildVersion).ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
