package cli

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"cohorte/api/internal/mcp"
)

func newMCPCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the analysis tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, closeFn, err := opts.openWorkspace()
			if err != nil {
				return err
			}
			defer closeFn()
			return server.ServeStdio(mcp.NewServer(mcp.ServerConfig{Workspace: ws, Version: Version}))
		},
	}
}
