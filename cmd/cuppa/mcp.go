package main

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/cuppalabs/cuppa/internal/tools"
	"github.com/cuppalabs/cuppa/pkg/app"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the catalog tools to MCP clients over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			// Stdout is the MCP transport; newLogger already writes to
			// stderr.
			logger := newLogger(cmd, cfg)

			pipe, err := app.NewPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer pipe.Close()

			return server.ServeStdio(mcpServer(pipe.Registry))
		},
	}
	addCommonFlags(cmd)
	return cmd
}

// mcpServer exposes every registered tool under its own name and
// schema. Errors from a tool come back as error-flagged results so the
// client sees the message instead of a dropped request.
func mcpServer(registry *tools.Registry) *server.MCPServer {
	srv := server.NewMCPServer("cuppa", version, server.WithToolCapabilities(true))

	for _, name := range registry.Names() {
		t, err := registry.Get(name)
		if err != nil {
			continue
		}
		srv.AddTool(
			mcp.NewToolWithRawSchema(t.Name(), t.Description(), t.Schema()),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				args, err := json.Marshal(req.GetArguments())
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				out, err := registry.Execute(ctx, req.Params.Name, args)
				if err != nil {
					return nil, err
				}
				if out.IsError {
					return mcp.NewToolResultError(out.Content), nil
				}
				return mcp.NewToolResultText(out.Content), nil
			},
		)
	}
	return srv
}
