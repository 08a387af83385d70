package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/untoldecay/LoreVault/internal/auth"
	"github.com/untoldecay/LoreVault/internal/version"
)

// buildMCPServer exposes the oracle-scoped tool registry over MCP.
// Sessions are stateless; the tenant comes from the request context on
// the HTTP transport and defaults to the dev tenant on stdio.
func (s *Server) buildMCPServer() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer("LoreVault", version.Version,
		mcpserver.WithToolCapabilities(false),
	)
	for _, schema := range s.dispatcher.Registry().SchemasFor("oracle") {
		tool := mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.InputSchema)
		name := schema.Name
		srv.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			tenant := tenantFrom(ctx)
			if tenant == "" {
				tenant = auth.DevTenant
			}
			result := s.dispatcher.Execute(ctx, tenant, name, request.GetArguments(), 0)
			return mcp.NewToolResultText(string(result)), nil
		})
	}
	return srv
}

// mcpHTTPHandler mounts the MCP server on the streamable HTTP
// transport at /mcp. Auth middleware has already put the tenant on the
// request context.
func (s *Server) mcpHTTPHandler() *mcpserver.StreamableHTTPServer {
	return mcpserver.NewStreamableHTTPServer(s.buildMCPServer(),
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithStateLess(true),
	)
}

// ServeMCPStdio runs the MCP server over stdin/stdout. Used by
// `lv serve --mcp-stdio` for local editor integrations.
func (s *Server) ServeMCPStdio() error {
	return mcpserver.ServeStdio(s.buildMCPServer())
}
