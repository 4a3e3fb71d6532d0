package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPServer exposes a Registry's tools as an MCP stdio server, so an agent
// step's LLM client can discover and call them through the Model Context
// Protocol instead of a bespoke function-calling shim (spec §6.5).
type MCPServer struct {
	mcpServer *server.MCPServer
	registry  *Registry
}

// NewMCPServer builds an MCP server named name/version exposing every tool
// currently registered in registry.
func NewMCPServer(name, version string, registry *Registry) *MCPServer {
	s := &MCPServer{
		mcpServer: server.NewMCPServer(name, version),
		registry:  registry,
	}
	for _, toolName := range registry.List() {
		tool, err := registry.Get(toolName)
		if err != nil {
			continue
		}
		s.addTool(tool)
	}
	return s
}

func (s *MCPServer) addTool(tool Tool) {
	schema := tool.Schema()
	properties := make(map[string]any, len(schema.Properties))
	for name, prop := range schema.Properties {
		properties[name] = map[string]any{
			"type":        prop.Type,
			"description": prop.Description,
		}
	}

	s.mcpServer.AddTool(mcp.Tool{
		Name:        tool.Name(),
		Description: tool.Description(),
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   schema.Required,
		},
	}, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		outputs, err := s.registry.Execute(ctx, tool.Name(), request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		body, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	})
}

// ServeStdio runs the MCP server over stdin/stdout until server.ServeStdio
// returns. ctx is not passed on, so cancelling it does not stop the server.
func (s *MCPServer) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcpServer)
}
