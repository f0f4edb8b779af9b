package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Version is reported to MCP clients
const Version = "1.1.0"

// Server exposes the assistant over MCP stdio for a single local user
type Server struct {
	mcpServer *server.MCPServer
	handler   *Handler
	userID    uint
	logger    zerolog.Logger
}

// NewServer creates an MCP server acting as userID
func NewServer(handler *Handler, userID uint, logger zerolog.Logger) *Server {
	mcpServer := server.NewMCPServer(
		"plansmart",
		Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithLogging(),
	)

	s := &Server{
		mcpServer: mcpServer,
		handler:   handler,
		userID:    userID,
		logger:    logger.With().Str("component", "mcp_server").Logger(),
	}

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// Serve runs the server on stdin/stdout until the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Debug().Msg("Starting MCP server ServeStdio")
	err := server.ServeStdio(s.mcpServer)
	if err != nil {
		s.logger.Error().Err(err).Msg("MCP server ServeStdio error")
	}
	return err
}

func (s *Server) registerTools() {
	tools := Tools()
	for _, tool := range tools {
		s.mcpServer.AddTool(tool, s.toolHandler(tool.Name))
	}
	s.logger.Info().Int("count", len(tools)).Msg("Registered MCP tools")
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(OverviewResource(), s.overviewHandler())
	s.logger.Info().Int("count", 1).Msg("Registered MCP resources")
}

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(PlanDayPrompt(), s.planDayHandler())
	s.logger.Info().Int("count", 1).Msg("Registered MCP prompts")
}

func (s *Server) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to parse arguments: %v", err)), nil
		}

		resp, err := s.handler.Call(ctx, s.userID, name, args)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Error: %v", err)), nil
		}
		return toolResult(resp)
	}
}

// toolResult renders a ToolResponse as JSON text content
func toolResult(resp *ToolResponse) (*mcp.CallToolResult, error) {
	data, err := resp.ToJSON()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal result: %v", err)), nil
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = !resp.Success
	return result, nil
}

func (s *Server) overviewHandler() server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		overview, err := s.handler.Overview(ctx, s.userID)
		if err != nil {
			return nil, err
		}

		data, err := json.Marshal(overview)
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      request.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	}
}

func (s *Server) planDayHandler() server.PromptHandlerFunc {
	return func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		text, err := s.handler.PlanDayText(ctx, s.userID, request.Params.Arguments["focus"])
		if err != nil {
			return nil, err
		}

		return &mcp.GetPromptResult{
			Description: "Plan the day",
			Messages: []mcp.PromptMessage{
				{
					Role: mcp.RoleUser,
					Content: mcp.TextContent{
						Type: "text",
						Text: text,
					},
				},
			},
		}, nil
	}
}
