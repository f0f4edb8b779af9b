package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ksred/plansmart/internal/mcp"
	mcpTypes "github.com/mark3labs/mcp-go/mcp"
)

// MCPRequest represents a JSON-RPC 2.0 request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// MCPResponse represents a JSON-RPC 2.0 response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// MCPError represents a JSON-RPC 2.0 error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// errInvalidParams marks errors that map to InvalidParams
var errInvalidParams = errors.New("invalid params")

// HandleMCP processes MCP protocol requests over HTTP for the
// authenticated user
//
// @Summary MCP endpoint
// @Description JSON-RPC 2.0 endpoint exposing the assistant's MCP tools, the overview resource and the plan_day prompt
// @Tags mcp
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body MCPRequest true "JSON-RPC request"
// @Success 200 {object} MCPResponse
// @Router /mcp [post]
func (s *Server) HandleMCP(c *gin.Context) {
	var req MCPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcError(nil, ParseError, "Parse error", err.Error()))
		return
	}

	if req.JSONRPC != "2.0" {
		c.JSON(http.StatusOK, rpcError(req.ID, InvalidRequest, "Invalid Request", "jsonrpc must be 2.0"))
		return
	}

	user, exists := getUserFromContext(c)
	if !exists || user == nil {
		c.JSON(http.StatusOK, rpcError(req.ID, InternalError, "Authentication required", nil))
		return
	}

	ctx := c.Request.Context()
	var result interface{}
	var err error

	switch req.Method {
	case "initialize":
		result, err = s.handleMCPInitialize(req.Params)
	case "tools/list":
		result = map[string]interface{}{"tools": mcp.Tools()}
	case "tools/call":
		result, err = s.handleMCPCallTool(ctx, user.ID, req.Params)
	case "resources/list":
		result = map[string]interface{}{"resources": []mcpTypes.Resource{mcp.OverviewResource()}}
	case "resources/read":
		result, err = s.handleMCPReadResource(ctx, user.ID, req.Params)
	case "prompts/list":
		result = map[string]interface{}{"prompts": []mcpTypes.Prompt{mcp.PlanDayPrompt()}}
	case "prompts/get":
		result, err = s.handleMCPGetPrompt(ctx, user.ID, req.Params)
	default:
		c.JSON(http.StatusOK, rpcError(req.ID, MethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method)))
		return
	}

	if err != nil {
		if errors.Is(err, errInvalidParams) {
			c.JSON(http.StatusOK, rpcError(req.ID, InvalidParams, "Invalid params", err.Error()))
			return
		}
		s.requestLogger(c).Error().Err(err).Str("method", req.Method).Msg("MCP method error")
		c.JSON(http.StatusOK, rpcError(req.ID, InternalError, "Internal error", err.Error()))
		return
	}

	c.JSON(http.StatusOK, MCPResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	})
}

func rpcError(id interface{}, code int, message string, data interface{}) MCPResponse {
	return MCPResponse{
		JSONRPC: "2.0",
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
		ID: id,
	}
}

func (s *Server) handleMCPInitialize(params json.RawMessage) (interface{}, error) {
	var initParams struct {
		ProtocolVersion string `json:"protocolVersion"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &initParams); err != nil {
			return nil, fmt.Errorf("%w: initialize: %v", errInvalidParams, err)
		}
	}

	protocol := initParams.ProtocolVersion
	if protocol == "" {
		protocol = mcpTypes.LATEST_PROTOCOL_VERSION
	}

	return map[string]interface{}{
		"protocolVersion": protocol,
		"serverInfo": map[string]interface{}{
			"name":    "plansmart",
			"version": mcp.Version,
		},
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
	}, nil
}

// handleMCPCallTool runs a tool. Failures inside the tool come back as an
// error result rather than a JSON-RPC error, as MCP clients expect.
func (s *Server) handleMCPCallTool(ctx context.Context, userID uint, params json.RawMessage) (interface{}, error) {
	var callParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &callParams); err != nil {
		return nil, fmt.Errorf("%w: tool call: %v", errInvalidParams, err)
	}
	if len(callParams.Arguments) == 0 {
		callParams.Arguments = json.RawMessage("{}")
	}

	resp, err := s.svc.MCP.Call(ctx, userID, callParams.Name, callParams.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	data, err := resp.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return map[string]interface{}{
		"content": []mcpTypes.Content{mcpTypes.TextContent{Type: "text", Text: string(data)}},
		"isError": !resp.Success,
	}, nil
}

func (s *Server) handleMCPReadResource(ctx context.Context, userID uint, params json.RawMessage) (interface{}, error) {
	var readParams struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &readParams); err != nil {
		return nil, fmt.Errorf("%w: resource read: %v", errInvalidParams, err)
	}
	if readParams.URI != mcp.OverviewURI {
		return nil, fmt.Errorf("%w: unknown resource: %s", errInvalidParams, readParams.URI)
	}

	overview, err := s.svc.MCP.Overview(ctx, userID)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(overview)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"contents": []mcpTypes.ResourceContents{
			mcpTypes.TextResourceContents{
				URI:      readParams.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

func (s *Server) handleMCPGetPrompt(ctx context.Context, userID uint, params json.RawMessage) (interface{}, error) {
	var getParams struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &getParams); err != nil {
		return nil, fmt.Errorf("%w: prompt get: %v", errInvalidParams, err)
	}
	if getParams.Name != mcp.PromptPlanDay {
		return nil, fmt.Errorf("%w: unknown prompt: %s", errInvalidParams, getParams.Name)
	}

	text, err := s.svc.MCP.PlanDayText(ctx, userID, getParams.Arguments["focus"])
	if err != nil {
		return nil, err
	}

	return mcpTypes.GetPromptResult{
		Description: "Plan the day",
		Messages: []mcpTypes.PromptMessage{
			{
				Role:    mcpTypes.RoleUser,
				Content: mcpTypes.TextContent{Type: "text", Text: text},
			},
		},
	}, nil
}
