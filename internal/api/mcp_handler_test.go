package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ksred/plansmart/internal/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcResult struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *MCPError       `json:"error"`
	ID      interface{}     `json:"id"`
}

func rpc(t *testing.T, s *Server, token, method string, params interface{}) rpcResult {
	t.Helper()

	body := map[string]interface{}{"jsonrpc": "2.0", "method": method, "id": 1}
	if params != nil {
		body["params"] = params
	}
	w := doRequest(t, s, http.MethodPost, "/api/v1/mcp", body, withToken(token))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp rpcResult
	decodeBody(t, w, &resp)
	assert.Equal(t, "2.0", resp.JSONRPC)
	return resp
}

// toolCall runs a tool over HTTP and returns the decoded ToolResponse
func toolCall(t *testing.T, s *Server, token, name string, args interface{}) (mcp.ToolResponse, bool) {
	t.Helper()

	resp := rpc(t, s, token, "tools/call", map[string]interface{}{"name": name, "arguments": args})
	require.Nil(t, resp.Error)

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var tool mcp.ToolResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &tool))
	return tool, result.IsError
}

func TestHandleMCP_Protocol(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server, "moyo")

	t.Run("requires auth", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/mcp", map[string]interface{}{"jsonrpc": "2.0", "method": "tools/list", "id": 1})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("parse error", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/mcp", "{", withToken(token))
		require.Equal(t, http.StatusOK, w.Code)
		var resp rpcResult
		decodeBody(t, w, &resp)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ParseError, resp.Error.Code)
	})

	t.Run("wrong version", func(t *testing.T) {
		w := doRequest(t, server, http.MethodPost, "/api/v1/mcp", map[string]interface{}{"jsonrpc": "1.0", "method": "tools/list", "id": 7}, withToken(token))
		var resp rpcResult
		decodeBody(t, w, &resp)
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
		assert.EqualValues(t, 7, resp.ID)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := rpc(t, server, token, "memories/forget", nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, MethodNotFound, resp.Error.Code)
	})

	t.Run("initialize", func(t *testing.T) {
		resp := rpc(t, server, token, "initialize", map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"clientInfo":      map[string]string{"name": "test", "version": "0.0.1"},
		})
		require.Nil(t, resp.Error)

		var result map[string]interface{}
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		assert.Equal(t, "2024-11-05", result["protocolVersion"])
		info := result["serverInfo"].(map[string]interface{})
		assert.Equal(t, "plansmart", info["name"])
		assert.Equal(t, mcp.Version, info["version"])
	})

	t.Run("tools list", func(t *testing.T) {
		resp := rpc(t, server, token, "tools/list", nil)
		require.Nil(t, resp.Error)

		var result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		}
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		var names []string
		for _, tool := range result.Tools {
			names = append(names, tool.Name)
		}
		assert.Len(t, names, len(mcp.Tools()))
		assert.Contains(t, names, mcp.ToolProcessInput)
		assert.Contains(t, names, mcp.ToolScheduleReminder)
	})

	t.Run("unknown tool", func(t *testing.T) {
		resp := rpc(t, server, token, "tools/call", map[string]interface{}{"name": "delete_everything"})
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidParams, resp.Error.Code)
	})
}

func TestHandleMCP_Tools(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server, "moyo")

	created, isError := toolCall(t, server, token, mcp.ToolCreateTask, map[string]interface{}{"description": "Book flights"})
	require.False(t, isError)
	assert.True(t, created.Success)

	listed, isError := toolCall(t, server, token, mcp.ToolListTasks, map[string]interface{}{})
	require.False(t, isError)
	require.NotNil(t, listed.Meta)
	assert.Equal(t, 1, listed.Meta.Count)

	failed, isError := toolCall(t, server, token, mcp.ToolCreateTask, map[string]interface{}{"description": ""})
	assert.True(t, isError)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "description")

	processed, isError := toolCall(t, server, token, mcp.ToolProcessInput, map[string]interface{}{"text": "Add a task to buy milk"})
	require.False(t, isError)
	assert.True(t, processed.Success)

	// tools act on the caller's data only
	other := login(t, server, "ada")
	otherList, _ := toolCall(t, server, other, mcp.ToolListTasks, map[string]interface{}{})
	require.NotNil(t, otherList.Meta)
	assert.Equal(t, 0, otherList.Meta.Count)
}

func TestHandleMCP_ResourcesAndPrompts(t *testing.T) {
	server := setupTestServer(t)
	token := login(t, server, "moyo")

	resp := rpc(t, server, token, "resources/list", nil)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), mcp.OverviewURI)

	resp = rpc(t, server, token, "resources/read", map[string]string{"uri": mcp.OverviewURI})
	require.Nil(t, resp.Error)
	var read struct {
		Contents []struct {
			URI      string `json:"uri"`
			MIMEType string `json:"mimeType"`
			Text     string `json:"text"`
		} `json:"contents"`
	}
	require.NoError(t, json.Unmarshal(resp.Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "application/json", read.Contents[0].MIMEType)
	assert.Contains(t, read.Contents[0].Text, "You've completed 0 tasks today.")

	resp = rpc(t, server, token, "resources/read", map[string]string{"uri": "assistant://missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, InvalidParams, resp.Error.Code)

	resp = rpc(t, server, token, "prompts/list", nil)
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), mcp.PromptPlanDay)

	resp = rpc(t, server, token, "prompts/get", map[string]interface{}{
		"name":      mcp.PromptPlanDay,
		"arguments": map[string]string{"focus": "the launch"},
	})
	require.Nil(t, resp.Error)
	assert.Contains(t, string(resp.Result), "Today I want to focus on: the launch")
}
