// Command test-mcp drives a built plansmart MCP binary over stdio and checks
// that the tools answer.
//
//	go run ./scripts -binary ./bin/plansmart-mcp
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type toolResult struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

type tester struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	nextID int
}

func main() {
	binary := flag.String("binary", "./bin/plansmart-mcp", "Path to the MCP server binary")
	flag.Parse()

	if _, err := os.Stat(*binary); err != nil {
		fmt.Printf("❌ Binary not found at %s. Build it first.\n", *binary)
		os.Exit(1)
	}

	t, err := start(*binary)
	if err != nil {
		fmt.Printf("❌ Failed to start server: %v\n", err)
		os.Exit(1)
	}
	defer t.stop()

	steps := []struct {
		name string
		fn   func() error
	}{
		{"Initialize connection", t.initialize},
		{"List tools", t.listTools},
		{"Create task", t.createTask},
		{"Process input", t.processInput},
		{"Read overview", t.readOverview},
	}

	for _, step := range steps {
		fmt.Printf("🧪 %s... ", step.name)
		if err := step.fn(); err != nil {
			fmt.Printf("❌ FAILED\n   %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✅ PASSED\n")
	}
	fmt.Println("✅ All checks passed")
}

func start(binary string) (*tester, error) {
	cmd := exec.Command(binary)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	lines := make(chan []byte)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(stdout)
		for {
			line, err := reader.ReadBytes('\n')
			if len(line) > 0 {
				lines <- line
			}
			if err != nil {
				return
			}
		}
	}()

	return &tester{cmd: cmd, stdin: stdin, lines: lines}, nil
}

func (t *tester) stop() {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
}

func (t *tester) call(method string, params interface{}) (json.RawMessage, error) {
	t.nextID++
	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: t.nextID, Method: method, Params: params})
	if err != nil {
		return nil, err
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return nil, err
	}

	timeout := time.After(10 * time.Second)
	for {
		select {
		case line, ok := <-t.lines:
			if !ok {
				return nil, fmt.Errorf("server closed stdout")
			}
			var resp rpcResponse
			// notifications and log lines carry no matching id
			if err := json.Unmarshal(line, &resp); err != nil || resp.ID != t.nextID {
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("%s: %s (%d)", method, resp.Error.Message, resp.Error.Code)
			}
			return resp.Result, nil
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for %s", method)
		}
	}
}

func (t *tester) tool(name string, args map[string]interface{}) (map[string]interface{}, error) {
	raw, err := t.call("tools/call", map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var result toolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%s returned no content", name)
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &out); err != nil {
		return nil, err
	}
	if result.IsError {
		return out, fmt.Errorf("%s failed: %v", name, out["error"])
	}
	return out, nil
}

func (t *tester) initialize() error {
	_, err := t.call("initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo":      map[string]string{"name": "test-mcp", "version": "1.0.0"},
	})
	return err
}

func (t *tester) listTools() error {
	raw, err := t.call("tools/list", map[string]interface{}{})
	if err != nil {
		return err
	}

	var result struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}

	found := make(map[string]bool)
	for _, tool := range result.Tools {
		found[tool.Name] = true
	}
	for _, want := range []string{"process_input", "create_task", "list_tasks", "schedule_reminder"} {
		if !found[want] {
			return fmt.Errorf("missing tool: %s", want)
		}
	}
	return nil
}

func (t *tester) createTask() error {
	_, err := t.tool("create_task", map[string]interface{}{"description": "Smoke test task", "tags": []string{"test"}})
	return err
}

func (t *tester) processInput() error {
	out, err := t.tool("process_input", map[string]interface{}{"text": "Add a task to water the plants"})
	if err != nil {
		return err
	}
	if out["message"] == "" {
		return fmt.Errorf("empty reply")
	}
	return nil
}

func (t *tester) readOverview() error {
	_, err := t.call("resources/read", map[string]string{"uri": "assistant://overview"})
	return err
}
