package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/switchboardhq/switchboard/internal/domain/memory"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.memoryStoreTool(),
		s.memoryRecallTool(),
		s.memoryStatsTool(),
	)
}

func (s *Server) memoryStoreTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("memory_store",
		mcplib.WithDescription("Store one completed exchange in an agent's memory"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent scope to store under"),
		),
		mcplib.WithString("input",
			mcplib.Required(),
			mcplib.Description("The user input of the exchange"),
		),
		mcplib.WithString("output",
			mcplib.Description("The agent output of the exchange"),
		),
		mcplib.WithString("kind",
			mcplib.Description("Record kind (log, correction, goal, ...); defaults to log"),
		),
		mcplib.WithString("user_id",
			mcplib.Description("Optional user scope"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMemoryStore,
	}
}

func (s *Server) memoryRecallTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("memory_recall",
		mcplib.WithDescription("Recall the records most relevant to a query from an agent's memory"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent scope to search"),
		),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("The query to score records against"),
		),
		mcplib.WithString("user_id",
			mcplib.Description("Optional user scope"),
		),
		mcplib.WithNumber("limit",
			mcplib.Description("Maximum entries to return"),
		),
		mcplib.WithBoolean("include_patterns",
			mcplib.Description("Include detected input patterns relevant to the query"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMemoryRecall,
	}
}

func (s *Server) memoryStatsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("memory_stats",
		mcplib.WithDescription("Aggregate memory statistics for one agent scope"),
		mcplib.WithString("agent_id",
			mcplib.Required(),
			mcplib.Description("The agent scope to report on"),
		),
		mcplib.WithString("user_id",
			mcplib.Description("Optional user scope"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMemoryStats,
	}
}

func (s *Server) handleMemoryStore(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Memory == nil {
		return mcplib.NewToolResultError("memory service not configured"), nil
	}
	args := req.GetArguments()
	agentID, _ := args["agent_id"].(string)
	input, _ := args["input"].(string)
	if agentID == "" || input == "" {
		return mcplib.NewToolResultError("agent_id and input are required"), nil
	}

	kind := memory.KindLog
	if k, ok := args["kind"].(string); ok && k != "" {
		kind = memory.Kind(k)
	}
	output, _ := args["output"].(string)
	userID, _ := args["user_id"].(string)

	rec, err := s.deps.Memory.Store(ctx, &memory.StoreRequest{
		AgentID: agentID,
		UserID:  userID,
		Kind:    kind,
		Input:   input,
		Output:  output,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to store record", err), nil
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal record", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleMemoryRecall(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Memory == nil {
		return mcplib.NewToolResultError("memory service not configured"), nil
	}
	args := req.GetArguments()
	agentID, _ := args["agent_id"].(string)
	query, _ := args["query"].(string)
	if agentID == "" || query == "" {
		return mcplib.NewToolResultError("agent_id and query are required"), nil
	}

	userID, _ := args["user_id"].(string)
	var opts memory.RecallOptions
	if limit, ok := args["limit"].(float64); ok {
		opts.Limit = int(limit)
	}
	opts.IncludePatterns, _ = args["include_patterns"].(bool)

	result, err := s.deps.Memory.Recall(ctx, &memory.RecallRequest{
		AgentID: agentID,
		UserID:  userID,
		Query:   query,
		Options: opts,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to recall for agent %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}

func (s *Server) handleMemoryStats(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Memory == nil {
		return mcplib.NewToolResultError("memory service not configured"), nil
	}
	args := req.GetArguments()
	agentID, _ := args["agent_id"].(string)
	if agentID == "" {
		return mcplib.NewToolResultError("agent_id is required"), nil
	}
	userID, _ := args["user_id"].(string)

	stats, err := s.deps.Memory.Stats(ctx, agentID, userID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get stats for agent %s", agentID), err,
		), nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal stats", err), nil
	}
	return toolResultJSON(string(data)), nil
}
