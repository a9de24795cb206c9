package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"pipeforge/internal/orchestrator"
	"pipeforge/pkg/models"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Server struct {
	mcpServer *server.MCPServer
	workflows *orchestrator.WorkflowService
}

func NewServer(workflows *orchestrator.WorkflowService) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Pipeforge Orchestrator",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		workflows: workflows,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"generate_pipeline",
			mcp.WithDescription("Generate, commit and monitor a CI/CD pipeline for a repository"),
			mcp.WithString("repo_ref", mcp.Required(), mcp.Description("The repository reference")),
			mcp.WithString("credential", mcp.Description("Version-control access token")),
			mcp.WithString("context", mcp.Description("Additional free-text context for generation")),
		),
		s.handleGeneratePipeline,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"workflow_status",
			mcp.WithDescription("Get the progress of a running pipeline workflow"),
			mcp.WithString("execution_ref", mcp.Required(), mcp.Description("The execution reference returned by generate_pipeline")),
		),
		s.handleWorkflowStatus,
	)
}

func (s *Server) handleGeneratePipeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	repoRef, ok := args["repo_ref"].(string)
	if !ok || repoRef == "" {
		return mcp.NewToolResultError("Missing required parameter: repo_ref"), nil
	}
	credential, _ := args["credential"].(string)
	extraContext, _ := args["context"].(string)

	result, err := s.workflows.StartWorkflow(ctx, &models.WorkflowRequest{
		RepoRef:    repoRef,
		Credential: credential,
		Context:    extraContext,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleWorkflowStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	ref, ok := args["execution_ref"].(string)
	if !ok || ref == "" {
		return mcp.NewToolResultError("Missing required parameter: execution_ref"), nil
	}

	status, found := s.workflows.GetWorkflowStatus(ref)
	if !found {
		return mcp.NewToolResultError("Unknown workflow: " + ref), nil
	}

	jsonBytes, _ := json.Marshal(status)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
