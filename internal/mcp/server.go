// Package mcp exposes the client field store as MCP tools so language-model
// agents can read and update stored filing data over the standard protocol.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"taxassist/backend/internal/repository"
	"taxassist/backend/pkg/models"
)

type Server struct {
	mcpServer *server.MCPServer
	fields    repository.FieldStore
}

func NewServer(fields repository.FieldStore) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Tax Filing Field Store",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		fields: fields,
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
			"resolve_client",
			mcp.WithDescription("Resolve a practice client id to the internal record id"),
			mcp.WithString("client_id", mcp.Required(), mcp.Description("The practice-facing client id")),
			mcp.WithString("reference", mcp.Required(), mcp.Description("Client type: individual or company")),
		),
		s.handleResolveClient,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_field_groups",
			mcp.WithDescription("List the named field groups that can be read or updated"),
		),
		s.handleListFieldGroups,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"get_field_group",
			mcp.WithDescription("Read the stored values of one field group for a client"),
			mcp.WithString("client_id", mcp.Required(), mcp.Description("The practice-facing client id")),
			mcp.WithString("reference", mcp.Required(), mcp.Description("Client type: individual or company")),
			mcp.WithString("group", mcp.Required(), mcp.Description("Field group name")),
		),
		s.handleGetFieldGroup,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"update_field_group",
			mcp.WithDescription("Update a subset of one field group's values for a client"),
			mcp.WithString("client_id", mcp.Required(), mcp.Description("The practice-facing client id")),
			mcp.WithString("reference", mcp.Required(), mcp.Description("Client type: individual or company")),
			mcp.WithString("group", mcp.Required(), mcp.Description("Field group name")),
			mcp.WithObject("fields", mcp.Required(), mcp.Description("Column/value pairs to update")),
		),
		s.handleUpdateFieldGroup,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_sub_clients",
			mcp.WithDescription("List the active individual sub-clients of a main client"),
			mcp.WithString("client_id", mcp.Required(), mcp.Description("The practice-facing client id of the main client")),
			mcp.WithString("reference", mcp.Required(), mcp.Description("Client type: individual or company")),
		),
		s.handleListSubClients,
	)
}

// clientIdentity extracts and validates the client_id/reference pair every
// store-facing tool requires.
func clientIdentity(args map[string]interface{}) (string, models.ClientType, error) {
	clientID, ok := args["client_id"].(string)
	if !ok || clientID == "" {
		return "", "", fmt.Errorf("missing required parameter: client_id")
	}
	reference, ok := args["reference"].(string)
	if !ok || reference == "" {
		return "", "", fmt.Errorf("missing required parameter: reference")
	}
	clientType, err := models.ParseClientType(reference)
	if err != nil {
		return "", "", err
	}
	return clientID, clientType, nil
}

func (s *Server) handleResolveClient(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	clientID, clientType, err := clientIdentity(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	internalID, err := s.fields.ResolveClient(ctx, clientID, clientType)
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("No %s client matches id %s", clientType, clientID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve client: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(map[string]any{"internal_id": internalID, "client_type": clientType})
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListFieldGroups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jsonBytes, _ := json.Marshal(models.FieldGroupNames())
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetFieldGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	clientID, clientType, err := clientIdentity(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	group, ok := args["group"].(string)
	if !ok || group == "" {
		return mcp.NewToolResultError("Missing required parameter: group"), nil
	}

	internalID, err := s.fields.ResolveClient(ctx, clientID, clientType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve client: %v", err)), nil
	}
	record, err := s.fields.GetFieldGroup(ctx, internalID, clientType, models.FieldGroup(group))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read %s: %v", group, err)), nil
	}

	jsonBytes, _ := json.Marshal(record)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleUpdateFieldGroup(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	clientID, clientType, err := clientIdentity(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	group, ok := args["group"].(string)
	if !ok || group == "" {
		return mcp.NewToolResultError("Missing required parameter: group"), nil
	}
	fields, ok := args["fields"].(map[string]interface{})
	if !ok || len(fields) == 0 {
		return mcp.NewToolResultError("Missing required parameter: fields"), nil
	}

	internalID, err := s.fields.ResolveClient(ctx, clientID, clientType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve client: %v", err)), nil
	}
	result, err := s.fields.UpdateFieldGroup(ctx, internalID, clientType, models.FieldGroup(group), fields)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update %s: %v", group, err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListSubClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	clientID, clientType, err := clientIdentity(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	clients, err := s.fields.AssociatedClients(ctx, clientID, clientType)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list sub-clients: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(clients)
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
