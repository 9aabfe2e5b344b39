// Package mcp exposes DocRouter backend operations and the local format
// validators as MCP tools over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/domain"
)

// backendAPI is the slice of the DocRouter client the tools depend on.
// Tests substitute fakes.
type backendAPI interface {
	ListDocuments(ctx context.Context, orgID string, filters docrouter.DocumentFilters, page docrouter.ListParams) (*docrouter.DocumentList, error)
	ListPrompts(ctx context.Context, orgID string, filters docrouter.PromptFilters, page docrouter.ListParams) (*docrouter.PromptList, error)
	ListTags(ctx context.Context, orgID string, page docrouter.ListParams) (*docrouter.TagList, error)
	ListSchemas(ctx context.Context, orgID string, page docrouter.ListParams) (*docrouter.SchemaList, error)
	GetSchema(ctx context.Context, orgID, schemaRevID string) (*domain.SchemaRevision, error)
	ListForms(ctx context.Context, orgID string, page docrouter.ListParams) (*docrouter.FormList, error)
	GetForm(ctx context.Context, orgID, formRevID string) (*domain.FormRevision, error)
	ListOrganizations(ctx context.Context) (*docrouter.OrganizationList, error)
	GetLLMResult(ctx context.Context, orgID, documentID, promptRevID string, fallback bool) (*domain.LLMResult, error)
	RunLLM(ctx context.Context, orgID, documentID, promptRevID string, force bool) (*docrouter.RunResponse, error)
	DeleteLLMResult(ctx context.Context, orgID, documentID, promptRevID string) error
	GetOCRText(ctx context.Context, orgID, documentID string, page int) (*domain.OCRText, error)
}

// Config holds MCP server settings.
type Config struct {
	// ServerName is the name announced during the MCP handshake.
	ServerName string

	// Version is the server version string.
	Version string

	// DefaultOrgID is used when a tool call omits org_id.
	DefaultOrgID string

	// MaxPageSize caps list tool page sizes.
	MaxPageSize int
}

// Server wires the DocRouter backend into an MCP stdio server.
type Server struct {
	api       backendAPI
	cfg       Config
	logger    zerolog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates the MCP server and registers all tools.
func NewServer(api backendAPI, cfg Config, logger zerolog.Logger) (*Server, error) {
	if cfg.ServerName == "" {
		cfg.ServerName = "docrouter"
	}
	if cfg.Version == "" {
		cfg.Version = "0.1.0"
	}
	if cfg.MaxPageSize <= 0 || cfg.MaxPageSize > docrouter.MaxPageSize {
		cfg.MaxPageSize = docrouter.MaxPageSize
	}

	s := &Server{
		api:    api,
		cfg:    cfg,
		logger: logger.With().Str("component", "mcp-server").Logger(),
		mcpServer: server.NewMCPServer(
			cfg.ServerName,
			cfg.Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// Serve runs the stdio transport until stdin closes.
func (s *Server) Serve() error {
	s.logger.Info().Str("server", s.cfg.ServerName).Msg("MCP stdio server starting")
	return server.ServeStdio(s.mcpServer)
}

// registerTools compiles each tool's input schema and registers a handler
// that validates arguments against it before dispatch.
func (s *Server) registerTools() error {
	for _, def := range s.toolDefinitions() {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(def.schema))
		if err != nil {
			return fmt.Errorf("compile input schema for %s: %w", def.name, err)
		}

		tool := mcp.NewToolWithRawSchema(def.name, def.description, def.schema)
		handler := def.handler
		s.mcpServer.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if args == nil {
				args = map[string]interface{}{}
			}
			check, err := compiled.Validate(gojsonschema.NewGoLoader(args))
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("validate arguments: %v", err)), nil
			}
			if !check.Valid() {
				return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %s", check.Errors()[0])), nil
			}
			return handler(ctx, args)
		})
	}
	return nil
}

// toolHandler handles one tool call with already-validated arguments.
type toolHandler func(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error)

// toolDefinition pairs a tool's metadata with its handler.
type toolDefinition struct {
	name        string
	description string
	schema      json.RawMessage
	handler     toolHandler
}

// jsonResult marshals v and wraps it in a text content block.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult converts a backend error into a tool error block. Tool failures
// are reported in-band rather than as protocol errors.
func errorResult(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

// stringArg returns a string argument, or empty when absent.
func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// boolArg returns a boolean argument, or fallback when absent.
func boolArg(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// intArg returns an integer argument, or fallback when absent. JSON numbers
// decode as float64.
func intArg(args map[string]interface{}, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	return fallback
}

// objectArg returns an object argument, or nil when absent.
func objectArg(args map[string]interface{}, key string) map[string]interface{} {
	if v, ok := args[key].(map[string]interface{}); ok {
		return v
	}
	return nil
}

// stringSliceArg returns a string array argument, or nil when absent.
func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// orgID resolves the effective organization for a call.
func (s *Server) orgID(args map[string]interface{}) (string, error) {
	if org := stringArg(args, "org_id"); org != "" {
		return org, nil
	}
	if s.cfg.DefaultOrgID != "" {
		return s.cfg.DefaultOrgID, nil
	}
	return "", fmt.Errorf("org_id is required: no default organization configured")
}

// page resolves skip/limit arguments into backend list params.
func (s *Server) page(args map[string]interface{}) docrouter.ListParams {
	limit := intArg(args, "limit", s.cfg.MaxPageSize)
	if limit <= 0 || limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	skip := intArg(args, "skip", 0)
	if skip < 0 {
		skip = 0
	}
	return docrouter.ListParams{Skip: skip, Limit: limit}
}
