package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sigagent/docrouter-go/internal/docrouter"
	"github.com/sigagent/docrouter-go/internal/formformat"
	"github.com/sigagent/docrouter-go/internal/schemaformat"
)

// Shared JSON Schema fragments for tool inputs.
const (
	orgIDProp = `"org_id": {"type": "string", "description": "Organization ID. Defaults to the configured organization."}`
	pageProps = `"skip": {"type": "integer", "minimum": 0, "description": "Number of items to skip."},
      "limit": {"type": "integer", "minimum": 1, "maximum": 100, "description": "Maximum number of items to return."}`
)

// toolDefinitions lists every tool the server exposes.
func (s *Server) toolDefinitions() []toolDefinition {
	return []toolDefinition{
		{
			name:        "list_documents",
			description: "List documents in the organization, optionally filtered by name substring, tags, or metadata.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "name_search": {"type": "string", "description": "Substring to match against document names."},
      "tag_ids": {"type": "array", "items": {"type": "string"}, "description": "Require all of these tags."},
      "metadata_search": {"type": "object", "additionalProperties": {"type": "string"}, "description": "Metadata key/value filters."},
      ` + pageProps + `
    },
    "additionalProperties": false
  }`),
			handler: s.handleListDocuments,
		},
		{
			name:        "list_prompts",
			description: "List extraction prompts, optionally filtered by tags or by applicable document.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "tag_ids": {"type": "array", "items": {"type": "string"}, "description": "Match prompts associated with any of these tags."},
      "document_id": {"type": "string", "description": "Match prompts applicable to this document."},
      ` + pageProps + `
    },
    "additionalProperties": false
  }`),
			handler: s.handleListPrompts,
		},
		{
			name:        "list_tags",
			description: "List document tags in the organization.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      ` + pageProps + `
    },
    "additionalProperties": false
  }`),
			handler: s.handleListTags,
		},
		{
			name:        "list_schemas",
			description: "List extraction schemas in the organization.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      ` + pageProps + `
    },
    "additionalProperties": false
  }`),
			handler: s.handleListSchemas,
		},
		{
			name:        "get_schema",
			description: "Fetch one extraction schema revision.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "schema_revid": {"type": "string", "description": "Schema revision ID."}
    },
    "required": ["schema_revid"],
    "additionalProperties": false
  }`),
			handler: s.handleGetSchema,
		},
		{
			name:        "list_forms",
			description: "List form layouts in the organization.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      ` + pageProps + `
    },
    "additionalProperties": false
  }`),
			handler: s.handleListForms,
		},
		{
			name:        "get_form",
			description: "Fetch one form layout revision.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "form_revid": {"type": "string", "description": "Form revision ID."}
    },
    "required": ["form_revid"],
    "additionalProperties": false
  }`),
			handler: s.handleGetForm,
		},
		{
			name:        "list_organizations",
			description: "List organizations the API token has access to.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {},
    "additionalProperties": false
  }`),
			handler: s.handleListOrganizations,
		},
		{
			name:        "get_llm_result",
			description: "Fetch the stored extraction result for a document and prompt revision. With fallback, the latest result for any revision of the prompt is returned.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "document_id": {"type": "string", "description": "Document ID."},
      "prompt_revid": {"type": "string", "description": "Prompt revision ID."},
      "fallback": {"type": "boolean", "description": "Fall back to any revision of the prompt. Defaults to true."}
    },
    "required": ["document_id", "prompt_revid"],
    "additionalProperties": false
  }`),
			handler: s.handleGetLLMResult,
		},
		{
			name:        "run_llm",
			description: "Run a prompt revision against a document. With force, an existing result is overwritten.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "document_id": {"type": "string", "description": "Document ID."},
      "prompt_revid": {"type": "string", "description": "Prompt revision ID."},
      "force": {"type": "boolean", "description": "Overwrite an existing result. Defaults to false."}
    },
    "required": ["document_id", "prompt_revid"],
    "additionalProperties": false
  }`),
			handler: s.handleRunLLM,
		},
		{
			name:        "delete_llm_result",
			description: "Delete the stored extraction result for a document and prompt revision.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "document_id": {"type": "string", "description": "Document ID."},
      "prompt_revid": {"type": "string", "description": "Prompt revision ID."}
    },
    "required": ["document_id", "prompt_revid"],
    "additionalProperties": false
  }`),
			handler: s.handleDeleteLLMResult,
		},
		{
			name:        "get_ocr_text",
			description: "Fetch OCR text for a document. Page 0 returns the whole document.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      ` + orgIDProp + `,
      "document_id": {"type": "string", "description": "Document ID."},
      "page": {"type": "integer", "minimum": 0, "description": "Page number, starting at 1. 0 for all pages."}
    },
    "required": ["document_id"],
    "additionalProperties": false
  }`),
			handler: s.handleGetOCRText,
		},
		{
			name:        "validate_schema",
			description: "Structurally validate an extraction schema definition. Returns ordered lists of errors and warnings.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      "schema": {"type": "object", "description": "The schema definition to validate."}
    },
    "required": ["schema"],
    "additionalProperties": false
  }`),
			handler: s.handleValidateSchema,
		},
		{
			name:        "validate_form",
			description: "Structurally validate a form layout, optionally checking field mappings against an extraction schema.",
			schema: json.RawMessage(`{
    "type": "object",
    "properties": {
      "form": {"type": "object", "description": "The form definition to validate."},
      "schema": {"type": "object", "description": "Extraction schema to check field mappings against."}
    },
    "required": ["form"],
    "additionalProperties": false
  }`),
			handler: s.handleValidateForm,
		},
	}
}

func (s *Server) handleListDocuments(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	filters := docrouter.DocumentFilters{
		NameSearch: stringArg(args, "name_search"),
		TagIDs:     stringSliceArg(args, "tag_ids"),
	}
	if metadata := objectArg(args, "metadata_search"); metadata != nil {
		filters.MetadataSearch = make(map[string]string, len(metadata))
		for k, v := range metadata {
			if str, ok := v.(string); ok {
				filters.MetadataSearch[k] = str
			}
		}
	}

	list, err := s.api.ListDocuments(ctx, org, filters, s.page(args))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleListPrompts(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	filters := docrouter.PromptFilters{
		TagIDs:     stringSliceArg(args, "tag_ids"),
		DocumentID: stringArg(args, "document_id"),
	}

	list, err := s.api.ListPrompts(ctx, org, filters, s.page(args))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleListTags(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	list, err := s.api.ListTags(ctx, org, s.page(args))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleListSchemas(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	list, err := s.api.ListSchemas(ctx, org, s.page(args))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleGetSchema(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	schema, err := s.api.GetSchema(ctx, org, stringArg(args, "schema_revid"))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(schema)
}

func (s *Server) handleListForms(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	list, err := s.api.ListForms(ctx, org, s.page(args))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleGetForm(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	form, err := s.api.GetForm(ctx, org, stringArg(args, "form_revid"))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(form)
}

func (s *Server) handleListOrganizations(ctx context.Context, _ map[string]interface{}) (*mcp.CallToolResult, error) {
	list, err := s.api.ListOrganizations(ctx)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(list)
}

func (s *Server) handleGetLLMResult(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	result, err := s.api.GetLLMResult(ctx, org,
		stringArg(args, "document_id"),
		stringArg(args, "prompt_revid"),
		boolArg(args, "fallback", true))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(result)
}

func (s *Server) handleRunLLM(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	resp, err := s.api.RunLLM(ctx, org,
		stringArg(args, "document_id"),
		stringArg(args, "prompt_revid"),
		boolArg(args, "force", false))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(resp)
}

func (s *Server) handleDeleteLLMResult(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	if err := s.api.DeleteLLMResult(ctx, org,
		stringArg(args, "document_id"),
		stringArg(args, "prompt_revid")); err != nil {
		return errorResult(err)
	}
	return jsonResult(map[string]string{"status": "deleted"})
}

func (s *Server) handleGetOCRText(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	org, err := s.orgID(args)
	if err != nil {
		return errorResult(err)
	}

	text, err := s.api.GetOCRText(ctx, org, stringArg(args, "document_id"), intArg(args, "page", 0))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(text)
}

func (s *Server) handleValidateSchema(_ context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	result := schemaformat.Validate(objectArg(args, "schema"))
	return jsonResult(map[string]interface{}{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

func (s *Server) handleValidateForm(_ context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	result := formformat.Validate(objectArg(args, "form"), objectArg(args, "schema"))
	return jsonResult(map[string]interface{}{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}
