// Package domain provides domain models and business logic for the DocRouter
// bulk-operations service.
package domain

import (
	"time"
)

// Document represents a document stored in the DocRouter backend.
type Document struct {
	// ID is the backend document identifier.
	ID string `json:"id"`

	// Name is the user-visible document name.
	Name string `json:"document_name"`

	// TagIDs lists the tags attached to the document.
	TagIDs []string `json:"tag_ids,omitempty"`

	// Metadata holds free-form key/value metadata set at upload time.
	Metadata map[string]string `json:"metadata,omitempty"`

	// State is the backend processing state (e.g. "uploaded", "ocr_completed").
	State string `json:"state,omitempty"`

	// UploadDate is when the document was uploaded.
	UploadDate time.Time `json:"upload_date"`
}

// Prompt represents one revision of an extraction prompt.
// Revisions sharing a PromptID form the version history of a single prompt;
// the revision with the highest Version is the latest.
type Prompt struct {
	// RevisionID uniquely identifies this revision.
	RevisionID string `json:"prompt_revid"`

	// PromptID identifies the prompt across revisions.
	PromptID string `json:"prompt_id"`

	// Version is the revision number, starting at 1.
	Version int `json:"prompt_version"`

	// Name is the user-visible prompt name.
	Name string `json:"name"`

	// Content is the prompt text sent to the LLM.
	Content string `json:"content,omitempty"`

	// SchemaID optionally binds the prompt to an extraction schema.
	SchemaID string `json:"schema_id,omitempty"`

	// TagIDs lists the tags whose documents this prompt applies to.
	TagIDs []string `json:"tag_ids,omitempty"`

	// Model is the LLM model the backend runs the prompt against.
	Model string `json:"model,omitempty"`
}

// Latest returns, for each PromptID in prompts, the revision with the highest
// Version. Relative order of the surviving revisions follows their first
// appearance in the input.
func Latest(prompts []Prompt) []Prompt {
	best := make(map[string]int, len(prompts))
	order := make([]string, 0, len(prompts))
	for i, p := range prompts {
		j, seen := best[p.PromptID]
		if !seen {
			best[p.PromptID] = i
			order = append(order, p.PromptID)
			continue
		}
		if p.Version > prompts[j].Version {
			best[p.PromptID] = i
		}
	}
	out := make([]Prompt, 0, len(order))
	for _, id := range order {
		out = append(out, prompts[best[id]])
	}
	return out
}

// Tag represents a document tag.
type Tag struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// SchemaRevision represents one revision of an extraction schema.
type SchemaRevision struct {
	RevisionID string `json:"schema_revid"`
	SchemaID   string `json:"schema_id"`
	Version    int    `json:"schema_version"`
	Name       string `json:"name"`

	// ResponseFormat is the JSON-Schema-shaped structured output definition.
	ResponseFormat map[string]interface{} `json:"response_format"`
}

// FormRevision represents one revision of a form layout.
type FormRevision struct {
	RevisionID string `json:"form_revid"`
	FormID     string `json:"form_id"`
	Version    int    `json:"form_version"`
	Name       string `json:"name"`

	// ResponseFormat holds the form definition (json_formio components plus
	// field mappings keyed by normalized field name).
	ResponseFormat map[string]interface{} `json:"response_format"`
}

// Organization represents a tenant organization.
type Organization struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Members []Member `json:"members,omitempty"`
}

// Member is a user's membership in an organization.
type Member struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// LLMResult is the stored output of running a prompt revision against a document.
type LLMResult struct {
	// PromptRevisionID is the prompt revision that produced the result.
	PromptRevisionID string `json:"prompt_revid"`

	// PromptID identifies the prompt across revisions.
	PromptID string `json:"prompt_id"`

	// PromptVersion is the version of the prompt that produced the result.
	PromptVersion int `json:"prompt_version"`

	// DocumentID is the document the prompt ran against.
	DocumentID string `json:"document_id"`

	// Result is the extraction output.
	Result map[string]interface{} `json:"updated_llm_result,omitempty"`

	// IsVerified reports whether a human reviewed the result.
	IsVerified bool `json:"is_verified"`

	// CreatedAt is when the result was produced.
	CreatedAt time.Time `json:"created_at"`
}

// OCRText is a page of OCR output for a document.
type OCRText struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}
