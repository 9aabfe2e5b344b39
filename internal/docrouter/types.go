package docrouter

import (
	"github.com/sigagent/docrouter-go/internal/domain"
)

// ListParams holds offset pagination parameters shared by all list endpoints.
type ListParams struct {
	// Skip is the number of items to skip from the start of the result set.
	Skip int

	// Limit is the maximum number of items to return. The backend caps this
	// at 100.
	Limit int
}

// DocumentFilters narrows document listings.
type DocumentFilters struct {
	// NameSearch filters documents whose name contains the given substring.
	NameSearch string

	// TagIDs filters documents carrying all of the given tags.
	TagIDs []string

	// MetadataSearch filters documents by metadata key/value pairs
	// (rendered as key=value query terms).
	MetadataSearch map[string]string
}

// PromptFilters narrows prompt listings.
type PromptFilters struct {
	// TagIDs filters prompts associated with any of the given tags.
	TagIDs []string

	// DocumentID filters prompts applicable to a specific document.
	DocumentID string
}

// DocumentList is the backend response for a document list page.
type DocumentList struct {
	Documents  []domain.Document `json:"documents"`
	TotalCount int               `json:"total_count"`
	Skip       int               `json:"skip"`
}

// PromptList is the backend response for a prompt list page.
type PromptList struct {
	Prompts    []domain.Prompt `json:"prompts"`
	TotalCount int             `json:"total_count"`
	Skip       int             `json:"skip"`
}

// TagList is the backend response for a tag list page.
type TagList struct {
	Tags       []domain.Tag `json:"tags"`
	TotalCount int          `json:"total_count"`
	Skip       int          `json:"skip"`
}

// SchemaList is the backend response for a schema list page.
type SchemaList struct {
	Schemas    []domain.SchemaRevision `json:"schemas"`
	TotalCount int                     `json:"total_count"`
	Skip       int                     `json:"skip"`
}

// FormList is the backend response for a form list page.
type FormList struct {
	Forms      []domain.FormRevision `json:"forms"`
	TotalCount int                   `json:"total_count"`
	Skip       int                   `json:"skip"`
}

// OrganizationList is the backend response for an organization list.
type OrganizationList struct {
	Organizations []domain.Organization `json:"organizations"`
}

// RunResponse is the backend acknowledgement of an LLM run request.
type RunResponse struct {
	Status string                 `json:"status"`
	Result map[string]interface{} `json:"result,omitempty"`
}

// DocumentFile is a downloaded document payload.
type DocumentFile struct {
	// DocumentID is the source document.
	DocumentID string

	// Name is the file name reported by the backend.
	Name string

	// ContentType is the MIME type of the payload.
	ContentType string

	// Content is the file bytes.
	Content []byte
}
