package docrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sigagent/docrouter-go/internal/domain"
	"github.com/sigagent/docrouter-go/internal/observability"
)

const (
	// MaxPageSize is the largest page the backend serves for list endpoints.
	MaxPageSize = 100

	// maxErrorBody bounds how much of an error response body is kept for messages.
	maxErrorBody = 1 << 20

	// maxJSONBody bounds decoded JSON response bodies.
	maxJSONBody = 10 << 20

	// maxFileBody bounds downloaded document payloads (100MB).
	maxFileBody = 100 << 20
)

// Config holds configuration for the DocRouter API client.
type Config struct {
	// BaseURL is the backend API base URL, without a trailing slash.
	BaseURL string

	// Token is the API bearer token.
	Token string

	// Timeout is the per-request timeout. Defaults to 60 seconds.
	Timeout time.Duration

	// RateLimit is the maximum requests per second. Defaults to 20.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed. Defaults to 20.
	BurstSize int

	// MaxRetries is the maximum retry attempts on 429/5xx. Defaults to 3.
	MaxRetries int

	// RetryDelay is the base delay between retries. Defaults to 1 second.
	RetryDelay time.Duration

	// Metrics records backend request counts and durations. May be nil.
	Metrics *observability.Metrics
}

// Client is a typed client for the DocRouter backend REST API.
// All methods are org-scoped; the orgID names the tenant organization.
type Client struct {
	config     Config
	httpClient *HTTPClient
}

// New creates a new DocRouter API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("docrouter base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	httpClient := NewHTTPClient(HTTPClientConfig{
		Timeout:    cfg.Timeout,
		RateLimit:  cfg.RateLimit,
		BurstSize:  cfg.BurstSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Token:      cfg.Token,
		Metrics:    cfg.Metrics,
	})

	return &Client{config: cfg, httpClient: httpClient}, nil
}

// NewWithHTTPClient creates a client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *HTTPClient) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{config: cfg, httpClient: httpClient}
}

// ListDocuments returns one page of documents matching the filters.
func (c *Client) ListDocuments(ctx context.Context, orgID string, filters DocumentFilters, page ListParams) (*DocumentList, error) {
	query := pageQuery(page)
	if filters.NameSearch != "" {
		query.Set("name_search", filters.NameSearch)
	}
	if len(filters.TagIDs) > 0 {
		query.Set("tag_ids", strings.Join(filters.TagIDs, ","))
	}
	if len(filters.MetadataSearch) > 0 {
		// Stable ordering keeps request URLs deterministic for caching and tests.
		keys := make([]string, 0, len(filters.MetadataSearch))
		for k := range filters.MetadataSearch {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		terms := make([]string, 0, len(keys))
		for _, k := range keys {
			terms = append(terms, k+"="+filters.MetadataSearch[k])
		}
		query.Set("metadata_search", strings.Join(terms, ","))
	}

	var out DocumentList
	if err := c.getJSON(ctx, c.orgPath(orgID, "documents"), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPrompts returns one page of prompt revisions matching the filters.
func (c *Client) ListPrompts(ctx context.Context, orgID string, filters PromptFilters, page ListParams) (*PromptList, error) {
	query := pageQuery(page)
	if len(filters.TagIDs) > 0 {
		query.Set("tag_ids", strings.Join(filters.TagIDs, ","))
	}
	if filters.DocumentID != "" {
		query.Set("document_id", filters.DocumentID)
	}

	var out PromptList
	if err := c.getJSON(ctx, c.orgPath(orgID, "prompts"), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTags returns one page of tags.
func (c *Client) ListTags(ctx context.Context, orgID string, page ListParams) (*TagList, error) {
	var out TagList
	if err := c.getJSON(ctx, c.orgPath(orgID, "tags"), pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSchemas returns one page of schema revisions.
func (c *Client) ListSchemas(ctx context.Context, orgID string, page ListParams) (*SchemaList, error) {
	var out SchemaList
	if err := c.getJSON(ctx, c.orgPath(orgID, "schemas"), pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSchema returns a schema revision by its revision ID.
func (c *Client) GetSchema(ctx context.Context, orgID, schemaRevID string) (*domain.SchemaRevision, error) {
	var out domain.SchemaRevision
	if err := c.getJSON(ctx, c.orgPath(orgID, "schemas/"+schemaRevID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListForms returns one page of form revisions.
func (c *Client) ListForms(ctx context.Context, orgID string, page ListParams) (*FormList, error) {
	var out FormList
	if err := c.getJSON(ctx, c.orgPath(orgID, "forms"), pageQuery(page), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForm returns a form revision by its revision ID.
func (c *Client) GetForm(ctx context.Context, orgID, formRevID string) (*domain.FormRevision, error) {
	var out domain.FormRevision
	if err := c.getJSON(ctx, c.orgPath(orgID, "forms/"+formRevID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListOrganizations returns the organizations visible to the token.
func (c *Client) ListOrganizations(ctx context.Context) (*OrganizationList, error) {
	var out OrganizationList
	if err := c.getJSON(ctx, "/organizations", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLLMResult fetches the stored extraction result for a (document, prompt
// revision) pair. When fallback is true the backend may return the most recent
// result produced by any revision of the same prompt; callers use this to
// detect stale results. A missing result yields domain.ErrNotFound.
func (c *Client) GetLLMResult(ctx context.Context, orgID, documentID, promptRevID string, fallback bool) (*domain.LLMResult, error) {
	query := url.Values{}
	query.Set("prompt_revid", promptRevID)
	if fallback {
		query.Set("fallback", "true")
	}

	var out domain.LLMResult
	if err := c.getJSON(ctx, c.orgPath(orgID, "llm/result/"+documentID), query, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunLLM asks the backend to execute a prompt revision against a document.
// force re-runs the extraction even when a current result exists.
func (c *Client) RunLLM(ctx context.Context, orgID, documentID, promptRevID string, force bool) (*RunResponse, error) {
	endpoint := c.orgPath(orgID, "llm/run/"+documentID)
	query := url.Values{}
	query.Set("prompt_revid", promptRevID)
	query.Set("force", strconv.FormatBool(force))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(endpoint, resp, documentID); err != nil {
		return nil, err
	}

	var out RunResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// DeleteLLMResult removes the stored result for a (document, prompt revision) pair.
func (c *Client) DeleteLLMResult(ctx context.Context, orgID, documentID, promptRevID string) error {
	endpoint := c.orgPath(orgID, "llm/result/"+documentID)
	query := url.Values{}
	query.Set("prompt_revid", promptRevID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.config.BaseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(endpoint, resp, documentID); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// GetDocument downloads a document's file. fileType selects the rendition
// ("pdf" or "original"); the backend defaults to the original upload.
func (c *Client) GetDocument(ctx context.Context, orgID, documentID, fileType string) (*DocumentFile, error) {
	endpoint := c.orgPath(orgID, "documents/"+documentID+"/download")
	query := url.Values{}
	if fileType != "" {
		query.Set("file_type", fileType)
	}

	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(endpoint, resp, documentID); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBody))
	if err != nil {
		return nil, fmt.Errorf("reading document body: %w", err)
	}

	return &DocumentFile{
		DocumentID:  documentID,
		Name:        fileNameFromHeader(resp.Header.Get("Content-Disposition"), documentID),
		ContentType: resp.Header.Get("Content-Type"),
		Content:     content,
	}, nil
}

// GetOCRText fetches the OCR text for one page of a document. page is 1-based;
// zero requests the full document text.
func (c *Client) GetOCRText(ctx context.Context, orgID, documentID string, page int) (*domain.OCRText, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}

	endpoint := c.orgPath(orgID, "ocr/text/"+documentID)
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(endpoint, resp, documentID); err != nil {
		return nil, err
	}

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return nil, fmt.Errorf("reading OCR body: %w", err)
	}

	return &domain.OCRText{
		DocumentID: documentID,
		Page:       page,
		Text:       string(text),
	}, nil
}

// orgPath builds an org-scoped endpoint path.
func (c *Client) orgPath(orgID, suffix string) string {
	return "/orgs/" + url.PathEscape(orgID) + "/" + suffix
}

// getJSON performs a GET request and decodes a JSON response into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out interface{}) error {
	u := c.config.BaseURL + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(endpoint, resp, ""); err != nil {
		return err
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// checkStatus converts non-2xx responses into domain errors. 404 becomes a
// NotFoundError so callers can probe with errors.Is(err, domain.ErrNotFound).
func (c *Client) checkStatus(endpoint string, resp *http.Response, entityID string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	if resp.StatusCode == http.StatusNotFound {
		return domain.NewNotFoundError(endpoint, entityID)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewAPIError(endpoint, resp.StatusCode, string(body), domain.ErrUnauthorized)
	default:
		return domain.NewAPIError(endpoint, resp.StatusCode, string(body), nil)
	}
}

// pageQuery renders pagination parameters, clamping the limit to the backend cap.
func pageQuery(page ListParams) url.Values {
	query := url.Values{}
	limit := page.Limit
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	query.Set("skip", strconv.Itoa(page.Skip))
	query.Set("limit", strconv.Itoa(limit))
	return query
}

// fileNameFromHeader extracts a filename from a Content-Disposition header,
// falling back to "<documentID>.pdf" when absent or unparsable.
func fileNameFromHeader(header, documentID string) string {
	if header != "" {
		if _, params, err := mime.ParseMediaType(header); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return documentID + ".pdf"
}
