package notion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/time/rate"

	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/mapper"
	"github.com/takumif/onenote2notion/internal/models"
)

const (
	defaultRetryDelay = 1 * time.Second
	defaultMaxRetries = 3
	// defaultRequestsPerSecond matches Notion's documented average limit.
	defaultRequestsPerSecond = 3
)

// Config configures the Notion client.
type Config struct {
	Token        string
	ParentPageID string
	// RetryDelay is the wait before each rate-limit retry.
	RetryDelay time.Duration
	// MaxRetries bounds rate-limit retries per call. Sustained throttling
	// beyond the bound surfaces as a failed result instead of looping.
	MaxRetries        int
	RequestsPerSecond int
}

// ImportOptions configures page creation.
type ImportOptions struct {
	// ParentID overrides the configured parent for this call.
	ParentID    string
	ConvertTags bool
	OnProgress  models.ProgressFunc
}

// ImportMetadata carries timing and retry accounting for one import call.
type ImportMetadata struct {
	ProcessingTime time.Duration
	ItemsProcessed int
	RetryCount     int
}

// ImportResult is the structured outcome of a page-creation call.
type ImportResult struct {
	Success  bool
	PageID   string
	URL      string
	Children []*ImportResult
	Error    string
	Metadata ImportMetadata
}

// Client wraps the Notion API client with rate limiting and bounded
// rate-limit retries.
type Client struct {
	client     NotionClient
	parentID   notionapi.PageID
	parentType notionapi.ParentType
	retryDelay time.Duration
	maxRetries int
	limiter    *rate.Limiter
}

// New creates a Notion client from the environment.
func New() (*Client, error) {
	cfg := Config{
		Token:        os.Getenv("NOTION_API_KEY"),
		ParentPageID: os.Getenv("NOTION_PARENT_PAGE_ID"),
	}
	if ms, err := strconv.Atoi(os.Getenv("NOTION_RETRY_DELAY_MS")); err == nil && ms > 0 {
		cfg.RetryDelay = time.Duration(ms) * time.Millisecond
	}
	if n, err := strconv.Atoi(os.Getenv("NOTION_MAX_RETRIES")); err == nil && n > 0 {
		cfg.MaxRetries = n
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Notion client from explicit configuration.
func NewWithConfig(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("NOTION_API_KEY is not set")
	}
	if cfg.ParentPageID == "" {
		return nil, fmt.Errorf("NOTION_PARENT_PAGE_ID is not set")
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}

	notionClient := notionapi.NewClient(notionapi.Token(cfg.Token))
	return &Client{
		client:     newNotionClientAdapter(notionClient),
		parentID:   notionapi.PageID(cfg.ParentPageID),
		parentType: "page_id",
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond),
	}, nil
}

// CreatePage creates one Notion page from a converted page, building
// destination blocks from its body. Rate-limited calls wait the configured
// delay and retry, bounded by MaxRetries.
func (c *Client) CreatePage(ctx context.Context, page *models.Page, opts ImportOptions) *ImportResult {
	start := time.Now()
	opts.OnProgress.Emit(models.ProgressEvent{Stage: "create-page", Percentage: 0, Message: "preparing " + page.Title})

	parent := notionapi.Parent{Type: c.parentType, PageID: c.parentID}
	if opts.ParentID != "" {
		parent = notionapi.Parent{Type: "page_id", PageID: notionapi.PageID(opts.ParentID)}
	}

	params := &notionapi.PageCreateRequest{
		Parent: parent,
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: richText(page.Title),
			},
		},
		Children: buildBlocks(page.Content),
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "create-page", Percentage: 10, Message: "creating " + page.Title})

	created, retries, err := c.createWithRetry(ctx, params)
	result := &ImportResult{
		Metadata: ImportMetadata{
			ProcessingTime: time.Since(start),
			ItemsProcessed: 1,
			RetryCount:     retries,
		},
	}
	if err != nil {
		result.Error = fmt.Sprintf("failed to create page %q: %v", page.Title, err)
		logger.Error("Failed to create Notion page", err, map[string]interface{}{
			"page":    page.Title,
			"retries": retries,
		})
		return result
	}

	result.Success = true
	result.PageID = string(created.ID)
	result.URL = created.URL

	if opts.ConvertTags && len(page.Tags) > 0 {
		for _, tag := range page.Tags {
			if err := c.addPageToTagGallery(ctx, created, page.Title, tag); err != nil {
				logger.Warn("Failed to register page in tag gallery", err, map[string]interface{}{
					"page": page.Title,
					"tag":  tag,
				})
			}
		}
	}

	result.Metadata.ProcessingTime = time.Since(start)
	opts.OnProgress.Emit(models.ProgressEvent{Stage: "create-page", Percentage: 100, Message: "created " + page.Title})
	logger.Info("Created Notion page", map[string]interface{}{
		"page":    page.Title,
		"page_id": result.PageID,
	})
	return result
}

// CreatePageHierarchy realizes mapped trees depth-first: each node's page
// is created first, then its children are created beneath it and attached
// to the result. Progress interpolates over the sibling index at each
// recursion level.
func (c *Client) CreatePageHierarchy(ctx context.Context, nodes []*mapper.MappedNode, opts ImportOptions) []*ImportResult {
	results := make([]*ImportResult, 0, len(nodes))
	total := len(nodes)

	for i, node := range nodes {
		opts.OnProgress.Emit(models.ProgressEvent{
			Stage:       "create-hierarchy",
			Percentage:  i * 100 / max(total, 1),
			Message:     "creating " + node.Title,
			CurrentItem: i + 1,
			TotalItems:  total,
		})

		page := &models.Page{
			ID:      node.SourceID,
			Title:   node.Title,
			Content: strings.Join(node.BodyBlocks, "\n\n"),
		}
		result := c.CreatePage(ctx, page, ImportOptions{
			ParentID:    opts.ParentID,
			ConvertTags: opts.ConvertTags,
		})
		if result.Success && len(node.Children) > 0 {
			childOpts := opts
			childOpts.ParentID = result.PageID
			result.Children = c.CreatePageHierarchy(ctx, node.Children, childOpts)
			for _, child := range result.Children {
				result.Metadata.ItemsProcessed += child.Metadata.ItemsProcessed
			}
		}
		results = append(results, result)
	}

	opts.OnProgress.Emit(models.ProgressEvent{
		Stage:      "create-hierarchy",
		Percentage: 100,
		Message:    "hierarchy level complete",
		TotalItems: total,
	})
	return results
}

// createWithRetry issues the page-creation call under the shared
// limiter-and-retry policy.
func (c *Client) createWithRetry(ctx context.Context, params *notionapi.PageCreateRequest) (*notionapi.Page, int, error) {
	var page *notionapi.Page
	retries, err := c.withRetry(ctx, func() error {
		var err error
		page, err = c.client.Page().Create(ctx, params)
		return err
	})
	if err != nil {
		return nil, retries, err
	}
	return page, retries, nil
}

// withRetry waits out the limiter, then runs op. A rate-limited response
// sleeps the configured delay and retries; any other error returns
// immediately. Every outbound API call goes through here.
func (c *Client) withRetry(ctx context.Context, op func() error) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return attempt, fmt.Errorf("rate limiter wait: %w", err)
		}

		err := op()
		if err == nil {
			return attempt, nil
		}
		if !isRateLimited(err) {
			return attempt, err
		}

		lastErr = err
		logger.Warn("Rate limited by Notion, backing off", err, map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   c.retryDelay.String(),
		})
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}
	return c.maxRetries, fmt.Errorf("rate limited after %d retries: %w", c.maxRetries, lastErr)
}

// isRateLimited reports whether the error is a 429 response.
func isRateLimited(err error) bool {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Code == "rate_limited"
	}
	return false
}

// addPageToTagGallery registers the created page in an inline database
// named after the tag, creating the database under the configured parent
// when it does not exist yet.
func (c *Client) addPageToTagGallery(ctx context.Context, page *notionapi.Page, title, tag string) error {
	db, err := c.ensureTagDatabase(ctx, tag)
	if err != nil {
		return err
	}

	createdTime := notionapi.Date(page.CreatedTime)
	params := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       "database_id",
			DatabaseID: notionapi.DatabaseID(db.ID),
		},
		Properties: notionapi.Properties{
			"Name": notionapi.TitleProperty{
				Title: richText(title),
			},
			"Created": notionapi.DateProperty{
				Date: &notionapi.DateObject{
					Start: &createdTime,
				},
			},
		},
	}
	if _, err := c.withRetry(ctx, func() error {
		_, err := c.client.Page().Create(ctx, params)
		return err
	}); err != nil {
		return fmt.Errorf("failed to create tag database entry: %w", err)
	}
	return nil
}

// ensureTagDatabase finds an existing database titled after the tag or
// creates one.
func (c *Client) ensureTagDatabase(ctx context.Context, tag string) (*notionapi.Database, error) {
	query := &notionapi.SearchRequest{
		Query: tag,
		Filter: notionapi.SearchFilter{
			Property: "object",
			Value:    "database",
		},
	}
	var results *notionapi.SearchResponse
	if _, err := c.withRetry(ctx, func() error {
		var err error
		results, err = c.client.Search().Do(ctx, query)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to search for tag database: %w", err)
	}
	for _, result := range results.Results {
		if db, ok := result.(*notionapi.Database); ok {
			if len(db.Title) > 0 && db.Title[0].Text != nil && db.Title[0].Text.Content == tag {
				return db, nil
			}
		}
	}

	params := &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   c.parentType,
			PageID: c.parentID,
		},
		Title: richText(tag),
		Properties: notionapi.PropertyConfigs{
			"Name": notionapi.TitlePropertyConfig{
				Type:  "title",
				Title: struct{}{},
			},
			"Created": notionapi.DatePropertyConfig{
				Type: "date",
				Date: struct{}{},
			},
		},
		IsInline: true,
	}
	var db *notionapi.Database
	if _, err := c.withRetry(ctx, func() error {
		var err error
		db, err = c.client.Database().Create(ctx, params)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to create tag database: %w", err)
	}
	return db, nil
}

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}
