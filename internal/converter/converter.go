// Package converter transforms recovered pages into target-format
// documents. Basic covers validation, text formatting, image handling and
// format wrapping; Advanced adds structural extraction (tables,
// attachments, tags) and normalization passes.
package converter

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/models"
)

// OutputFormat selects the target document representation.
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	// FormatRichDocument is a placeholder target: content passes through
	// unwrapped for a downstream rich-document renderer.
	FormatRichDocument OutputFormat = "rich-document"
)

// PerformanceMode trades edge-case handling for speed.
type PerformanceMode string

const (
	ModeFast     PerformanceMode = "fast"
	ModeBalanced PerformanceMode = "balanced"
	ModeThorough PerformanceMode = "thorough"
)

// Options configures a conversion. Every pipeline stage is independently
// toggle-able.
type Options struct {
	OutputFormat       OutputFormat
	PreserveFormatting bool
	IncludeImages      bool
	ImageOutputPath    string
	PreserveTables     bool
	HandleAttachments  bool
	ConvertTags        bool
	IncludeMetadata    bool
	PerformanceMode    PerformanceMode
	OnProgress         models.ProgressFunc
}

// DefaultOptions returns the defaults used by the orchestrator.
func DefaultOptions() Options {
	return Options{
		OutputFormat:       FormatMarkdown,
		PreserveFormatting: true,
		IncludeImages:      true,
		PreserveTables:     true,
		HandleAttachments:  true,
		ConvertTags:        true,
		IncludeMetadata:    true,
		PerformanceMode:    ModeBalanced,
	}
}

// Attachment is an extracted attachment marker with its key=value fields.
type Attachment struct {
	Name   string
	Fields map[string]string
}

// Table is an extracted table with an optional caption.
type Table struct {
	Caption string
	Headers []string
	Rows    [][]string
}

// Result is the structured outcome of a conversion. Success and Error are
// mutually exclusive.
type Result struct {
	Success     bool
	Content     string
	Images      []string
	Tables      []Table
	Attachments []Attachment
	Tags        []string
	Metadata    map[string]interface{}
	Error       string
}

// Converter converts a single page. Implementations are stateless per call.
type Converter interface {
	Convert(page *models.Page, opts Options) Result
}

var (
	imageMarker    = regexp.MustCompile(`(?i)\[image:\s*([^\]]+)\]`)
	markdownImage  = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\)`)
	bulletLine     = regexp.MustCompile(`^([ \t]*)[*•+] `)
	numberedLine   = regexp.MustCompile(`^([ \t]*)(\d+)\) `)
	allCapsHeading = regexp.MustCompile(`^[A-Z][A-Z0-9 ,&'-]{2,59}$`)
)

// headerLiterals are promoted to level-2 headings when a line matches one
// exactly (case-insensitive).
var headerLiterals = map[string]struct{}{
	"summary":      {},
	"overview":     {},
	"notes":        {},
	"action items": {},
	"next steps":   {},
	"conclusion":   {},
	"references":   {},
}

// Basic is the basic conversion pipeline: validate, format text, handle
// images, wrap for the target format.
type Basic struct{}

// NewBasic creates a basic converter.
func NewBasic() *Basic {
	return &Basic{}
}

// Convert runs the basic pipeline on one page.
func (c *Basic) Convert(page *models.Page, opts Options) Result {
	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 0, Message: "starting conversion"})

	if err := c.validate(page); err != nil {
		return Result{Error: err.Error()}
	}

	text := page.Content
	if opts.PreserveFormatting {
		text = c.formatText(text)
	}

	var images []string
	if opts.IncludeImages {
		text, images = c.handleImages(text, opts.ImageOutputPath)
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 50, Message: "formatting complete"})

	result := Result{
		Success: true,
		Content: c.wrap(page.Title, text, opts.OutputFormat),
		Images:  images,
	}
	if opts.IncludeMetadata {
		result.Metadata = pageMetadata(page, opts.OutputFormat)
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 100, Message: "conversion complete"})
	logger.Debug("Converted page", map[string]interface{}{
		"page":   page.Title,
		"format": string(opts.OutputFormat),
		"images": len(images),
	})
	return result
}

// validate rejects empty content and unbalanced bold/italic markers.
func (c *Basic) validate(page *models.Page) error {
	if strings.TrimSpace(page.Content) == "" {
		return fmt.Errorf("page %q has no content", page.Title)
	}
	if strings.Count(page.Content, "**")%2 != 0 {
		return fmt.Errorf("page %q has unbalanced bold markers", page.Title)
	}
	remaining := strings.ReplaceAll(page.Content, "**", "")
	if strings.Count(remaining, "*")%2 != 0 {
		return fmt.Errorf("page %q has unbalanced italic markers", page.Title)
	}
	return nil
}

// formatText normalizes bold/italic markers, list bullets and headings.
// Known header literals and short all-caps lines become level-2 headings.
func (c *Basic) formatText(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if _, ok := headerLiterals[strings.ToLower(trimmed)]; ok {
			out = append(out, "## "+trimmed)
			continue
		}
		if allCapsHeading.MatchString(trimmed) && strings.ContainsAny(trimmed, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			out = append(out, "## "+titleCase(trimmed))
			continue
		}

		line = bulletLine.ReplaceAllString(line, "${1}- ")
		line = numberedLine.ReplaceAllString(line, "${1}${2}. ")
		line = strings.ReplaceAll(line, "__", "**")
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// handleImages rewrites inline image markers into markdown image syntax and
// collects the referenced paths. A non-empty output path rebases the
// references onto it.
func (c *Basic) handleImages(text, outputPath string) (string, []string) {
	var images []string

	text = imageMarker.ReplaceAllStringFunc(text, func(m string) string {
		ref := strings.TrimSpace(imageMarker.FindStringSubmatch(m)[1])
		images = append(images, ref)
		target := ref
		if outputPath != "" {
			target = path.Join(outputPath, path.Base(ref))
		}
		return fmt.Sprintf("![%s](%s)", path.Base(ref), target)
	})

	for _, m := range markdownImage.FindAllStringSubmatch(text, -1) {
		images = append(images, strings.TrimSpace(m[1]))
	}
	return text, dedupe(images)
}

// wrap applies the final format wrapping: markdown output is prefixed with
// a level-1 title heading, the rich-document placeholder passes through.
func (c *Basic) wrap(title, text string, format OutputFormat) string {
	if format == FormatRichDocument {
		return text
	}
	return fmt.Sprintf("# %s\n\n%s", title, strings.TrimSpace(text))
}

func pageMetadata(page *models.Page, format OutputFormat) map[string]interface{} {
	meta := make(map[string]interface{}, len(page.Metadata)+2)
	for k, v := range page.Metadata {
		meta[k] = v
	}
	meta["sourcePageId"] = page.ID
	meta["outputFormat"] = string(format)
	return meta
}

// titleCase lowercases an all-caps heading and capitalizes each word.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
