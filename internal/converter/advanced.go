package converter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/takumif/onenote2notion/internal/models"
)

var (
	attachmentMarker = regexp.MustCompile(`(?i)\[attachment:\s*([^\s\]]+)((?:\s+\w+=[^\s\]]+)*)\]`)
	tagMarker        = regexp.MustCompile(`(?i)\[tag:\s*([^\]]+)\]`)
	fieldPattern     = regexp.MustCompile(`(\w+)=([^\s\]]+)`)
	tableRowLine     = regexp.MustCompile(`^\s*\|.*\|\s*$`)
	tableDividerLine = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)
	captionLine      = regexp.MustCompile(`(?i)^(?:table\s*\d*[.:]\s*.+|.{1,60}:)$`)
)

// specialCharReplacer normalizes smart punctuation to plain ASCII.
var specialCharReplacer = strings.NewReplacer(
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...", // ellipsis
	" ", " ", // non-breaking space
)

// Advanced extends the basic pipeline with structural extraction (tables,
// attachments, tags), metadata merging, code-block cleanup and
// special-character normalization.
type Advanced struct {
	basic *Basic
}

// NewAdvanced creates an advanced converter.
func NewAdvanced() *Advanced {
	return &Advanced{basic: NewBasic()}
}

// Convert runs the advanced pipeline on one page. Fast mode skips the
// edge-case handling stages entirely; only thorough mode runs the full
// normalization suite.
func (c *Advanced) Convert(page *models.Page, opts Options) Result {
	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 0, Message: "starting conversion"})

	if err := c.basic.validate(page); err != nil {
		return Result{Error: err.Error()}
	}

	text := page.Content
	result := Result{Success: true}

	if opts.PreserveTables {
		text, result.Tables = c.ExtractTables(text)
	}
	if opts.HandleAttachments {
		text, result.Attachments = c.extractAttachments(text, page.Attachments)
	}
	if opts.ConvertTags {
		text, result.Tags = c.extractTags(text, page.Tags)
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 30, Message: "structural extraction complete"})

	if opts.PerformanceMode != ModeFast {
		text = c.normalizeCodeBlocks(text)
	}
	if opts.PerformanceMode == ModeThorough {
		text = specialCharReplacer.Replace(text)
	}

	if opts.PreserveFormatting {
		text = c.basic.formatText(text)
	}
	if opts.IncludeImages {
		text, result.Images = c.basic.handleImages(text, opts.ImageOutputPath)
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 70, Message: "formatting complete"})

	// Extracted tables come back as rendered markdown after the cleaned
	// body, so output never carries both raw rows and their rendered form.
	if len(result.Tables) > 0 {
		var b strings.Builder
		b.WriteString(strings.TrimSpace(text))
		for _, table := range result.Tables {
			b.WriteString("\n\n")
			b.WriteString(renderTable(table))
		}
		text = b.String()
	}

	result.Content = c.basic.wrap(page.Title, text, opts.OutputFormat)
	if opts.IncludeMetadata {
		result.Metadata = pageMetadata(page, opts.OutputFormat)
		result.Metadata["tables"] = len(result.Tables)
		result.Metadata["attachments"] = len(result.Attachments)
	}

	opts.OnProgress.Emit(models.ProgressEvent{Stage: "convert", Percentage: 100, Message: "conversion complete"})
	return result
}

// ExtractTables strips pipe-table blocks from the text and returns them as
// structured tables, each paired with an immediately preceding caption line
// when one exists. Running it again on already-cleaned content is a no-op.
func (c *Advanced) ExtractTables(text string) (string, []Table) {
	lines := strings.Split(text, "\n")
	var (
		kept   []string
		tables []Table
	)

	for i := 0; i < len(lines); i++ {
		if !tableRowLine.MatchString(lines[i]) {
			kept = append(kept, lines[i])
			continue
		}

		// Collect the run of table rows.
		start := i
		for i < len(lines) && tableRowLine.MatchString(lines[i]) {
			i++
		}
		block := lines[start:i]
		i--

		if len(block) < 2 {
			// A lone pipe line is not a table.
			kept = append(kept, block...)
			continue
		}

		table := parseTableBlock(block)

		// Claim the preceding line as a caption if it looks like one.
		if len(kept) > 0 {
			prev := strings.TrimSpace(kept[len(kept)-1])
			if prev != "" && captionLine.MatchString(prev) && !strings.Contains(prev, "|") {
				table.Caption = strings.TrimSuffix(prev, ":")
				kept = kept[:len(kept)-1]
			}
		}
		tables = append(tables, table)
	}

	return strings.Join(kept, "\n"), tables
}

func parseTableBlock(block []string) Table {
	var table Table
	for idx, line := range block {
		if tableDividerLine.MatchString(line) && strings.Contains(line, "-") {
			continue
		}
		cells := splitTableRow(line)
		if idx == 0 {
			table.Headers = cells
		} else {
			table.Rows = append(table.Rows, cells)
		}
	}
	return table
}

func splitTableRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// renderTable renders a structured table back to markdown, caption first.
func renderTable(t Table) string {
	var b strings.Builder
	if t.Caption != "" {
		b.WriteString("**" + t.Caption + "**\n\n")
	}
	b.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	dividers := make([]string, len(t.Headers))
	for i := range dividers {
		dividers[i] = "---"
	}
	b.WriteString("| " + strings.Join(dividers, " | ") + " |")
	for _, row := range t.Rows {
		b.WriteString("\n| " + strings.Join(row, " | ") + " |")
	}
	return b.String()
}

// extractAttachments strips attachment markers from the text, parsing
// key=value fields, and merges the page's own attachment references.
func (c *Advanced) extractAttachments(text string, pageRefs []string) (string, []Attachment) {
	var attachments []Attachment
	seen := make(map[string]struct{})

	text = attachmentMarker.ReplaceAllStringFunc(text, func(m string) string {
		sub := attachmentMarker.FindStringSubmatch(m)
		name := strings.TrimSpace(sub[1])
		att := Attachment{Name: name, Fields: map[string]string{}}
		for _, f := range fieldPattern.FindAllStringSubmatch(sub[2], -1) {
			att.Fields[f[1]] = f[2]
		}
		if _, ok := seen[strings.ToLower(name)]; !ok {
			seen[strings.ToLower(name)] = struct{}{}
			attachments = append(attachments, att)
		}
		return ""
	})

	for _, ref := range pageRefs {
		if _, ok := seen[strings.ToLower(ref)]; ok {
			continue
		}
		seen[strings.ToLower(ref)] = struct{}{}
		attachments = append(attachments, Attachment{Name: ref, Fields: map[string]string{}})
	}
	return collapseBlankLines(text), attachments
}

// extractTags strips tag markers from the text and merges the page's tags.
func (c *Advanced) extractTags(text string, pageTags []string) (string, []string) {
	var tags []string
	text = tagMarker.ReplaceAllStringFunc(text, func(m string) string {
		tags = append(tags, strings.TrimSpace(tagMarker.FindStringSubmatch(m)[1]))
		return ""
	})
	tags = append(tags, pageTags...)
	return collapseBlankLines(text), dedupe(tags)
}

// normalizeCodeBlocks closes unterminated fences and strips trailing
// whitespace inside fenced blocks.
func (c *Advanced) normalizeCodeBlocks(text string) string {
	lines := strings.Split(text, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			lines[i] = strings.TrimRight(line, " \t")
		}
	}
	text = strings.Join(lines, "\n")
	if inFence {
		text += "\n```"
	}
	return text
}

// collapseBlankLines squeezes runs of blank lines left behind by marker
// removal down to one.
func collapseBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
			out = append(out, "")
			continue
		}
		blanks = 0
		out = append(out, strings.TrimRight(line, " \t"))
	}
	return strings.Join(out, "\n")
}

// FormatName returns a printable name for an output format, defaulting to
// markdown for unknown values.
func FormatName(f OutputFormat) string {
	switch f {
	case FormatRichDocument:
		return "rich document"
	case FormatMarkdown, "":
		return "markdown"
	default:
		return fmt.Sprintf("markdown (unknown format %q)", string(f))
	}
}
