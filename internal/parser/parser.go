// Package parser recovers readable content from opaque section data. It is
// deliberately a best-effort text scanner, not a format decoder: a real
// decoder can replace it behind the same ParseSection contract without
// touching callers.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/takumif/onenote2notion/internal/faults"
	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/models"
)

const (
	// binaryThreshold is the fraction of non-printable bytes above which
	// input is treated as binary and run-scanned instead of decoded whole.
	binaryThreshold = 0.30

	// minRunLength is the shortest printable run kept during scanning.
	minRunLength = 4

	// directDecodeLimit is the size under which clean text is trusted as-is.
	directDecodeLimit = 64 * 1024

	maxTitleLength = 80
)

var (
	imageRefPattern     = regexp.MustCompile(`(?i)[\w\-./\\]+\.(?:png|jpe?g|gif|bmp|tiff?|webp)`)
	imageMarkerPattern  = regexp.MustCompile(`(?i)\[image:\s*([^\]]+)\]`)
	attachRefPattern    = regexp.MustCompile(`(?i)[\w\-./\\]+\.(?:pdf|docx?|xlsx?|pptx?|zip|csv)`)
	attachMarkerPattern = regexp.MustCompile(`(?i)\[attachment:\s*([^\s\]]+)[^\]]*\]`)
	headerSeparator     = regexp.MustCompile(`(?m)^#{1,3} .+$`)
	ruleSeparator       = regexp.MustCompile(`(?m)^(?:-{3,}|={3,}|\*{3,})[ \t]*$`)
	pageMarkerSeparator = regexp.MustCompile(`(?m)^Page \d+:.*$`)
	tagPattern          = regexp.MustCompile(`#([\p{L}\p{N}_-]+)`)
)

// Parser turns raw section bytes into a structured section with pages.
type Parser struct {
	fallbackOnError bool
}

// New creates a new Parser instance. With fallback enabled, recoverable
// parse faults yield a placeholder section instead of an error.
func New(fallbackOnError bool) *Parser {
	return &Parser{fallbackOnError: fallbackOnError}
}

// ParseSection recovers a section from raw bytes. The source name seeds the
// section name and generated titles.
func (p *Parser) ParseSection(data []byte, source string) (*models.Section, error) {
	section, err := p.parse(data, source)
	if err == nil {
		return section, nil
	}

	if p.fallbackOnError {
		if fb := faults.FallbackSection(err, source); fb != nil {
			logger.Warn("Falling back to placeholder section", err, map[string]interface{}{
				"source": source,
			})
			return fb, nil
		}
	}
	return nil, err
}

func (p *Parser) parse(data []byte, source string) (*models.Section, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("section %s is corrupted: empty input", source)
	}

	text, err := p.recoverText(data)
	if err != nil {
		return nil, err
	}

	images := p.findImageRefs(data)
	attachments := p.findAttachmentRefs(data)

	now := time.Now()
	meta := map[string]interface{}{
		"source":           source,
		"extractionMethod": "heuristic",
	}

	content := models.ParsedContent{
		Title:       p.pickTitle(text, source),
		Content:     text,
		Metadata:    meta,
		Images:      images,
		Attachments: attachments,
	}

	pages := p.buildPages(content, now)
	if len(pages) == 0 {
		return nil, fmt.Errorf("parse failure: no recoverable content in %s", source)
	}

	logger.Debug("Parsed section", map[string]interface{}{
		"source":      source,
		"pages":       len(pages),
		"images":      len(images),
		"attachments": len(attachments),
	})

	return &models.Section{
		ID:         uuid.NewString(),
		Name:       content.Title,
		Pages:      pages,
		CreatedAt:  now,
		ModifiedAt: now,
		Metadata:   meta,
	}, nil
}

// recoverText decodes the input as text when it looks clean, otherwise
// scans for printable runs.
func (p *Parser) recoverText(data []byte) (string, error) {
	if len(data) <= directDecodeLimit && !p.binaryLooking(data) && utf8.Valid(data) {
		return strings.TrimSpace(string(data)), nil
	}

	runs := p.printableRuns(data)
	if len(runs) == 0 {
		return "", fmt.Errorf("section data is corrupted: no printable content found")
	}
	return strings.Join(runs, "\n"), nil
}

// binaryLooking reports whether the fraction of non-printable bytes exceeds
// the threshold.
func (p *Parser) binaryLooking(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	nonPrintable := 0
	for _, b := range data {
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			nonPrintable++
		}
	}
	return float64(nonPrintable)/float64(len(data)) > binaryThreshold
}

// printableRuns collects maximal runs of printable ASCII of at least
// minRunLength characters.
func (p *Parser) printableRuns(data []byte) []string {
	var runs []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= minRunLength {
			runs = append(runs, strings.TrimSpace(current.String()))
		}
		current.Reset()
	}

	for _, b := range data {
		if b == '\t' || (b >= 0x20 && b < 0x7f) {
			current.WriteByte(b)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

// pickTitle returns the first short, URL-free, at-sign-free line as the
// title candidate, else a placeholder derived from the source name.
func (p *Parser) pickTitle(text, source string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line == "" || utf8.RuneCountInString(line) > maxTitleLength {
			continue
		}
		if strings.Contains(line, "http://") || strings.Contains(line, "https://") {
			continue
		}
		if strings.Contains(line, "@") {
			continue
		}
		return line
	}

	base := source
	if idx := strings.LastIndexAny(base, "/\\"); idx >= 0 {
		base = base[idx+1:]
	}
	if dot := strings.LastIndex(base, "."); dot > 0 {
		base = base[:dot]
	}
	if base == "" {
		return "Untitled Section"
	}
	return "Recovered: " + base
}

// findImageRefs scans the raw bytes for image references, both bare
// filenames and explicit [image: ...] markers, de-duplicated in order.
func (p *Parser) findImageRefs(data []byte) []string {
	text := string(data)
	var refs []string
	for _, m := range imageMarkerPattern.FindAllStringSubmatch(text, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	refs = append(refs, imageRefPattern.FindAllString(text, -1)...)
	return dedupe(refs)
}

// findAttachmentRefs scans the raw bytes for attachment references.
func (p *Parser) findAttachmentRefs(data []byte) []string {
	text := string(data)
	var refs []string
	for _, m := range attachMarkerPattern.FindAllStringSubmatch(text, -1) {
		refs = append(refs, strings.TrimSpace(m[1]))
	}
	refs = append(refs, attachRefPattern.FindAllString(text, -1)...)
	return dedupe(refs)
}

// extractTags collects #word tags from recovered text.
func (p *Parser) extractTags(text string) []string {
	var tags []string
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		tags = append(tags, m[1])
	}
	return dedupe(tags)
}

// buildPages splits recovered content into pages at separator patterns.
// With no separator the whole content becomes a single page. Every page
// carries the section metadata plus its index.
func (p *Parser) buildPages(content models.ParsedContent, now time.Time) []models.Page {
	segments := p.splitSegments(content.Content)

	pages := make([]models.Page, 0, len(segments))
	for i, seg := range segments {
		title := p.segmentTitle(seg)
		if title == "" {
			title = content.Title
			if len(segments) > 1 {
				title = fmt.Sprintf("%s (page %d)", content.Title, i+1)
			}
		}

		meta := make(map[string]interface{}, len(content.Metadata)+1)
		for k, v := range content.Metadata {
			meta[k] = v
		}
		meta["pageIndex"] = i

		pages = append(pages, models.Page{
			ID:          uuid.NewString(),
			Title:       title,
			Content:     strings.TrimSpace(seg),
			CreatedAt:   now,
			ModifiedAt:  now,
			Metadata:    meta,
			Attachments: content.Attachments,
			Tags:        p.extractTags(seg),
		})
	}
	return pages
}

// splitSegments cuts the text at page-separator positions. Text before the
// first separator joins the first segment when the separator is a header or
// page marker (those lines open a page), but stands as its own page when the
// first separator is a horizontal rule (rules divide two pages). With no
// separator the whole text is one segment.
func (p *Parser) splitSegments(text string) []string {
	var cuts []int
	for _, pat := range []*regexp.Regexp{headerSeparator, pageMarkerSeparator, ruleSeparator} {
		for _, loc := range pat.FindAllStringIndex(text, -1) {
			cuts = append(cuts, loc[0])
		}
	}

	if len(cuts) == 0 {
		return []string{text}
	}

	sort.Ints(cuts)

	var segments []string
	prelude := strings.TrimSpace(text[:cuts[0]])
	firstIsRule := ruleSeparator.MatchString(firstLineAt(text, cuts[0]))
	if prelude != "" && firstIsRule {
		segments = append(segments, prelude)
		prelude = ""
	}

	for i, start := range cuts {
		end := len(text)
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		seg := text[start:end]
		// A horizontal rule separates what follows; the rule line is dropped.
		if loc := ruleSeparator.FindStringIndex(seg); loc != nil && loc[0] == 0 {
			seg = seg[loc[1]:]
		}
		seg = strings.TrimSpace(seg)
		if prelude != "" {
			if seg == "" {
				seg = prelude
			} else {
				seg = prelude + "\n" + seg
			}
			prelude = ""
		}
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return []string{text}
	}
	return segments
}

// firstLineAt returns the line of text beginning at offset.
func firstLineAt(text string, offset int) string {
	rest := text[offset:]
	if idx := strings.IndexByte(rest, '\n'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// segmentTitle derives a title from the segment's leading line when it is a
// recognizable header or page marker.
func (p *Parser) segmentTitle(seg string) string {
	line := seg
	if idx := strings.IndexByte(seg, '\n'); idx >= 0 {
		line = seg[:idx]
	}
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, "#") {
		title := strings.TrimSpace(strings.TrimLeft(line, "# "))
		if title != "" && utf8.RuneCountInString(title) <= maxTitleLength {
			return title
		}
		return ""
	}
	if pageMarkerSeparator.MatchString(line) {
		rest := strings.TrimSpace(line[strings.Index(line, ":")+1:])
		if rest != "" {
			return rest
		}
		return strings.TrimSuffix(line, ":")
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
