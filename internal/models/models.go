package models

import (
	"fmt"
	"time"
)

// Notebook is the root of an extracted hierarchy. A notebook owns its
// sections exclusively; sections are never shared between notebooks.
type Notebook struct {
	ID         string
	Name       string
	Sections   []Section
	CreatedAt  time.Time
	ModifiedAt time.Time
	Metadata   map[string]interface{}
}

// Section groups pages within a notebook.
type Section struct {
	ID         string
	Name       string
	Pages      []Page
	CreatedAt  time.Time
	ModifiedAt time.Time
	Metadata   map[string]interface{}
}

// Page is a single unit of recovered content.
type Page struct {
	ID          string
	Title       string
	Content     string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Metadata    map[string]interface{}
	Attachments []string
	Tags        []string
}

// Hierarchy is the full notebook/section/page tree plus aggregate counts.
// The counters are a checked invariant: CheckCounts reports any drift
// between them and the actual tree sizes.
type Hierarchy struct {
	Notebooks      []Notebook
	TotalNotebooks int
	TotalSections  int
	TotalPages     int
}

// Recount recomputes the aggregate counters from the tree.
func (h *Hierarchy) Recount() {
	h.TotalNotebooks = len(h.Notebooks)
	h.TotalSections = 0
	h.TotalPages = 0
	for _, nb := range h.Notebooks {
		h.TotalSections += len(nb.Sections)
		for _, s := range nb.Sections {
			h.TotalPages += len(s.Pages)
		}
	}
}

// CheckCounts verifies that the aggregate counters match the actual tree.
func (h *Hierarchy) CheckCounts() error {
	notebooks := len(h.Notebooks)
	sections := 0
	pages := 0
	for _, nb := range h.Notebooks {
		sections += len(nb.Sections)
		for _, s := range nb.Sections {
			pages += len(s.Pages)
		}
	}
	if notebooks != h.TotalNotebooks || sections != h.TotalSections || pages != h.TotalPages {
		return fmt.Errorf("hierarchy counters out of sync: have %d/%d/%d, counted %d/%d/%d",
			h.TotalNotebooks, h.TotalSections, h.TotalPages, notebooks, sections, pages)
	}
	return nil
}

// Merge appends another hierarchy's notebooks and recounts.
func (h *Hierarchy) Merge(other *Hierarchy) {
	if other == nil {
		return
	}
	h.Notebooks = append(h.Notebooks, other.Notebooks...)
	h.Recount()
}

// ExtractionResult is the structured outcome of any extraction entry point.
// Hierarchy and Error are mutually exclusive: a populated hierarchy means
// success (possibly degraded), an error string means failure.
type ExtractionResult struct {
	Success        bool
	Hierarchy      *Hierarchy
	Error          string
	ExtractedFiles []string
	Warnings       []string
}

// ParsedContent is the parser's intermediate form. It is consumed
// immediately to build pages and never persisted.
type ParsedContent struct {
	Title       string
	Content     string
	Metadata    map[string]interface{}
	Images      []string
	Attachments []string
}

// ProgressEvent describes a point-in-time progress report. Stage names may
// overlap across operations; callers must tolerate zero events.
type ProgressEvent struct {
	Stage       string
	Percentage  int
	Message     string
	CurrentItem int
	TotalItems  int
}

// ProgressFunc receives progress events. Emission is one-way and
// best-effort; implementations must not block.
type ProgressFunc func(ProgressEvent)

// Emit invokes the callback if one is set.
func (f ProgressFunc) Emit(ev ProgressEvent) {
	if f != nil {
		f(ev)
	}
}
