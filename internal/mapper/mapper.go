// Package mapper turns an extracted notebook tree into an isomorphic tree
// of destination-page descriptors ready for remote creation.
package mapper

import (
	"fmt"
	"strings"

	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/models"
)

// MappedNode is a destination-shaped descriptor for one source node. It is
// short-lived: the remote store client consumes and discards it.
type MappedNode struct {
	SourceID            string
	DestinationParentID string
	Title               string
	BodyBlocks          []string
	Children            []*MappedNode
}

// Options configures mapping.
type Options struct {
	// DestinationParentID is the workspace or container node the notebook
	// descriptors attach to.
	DestinationParentID string
	// MaxDepth limits tree depth: 1 keeps notebooks only, 2 adds sections,
	// 3 (or 0, meaning unlimited) adds pages.
	MaxDepth int
}

// Result is the outcome of a mapping pass.
type Result struct {
	Success bool
	Pages   []*MappedNode
	Errors  []string
}

// Map walks notebooks into descriptor trees: one parent node per notebook,
// one child per section, pages beneath their section.
func Map(notebooks []models.Notebook, opts Options) Result {
	var result Result

	for i := range notebooks {
		nb := &notebooks[i]
		node := &MappedNode{
			SourceID:            nb.ID,
			DestinationParentID: opts.DestinationParentID,
			Title:               nb.Name,
			BodyBlocks:          []string{fmt.Sprintf("Notebook imported with %d sections.", len(nb.Sections))},
		}

		if depthAllowed(opts.MaxDepth, 2) {
			for j := range nb.Sections {
				node.Children = append(node.Children, mapSection(&nb.Sections[j], node.SourceID, opts))
			}
		}
		result.Pages = append(result.Pages, node)
	}

	if errs := ValidateTree(result.Pages); len(errs) > 0 {
		result.Errors = errs
		return result
	}

	result.Success = true
	logger.Debug("Mapped hierarchy", map[string]interface{}{
		"notebooks": len(result.Pages),
		"total":     len(Flatten(result.Pages)),
	})
	return result
}

func mapSection(section *models.Section, parentID string, opts Options) *MappedNode {
	node := &MappedNode{
		SourceID:            section.ID,
		DestinationParentID: parentID,
		Title:               section.Name,
		BodyBlocks:          []string{fmt.Sprintf("Section with %d pages.", len(section.Pages))},
	}
	if depthAllowed(opts.MaxDepth, 3) {
		for i := range section.Pages {
			page := &section.Pages[i]
			node.Children = append(node.Children, &MappedNode{
				SourceID:            page.ID,
				DestinationParentID: section.ID,
				Title:               page.Title,
				BodyBlocks:          splitBlocks(page.Content),
			})
		}
	}
	return node
}

func depthAllowed(maxDepth, level int) bool {
	return maxDepth <= 0 || maxDepth >= level
}

// splitBlocks cuts page content into paragraph-sized body blocks.
func splitBlocks(content string) []string {
	var blocks []string
	for _, part := range strings.Split(content, "\n\n") {
		part = strings.TrimSpace(part)
		if part != "" {
			blocks = append(blocks, part)
		}
	}
	return blocks
}

// ValidateTree walks the mapped trees tracking node identity on the
// current path. A repeated identity on one path is a circular reference;
// the offending subtree is reported and not descended further.
func ValidateTree(roots []*MappedNode) []string {
	var errs []string
	onPath := make(map[string]bool)

	var walk func(node *MappedNode)
	walk = func(node *MappedNode) {
		if node == nil {
			return
		}
		if onPath[node.SourceID] {
			errs = append(errs, fmt.Sprintf("circular reference detected at node %s (%s)", node.SourceID, node.Title))
			return
		}
		onPath[node.SourceID] = true
		for _, child := range node.Children {
			walk(child)
		}
		delete(onPath, node.SourceID)
	}

	for _, root := range roots {
		walk(root)
	}
	return errs
}

// Flatten returns a depth-first pre-order list of all descriptors, for
// callers that need a linear creation sequence.
func Flatten(roots []*MappedNode) []*MappedNode {
	var out []*MappedNode
	var walk func(node *MappedNode)
	walk = func(node *MappedNode) {
		if node == nil {
			return
		}
		out = append(out, node)
		for _, child := range node.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}
	return out
}

// Count returns the number of nodes across the mapped trees.
func Count(roots []*MappedNode) int {
	return len(Flatten(roots))
}
