package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takumif/onenote2notion/internal/models"
)

func sampleNotebooks() []models.Notebook {
	return []models.Notebook{
		{
			ID:   "nb1",
			Name: "Work",
			Sections: []models.Section{
				{
					ID:   "s1",
					Name: "Projects",
					Pages: []models.Page{
						{ID: "p1", Title: "Alpha", Content: "alpha status\n\nnext steps"},
						{ID: "p2", Title: "Beta", Content: "beta status"},
					},
				},
				{
					ID:    "s2",
					Name:  "Meetings",
					Pages: []models.Page{{ID: "p3", Title: "Standup", Content: "notes"}},
				},
			},
		},
	}
}

func TestMap(t *testing.T) {
	result := Map(sampleNotebooks(), Options{DestinationParentID: "root"})
	require.True(t, result.Success)
	require.Empty(t, result.Errors)

	require.Len(t, result.Pages, 1)
	nb := result.Pages[0]
	assert.Equal(t, "Work", nb.Title)
	assert.Equal(t, "root", nb.DestinationParentID)
	require.Len(t, nb.Children, 2)

	section := nb.Children[0]
	assert.Equal(t, "Projects", section.Title)
	assert.Equal(t, "nb1", section.DestinationParentID)
	require.Len(t, section.Children, 2)

	page := section.Children[0]
	assert.Equal(t, "Alpha", page.Title)
	assert.Equal(t, "s1", page.DestinationParentID)
	assert.Equal(t, []string{"alpha status", "next steps"}, page.BodyBlocks)

	// 1 notebook + 2 sections + 3 pages.
	assert.Equal(t, 6, Count(result.Pages))
}

func TestMapMaxDepth(t *testing.T) {
	notebooks := sampleNotebooks()

	result := Map(notebooks, Options{MaxDepth: 1})
	require.True(t, result.Success)
	assert.Empty(t, result.Pages[0].Children)

	result = Map(notebooks, Options{MaxDepth: 2})
	require.True(t, result.Success)
	require.Len(t, result.Pages[0].Children, 2)
	assert.Empty(t, result.Pages[0].Children[0].Children)
}

func TestMapAcyclicNeverReportsCycle(t *testing.T) {
	result := Map(sampleNotebooks(), Options{})
	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
}

func TestValidateTreeDetectsCycle(t *testing.T) {
	node := &MappedNode{SourceID: "n1", Title: "Self"}
	node.Children = []*MappedNode{node}

	errs := ValidateTree([]*MappedNode{node})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "circular reference")
	assert.Contains(t, errs[0], "n1")
}

func TestValidateTreeRepeatedSiblingIsNotCycle(t *testing.T) {
	shared := &MappedNode{SourceID: "dup", Title: "Shared"}
	root := &MappedNode{
		SourceID: "root",
		Children: []*MappedNode{shared, {SourceID: "other"}, shared},
	}

	// The same identity on two different paths is not a circular reference.
	assert.Empty(t, ValidateTree([]*MappedNode{root}))
}

func TestFlattenPreOrder(t *testing.T) {
	result := Map(sampleNotebooks(), Options{})
	require.True(t, result.Success)

	flat := Flatten(result.Pages)
	ids := make([]string, len(flat))
	for i, n := range flat {
		ids[i] = n.SourceID
	}
	assert.Equal(t, []string{"nb1", "s1", "p1", "p2", "s2", "p3"}, ids)
}
