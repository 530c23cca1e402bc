package onenote

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takumif/onenote2notion/internal/converter"
	"github.com/takumif/onenote2notion/internal/mapper"
	"github.com/takumif/onenote2notion/internal/notion"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func sampleSection() []byte {
	return []byte("Page 1: Meeting Notes\nquarterly review discussion\nPage 2: Action Items\nfollow up with the team")
}

func corruptedSection() []byte {
	return bytes.Repeat([]byte{0x00, 0x01, 0x02}, 64)
}

func TestExtractFileSingleSection(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "sample.one", sampleSection())

	s := New(false)
	result := s.ExtractFile(path)
	require.True(t, result.Success, result.Error)
	require.NotNil(t, result.Hierarchy)
	assert.Empty(t, result.Error)

	assert.Equal(t, 1, result.Hierarchy.TotalNotebooks)
	assert.Equal(t, 1, result.Hierarchy.TotalSections)
	assert.Equal(t, 2, result.Hierarchy.TotalPages)
	require.NoError(t, result.Hierarchy.CheckCounts())

	pages := result.Hierarchy.Notebooks[0].Sections[0].Pages
	assert.Equal(t, "Meeting Notes", pages[0].Title)
	assert.Equal(t, "Action Items", pages[1].Title)
}

func TestExtractFileMissing(t *testing.T) {
	s := New(true)
	result := s.ExtractFile(filepath.Join(t.TempDir(), "missing.one"))

	assert.False(t, result.Success)
	assert.Nil(t, result.Hierarchy)
	assert.Contains(t, result.Error, "file not found")
}

func TestExtractFileCorruptedWithFallback(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "corrupted.one", corruptedSection())

	s := New(true)
	result := s.ExtractFile(path)
	require.True(t, result.Success)
	require.NotNil(t, result.Hierarchy)

	section := result.Hierarchy.Notebooks[0].Sections[0]
	assert.Equal(t, "Corrupted Section (Fallback)", section.Name)
	require.Len(t, section.Pages, 1)
	assert.Equal(t, "Content could not be parsed", section.Pages[0].Title)
}

func TestExtractFileCorruptedWithoutFallback(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "corrupted.one", corruptedSection())

	s := New(false)
	result := s.ExtractFile(path)
	assert.False(t, result.Success)
	assert.Nil(t, result.Hierarchy)
	assert.NotEmpty(t, result.Error)
}

func TestExtractFileInvalidMarker(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "invalid_notes.one", sampleSection())

	s := New(false)
	result := s.ExtractFile(path)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "invalid format")
}

func TestExtractFilesMixedBatch(t *testing.T) {
	tmpDir := t.TempDir()
	valid := writeFile(t, tmpDir, "good.one", sampleSection())
	broken := writeFile(t, tmpDir, "bad.one", corruptedSection())

	s := New(false)
	result := s.ExtractFiles([]string{valid, broken})
	require.True(t, result.Success)

	// The combined hierarchy reflects only the files that succeeded.
	assert.Equal(t, 1, result.Hierarchy.TotalSections)
	assert.GreaterOrEqual(t, result.Hierarchy.TotalPages, 1)
	require.NoError(t, result.Hierarchy.CheckCounts())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "bad.one")
}

func TestExtractFilesAllFail(t *testing.T) {
	tmpDir := t.TempDir()
	a := writeFile(t, tmpDir, "one.one", corruptedSection())
	b := writeFile(t, tmpDir, "two.one", corruptedSection())

	s := New(false)
	result := s.ExtractFiles([]string{a, b})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "all 2 files failed")
	assert.Len(t, result.Warnings, 2)
}

func TestConvertHierarchyMarkdown(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "sample.one", sampleSection())

	s := New(false)
	extracted := s.ExtractFile(path)
	require.True(t, extracted.Success)

	results := s.ConvertHierarchy(extracted.Hierarchy, converter.DefaultOptions())
	require.Len(t, results, 2)

	for _, page := range extracted.Hierarchy.Notebooks[0].Sections[0].Pages {
		result, ok := results[page.ID]
		require.True(t, ok)
		require.True(t, result.Success, result.Error)
		assert.True(t, strings.HasPrefix(result.Content, "# "+page.Title+"\n\n"),
			"markdown must begin with the title heading, got %q", result.Content)
	}
}

type fakeUploader struct {
	nodes []*mapper.MappedNode
}

func (f *fakeUploader) CreatePageHierarchy(_ context.Context, nodes []*mapper.MappedNode, _ notion.ImportOptions) []*notion.ImportResult {
	f.nodes = nodes
	results := make([]*notion.ImportResult, len(nodes))
	for i := range nodes {
		results[i] = &notion.ImportResult{Success: true, PageID: "id"}
	}
	return results
}

func TestExport(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "sample.one", sampleSection())

	s := New(false)
	extracted := s.ExtractFile(path)
	require.True(t, extracted.Success)

	uploader := &fakeUploader{}
	results, err := s.Export(context.Background(), uploader, extracted.Hierarchy,
		mapper.Options{DestinationParentID: "workspace"}, notion.ImportOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	require.Len(t, uploader.nodes, 1)
	assert.Equal(t, "workspace", uploader.nodes[0].DestinationParentID)
	// notebook -> section -> 2 pages
	assert.Equal(t, 4, mapper.Count(uploader.nodes))
}

func TestExportCounterDrift(t *testing.T) {
	tmpDir := t.TempDir()
	path := writeFile(t, tmpDir, "sample.one", sampleSection())

	s := New(false)
	extracted := s.ExtractFile(path)
	require.True(t, extracted.Success)

	// Tampered counters violate the checked invariant.
	extracted.Hierarchy.TotalPages = 99
	_, err := s.Export(context.Background(), &fakeUploader{}, extracted.Hierarchy,
		mapper.Options{}, notion.ImportOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of sync")
}
