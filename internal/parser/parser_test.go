package parser

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseSectionPlainText(t *testing.T) {
	data := []byte("Meeting Notes\nDiscussed the quarterly budget.\nAction items follow.")

	p := New(false)
	section, err := p.ParseSection(data, "sample.one")
	if err != nil {
		t.Fatalf("ParseSection() error = %v", err)
	}

	if section.Name != "Meeting Notes" {
		t.Errorf("Expected section name 'Meeting Notes', got %q", section.Name)
	}
	if len(section.Pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(section.Pages))
	}
	if section.Pages[0].Title != "Meeting Notes" {
		t.Errorf("Expected page title 'Meeting Notes', got %q", section.Pages[0].Title)
	}
	if idx, _ := section.Pages[0].Metadata["pageIndex"].(int); idx != 0 {
		t.Errorf("Expected pageIndex 0, got %v", section.Pages[0].Metadata["pageIndex"])
	}
}

func TestParseSectionPageSeparators(t *testing.T) {
	tests := []struct {
		name       string
		data       string
		wantPages  int
		wantTitles []string
	}{
		{
			name:       "Page markers",
			data:       "Page 1: Introduction\nWelcome to the notebook.\nPage 2: Details\nMore content here.",
			wantPages:  2,
			wantTitles: []string{"Introduction", "Details"},
		},
		{
			name:       "Markdown headers",
			data:       "# First Topic\nalpha content\n## Second Topic\nbeta content",
			wantPages:  2,
			wantTitles: []string{"First Topic", "Second Topic"},
		},
		{
			name:       "Mixed separator kinds stay in text order",
			data:       "Page 1: Intro\nopening remarks\n# Later Topic\nclosing remarks",
			wantPages:  2,
			wantTitles: []string{"Intro", "Later Topic"},
		},
		{
			name:      "Horizontal rules",
			data:      "first page text here\n---\nsecond page text here",
			wantPages: 2,
		},
		{
			name:      "No separator",
			data:      "just a single block of text\nwith two lines",
			wantPages: 1,
		},
	}

	p := New(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			section, err := p.ParseSection([]byte(tt.data), "test.one")
			if err != nil {
				t.Fatalf("ParseSection() error = %v", err)
			}
			if len(section.Pages) != tt.wantPages {
				t.Fatalf("Expected %d pages, got %d", tt.wantPages, len(section.Pages))
			}
			for i, want := range tt.wantTitles {
				if section.Pages[i].Title != want {
					t.Errorf("Page %d title = %q, want %q", i, section.Pages[i].Title, want)
				}
			}
			for i, page := range section.Pages {
				if idx, _ := page.Metadata["pageIndex"].(int); idx != i {
					t.Errorf("Page %d has pageIndex %v", i, page.Metadata["pageIndex"])
				}
			}
		})
	}
}

func TestParseSectionBinaryInput(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05})
	buf.WriteString("Project Overview")
	buf.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07})
	buf.WriteString("budget review notes")
	buf.Write([]byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09})

	p := New(false)
	section, err := p.ParseSection(buf.Bytes(), "binary.one")
	if err != nil {
		t.Fatalf("ParseSection() error = %v", err)
	}
	if section.Name != "Project Overview" {
		t.Errorf("Expected recovered title 'Project Overview', got %q", section.Name)
	}
	if !strings.Contains(section.Pages[0].Content, "budget review notes") {
		t.Errorf("Expected recovered run in content, got %q", section.Pages[0].Content)
	}
}

func TestParseSectionCorrupted(t *testing.T) {
	corrupted := bytes.Repeat([]byte{0x00, 0x01, 0x02}, 64)

	// Without fallback the parse fault surfaces as an error.
	p := New(false)
	if _, err := p.ParseSection(corrupted, "corrupted.one"); err == nil {
		t.Fatal("Expected error for corrupted input without fallback")
	}

	// With fallback the caller gets the placeholder section instead.
	p = New(true)
	section, err := p.ParseSection(corrupted, "corrupted.one")
	if err != nil {
		t.Fatalf("ParseSection() error = %v", err)
	}
	if section.Name != "Corrupted Section (Fallback)" {
		t.Errorf("Expected fallback section name, got %q", section.Name)
	}
	if len(section.Pages) != 1 {
		t.Fatalf("Expected exactly one placeholder page, got %d", len(section.Pages))
	}
	if section.Pages[0].Title != "Content could not be parsed" {
		t.Errorf("Expected placeholder page title, got %q", section.Pages[0].Title)
	}
}

func TestParseSectionEmptyInput(t *testing.T) {
	p := New(true)
	section, err := p.ParseSection(nil, "empty.one")
	if err != nil {
		t.Fatalf("ParseSection() error = %v", err)
	}
	if section.Name != "Corrupted Section (Fallback)" {
		t.Errorf("Expected fallback for empty input, got %q", section.Name)
	}
}

func TestFindImageAndAttachmentRefs(t *testing.T) {
	data := []byte("See diagram.png for details.\n[image: chart.jpg]\nAlso diagram.png again.\n" +
		"[attachment: report.pdf size=2048]\nbudget.xlsx attached.")

	p := New(false)
	images := p.findImageRefs(data)
	if len(images) != 2 {
		t.Fatalf("Expected 2 unique image refs, got %d: %v", len(images), images)
	}

	attachments := p.findAttachmentRefs(data)
	if len(attachments) != 2 {
		t.Fatalf("Expected 2 unique attachment refs, got %d: %v", len(attachments), attachments)
	}
	found := map[string]bool{}
	for _, a := range attachments {
		found[a] = true
	}
	if !found["report.pdf"] || !found["budget.xlsx"] {
		t.Errorf("Expected report.pdf and budget.xlsx, got %v", attachments)
	}
}

func TestExtractTags(t *testing.T) {
	p := New(false)
	tags := p.extractTags("status update #work #urgent and #work again")
	if len(tags) != 2 {
		t.Fatalf("Expected 2 unique tags, got %v", tags)
	}
	if tags[0] != "work" || tags[1] != "urgent" {
		t.Errorf("Expected [work urgent], got %v", tags)
	}
}

func TestBinaryLooking(t *testing.T) {
	p := New(false)
	if p.binaryLooking([]byte("plain readable text\nwith newlines\tand tabs")) {
		t.Error("Plain text flagged as binary")
	}
	if !p.binaryLooking(bytes.Repeat([]byte{0x00, 0x01, 'a'}, 32)) {
		t.Error("Majority-binary input not flagged")
	}
}

func TestPickTitle(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		source   string
		expected string
	}{
		{
			name:     "First short line",
			text:     "Weekly Sync\nnotes follow",
			expected: "Weekly Sync",
		},
		{
			name:     "Skips URLs and emails",
			text:     "https://example.com/page\nuser@example.com\nActual Title",
			expected: "Actual Title",
		},
		{
			name:     "Placeholder from source",
			text:     strings.Repeat("x", 200),
			source:   "notes/archive.one",
			expected: "Recovered: archive",
		},
	}

	p := New(false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.pickTitle(tt.text, tt.source)
			if got != tt.expected {
				t.Errorf("pickTitle() = %q, want %q", got, tt.expected)
			}
		})
	}
}
