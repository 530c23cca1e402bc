package models

import (
	"strings"
	"testing"
)

func sampleHierarchy() *Hierarchy {
	h := &Hierarchy{
		Notebooks: []Notebook{
			{
				ID:   "nb1",
				Name: "Work",
				Sections: []Section{
					{ID: "s1", Name: "Projects", Pages: []Page{{ID: "p1"}, {ID: "p2"}}},
					{ID: "s2", Name: "Archive", Pages: []Page{{ID: "p3"}}},
				},
			},
		},
	}
	h.Recount()
	return h
}

func TestRecount(t *testing.T) {
	h := sampleHierarchy()
	if h.TotalNotebooks != 1 || h.TotalSections != 2 || h.TotalPages != 3 {
		t.Errorf("Recount() = %d/%d/%d, want 1/2/3", h.TotalNotebooks, h.TotalSections, h.TotalPages)
	}
}

func TestCheckCounts(t *testing.T) {
	h := sampleHierarchy()
	if err := h.CheckCounts(); err != nil {
		t.Fatalf("CheckCounts() error = %v", err)
	}

	h.TotalPages = 7
	err := h.CheckCounts()
	if err == nil {
		t.Fatal("Expected drift error after tampering with the counter")
	}
	if !strings.Contains(err.Error(), "out of sync") {
		t.Errorf("Error = %v", err)
	}
}

func TestMerge(t *testing.T) {
	h := sampleHierarchy()
	other := &Hierarchy{
		Notebooks: []Notebook{
			{ID: "nb2", Name: "Personal", Sections: []Section{{ID: "s3", Pages: []Page{{ID: "p4"}}}}},
		},
	}
	other.Recount()

	h.Merge(other)
	if h.TotalNotebooks != 2 || h.TotalSections != 3 || h.TotalPages != 4 {
		t.Errorf("After merge got %d/%d/%d, want 2/3/4", h.TotalNotebooks, h.TotalSections, h.TotalPages)
	}
	if err := h.CheckCounts(); err != nil {
		t.Errorf("CheckCounts() after merge = %v", err)
	}

	// Merging nil is a no-op.
	h.Merge(nil)
	if h.TotalNotebooks != 2 {
		t.Errorf("Merge(nil) changed counters: %d", h.TotalNotebooks)
	}
}

func TestProgressFuncEmit(t *testing.T) {
	var got []ProgressEvent
	var f ProgressFunc = func(ev ProgressEvent) { got = append(got, ev) }

	f.Emit(ProgressEvent{Stage: "extract", Percentage: 50})
	if len(got) != 1 || got[0].Percentage != 50 {
		t.Errorf("Emit() did not deliver the event: %v", got)
	}

	// A nil callback must be safe to emit on.
	var none ProgressFunc
	none.Emit(ProgressEvent{Stage: "extract"})
}
