// Package faults maps raised errors to a small taxonomy and decides whether
// a degraded fallback value can stand in for the failed operation. Every
// component routes errors through this package before they cross a boundary.
package faults

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/takumif/onenote2notion/internal/models"
)

// Kind identifies the fault category.
type Kind string

const (
	KindFile       Kind = "file"
	KindPermission Kind = "permission"
	KindMemory     Kind = "memory"
	KindDisk       Kind = "disk"
	KindNetwork    Kind = "network"
	KindParsing    Kind = "parsing"
	KindUnknown    Kind = "unknown"
)

// Classification is the result of classifying a fault.
type Classification struct {
	Kind        Kind
	Recoverable bool
}

// The two pattern sets are disjoint: a message matching a non-recoverable
// pattern is never treated as recoverable, regardless of later matches.
var nonRecoverablePatterns = []struct {
	kind     Kind
	patterns []string
}{
	{KindFile, []string{"no such file", "file not found", "does not exist", "cannot find"}},
	{KindPermission, []string{"permission denied", "access denied", "access is denied", "operation not permitted"}},
	{KindMemory, []string{"out of memory", "cannot allocate memory"}},
	{KindDisk, []string{"no space left", "disk full"}},
	{KindNetwork, []string{"connection refused", "connection reset", "network is unreachable", "timeout", "timed out", "deadline exceeded"}},
}

var recoverablePatterns = []string{
	"invalid format",
	"invalid file format",
	"corrupted",
	"corrupt",
	"unsupported version",
	"missing metadata",
	"parse failure",
	"failed to parse",
	"parse error",
	"malformed",
	"encoding",
	"invalid utf-8",
}

// Classify maps an error to its kind and recoverability. A nil error
// classifies as unknown/non-recoverable; callers should not pass one.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: KindUnknown}
	}
	msg := strings.ToLower(err.Error())

	for _, set := range nonRecoverablePatterns {
		for _, p := range set.patterns {
			if strings.Contains(msg, p) {
				return Classification{Kind: set.kind}
			}
		}
	}
	for _, p := range recoverablePatterns {
		if strings.Contains(msg, p) {
			return Classification{Kind: KindParsing, Recoverable: true}
		}
	}
	return Classification{Kind: KindUnknown}
}

// IsRecoverable reports whether a degraded fallback value exists for err.
func IsRecoverable(err error) bool {
	return Classify(err).Recoverable
}

// isEncodingFault reports whether the fault specifically names an encoding
// problem, which changes the placeholder content wording.
func isEncodingFault(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "encoding") || strings.Contains(msg, "invalid utf-8")
}

// FallbackSection builds the degraded section used when parsing a section
// fails recoverably. Returns nil for non-recoverable faults.
func FallbackSection(err error, source string) *models.Section {
	if !IsRecoverable(err) {
		return nil
	}

	content := "The original content could not be recovered from this section. " +
		"The file may be corrupted or use an unsupported format version."
	if isEncodingFault(err) {
		content = "The original content could not be decoded: the section uses an " +
			"unrecognized text encoding."
	}

	now := time.Now()
	return &models.Section{
		ID:         uuid.NewString(),
		Name:       "Corrupted Section (Fallback)",
		CreatedAt:  now,
		ModifiedAt: now,
		Metadata: map[string]interface{}{
			"fallback": true,
			"source":   source,
			"fault":    err.Error(),
		},
		Pages: []models.Page{
			{
				ID:         uuid.NewString(),
				Title:      "Content could not be parsed",
				Content:    content,
				CreatedAt:  now,
				ModifiedAt: now,
				Metadata: map[string]interface{}{
					"fallback": true,
				},
			},
		},
	}
}

// FallbackHierarchy builds the degraded one-notebook hierarchy used when
// container extraction fails recoverably. Returns nil for non-recoverable
// faults. The fallback flag in metadata lets callers detect degraded results.
func FallbackHierarchy(err error, source string) *models.Hierarchy {
	section := FallbackSection(err, source)
	if section == nil {
		return nil
	}

	now := time.Now()
	h := &models.Hierarchy{
		Notebooks: []models.Notebook{
			{
				ID:         uuid.NewString(),
				Name:       "Recovered Notebook (Fallback)",
				Sections:   []models.Section{*section},
				CreatedAt:  now,
				ModifiedAt: now,
				Metadata: map[string]interface{}{
					"fallback": true,
					"source":   source,
				},
			},
		},
	}
	h.Recount()
	return h
}

// Message renders a human-readable failure message for a non-recoverable
// fault, prefixed with its kind.
func Message(err error) string {
	c := Classify(err)
	switch c.Kind {
	case KindFile:
		return "file not found: " + err.Error()
	case KindPermission:
		return "permission denied: " + err.Error()
	case KindMemory:
		return "out of memory: " + err.Error()
	case KindDisk:
		return "disk full: " + err.Error()
	case KindNetwork:
		return "network error: " + err.Error()
	case KindParsing:
		return "invalid format: " + err.Error()
	default:
		return "extraction failed: " + err.Error()
	}
}
