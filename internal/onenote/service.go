// Package onenote orchestrates the import pipeline: extraction, parsing,
// conversion and replication into the destination workspace.
package onenote

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/takumif/onenote2notion/internal/converter"
	"github.com/takumif/onenote2notion/internal/extractor"
	"github.com/takumif/onenote2notion/internal/faults"
	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/mapper"
	"github.com/takumif/onenote2notion/internal/models"
	"github.com/takumif/onenote2notion/internal/notion"
)

// Uploader replicates mapped trees into the destination store.
// *notion.Client implements it.
type Uploader interface {
	CreatePageHierarchy(ctx context.Context, nodes []*mapper.MappedNode, opts notion.ImportOptions) []*notion.ImportResult
}

// Service sequences extractor, parser and converter, and routes every
// fault through the classifier before it reaches a caller.
type Service struct {
	extractor       *extractor.Extractor
	converter       converter.Converter
	fallbackOnError bool
}

// New creates a Service. With fallback enabled, recoverable faults produce
// degraded results instead of failures.
func New(fallbackOnError bool) *Service {
	return &Service{
		extractor:       extractor.New(fallbackOnError),
		converter:       converter.NewAdvanced(),
		fallbackOnError: fallbackOnError,
	}
}

// ExtractFile extracts one container file into a hierarchy. Callers always
// receive a structured result, never a raw error.
func (s *Service) ExtractFile(path string) *models.ExtractionResult {
	info, err := s.extractor.Validate(path)
	if err != nil {
		return s.faultResult(err, path)
	}
	if !info.IsValid {
		return s.faultResult(fmt.Errorf("invalid file format: %s is not a supported container", path), path)
	}

	switch info.Type {
	case extractor.TypePackage:
		hierarchy, files, warnings, err := s.extractor.ExtractPackage(path)
		if err != nil {
			result := s.faultResult(err, path)
			result.Warnings = append(result.Warnings, warnings...)
			return result
		}
		return &models.ExtractionResult{
			Success:        true,
			Hierarchy:      hierarchy,
			ExtractedFiles: files,
			Warnings:       warnings,
		}

	default:
		section, err := s.extractor.ExtractSection(path)
		if err != nil {
			return s.faultResult(err, path)
		}
		return &models.ExtractionResult{
			Success:   true,
			Hierarchy: wrapSection(section, path),
		}
	}
}

// ExtractFiles extracts a batch of container files into one combined
// hierarchy. A failing file is logged and reported as a warning; the batch
// continues and the combined hierarchy reflects the files that succeeded.
func (s *Service) ExtractFiles(paths []string) *models.ExtractionResult {
	combined := &models.ExtractionResult{
		Hierarchy: &models.Hierarchy{},
	}

	for _, path := range paths {
		result := s.ExtractFile(path)
		if !result.Success {
			logger.Warn("Skipping failed file in batch", nil, map[string]interface{}{
				"file":  path,
				"error": result.Error,
			})
			combined.Warnings = append(combined.Warnings, fmt.Sprintf("%s: %s", path, result.Error))
			continue
		}
		combined.Hierarchy.Merge(result.Hierarchy)
		combined.ExtractedFiles = append(combined.ExtractedFiles, result.ExtractedFiles...)
		combined.Warnings = append(combined.Warnings, result.Warnings...)
	}

	if combined.Hierarchy.TotalNotebooks == 0 {
		return &models.ExtractionResult{
			Error:    fmt.Sprintf("all %d files failed extraction", len(paths)),
			Warnings: combined.Warnings,
		}
	}

	combined.Success = true
	logger.Info("Batch extraction complete", map[string]interface{}{
		"files":     len(paths),
		"notebooks": combined.Hierarchy.TotalNotebooks,
		"sections":  combined.Hierarchy.TotalSections,
		"pages":     combined.Hierarchy.TotalPages,
		"skipped":   len(combined.Warnings),
	})
	return combined
}

// ConvertPage converts a single page with the service's converter.
func (s *Service) ConvertPage(page *models.Page, opts converter.Options) converter.Result {
	return s.converter.Convert(page, opts)
}

// ConvertHierarchy converts every page in the hierarchy, keyed by page ID.
// Failed conversions are included with their error so callers can report
// partial outcomes.
func (s *Service) ConvertHierarchy(h *models.Hierarchy, opts converter.Options) map[string]converter.Result {
	results := make(map[string]converter.Result, h.TotalPages)
	done := 0
	for ni := range h.Notebooks {
		for si := range h.Notebooks[ni].Sections {
			section := &h.Notebooks[ni].Sections[si]
			for pi := range section.Pages {
				page := &section.Pages[pi]
				results[page.ID] = s.converter.Convert(page, opts)
				done++
				opts.OnProgress.Emit(models.ProgressEvent{
					Stage:       "convert-hierarchy",
					Percentage:  done * 100 / max(h.TotalPages, 1),
					Message:     page.Title,
					CurrentItem: done,
					TotalItems:  h.TotalPages,
				})
			}
		}
	}
	return results
}

// Export maps the hierarchy into destination descriptors and replicates
// them through the uploader.
func (s *Service) Export(ctx context.Context, uploader Uploader, h *models.Hierarchy, mapOpts mapper.Options, impOpts notion.ImportOptions) ([]*notion.ImportResult, error) {
	if err := h.CheckCounts(); err != nil {
		return nil, err
	}

	mapped := mapper.Map(h.Notebooks, mapOpts)
	if !mapped.Success {
		return nil, fmt.Errorf("hierarchy mapping failed: %s", strings.Join(mapped.Errors, "; "))
	}
	return uploader.CreatePageHierarchy(ctx, mapped.Pages, impOpts), nil
}

// faultResult classifies a fault and produces either a degraded success
// (recoverable, fallback enabled) or a failed result.
func (s *Service) faultResult(err error, path string) *models.ExtractionResult {
	if s.fallbackOnError {
		if fb := faults.FallbackHierarchy(err, filepath.Base(path)); fb != nil {
			logger.Warn("Extraction degraded to fallback hierarchy", err, map[string]interface{}{
				"file": path,
			})
			return &models.ExtractionResult{
				Success:   true,
				Hierarchy: fb,
				Warnings:  []string{fmt.Sprintf("%s: %v", path, err)},
			}
		}
	}
	logger.Error("Extraction failed", err, map[string]interface{}{
		"file": path,
	})
	return &models.ExtractionResult{Error: faults.Message(err)}
}

// wrapSection lifts a lone section into a one-notebook hierarchy named
// after the source file.
func wrapSection(section *models.Section, path string) *models.Hierarchy {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	now := time.Now()
	h := &models.Hierarchy{
		Notebooks: []models.Notebook{
			{
				ID:         uuid.NewString(),
				Name:       base,
				Sections:   []models.Section{*section},
				CreatedAt:  now,
				ModifiedAt: now,
				Metadata: map[string]interface{}{
					"source": filepath.Base(path),
				},
			},
		},
	}
	h.Recount()
	return h
}
