package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/takumif/onenote2notion/internal/converter"
	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/mapper"
	"github.com/takumif/onenote2notion/internal/models"
	"github.com/takumif/onenote2notion/internal/notion"
	"github.com/takumif/onenote2notion/internal/onenote"
)

func main() {
	// Parse command line flags
	input := flag.String("input", "", "Comma-separated paths to .one/.onepkg container files")
	outputDir := flag.String("output", "", "Directory to save markdown files (optional)")
	format := flag.String("format", "markdown", "Output format: markdown or rich-document")
	export := flag.Bool("export", false, "Replicate the hierarchy into Notion")
	fallback := flag.Bool("fallback", true, "Produce placeholder content for corrupted sections")
	flag.Parse()

	if *input == "" {
		fmt.Println("Error: input file is required")
		flag.Usage()
		os.Exit(1)
	}

	// Load .env file if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading .env file: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	if err := logger.Init(logLevel); err != nil {
		fmt.Printf("Error initializing logger: %v\n", err)
		os.Exit(1)
	}

	// Get output directory from environment if not specified
	if *outputDir == "" {
		*outputDir = os.Getenv("OUTPUT_DIR")
		if *outputDir == "" {
			*outputDir = "output"
		}
	}
	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		logger.Error("Failed to create output directory", err, nil)
		os.Exit(1)
	}

	paths := splitPaths(*input)
	service := onenote.New(*fallback)

	// Extract all containers into one combined hierarchy
	extracted := service.ExtractFiles(paths)
	for _, warning := range extracted.Warnings {
		logger.Warn("Extraction warning", nil, map[string]interface{}{
			"detail": warning,
		})
	}
	if !extracted.Success {
		logger.Error("Extraction failed", fmt.Errorf("%s", extracted.Error), nil)
		os.Exit(1)
	}

	hierarchy := extracted.Hierarchy
	logger.Info("Extraction complete", map[string]interface{}{
		"notebooks": hierarchy.TotalNotebooks,
		"sections":  hierarchy.TotalSections,
		"pages":     hierarchy.TotalPages,
	})

	// Convert every page and dump the documents to disk
	opts := converter.DefaultOptions()
	opts.OutputFormat = converter.OutputFormat(*format)
	opts.OnProgress = logProgress

	converted := service.ConvertHierarchy(hierarchy, opts)
	saved := 0
	for _, nb := range hierarchy.Notebooks {
		for _, section := range nb.Sections {
			for _, page := range section.Pages {
				result := converted[page.ID]
				if !result.Success {
					logger.Warn("Skipping page that failed conversion", nil, map[string]interface{}{
						"page":  page.Title,
						"error": result.Error,
					})
					continue
				}
				target := filepath.Join(*outputDir, safeFileName(page.Title)+".md")
				if err := os.WriteFile(target, []byte(result.Content), 0644); err != nil {
					logger.Error("Failed to save document", err, map[string]interface{}{
						"page":     page.Title,
						"filepath": target,
					})
					continue
				}
				saved++
			}
		}
	}

	// Optionally replicate the hierarchy into Notion
	if *export {
		client, err := notion.New()
		if err != nil {
			logger.Error("Failed to initialize Notion client", err, nil)
			os.Exit(1)
		}

		results, err := service.Export(context.Background(), client, hierarchy,
			mapper.Options{}, notion.ImportOptions{ConvertTags: true, OnProgress: logProgress})
		if err != nil {
			logger.Error("Export failed", err, nil)
			os.Exit(1)
		}

		created, failed := countResults(results)
		logger.Info("Notion export complete", map[string]interface{}{
			"created": created,
			"failed":  failed,
		})
	}

	logger.Info("Import completed", map[string]interface{}{
		"total_pages":     hierarchy.TotalPages,
		"saved_documents": saved,
		"output_format":   converter.FormatName(opts.OutputFormat),
		"markdown_output": *outputDir,
	})
}

func splitPaths(input string) []string {
	var paths []string
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func safeFileName(title string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "", "<", "", ">", "", "|", "")
	name := strings.TrimSpace(replacer.Replace(title))
	if name == "" {
		return "untitled"
	}
	return name
}

func logProgress(ev models.ProgressEvent) {
	logger.Debug("Progress", map[string]interface{}{
		"stage":      ev.Stage,
		"percentage": ev.Percentage,
		"message":    ev.Message,
	})
}

func countResults(results []*notion.ImportResult) (created, failed int) {
	for _, r := range results {
		if r.Success {
			created++
		} else {
			failed++
		}
		childCreated, childFailed := countResults(r.Children)
		created += childCreated
		failed += childFailed
	}
	return created, failed
}
