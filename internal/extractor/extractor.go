// Package extractor opens notebook container files and turns them into
// sections, unpacking multi-section packages into per-section payloads.
package extractor

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/takumif/onenote2notion/internal/logger"
	"github.com/takumif/onenote2notion/internal/models"
	"github.com/takumif/onenote2notion/internal/parser"
)

// Container file types reported by Validate.
const (
	TypeSection = "section"
	TypePackage = "package"
	TypeUnknown = "unknown"
)

// sectionSignature is the GUID header a section file opens with.
var sectionSignature = []byte{
	0xE4, 0x52, 0x5C, 0x7B, 0x8C, 0xD8, 0xA7, 0x4D,
	0xAE, 0xB1, 0x53, 0x78, 0xD0, 0x29, 0x96, 0xD3,
}

// packageSignature marks a cabinet-style package payload.
var packageSignature = []byte("MSCF")

// sniffKeywords are checked when the header signature is unrecognized.
// Extraction is deliberately permissive: an unknown header downgrades to
// content sniffing instead of rejecting the file.
var sniffKeywords = []string{"OneNote", "one:", "notebook"}

// FileInfo is the result of validating a container file.
type FileInfo struct {
	IsValid    bool
	Type       string
	Size       int64
	ModifiedAt time.Time
}

// Extractor extracts sections and packages from container files.
type Extractor struct {
	parser *parser.Parser
}

// New creates an Extractor. With fallback enabled, recoverable parse faults
// inside a section yield placeholder content instead of failing the section.
func New(fallbackOnError bool) *Extractor {
	return &Extractor{parser: parser.New(fallbackOnError)}
}

// Validate checks that the file exists and infers its container type from
// the extension. A literal "invalid" marker in the name flags the file as
// invalid; real signature checks happen during extraction.
func (e *Extractor) Validate(path string) (FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	info := FileInfo{
		Size:       stat.Size(),
		ModifiedAt: stat.ModTime(),
		Type:       TypeUnknown,
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".one":
		info.Type = TypeSection
		info.IsValid = true
	case ".onepkg":
		info.Type = TypePackage
		info.IsValid = true
	}

	if strings.Contains(strings.ToLower(filepath.Base(path)), "invalid") {
		info.IsValid = false
	}
	return info, nil
}

// ExtractSection extracts a single-section container file.
func (e *Extractor) ExtractSection(path string) (*models.Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	kind := e.verifyHeader(data)
	logger.Debug("Verified section header", map[string]interface{}{
		"path": path,
		"kind": kind,
	})

	return e.parser.ParseSection(data, filepath.Base(path))
}

// ExtractPackage extracts a multi-section package. Embedded sections are
// unpacked into a scratch directory and extracted independently; a damaged
// section is logged and reported as a warning without aborting the rest.
// The returned file list names the synthetic per-section payloads.
func (e *Extractor) ExtractPackage(path string) (*models.Hierarchy, []string, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	scratch, err := os.MkdirTemp("", "onenote2notion-*")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	payloads, err := e.unpack(data, base, scratch)
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		sections       []models.Section
		extractedFiles []string
		warnings       []string
	)
	for _, payload := range payloads {
		section, err := e.ExtractSection(payload)
		if err != nil {
			// One damaged section must not abort the whole package.
			logger.Warn("Skipping damaged section in package", err, map[string]interface{}{
				"package": path,
				"section": filepath.Base(payload),
			})
			warnings = append(warnings, fmt.Sprintf("section %s: %v", filepath.Base(payload), err))
			continue
		}
		sections = append(sections, *section)
		extractedFiles = append(extractedFiles, filepath.Base(payload))
	}

	if len(sections) == 0 {
		return nil, nil, warnings, fmt.Errorf("invalid file format: no extractable sections in %s", path)
	}

	now := time.Now()
	h := &models.Hierarchy{
		Notebooks: []models.Notebook{
			{
				ID:         uuid.NewString(),
				Name:       base,
				Sections:   sections,
				CreatedAt:  now,
				ModifiedAt: now,
				Metadata: map[string]interface{}{
					"source": filepath.Base(path),
				},
			},
		},
	}
	h.Recount()

	logger.Info("Extracted package", map[string]interface{}{
		"package":  path,
		"sections": len(sections),
		"skipped":  len(warnings),
	})
	return h, extractedFiles, warnings, nil
}

// unpack writes each embedded section payload to the scratch directory and
// returns the payload paths. Zip-layout packages are preferred; otherwise
// the raw bytes are split at section signature offsets, and a payload with
// no recognizable structure is treated as one single section.
func (e *Extractor) unpack(data []byte, base, scratch string) ([]string, error) {
	if reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		return e.unpackZip(reader, base, scratch)
	}
	return e.unpackRaw(data, base, scratch)
}

func (e *Extractor) unpackZip(reader *zip.Reader, base, scratch string) ([]string, error) {
	var payloads []string
	index := 0
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			logger.Warn("Skipping unreadable package entry", err, map[string]interface{}{
				"entry": file.Name,
			})
			continue
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			logger.Warn("Skipping unreadable package entry", err, map[string]interface{}{
				"entry": file.Name,
			})
			continue
		}

		name := fmt.Sprintf("%s_section_%02d.one", base, index)
		target := filepath.Join(scratch, name)
		if err := os.WriteFile(target, content, 0644); err != nil {
			return nil, fmt.Errorf("failed to write scratch payload: %w", err)
		}
		payloads = append(payloads, target)
		index++
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("invalid file format: package archive contains no files")
	}
	return payloads, nil
}

func (e *Extractor) unpackRaw(data []byte, base, scratch string) ([]string, error) {
	var offsets []int
	for pos := 0; ; {
		idx := bytes.Index(data[pos:], sectionSignature)
		if idx < 0 {
			break
		}
		offsets = append(offsets, pos+idx)
		pos += idx + len(sectionSignature)
	}

	var chunks [][]byte
	switch {
	case len(offsets) == 0:
		chunks = [][]byte{data}
	default:
		for i, start := range offsets {
			end := len(data)
			if i+1 < len(offsets) {
				end = offsets[i+1]
			}
			chunks = append(chunks, data[start:end])
		}
	}

	var payloads []string
	for i, chunk := range chunks {
		name := fmt.Sprintf("%s_section_%02d.one", base, i)
		target := filepath.Join(scratch, name)
		if err := os.WriteFile(target, chunk, 0644); err != nil {
			return nil, fmt.Errorf("failed to write scratch payload: %w", err)
		}
		payloads = append(payloads, target)
	}
	return payloads, nil
}

// verifyHeader reads the fixed-size prefix and classifies the payload. An
// unrecognized signature falls back to keyword sniffing.
func (e *Extractor) verifyHeader(data []byte) string {
	if len(data) >= len(sectionSignature) && bytes.Equal(data[:len(sectionSignature)], sectionSignature) {
		return "section-signature"
	}
	if len(data) >= len(packageSignature) && bytes.Equal(data[:len(packageSignature)], packageSignature) {
		return "package-signature"
	}

	prefix := data
	if len(prefix) > 512 {
		prefix = prefix[:512]
	}
	for _, kw := range sniffKeywords {
		if bytes.Contains(bytes.ToLower(prefix), []byte(strings.ToLower(kw))) {
			return "sniffed"
		}
	}
	return "unrecognized"
}
