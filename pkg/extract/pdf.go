package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// extractPDF OCRs rendered pages and falls back to the embedded text layer
// when rendering or recognition is unavailable or yields nothing.
func (e *Extractor) extractPDF(ctx context.Context, path string) (string, int, error) {
	if e.rasterizer != nil && e.recognizer != nil {
		text, pages, err := e.ocrPDF(ctx, path)
		if err == nil && text != "" {
			return text, pages, nil
		}
		if err == nil {
			err = ErrNoText
		}
		e.logger.Warn("pdf ocr failed, reading text layer", "path", path, "error", err)
	}
	return pdfTextLayer(path)
}

func (e *Extractor) ocrPDF(ctx context.Context, path string) (string, int, error) {
	dir, err := os.MkdirTemp(e.tempDir, "pages-")
	if err != nil {
		return "", 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	images, err := e.rasterizer.Rasterize(ctx, path, dir, e.dpi)
	if err != nil {
		return "", 0, err
	}
	if len(images) == 0 {
		return "", 0, fmt.Errorf("no pages rendered")
	}

	pages := make([]string, 0, len(images))
	failed := 0
	var lastErr error
	for i, img := range images {
		text, err := e.ocrPage(ctx, img, dir)
		if err != nil {
			// A failed page reads as blank; the rest of the document still counts.
			e.logger.Warn("pdf page ocr failed", "path", path, "page", i+1, "error", err)
			failed++
			lastErr = fmt.Errorf("page %d: %w", i+1, err)
			text = ""
		}
		pages = append(pages, text)
	}
	if failed == len(images) {
		return "", 0, lastErr
	}
	return joinPages(pages), len(pages), nil
}

func (e *Extractor) ocrPage(ctx context.Context, img, dir string) (string, error) {
	if e.preprocess {
		prepared, err := prepareImage(img, dir, true)
		if err != nil {
			return "", err
		}
		img = prepared
	}
	return e.recognizer.Recognize(ctx, img)
}

func pdfTextLayer(path string) (string, int, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	total := reader.NumPage()
	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return joinPages(pages), total, nil
}

// joinPages writes each page behind a "--- Page N ---" marker. A document
// whose pages are all blank yields "" so callers see an empty extraction.
func joinPages(pages []string) string {
	var b strings.Builder
	blank := true
	for i, text := range pages {
		if strings.TrimSpace(text) != "" {
			blank = false
		}
		fmt.Fprintf(&b, "\n--- Page %d ---\n%s\n", i+1, text)
	}
	if blank {
		return ""
	}
	return strings.TrimSpace(b.String())
}

// Pdftoppm renders PDF pages with poppler's pdftoppm.
type Pdftoppm struct {
	command string
	timeout time.Duration
}

func NewPdftoppm(command string, timeout time.Duration) *Pdftoppm {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "pdftoppm"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Pdftoppm{command: command, timeout: timeout}
}

func (p *Pdftoppm) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	if _, err := exec.LookPath(p.command); err != nil {
		return nil, fmt.Errorf("pdftoppm not found: %w", err)
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir outDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx, p.command, "-r", strconv.Itoa(dpi), "-png", pdfPath, prefix)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed: %w; out=%s", err, strings.TrimSpace(string(out)))
	}

	// pdftoppm zero-pads page numbers, so lexical order is page order.
	paths, err := filepath.Glob(filepath.Join(outDir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images produced by pdftoppm")
	}
	sort.Strings(paths)
	return paths, nil
}
