// Package extract turns stored medical documents into plain text.
//
// Extraction is fail-soft: every entry point returns a Result and never an
// error value. An empty Result.Text means nothing usable was recovered and
// Result.Err records why.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	DefaultDPI = 300
	// MinWordConfidence is the exclusive lower bound for words kept in
	// confidence mode, on a 0-100 scale.
	MinWordConfidence = 30.0
)

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrNoText          = errors.New("no text recognized")
	ErrNoRecognizer    = errors.New("no ocr engine configured")
)

var supportedTypes = map[string]bool{
	"pdf":  true,
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"txt":  true,
}

// Result is the outcome of one extraction.
type Result struct {
	Text  string
	Pages int
	Err   error
}

// Empty reports whether no text was recovered.
func (r Result) Empty() bool {
	return r.Text == ""
}

// Word is one recognized token with its confidence on a 0-100 scale.
type Word struct {
	Text       string
	Confidence float64
}

// Recognizer runs optical character recognition over a single image.
type Recognizer interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// WordRecognizer is implemented by engines that can score individual words.
type WordRecognizer interface {
	RecognizeWords(ctx context.Context, imagePath string) ([]Word, error)
}

// Rasterizer renders every page of a PDF into an image inside outDir and
// returns the image paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error)
}

type Config struct {
	Recognizer Recognizer
	// Rasterizer may be nil, in which case PDFs are read from their
	// embedded text layer only.
	Rasterizer Rasterizer
	DPI        int
	// Preprocess converts images to high-contrast grayscale before OCR.
	Preprocess bool
	// Confident makes Extract use word-confidence filtering for images.
	Confident bool
	TempDir   string
	Logger    *slog.Logger
}

type Extractor struct {
	recognizer Recognizer
	rasterizer Rasterizer
	dpi        int
	preprocess bool
	confident  bool
	tempDir    string
	logger     *slog.Logger
}

func New(cfg Config) *Extractor {
	dpi := cfg.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		recognizer: cfg.Recognizer,
		rasterizer: cfg.Rasterizer,
		dpi:        dpi,
		preprocess: cfg.Preprocess,
		confident:  cfg.Confident,
		tempDir:    cfg.TempDir,
		logger:     logger,
	}
}

// NormalizeType lowercases fileType, drops a leading dot and checks it
// against the supported set.
func NormalizeType(fileType string) (string, error) {
	t := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), "."))
	if !supportedTypes[t] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, fileType)
	}
	return t, nil
}

// ValidateType reports ErrUnsupportedType for anything but pdf, png, jpg,
// jpeg and txt.
func ValidateType(fileType string) error {
	_, err := NormalizeType(fileType)
	return err
}

// Extract reads the document at path according to its declared type.
func (e *Extractor) Extract(ctx context.Context, path, fileType string) (res Result) {
	defer e.finish(&res, path, fileType)

	kind, err := NormalizeType(fileType)
	if err != nil {
		return Result{Err: err}
	}
	if _, err := os.Stat(path); err != nil {
		return Result{Err: fmt.Errorf("stat document: %w", err)}
	}

	var (
		text  string
		pages = 1
	)
	switch kind {
	case "pdf":
		text, pages, err = e.extractPDF(ctx, path)
	case "txt":
		text, err = readText(path)
	default:
		if e.confident {
			return e.confidentImage(ctx, path)
		}
		text, err = e.extractImage(ctx, path)
	}
	if err != nil {
		return Result{Pages: pages, Err: err}
	}
	return textResult(text, pages)
}

// ExtractConfident recognizes an image keeping only words scored above
// MinWordConfidence. Engines that cannot score words get plain extraction.
func (e *Extractor) ExtractConfident(ctx context.Context, imagePath string) (res Result) {
	defer e.finish(&res, imagePath, "image")
	return e.confidentImage(ctx, imagePath)
}

func (e *Extractor) confidentImage(ctx context.Context, imagePath string) Result {
	scorer, ok := e.recognizer.(WordRecognizer)
	if !ok {
		text, err := e.extractImage(ctx, imagePath)
		if err != nil {
			return Result{Pages: 1, Err: err}
		}
		return textResult(text, 1)
	}
	dir, err := os.MkdirTemp(e.tempDir, "ocr-")
	if err != nil {
		return Result{Err: fmt.Errorf("create temp dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	prepared, err := prepareImage(imagePath, dir, e.preprocess)
	if err != nil {
		return Result{Err: err}
	}
	words, err := scorer.RecognizeWords(ctx, prepared)
	if err != nil {
		e.logger.Warn("word confidence unavailable, using plain ocr", "path", imagePath, "error", err)
		text, err := e.recognize(ctx, prepared)
		if err != nil {
			return Result{Pages: 1, Err: err}
		}
		return textResult(text, 1)
	}
	return textResult(filterWords(words, MinWordConfidence), 1)
}

func (e *Extractor) extractImage(ctx context.Context, imagePath string) (string, error) {
	dir, err := os.MkdirTemp(e.tempDir, "ocr-")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	prepared, err := prepareImage(imagePath, dir, e.preprocess)
	if err != nil {
		return "", err
	}
	return e.recognize(ctx, prepared)
}

func (e *Extractor) recognize(ctx context.Context, imagePath string) (string, error) {
	if e.recognizer == nil {
		return "", ErrNoRecognizer
	}
	return e.recognizer.Recognize(ctx, imagePath)
}

// finish turns panics from parsers into a failed Result and logs failures.
func (e *Extractor) finish(res *Result, path, fileType string) {
	if r := recover(); r != nil {
		*res = Result{Err: fmt.Errorf("extract %s: panic: %v", fileType, r)}
	}
	if res.Err != nil {
		e.logger.Warn("extraction failed", "path", path, "file_type", fileType, "error", res.Err)
	}
}

func textResult(text string, pages int) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Pages: pages, Err: ErrNoText}
	}
	return Result{Text: text, Pages: pages}
}

func filterWords(words []Word, min float64) string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		text := strings.TrimSpace(w.Text)
		if text == "" || w.Confidence <= min {
			continue
		}
		kept = append(kept, text)
	}
	return strings.Join(kept, " ")
}
