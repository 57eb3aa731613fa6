package extract

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Tesseract shells out to the tesseract CLI.
type Tesseract struct {
	command string
	lang    string
	timeout time.Duration
}

func NewTesseract(command, lang string, timeout time.Duration) *Tesseract {
	command = strings.TrimSpace(command)
	if command == "" {
		command = "tesseract"
	}
	lang = strings.TrimSpace(lang)
	if lang == "" {
		lang = "eng"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Tesseract{command: command, lang: lang, timeout: timeout}
}

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (string, error) {
	out, err := t.run(ctx, imagePath)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t *Tesseract) RecognizeWords(ctx context.Context, imagePath string) ([]Word, error) {
	out, err := t.run(ctx, imagePath, "tsv")
	if err != nil {
		return nil, err
	}
	return parseTesseractTSV(out)
}

func (t *Tesseract) run(ctx context.Context, imagePath string, configs ...string) ([]byte, error) {
	if _, err := exec.LookPath(t.command); err != nil {
		return nil, fmt.Errorf("tesseract not found: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := append([]string{imagePath, "stdout", "-l", t.lang}, configs...)
	cmd := exec.CommandContext(ctx, t.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tesseract failed: %w; stderr=%s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// parseTesseractTSV reads word rows from `tesseract ... tsv` output. Rows
// with a negative confidence are layout rows (page, block, line) and are
// skipped.
func parseTesseractTSV(raw []byte) ([]Word, error) {
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return nil, fmt.Errorf("empty tsv output")
	}
	header := strings.Split(lines[0], "\t")
	confCol, textCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "conf":
			confCol = i
		case "text":
			textCol = i
		}
	}
	if confCol < 0 || textCol < 0 {
		return nil, fmt.Errorf("tsv header missing conf/text columns")
	}

	words := make([]Word, 0, len(lines))
	for _, line := range lines[1:] {
		fields := strings.Split(line, "\t")
		if len(fields) <= confCol || len(fields) <= textCol {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(fields[confCol]), 64)
		if err != nil || conf < 0 {
			continue
		}
		text := strings.TrimSpace(fields[textCol])
		if text == "" {
			continue
		}
		words = append(words, Word{Text: text, Confidence: conf})
	}
	return words, nil
}
