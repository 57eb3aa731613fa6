package extract

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// VisionRecognizer uses Google Cloud Vision document text detection.
type VisionRecognizer struct {
	client  *vision.ImageAnnotatorClient
	timeout time.Duration
}

func NewVisionRecognizer(ctx context.Context, timeout time.Duration, opts ...option.ClientOption) (*VisionRecognizer, error) {
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &VisionRecognizer{client: client, timeout: timeout}, nil
}

func (v *VisionRecognizer) Close() error {
	if v == nil || v.client == nil {
		return nil
	}
	return v.client.Close()
}

func (v *VisionRecognizer) Recognize(ctx context.Context, imagePath string) (string, error) {
	annotation, err := v.annotate(ctx, imagePath)
	if err != nil || annotation == nil {
		return "", err
	}
	return annotation.GetText(), nil
}

func (v *VisionRecognizer) RecognizeWords(ctx context.Context, imagePath string) ([]Word, error) {
	annotation, err := v.annotate(ctx, imagePath)
	if err != nil || annotation == nil {
		return nil, err
	}
	var words []Word
	for _, page := range annotation.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				for _, w := range para.GetWords() {
					var sb strings.Builder
					for _, sym := range w.GetSymbols() {
						sb.WriteString(sym.GetText())
					}
					words = append(words, Word{
						Text:       sb.String(),
						Confidence: float64(w.GetConfidence()) * 100,
					})
				}
			}
		}
	}
	return words, nil
}

func (v *VisionRecognizer) annotate(ctx context.Context, imagePath string) (*visionpb.TextAnnotation, error) {
	img, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(img) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: img},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, nil
	}
	r0 := resp.GetResponses()[0]
	if r0.GetError() != nil && r0.GetError().GetMessage() != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.GetError().GetMessage())
	}
	return r0.GetFullTextAnnotation(), nil
}
