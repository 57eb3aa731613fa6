package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultAzureEndpoint = "https://api.cognitive.microsofttranslator.com"

var azureCodes = map[string]string{
	"en": "en", "hi": "hi", "ta": "ta", "te": "te", "bn": "bn", "mr": "mr",
	"gu": "gu", "kn": "kn", "ml": "ml", "pa": "pa", "ur": "ur", "or": "or",
	"as": "as", "es": "es", "fr": "fr", "de": "de", "it": "it", "pt": "pt",
	"ru": "ru", "ja": "ja", "ko": "ko", "zh": "zh-Hans", "ar": "ar",
}

// Azure calls the Azure AI Translator v3 REST API.
type Azure struct {
	key        string
	region     string
	endpoint   string
	httpClient *http.Client
}

// NewAzure needs both a subscription key and its region.
func NewAzure(key, region, endpoint string, timeout time.Duration) (*Azure, error) {
	key, region = strings.TrimSpace(key), strings.TrimSpace(region)
	if key == "" || region == "" {
		return nil, fmt.Errorf("azure translator key and region required")
	}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultAzureEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Azure{
		key:        key,
		region:     region,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (a *Azure) Name() string { return "azure" }

func (a *Azure) Translate(ctx context.Context, text, target, source string) (string, error) {
	to, err := mapCode(a.Name(), azureCodes, target)
	if err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", to)
	if from, err := mapCode(a.Name(), azureCodes, source); err == nil {
		q.Set("from", from)
	}

	var resp []struct {
		Translations []struct {
			Text string `json:"text"`
			To   string `json:"to"`
		} `json:"translations"`
	}
	if err := a.doJSON(ctx, "/translate?"+q.Encode(), text, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 || len(resp[0].Translations) == 0 {
		return "", fmt.Errorf("azure translate: empty response")
	}
	return resp[0].Translations[0].Text, nil
}

func (a *Azure) Detect(ctx context.Context, text string) (string, error) {
	var resp []struct {
		Language string  `json:"language"`
		Score    float64 `json:"score"`
	}
	if err := a.doJSON(ctx, "/detect?api-version=3.0", text, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 || resp[0].Language == "" {
		return "", fmt.Errorf("azure detect: empty response")
	}
	return resp[0].Language, nil
}

func (a *Azure) doJSON(ctx context.Context, path, text string, out any) error {
	body, err := json.Marshal([]map[string]string{{"Text": text}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)
	req.Header.Set("Ocp-Apim-Subscription-Region", a.region)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("azure request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var errResp struct {
			Error struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("azure api error: %s", errResp.Error.Message)
		}
		return fmt.Errorf("azure api error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("azure decode: %w", err)
	}
	return nil
}
