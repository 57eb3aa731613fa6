package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultDeepLEndpoint = "https://api-free.deepl.com/v2"

// DeepL covers a smaller set of languages than the other providers; the
// South Asian languages other than Hindi fall through to the next provider.
var (
	deeplTargetCodes = map[string]string{
		"en": "EN-US", "es": "ES", "fr": "FR", "de": "DE", "it": "IT", "pt": "PT-PT",
		"ru": "RU", "ja": "JA", "ko": "KO", "zh": "ZH", "ar": "AR", "hi": "HI",
	}
	deeplSourceCodes = map[string]string{
		"en": "EN", "es": "ES", "fr": "FR", "de": "DE", "it": "IT", "pt": "PT",
		"ru": "RU", "ja": "JA", "ko": "KO", "zh": "ZH", "ar": "AR", "hi": "HI",
	}
)

// DeepL calls the DeepL v2 REST API.
type DeepL struct {
	key        string
	endpoint   string
	httpClient *http.Client
}

func NewDeepL(key, endpoint string, timeout time.Duration) (*DeepL, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("deepl api key required")
	}
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		endpoint = defaultDeepLEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DeepL{key: key, endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}, nil
}

func (d *DeepL) Name() string { return "deepl" }

func (d *DeepL) Translate(ctx context.Context, text, target, source string) (string, error) {
	to, err := mapCode(d.Name(), deeplTargetCodes, target)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("text", text)
	form.Set("target_lang", to)
	if from, err := mapCode(d.Name(), deeplSourceCodes, source); err == nil {
		form.Set("source_lang", from)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+d.key)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Message != "" {
			return "", fmt.Errorf("deepl api error: %s", errResp.Message)
		}
		return "", fmt.Errorf("deepl api error: %s", resp.Status)
	}

	var out struct {
		Translations []struct {
			DetectedSourceLanguage string `json:"detected_source_language"`
			Text                   string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("deepl decode: %w", err)
	}
	if len(out.Translations) == 0 {
		return "", fmt.Errorf("deepl translate: empty response")
	}
	return out.Translations[0].Text, nil
}
