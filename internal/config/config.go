package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is read when neither the caller nor MEDEXPLAIN_CONFIG names a
// file.
const ConfigPath = "config.yaml"

const (
	DefaultMaxUploadBytes     int64 = 10 << 20
	DefaultTranslationTimeout       = 30 * time.Second
	DefaultGenerationTimeout        = 120 * time.Second
	DefaultOCRTimeout               = 120 * time.Second
	minJWTSecretLen                 = 16

	DefaultOpenAIGeneralModel    = "gpt-4"
	DefaultOpenAIExtractionModel = "gpt-3.5-turbo"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port              string   `yaml:"port"`
	LogLevel          string   `yaml:"logLevel"`
	DatabaseURL       string   `yaml:"databaseURL"`
	JWTSecret         string   `yaml:"jwtSecret"`
	SessionTTL        string   `yaml:"sessionTTL"`
	RedisAddr         string   `yaml:"redisAddr"`
	RedisPassword     string   `yaml:"redisPassword"`
	CORSOrigins       []string `yaml:"corsOrigins"`
	TrustedProxyCIDRs []string `yaml:"trustedProxyCidrs"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`

	Storage     StorageConfig     `yaml:"storage"`
	OCR         OCRConfig         `yaml:"ocr"`
	Translation TranslationConfig `yaml:"translation"`
	AI          AIConfig          `yaml:"ai"`
}

// StorageConfig selects where uploaded files live: "local" or "minio".
type StorageConfig struct {
	Backend        string `yaml:"backend"`
	UploadDir      string `yaml:"uploadDir"`
	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// OCRConfig selects the recognizer: "tesseract" or "vision".
type OCRConfig struct {
	Backend       string `yaml:"backend"`
	TesseractCmd  string `yaml:"tesseractCmd"`
	TesseractLang string `yaml:"tesseractLang"`
	PdftoppmCmd   string `yaml:"pdftoppmCmd"`
	DPI           int    `yaml:"dpi"`
	Preprocess    bool   `yaml:"preprocess"`
	Timeout       string `yaml:"timeout"`
}

// TranslationConfig lists providers in priority order. Providers without
// credentials are skipped at startup.
type TranslationConfig struct {
	Providers     []string `yaml:"providers"`
	GoogleAPIKey  string   `yaml:"googleAPIKey"`
	AzureKey      string   `yaml:"azureKey"`
	AzureRegion   string   `yaml:"azureRegion"`
	AzureEndpoint string   `yaml:"azureEndpoint"`
	DeepLKey      string   `yaml:"deeplKey"`
	DeepLEndpoint string   `yaml:"deeplEndpoint"`
	Timeout       string   `yaml:"timeout"`
}

// AIConfig configures the chat model used for explanations and chat.
type AIConfig struct {
	Provider        string `yaml:"provider"`
	BaseURL         string `yaml:"baseURL"`
	APIKey          string `yaml:"apiKey"`
	GeneralModel    string `yaml:"generalModel"`
	ExtractionModel string `yaml:"extractionModel"`
	Timeout         string `yaml:"timeout"`
}

// Load reads config from path, then applies environment overrides and
// validates the result. An empty path means MEDEXPLAIN_CONFIG or
// config.yaml. A missing default file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if path == "" {
		if v := strings.TrimSpace(os.Getenv("MEDEXPLAIN_CONFIG")); v != "" {
			path, explicit = v, true
		} else {
			path = ConfigPath
		}
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.Port, "MEDEXPLAIN_PORT", "PORT")
	setString(&cfg.LogLevel, "MEDEXPLAIN_LOG_LEVEL")
	setString(&cfg.DatabaseURL, "MEDEXPLAIN_DATABASE_URL", "DATABASE_URL")
	setString(&cfg.JWTSecret, "MEDEXPLAIN_JWT_SECRET", "JWT_SECRET_KEY")
	setString(&cfg.SessionTTL, "MEDEXPLAIN_SESSION_TTL")
	setString(&cfg.RedisAddr, "MEDEXPLAIN_REDIS_ADDR", "REDIS_ADDR")
	setString(&cfg.RedisPassword, "MEDEXPLAIN_REDIS_PASSWORD", "REDIS_PASSWORD")
	if v := os.Getenv("MEDEXPLAIN_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = splitCSV(v)
	}
	if v := os.Getenv("MEDEXPLAIN_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("MEDEXPLAIN_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}

	setString(&cfg.Storage.Backend, "MEDEXPLAIN_STORAGE_BACKEND")
	setString(&cfg.Storage.UploadDir, "MEDEXPLAIN_UPLOAD_DIR", "UPLOAD_FOLDER")
	setString(&cfg.Storage.MinioEndpoint, "MEDEXPLAIN_MINIO_ENDPOINT")
	setString(&cfg.Storage.MinioAccessKey, "MEDEXPLAIN_MINIO_ACCESS_KEY")
	setString(&cfg.Storage.MinioSecretKey, "MEDEXPLAIN_MINIO_SECRET_KEY")
	setString(&cfg.Storage.MinioBucket, "MEDEXPLAIN_MINIO_BUCKET")
	if v := os.Getenv("MEDEXPLAIN_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Storage.MinioUseSSL = b
		}
	}

	setString(&cfg.OCR.Backend, "MEDEXPLAIN_OCR_BACKEND")
	setString(&cfg.OCR.TesseractCmd, "MEDEXPLAIN_TESSERACT_CMD", "TESSERACT_CMD")
	setString(&cfg.OCR.PdftoppmCmd, "MEDEXPLAIN_PDFTOPPM_CMD")

	if v := os.Getenv("MEDEXPLAIN_TRANSLATION_PROVIDERS"); v != "" {
		cfg.Translation.Providers = splitCSV(v)
	}
	setString(&cfg.Translation.GoogleAPIKey, "GOOGLE_TRANSLATE_API_KEY")
	setString(&cfg.Translation.AzureKey, "AZURE_TRANSLATOR_KEY")
	setString(&cfg.Translation.AzureRegion, "AZURE_TRANSLATOR_REGION")
	setString(&cfg.Translation.DeepLKey, "DEEPL_API_KEY")

	setString(&cfg.AI.Provider, "MEDEXPLAIN_AI_PROVIDER")
	setString(&cfg.AI.BaseURL, "MEDEXPLAIN_AI_BASE_URL")
	setString(&cfg.AI.APIKey, "MEDEXPLAIN_AI_API_KEY", "OPENAI_API_KEY")
	setString(&cfg.AI.GeneralModel, "MEDEXPLAIN_AI_GENERAL_MODEL")
	setString(&cfg.AI.ExtractionModel, "MEDEXPLAIN_AI_EXTRACTION_MODEL")
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "uploads"
	}
	if cfg.OCR.Backend == "" {
		cfg.OCR.Backend = "tesseract"
	}
	if len(cfg.Translation.Providers) == 0 {
		cfg.Translation.Providers = []string{"google", "azure", "deepl"}
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	// Gemini has a client-side default model; OpenAI gets the historical pair.
	if cfg.AI.Provider == "openai" {
		if cfg.AI.GeneralModel == "" {
			cfg.AI.GeneralModel = DefaultOpenAIGeneralModel
		}
		if cfg.AI.ExtractionModel == "" {
			cfg.AI.ExtractionModel = DefaultOpenAIExtractionModel
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or MEDEXPLAIN_DATABASE_URL)")
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("config: jwtSecret must be at least %d characters (set in config.yaml or MEDEXPLAIN_JWT_SECRET)", minJWTSecretLen)
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	switch cfg.Storage.Backend {
	case "local":
	case "minio":
		if cfg.Storage.MinioEndpoint == "" || cfg.Storage.MinioBucket == "" {
			return errors.New("config: storage.minioEndpoint and storage.minioBucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", cfg.Storage.Backend)
	}
	switch cfg.OCR.Backend {
	case "tesseract", "vision":
	default:
		return fmt.Errorf("config: unknown ocr backend %q", cfg.OCR.Backend)
	}
	for _, p := range cfg.Translation.Providers {
		switch p {
		case "google", "azure", "deepl":
		default:
			return fmt.Errorf("config: unknown translation provider %q", p)
		}
	}
	switch cfg.AI.Provider {
	case "openai", "gemini":
	case "ollama":
		if strings.TrimSpace(cfg.AI.GeneralModel) == "" {
			return errors.New("config: ai.generalModel is required for the ollama provider")
		}
	default:
		return fmt.Errorf("config: unknown ai provider %q", cfg.AI.Provider)
	}
	for name, raw := range map[string]string{
		"sessionTTL":          cfg.SessionTTL,
		"ocr.timeout":         cfg.OCR.Timeout,
		"translation.timeout": cfg.Translation.Timeout,
		"ai.timeout":          cfg.AI.Timeout,
	} {
		if _, err := ParseDuration(raw, 0); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// ParseDuration parses an optional duration string, returning def when
// empty.
func ParseDuration(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
