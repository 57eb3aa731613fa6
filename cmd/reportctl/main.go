package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"medexplain/internal/util"
	"medexplain/pkg/extract"
	"medexplain/pkg/lang"
	"medexplain/pkg/translate"
)

func main() {
	var logLevel string
	rootCmd := &cobra.Command{
		Use:           "reportctl",
		Short:         "Extract and translate medical report text from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			util.InitLogger(logLevel)
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(translateCmd())
	rootCmd.AddCommand(detectCmd())
	rootCmd.AddCommand(languagesCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the text of a PDF, image or text report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _ := cmd.Flags().GetString("ocr")
			tesseractCmd, _ := cmd.Flags().GetString("tesseract")
			tesseractLang, _ := cmd.Flags().GetString("tesseract-lang")
			dpi, _ := cmd.Flags().GetInt("dpi")
			preprocess, _ := cmd.Flags().GetBool("preprocess")
			confident, _ := cmd.Flags().GetBool("confident")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			path := args[0]
			fileType, err := extract.NormalizeType(filepath.Ext(path))
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var recognizer extract.Recognizer
			switch engine {
			case "vision":
				v, err := extract.NewVisionRecognizer(ctx, timeout)
				if err != nil {
					return fmt.Errorf("init vision ocr: %w", err)
				}
				defer v.Close()
				recognizer = v
			case "tesseract":
				recognizer = extract.NewTesseract(tesseractCmd, tesseractLang, timeout)
			default:
				return fmt.Errorf("unknown ocr engine %q", engine)
			}
			ex := extract.New(extract.Config{
				Recognizer: recognizer,
				Rasterizer: extract.NewPdftoppm("", timeout),
				DPI:        dpi,
				Preprocess: preprocess,
				Confident:  confident,
			})
			res := ex.Extract(ctx, path, fileType)
			if res.Empty() {
				if res.Err != nil {
					return fmt.Errorf("no text extracted: %w", res.Err)
				}
				return fmt.Errorf("no text extracted")
			}
			slog.Debug("extracted", "pages", res.Pages, "chars", len(res.Text))
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().String("ocr", "tesseract", "OCR engine (tesseract or vision)")
	cmd.Flags().String("tesseract", "tesseract", "Path to the tesseract binary")
	cmd.Flags().String("tesseract-lang", "eng", "Tesseract language pack")
	cmd.Flags().Int("dpi", extract.DefaultDPI, "Rasterization DPI for scanned PDFs")
	cmd.Flags().Bool("preprocess", false, "Convert images to high-contrast grayscale before OCR")
	cmd.Flags().Bool("confident", false, "Drop low-confidence words from image OCR")
	cmd.Flags().Duration("timeout", 2*time.Minute, "OCR timeout per call")
	return cmd
}

func translateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate text with the providers configured in the environment",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			from, _ := cmd.Flags().GetString("from")
			if !lang.IsSupported(to) {
				return fmt.Errorf("unsupported language %q", to)
			}
			t, err := envTranslator(cmd.Context())
			if err != nil {
				return err
			}
			res := t.Translate(cmd.Context(), strings.Join(args, " "), lang.Canonical(to), from)
			if res.Fallback {
				return fmt.Errorf("translation failed: %w", res.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
	cmd.Flags().String("to", lang.Default, "Target language code")
	cmd.Flags().String("from", translate.AutoDetect, "Source language code")
	return cmd
}

func detectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <text>",
		Short: "Detect the language of text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := envTranslator(cmd.Context())
			if err != nil {
				return err
			}
			code := t.Detect(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", code, lang.Name(code))
			return nil
		},
	}
}

func languagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, l := range lang.All() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", l.Code, l.Name)
			}
		},
	}
}

// envTranslator builds the provider chain from the same environment
// variables the server reads, in google, azure, deepl order.
func envTranslator(ctx context.Context) (*translate.Translator, error) {
	const timeout = 30 * time.Second
	var providers []translate.Provider
	if key := os.Getenv("GOOGLE_TRANSLATE_API_KEY"); key != "" {
		g, err := translate.NewGoogle(ctx, key, timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, g)
	}
	if key := os.Getenv("AZURE_TRANSLATOR_KEY"); key != "" {
		a, err := translate.NewAzure(key, os.Getenv("AZURE_TRANSLATOR_REGION"), "", timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, a)
	}
	if key := os.Getenv("DEEPL_API_KEY"); key != "" {
		d, err := translate.NewDeepL(key, "", timeout)
		if err != nil {
			return nil, err
		}
		providers = append(providers, d)
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no translation provider configured (set GOOGLE_TRANSLATE_API_KEY, AZURE_TRANSLATOR_KEY or DEEPL_API_KEY)")
	}
	return translate.New(slog.Default(), providers...), nil
}
