package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"medexplain/pkg/annotate"
	"medexplain/pkg/domain"
	"medexplain/pkg/extract"
	"medexplain/pkg/storage"
	"medexplain/pkg/store"
	"medexplain/pkg/translate"
)

// Extractor turns a stored file into text.
type Extractor interface {
	Extract(ctx context.Context, path, fileType string) extract.Result
}

// Translator translates with provider fallback and detects languages.
type Translator interface {
	Translate(ctx context.Context, text, target, source string) translate.Translation
	Detect(ctx context.Context, text string) string
}

// Annotator generates explanations, tips, findings and chat answers.
type Annotator interface {
	Explain(ctx context.Context, text, code string) annotate.Text
	HealthTips(ctx context.Context, text, code string) annotate.Text
	KeyFindings(ctx context.Context, text string) annotate.Findings
	Converse(ctx context.Context, message, contextText string, history []domain.ChatMessage, code string) annotate.Text
}

// Config holds the collaborators of the core application.
type Config struct {
	Store      store.Store
	Sessions   store.SessionStore
	Files      storage.FileStorage
	Extractor  Extractor
	Translator Translator
	Annotator  Annotator
	Logger     *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// App wires persistence, identity and the report/chat pipelines.
type App struct {
	store      store.Store
	sessions   store.SessionStore
	files      storage.FileStorage
	extractor  Extractor
	translator Translator
	annotator  Annotator
	logger     *slog.Logger
	now        func() time.Time

	clockMu  sync.Mutex
	lastChat time.Time
}

// New validates cfg and constructs the application.
func New(cfg Config) (*App, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("store required")
	case cfg.Sessions == nil:
		return nil, errors.New("session store required")
	case cfg.Files == nil:
		return nil, errors.New("file storage required")
	case cfg.Extractor == nil:
		return nil, errors.New("extractor required")
	case cfg.Translator == nil:
		return nil, errors.New("translator required")
	case cfg.Annotator == nil:
		return nil, errors.New("annotator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		files:      cfg.Files,
		extractor:  cfg.Extractor,
		translator: cfg.Translator,
		annotator:  cfg.Annotator,
		logger:     logger,
		now:        func() time.Time { return now().UTC() },
	}, nil
}

// chatTime returns a timestamp strictly after every chat timestamp this App
// has handed out, so stored conversations sort in the order they were written
// even when the clock stalls or steps back.
func (a *App) chatTime() time.Time {
	a.clockMu.Lock()
	defer a.clockMu.Unlock()
	t := a.now()
	if !t.After(a.lastChat) {
		t = a.lastChat.Add(time.Millisecond)
	}
	a.lastChat = t
	return t
}

// ownedReport loads a report and hides reports of other users behind
// ErrNotFound.
func (a *App) ownedReport(owner domain.User, id string) (domain.Report, error) {
	if id == "" {
		return domain.Report{}, ErrNotFound
	}
	r, ok, err := a.store.GetReport(id)
	if err != nil {
		return domain.Report{}, err
	}
	if !ok || r.OwnerID != owner.ID {
		return domain.Report{}, ErrNotFound
	}
	return r, nil
}
