package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"medexplain/pkg/ai"
	"medexplain/pkg/annotate"
	"medexplain/pkg/domain"
	"medexplain/pkg/extract"
	"medexplain/pkg/storage"
	"medexplain/pkg/store"
	"medexplain/pkg/translate"
)

const testSecret = "test-secret-0123456789abcdef"

// fakeModel answers by call profile; MaxTokens identifies the operation.
type fakeModel struct {
	mu    sync.Mutex
	calls []ai.ChatRequest
	err   error
}

func (m *fakeModel) Chat(_ context.Context, req ai.ChatRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.err != nil {
		return "", m.err
	}
	switch req.MaxTokens {
	case 1500:
		return "Your blood pressure is in the normal range.", nil
	case 1000:
		return "Keep exercising regularly.", nil
	case 500:
		return "- BP 120/80\n- Normal\n\n", nil
	default:
		return fmt.Sprintf("answer #%d", len(m.calls)), nil
	}
}

func (m *fakeModel) requests() []ai.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ai.ChatRequest(nil), m.calls...)
}

type fakeProvider struct {
	calls int
	err   error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Translate(_ context.Context, text, target, _ string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return "[" + target + "] " + text, nil
}

func (p *fakeProvider) Detect(context.Context, string) (string, error) { return "fr", nil }

type harness struct {
	app      *App
	store    *store.MemoryStore
	files    *storage.LocalStore
	model    *fakeModel
	provider *fakeProvider
	user     domain.User
}

// tick returns a clock advancing one second per reading.
func tick(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newHarness(t *testing.T, clock func() time.Time) *harness {
	t.Helper()
	h := &harness{
		store:    store.NewMemoryStore(),
		model:    &fakeModel{},
		provider: &fakeProvider{},
	}
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	h.files = files
	sessions, err := store.NewJWTSessionStore(testSecret, time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if clock == nil {
		clock = tick(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	}
	h.app, err = New(Config{
		Store:      h.store,
		Sessions:   sessions,
		Files:      files,
		Extractor:  extract.New(extract.Config{}),
		Translator: translate.New(nil, h.provider),
		Annotator:  annotate.New(h.model, annotate.DefaultConfig("", "")),
		Now:        clock,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	h.user, _, err = h.app.Register(Registration{
		Email: "patient@example.com", Password: "secret123", FirstName: "Asha", LastName: "Rao",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h
}

func (h *harness) upload(t *testing.T, name, body, target string) (domain.Report, error) {
	t.Helper()
	return h.app.UploadReport(context.Background(), h.user, Upload{
		Filename:       name,
		Size:           int64(len(body)),
		Body:           strings.NewReader(body),
		TargetLanguage: target,
	})
}

func TestUploadTextReportHappyPath(t *testing.T) {
	h := newHarness(t, nil)
	r, err := h.upload(t, "labs.txt", "BP 120/80, normal", "en")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	got, _, _ := h.store.GetReport(r.ID)
	if got.Status != domain.StatusProcessed {
		t.Fatalf("status = %s", got.Status)
	}
	if got.OriginalContent != "BP 120/80, normal" || got.TranslatedContent != got.OriginalContent || got.TranslatedLanguage != "en" {
		t.Fatalf("unexpected content fields %+v", got)
	}
	if got.Explanation == "" || got.HealthTips == "" {
		t.Fatalf("annotations missing: %+v", got)
	}
	if len(got.KeyFindings) != 2 || got.KeyFindings[0] != "BP 120/80" || got.KeyFindings[1] != "Normal" {
		t.Fatalf("findings = %#v", got.KeyFindings)
	}
	if n := len(h.model.requests()); n != 3 {
		t.Fatalf("expected three annotator calls, got %d", n)
	}
	if h.provider.calls != 0 {
		t.Fatalf("translator must not run for English, got %d calls", h.provider.calls)
	}
	if got.Title != domain.DefaultReportTitle || got.FileType != "txt" || got.FileLocation == "" {
		t.Fatalf("unexpected metadata %+v", got)
	}
}

func TestUploadEmptyFileFailsWithoutDerivedFields(t *testing.T) {
	h := newHarness(t, nil)
	r, err := h.upload(t, "blank.txt", "  \n\t ", "hi")
	if !errors.Is(err, ErrExtractionEmpty) {
		t.Fatalf("expected ErrExtractionEmpty, got %v", err)
	}
	got, ok, _ := h.store.GetReport(r.ID)
	if !ok || got.Status != domain.StatusFailed || got.ErrorMessage == "" {
		t.Fatalf("expected failed report, got %+v", got)
	}
	if got.TranslatedContent != "" || got.TranslatedLanguage != "" || got.Explanation != "" || got.HealthTips != "" || len(got.KeyFindings) != 0 {
		t.Fatalf("derived fields populated: %+v", got)
	}
	if len(h.model.requests()) != 0 || h.provider.calls != 0 {
		t.Fatal("no provider may run after an empty extraction")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.upload(t, "scan.gif", "GIF89a", ""); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
	if list, _ := h.app.ListReports(h.user); len(list) != 0 {
		t.Fatalf("no report should be stored, got %d", len(list))
	}
}

func TestUploadTranslatesAndAnnotatesTranslation(t *testing.T) {
	h := newHarness(t, nil)
	r, err := h.upload(t, "labs.txt", "HbA1c 5.4%", "hi")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if r.TranslatedContent != "[hi] HbA1c 5.4%" || r.TranslatedLanguage != "hi" {
		t.Fatalf("translation not stored: %+v", r)
	}
	explain := h.model.requests()[0]
	if !strings.Contains(explain.Messages[len(explain.Messages)-1].Content, "[hi] HbA1c 5.4%") {
		t.Fatalf("annotations should read the translated text: %+v", explain.Messages)
	}
}

func TestTranslationFailureKeepsOriginalText(t *testing.T) {
	h := newHarness(t, nil)
	h.provider.err = errors.New("quota exceeded")
	r, err := h.upload(t, "labs.txt", "Cholesterol 180 mg/dL", "ta")
	if err != nil {
		t.Fatalf("translation failure must not fail the pipeline: %v", err)
	}
	if r.Status != domain.StatusProcessed || r.TranslatedContent != "Cholesterol 180 mg/dL" || r.TranslatedLanguage != "ta" {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestAnnotatorFailureStoresFallbacks(t *testing.T) {
	h := newHarness(t, nil)
	h.model.err = errors.New("model offline")
	r, err := h.upload(t, "labs.txt", "WBC 7.2", "en")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if r.Status != domain.StatusProcessed || r.Explanation != annotate.ExplainApology || r.HealthTips != annotate.HealthTipsApology {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.KeyFindings == nil || len(r.KeyFindings) != 0 {
		t.Fatalf("findings should be an empty list, got %#v", r.KeyFindings)
	}
}

func TestReprocessKeepsOriginalContentAndFile(t *testing.T) {
	h := newHarness(t, nil)
	r, err := h.upload(t, "labs.txt", "BP 120/80, normal", "en")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	again, err := h.app.ReprocessReport(context.Background(), h.user, r.ID, "es")
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if again.OriginalContent != r.OriginalContent || again.FileLocation != r.FileLocation {
		t.Fatalf("reprocess touched source data: before %+v after %+v", r, again)
	}
	if again.TranslatedLanguage != "es" || again.TranslatedContent != "[es] BP 120/80, normal" || again.Status != domain.StatusProcessed {
		t.Fatalf("unexpected reprocessed report %+v", again)
	}
	if !again.CreatedAt.Equal(r.CreatedAt) {
		t.Fatalf("created at changed")
	}
}

func TestReprocessWithoutContent(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.SaveReport(domain.Report{ID: "r-empty", OwnerID: h.user.ID, Title: "x", FileType: "pdf", Status: domain.StatusFailed})
	if _, err := h.app.ReprocessReport(context.Background(), h.user, "r-empty", "en"); !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
	if _, err := h.app.ReprocessReport(context.Background(), h.user, "missing", "en"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type failingStore struct {
	*store.MemoryStore
	failOn domain.ReportStatus
}

func (f *failingStore) SaveReport(r domain.Report) error {
	if r.Status == f.failOn && r.Explanation != "" {
		return errors.New("disk full")
	}
	return f.MemoryStore.SaveReport(r)
}

func TestPersistenceFailureMarksReportFailedAndKeepsData(t *testing.T) {
	h := newHarness(t, nil)
	fs := &failingStore{MemoryStore: h.store, failOn: domain.StatusProcessed}
	h.app.store = fs
	r, err := h.upload(t, "labs.txt", "Glucose 92", "en")
	if !errors.Is(err, ErrProcessingFailed) {
		t.Fatalf("expected ErrProcessingFailed, got %v", err)
	}
	got, _, _ := h.store.GetReport(r.ID)
	if got.Status != domain.StatusFailed || got.OriginalContent != "Glucose 92" || got.TranslatedContent != "Glucose 92" {
		t.Fatalf("expected failed report with earlier stages kept, got %+v", got)
	}
}

func TestCreateReportFromText(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.app.CreateReport(context.Background(), h.user, "", "   ", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	r, err := h.app.CreateReport(context.Background(), h.user, "Lipids", "LDL 95", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Title != "Lipids" || r.FileType != "txt" || r.FileLocation != "" || r.Status != domain.StatusProcessed || r.TranslatedLanguage != "en" {
		t.Fatalf("unexpected report %+v", r)
	}
}

func TestReportsAreOwnerScoped(t *testing.T) {
	h := newHarness(t, nil)
	r, _ := h.upload(t, "labs.txt", "TSH 2.1", "en")
	other, _, err := h.app.Register(Registration{Email: "other@example.com", Password: "secret456", FirstName: "B", LastName: "C"})
	if err != nil {
		t.Fatalf("register other: %v", err)
	}
	if _, err := h.app.GetReport(other, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.app.DeleteReport(context.Background(), other, r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := h.app.SendMessage(context.Background(), other, r.ID, "hi", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n, _ := h.store.CountMessages(other.ID); n != 0 {
		t.Fatalf("no message may be stored for an unknown report, got %d", n)
	}
}

func TestDeleteReportRemovesFileAndChat(t *testing.T) {
	h := newHarness(t, nil)
	r, _ := h.upload(t, "labs.txt", "Hb 13.5", "en")
	if _, err := h.app.SendMessage(context.Background(), h.user, r.ID, "Is this fine?", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := h.app.DeleteReport(context.Background(), h.user, r.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := h.files.Open(context.Background(), r.FileLocation); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("stored file should be gone, got %v", err)
	}
	if n, _ := h.store.CountMessages(h.user.ID); n != 0 {
		t.Fatalf("chat history should be removed, %d left", n)
	}
}

func TestSendMessagePersistsPairInOrder(t *testing.T) {
	frozen := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	h := newHarness(t, func() time.Time { return frozen })
	r, err := h.upload(t, "labs.txt", "BP 120/80, normal", "en")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	turn, err := h.app.SendMessage(context.Background(), h.user, r.ID, "What does this mean?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, _, err := h.app.ChatHistory(h.user, r.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Sender != domain.SenderUser || msgs[1].Sender != domain.SenderAI {
		t.Fatalf("expected user then ai, got %+v", msgs)
	}
	if msgs[0].CreatedAt.Before(frozen) || !turn.AIResponse.CreatedAt.After(turn.UserMessage.CreatedAt) {
		t.Fatalf("bad timestamps user=%v ai=%v", turn.UserMessage.CreatedAt, turn.AIResponse.CreatedAt)
	}
	conv := h.model.requests()[3]
	if len(conv.Messages) != 2 || !strings.Contains(conv.Messages[0].Content, "BP 120/80, normal") {
		t.Fatalf("unexpected converse prompt %+v", conv.Messages)
	}
}

func TestSendMessageStoresApologyOnFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.model.err = errors.New("timeout")
	turn, err := h.app.SendMessage(context.Background(), h.user, "", "Is coffee bad for me?", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if turn.AIResponse.Text != annotate.ConverseApology || !turn.AIResponse.Fallback {
		t.Fatalf("expected stored apology, got %+v", turn.AIResponse)
	}
	msgs, _ := h.store.ListMessages(h.user.ID, "", 0)
	if len(msgs) != 2 || !msgs[1].Fallback {
		t.Fatalf("expected persisted pair, got %+v", msgs)
	}
	req := h.model.requests()[0]
	if !strings.Contains(req.Messages[0].Content, "No specific medical report provided") {
		t.Fatalf("general chat should use the placeholder context: %q", req.Messages[0].Content)
	}
}

func TestSendMessageOrderSurvivesClockStepBack(t *testing.T) {
	var mu sync.Mutex
	cur := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	back := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(-time.Second)
		return cur
	}
	h := newHarness(t, back)
	for _, q := range []string{"first", "second"} {
		if _, err := h.app.SendMessage(context.Background(), h.user, "", q, ""); err != nil {
			t.Fatalf("send %s: %v", q, err)
		}
	}
	msgs, err := h.store.ListMessages(h.user.ID, "", 0)
	if err != nil || len(msgs) != 4 {
		t.Fatalf("list: %d %v", len(msgs), err)
	}
	if msgs[0].Text != "first" || msgs[1].Sender != domain.SenderAI || msgs[2].Text != "second" || msgs[3].Sender != domain.SenderAI {
		t.Fatalf("conversation out of order: %+v", msgs)
	}
	for i := 1; i < len(msgs); i++ {
		if !msgs[i].CreatedAt.After(msgs[i-1].CreatedAt) {
			t.Fatalf("timestamps not increasing at %d: %v then %v", i, msgs[i-1].CreatedAt, msgs[i].CreatedAt)
		}
	}
}

func TestSendMessageHistoryWindow(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 6; i++ {
		if _, err := h.app.SendMessage(context.Background(), h.user, "", fmt.Sprintf("question %d", i), ""); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if _, err := h.app.SendMessage(context.Background(), h.user, "", "latest question", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	reqs := h.model.requests()
	last := reqs[len(reqs)-1].Messages
	// system + 10 history turns + new message
	if len(last) != 12 {
		t.Fatalf("expected 12 prompt messages, got %d", len(last))
	}
	if last[1].Content != "question 1" || last[10].Role != ai.RoleAssistant || last[11].Content != "latest question" {
		t.Fatalf("unexpected window: first=%q second-last role=%q last=%q", last[1].Content, last[10].Role, last[11].Content)
	}
	for _, m := range last[1:11] {
		if m.Content == "latest question" {
			t.Fatal("current message must not appear in history")
		}
	}
}

func TestChatHistoryGroupingAndClearing(t *testing.T) {
	h := newHarness(t, nil)
	r, _ := h.upload(t, "labs.txt", "Platelets 250k", "en")
	_, _ = h.app.SendMessage(context.Background(), h.user, r.ID, "about report", "")
	_, _ = h.app.SendMessage(context.Background(), h.user, "", "general question", "")

	grouped, err := h.app.AllChatHistory(h.user)
	if err != nil {
		t.Fatalf("all history: %v", err)
	}
	if len(grouped[r.ID]) != 2 || len(grouped[GeneralScope]) != 2 {
		t.Fatalf("unexpected grouping %v", grouped)
	}

	if err := h.app.DeleteMessage(h.user, grouped[GeneralScope][0].ID); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if err := h.app.DeleteMessage(h.user, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := h.app.ClearChat(h.user, r.ID); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := h.app.ClearChat(h.user, GeneralScope); err != nil {
		t.Fatalf("clear general: %v", err)
	}
	if n, _ := h.store.CountMessages(h.user.ID); n != 0 {
		t.Fatalf("expected no messages, got %d", n)
	}
}
