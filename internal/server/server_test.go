package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medexplain/internal/app"
	"medexplain/pkg/ai"
	"medexplain/pkg/annotate"
	"medexplain/pkg/extract"
	"medexplain/pkg/storage"
	"medexplain/pkg/store"
	"medexplain/pkg/translate"
)

type stubModel struct{}

func (stubModel) Chat(_ context.Context, req ai.ChatRequest) (string, error) {
	switch req.MaxTokens {
	case 500:
		return "- Hemoglobin 13.5 g/dL\n- Glucose normal", nil
	default:
		return "Everything looks fine.", nil
	}
}

type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Translate(_ context.Context, text, target, _ string) (string, error) {
	return "[" + target + "] " + text, nil
}

func (stubProvider) Detect(context.Context, string) (string, error) { return "en", nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	sessions, err := store.NewJWTSessionStore("server-test-secret-0123456789", time.Hour, store.NewMemoryTokenRevoker())
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	files, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	core, err := app.New(app.Config{
		Store:      store.NewMemoryStore(),
		Sessions:   sessions,
		Files:      files,
		Extractor:  extract.New(extract.Config{}),
		Translator: translate.New(nil, stubProvider{}),
		Annotator:  annotate.New(stubModel{}, annotate.DefaultConfig("", "")),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: core, MaxUploadBytes: 1 << 20})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func register(t *testing.T, baseURL, email string) string {
	t.Helper()
	var resp struct {
		Token string `json:"token"`
	}
	status := doJSON(t, http.MethodPost, baseURL+"/api/auth/register", "", map[string]string{
		"email":     email,
		"password":  "secret123",
		"firstName": "Asha",
		"lastName":  "Rao",
	}, &resp)
	if status != http.StatusCreated || resp.Token == "" {
		t.Fatalf("register %s: status %d", email, status)
	}
	return resp.Token
}

func TestHealthAndRequestID(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected X-Request-Id header")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected security headers")
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	if status := doJSON(t, http.MethodGet, ts.URL+"/api/users/me", "", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("missing token expected 401, got %d", status)
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/users/me", "garbage", nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("bad token expected 401, got %d", status)
	}

	token := register(t, ts.URL, "asha@example.com")

	var dup map[string]string
	status := doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email": "asha@example.com", "password": "secret123", "firstName": "A", "lastName": "R",
	}, &dup)
	if status != http.StatusConflict || dup["error"] == "" {
		t.Fatalf("duplicate register expected 409 with error, got %d %v", status, dup)
	}

	var weak map[string]string
	status = doJSON(t, http.MethodPost, ts.URL+"/api/auth/register", "", map[string]string{
		"email": "weak@example.com", "password": "short", "firstName": "A", "lastName": "R",
	}, &weak)
	if status != http.StatusBadRequest {
		t.Fatalf("weak password expected 400, got %d", status)
	}

	if status := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email": "asha@example.com", "password": "wrongpass1",
	}, nil); status != http.StatusUnauthorized {
		t.Fatalf("wrong password expected 401, got %d", status)
	}

	var login struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", map[string]string{
		"email": "ASHA@example.com", "password": "secret123",
	}, &login); status != http.StatusOK {
		t.Fatalf("login status %d", status)
	}
	if login.User.Email != "asha@example.com" || login.Token == "" {
		t.Fatalf("unexpected login response: %+v", login)
	}

	var verify struct {
		Valid bool `json:"valid"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/auth/verify", token, nil, &verify); status != http.StatusOK || !verify.Valid {
		t.Fatalf("verify status %d valid=%v", status, verify.Valid)
	}

	var me struct {
		User struct {
			PreferredLanguage string `json:"preferredLanguage"`
		} `json:"user"`
	}
	if status := doJSON(t, http.MethodPut, ts.URL+"/api/users/me", token, map[string]string{"preferredLanguage": "hi"}, &me); status != http.StatusOK {
		t.Fatalf("update me status %d", status)
	}
	if me.User.PreferredLanguage != "hi" {
		t.Fatalf("preferred language not updated: %+v", me)
	}
	if status := doJSON(t, http.MethodPut, ts.URL+"/api/users/me", token, map[string]string{"preferredLanguage": "xx"}, nil); status != http.StatusBadRequest {
		t.Fatalf("unsupported language expected 400, got %d", status)
	}

	if status := doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout", token, nil, nil); status != http.StatusOK {
		t.Fatalf("logout status %d", status)
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/auth/verify", token, nil, nil); status != http.StatusUnauthorized {
		t.Fatalf("revoked token expected 401, got %d", status)
	}
}

func uploadReport(t *testing.T, baseURL, token, filename, content string, fields map[string]string) (int, map[string]json.RawMessage) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := io.WriteString(fw, content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/reports/upload", &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return resp.StatusCode, out
}

type reportJSON struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Status             string   `json:"status"`
	OriginalContent    string   `json:"originalContent"`
	TranslatedContent  string   `json:"translatedContent"`
	TranslatedLanguage string   `json:"translatedLanguage"`
	Explanation        string   `json:"explanation"`
	KeyFindings        []string `json:"keyFindings"`
}

func TestReportLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts.URL, "asha@example.com")

	status, out := uploadReport(t, ts.URL, token, "cbc.txt", "Hemoglobin 13.5 g/dL", map[string]string{
		"title":          "CBC",
		"targetLanguage": "es",
	})
	if status != http.StatusCreated {
		t.Fatalf("upload status %d: %s", status, out["error"])
	}
	var report reportJSON
	if err := json.Unmarshal(out["report"], &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != "processed" || report.Title != "CBC" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.TranslatedLanguage != "es" || report.TranslatedContent != "[es] Hemoglobin 13.5 g/dL" {
		t.Fatalf("unexpected translation: %+v", report)
	}
	if len(report.KeyFindings) != 2 || report.Explanation == "" {
		t.Fatalf("unexpected annotations: %+v", report)
	}

	status, out = uploadReport(t, ts.URL, token, "scan.docx", "x", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("unsupported type expected 400, got %d", status)
	}
	status, out = uploadReport(t, ts.URL, token, "empty.txt", "   ", nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("empty file expected 422, got %d (%s)", status, out["error"])
	}

	var list struct {
		Reports []reportJSON `json:"reports"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/reports", token, nil, &list); status != http.StatusOK {
		t.Fatalf("list status %d", status)
	}
	if len(list.Reports) != 2 {
		t.Fatalf("expected 2 reports (processed and failed), got %d", len(list.Reports))
	}

	var reproc struct {
		Report reportJSON `json:"report"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/reports/"+report.ID+"/reprocess", token,
		map[string]string{"targetLanguage": "fr"}, &reproc); status != http.StatusOK {
		t.Fatalf("reprocess status %d", status)
	}
	if reproc.Report.TranslatedLanguage != "fr" || reproc.Report.OriginalContent != "Hemoglobin 13.5 g/dL" {
		t.Fatalf("unexpected reprocessed report: %+v", reproc.Report)
	}

	other := register(t, ts.URL, "other@example.com")
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID, other, nil, nil); status != http.StatusNotFound {
		t.Fatalf("foreign report expected 404, got %d", status)
	}

	if status := doJSON(t, http.MethodDelete, ts.URL+"/api/reports/"+report.ID, token, nil, nil); status != http.StatusOK {
		t.Fatalf("delete status %d", status)
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/reports/"+report.ID, token, nil, nil); status != http.StatusNotFound {
		t.Fatalf("deleted report expected 404, got %d", status)
	}
}

func TestCreateReportFromText(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts.URL, "asha@example.com")

	var created struct {
		Report reportJSON `json:"report"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/reports", token, map[string]string{
		"content": "Glucose 92 mg/dL",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("create status %d", status)
	}
	if created.Report.Title != "Medical Report" || created.Report.TranslatedLanguage != "en" {
		t.Fatalf("unexpected report: %+v", created.Report)
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/reports", token, map[string]string{"content": " "}, nil); status != http.StatusBadRequest {
		t.Fatalf("empty content expected 400, got %d", status)
	}
}

func TestChatFlow(t *testing.T) {
	ts := newTestServer(t)
	token := register(t, ts.URL, "asha@example.com")

	var created struct {
		Report reportJSON `json:"report"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/reports", token, map[string]string{"content": "Glucose 92 mg/dL"}, &created); status != http.StatusCreated {
		t.Fatalf("create status %d", status)
	}

	var turn struct {
		UserMessage struct {
			ID      string `json:"id"`
			Sender  string `json:"sender"`
			Message string `json:"message"`
		} `json:"userMessage"`
		AIResponse struct {
			ID      string `json:"id"`
			Sender  string `json:"sender"`
			Message string `json:"message"`
		} `json:"aiResponse"`
	}
	status := doJSON(t, http.MethodPost, ts.URL+"/api/chat/message", token, map[string]string{
		"message":  "Is my glucose ok?",
		"reportId": created.Report.ID,
	}, &turn)
	if status != http.StatusOK {
		t.Fatalf("chat status %d", status)
	}
	if turn.UserMessage.Sender != "user" || turn.AIResponse.Sender != "ai" || turn.AIResponse.Message == "" {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/chat/message", token, map[string]string{"message": "Hello"}, nil); status != http.StatusOK {
		t.Fatalf("general chat status %d", status)
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/chat/message", token, map[string]string{"message": ""}, nil); status != http.StatusBadRequest {
		t.Fatalf("empty message expected 400, got %d", status)
	}

	var history struct {
		Messages []struct {
			Sender string `json:"sender"`
		} `json:"messages"`
		Report struct {
			ID string `json:"id"`
		} `json:"report"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/chat/history/"+created.Report.ID, token, nil, &history); status != http.StatusOK {
		t.Fatalf("history status %d", status)
	}
	if len(history.Messages) != 2 || history.Messages[0].Sender != "user" || history.Report.ID != created.Report.ID {
		t.Fatalf("unexpected history: %+v", history)
	}

	var all struct {
		ChatHistory map[string][]json.RawMessage `json:"chatHistory"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/chat/history", token, nil, &all); status != http.StatusOK {
		t.Fatalf("all history status %d", status)
	}
	if len(all.ChatHistory[created.Report.ID]) != 2 || len(all.ChatHistory["general"]) != 2 {
		t.Fatalf("unexpected grouping: %v", all.ChatHistory)
	}

	if status := doJSON(t, http.MethodDelete, ts.URL+"/api/chat/messages/"+turn.AIResponse.ID, token, nil, nil); status != http.StatusOK {
		t.Fatalf("delete message status %d", status)
	}
	if status := doJSON(t, http.MethodDelete, ts.URL+"/api/chat/clear/general", token, nil, nil); status != http.StatusOK {
		t.Fatalf("clear general status %d", status)
	}

	var stats struct {
		Stats struct {
			TotalReports  int64 `json:"totalReports"`
			TotalMessages int64 `json:"totalMessages"`
		} `json:"stats"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/users/stats", token, nil, &stats); status != http.StatusOK {
		t.Fatalf("stats status %d", status)
	}
	if stats.Stats.TotalReports != 1 || stats.Stats.TotalMessages != 1 {
		t.Fatalf("unexpected stats: %+v", stats.Stats)
	}
}

func TestAIEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var langs struct {
		SupportedLanguages []struct {
			Code string `json:"code"`
		} `json:"supportedLanguages"`
	}
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/ai/supported-languages", "", nil, &langs); status != http.StatusOK {
		t.Fatalf("languages status %d", status)
	}
	if len(langs.SupportedLanguages) != 23 || langs.SupportedLanguages[0].Code != "en" {
		t.Fatalf("unexpected languages: %+v", langs)
	}

	token := register(t, ts.URL, "asha@example.com")

	var tr struct {
		TranslatedText string `json:"translatedText"`
		SourceLanguage string `json:"sourceLanguage"`
		TargetLanguage string `json:"targetLanguage"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/ai/translate", token, map[string]string{
		"text": "fever", "targetLanguage": "ta",
	}, &tr); status != http.StatusOK {
		t.Fatalf("translate status %d", status)
	}
	if tr.TranslatedText != "[ta] fever" || tr.SourceLanguage != "en" || tr.TargetLanguage != "ta" {
		t.Fatalf("unexpected translation: %+v", tr)
	}

	var findings struct {
		KeyFindings []string `json:"keyFindings"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/ai/key-findings", token, map[string]string{"content": "CBC"}, &findings); status != http.StatusOK {
		t.Fatalf("key findings status %d", status)
	}
	if len(findings.KeyFindings) != 2 {
		t.Fatalf("unexpected findings: %v", findings.KeyFindings)
	}

	var analysis struct {
		TranslatedContent *string `json:"translatedContent"`
		Language          string  `json:"language"`
	}
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/ai/analyze", token, map[string]string{"content": "CBC", "language": "hi"}, &analysis); status != http.StatusOK {
		t.Fatalf("analyze status %d", status)
	}
	if analysis.TranslatedContent == nil || *analysis.TranslatedContent != "[hi] CBC" || analysis.Language != "hi" {
		t.Fatalf("unexpected analysis: %+v", analysis)
	}

	var bad map[string]string
	if status := doJSON(t, http.MethodPost, ts.URL+"/api/ai/explain", token, map[string]string{"content": ""}, &bad); status != http.StatusBadRequest {
		t.Fatalf("empty explain expected 400, got %d", status)
	}
	if !strings.Contains(bad["error"], "content") {
		t.Fatalf("unexpected error body: %v", bad)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	if status := doJSON(t, http.MethodGet, ts.URL+"/api/auth/login", "", nil, nil); status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", status)
	}
}
