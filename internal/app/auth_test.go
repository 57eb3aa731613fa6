package app

import (
	"context"
	"errors"
	"testing"

	"medexplain/pkg/domain"
)

func TestRegisterLoginVerifyLogout(t *testing.T) {
	h := newHarness(t, nil)
	if h.user.Email != "patient@example.com" || h.user.PreferredLanguage != "en" || h.user.PasswordHash == "secret123" {
		t.Fatalf("unexpected registered user %+v", h.user)
	}
	user, token, err := h.app.Login(" Patient@Example.com ", "secret123")
	if err != nil || user.ID != h.user.ID || token == "" {
		t.Fatalf("login = %+v %q %v", user, token, err)
	}
	got, err := h.app.Authenticate(token)
	if err != nil || got.ID != h.user.ID {
		t.Fatalf("authenticate = %+v %v", got, err)
	}
	if err := h.app.Logout(token); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := h.app.Authenticate(token); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected revoked token to be rejected, got %v", err)
	}
	if _, err := h.app.Authenticate("not-a-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t, nil)
	cases := []Registration{
		{Email: "", Password: "secret123", FirstName: "A", LastName: "B"},
		{Email: "x@example.com", Password: "", FirstName: "A", LastName: "B"},
		{Email: "x@example.com", Password: "secret123", FirstName: " ", LastName: "B"},
		{Email: "bad", Password: "secret123", FirstName: "A", LastName: "B"},
		{Email: "x@example.com", Password: "short", FirstName: "A", LastName: "B"},
		{Email: "x@example.com", Password: "secret123", FirstName: "A", LastName: "B", PreferredLanguage: "xx"},
	}
	for i, in := range cases {
		if _, _, err := h.app.Register(in); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	_, _, err := h.app.Register(Registration{Email: "PATIENT@example.com", Password: "secret123", FirstName: "A", LastName: "B"})
	if !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	if _, _, err := h.app.Login("patient@example.com", "wrong-pass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := h.app.Login("nobody@example.com", "secret123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateProfileAndDefaultLanguage(t *testing.T) {
	h := newHarness(t, nil)
	lang := "HI"
	first := "Asha K."
	user, err := h.app.UpdateProfile(h.user, ProfileUpdate{FirstName: &first, PreferredLanguage: &lang})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if user.FirstName != "Asha K." || user.PreferredLanguage != "hi" || user.LastName != "Rao" {
		t.Fatalf("unexpected profile %+v", user)
	}
	bad := "klingon"
	if _, err := h.app.UpdateProfile(user, ProfileUpdate{PreferredLanguage: &bad}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	r, err := h.app.UploadReport(context.Background(), user, uploadOf("labs.txt", "BP 120/80"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if r.TranslatedLanguage != "hi" {
		t.Fatalf("target should default to the preferred language, got %q", r.TranslatedLanguage)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t, nil)
	_, _ = h.upload(t, "a.txt", "BP 120/80", "en")
	_, _ = h.upload(t, "b.txt", " ", "en")
	_, _ = h.app.SendMessage(context.Background(), h.user, "", "hello", "")
	_ = h.store.SaveReport(domain.Report{ID: "old", OwnerID: h.user.ID, Title: "old", FileType: "txt", Status: domain.StatusProcessed,
		CreatedAt: h.app.now().AddDate(0, 0, -30)})

	stats, err := h.app.Stats(h.user)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := domain.UserStats{TotalReports: 3, ProcessedReports: 2, TotalMessages: 2, RecentReports: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}
