package app

import (
	"fmt"
	"strings"
	"time"

	"medexplain/internal/util"
	"medexplain/pkg/auth"
	"medexplain/pkg/domain"
	"medexplain/pkg/lang"
	"medexplain/pkg/store"
)

// Registration is the input of Register.
type Registration struct {
	Email             string
	Password          string
	FirstName         string
	LastName          string
	PreferredLanguage string
}

// ProfileUpdate changes the non-nil fields of a user profile.
type ProfileUpdate struct {
	FirstName         *string
	LastName          *string
	PreferredLanguage *string
}

// Register creates a user and opens a session for it.
func (a *App) Register(in Registration) (domain.User, string, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	switch {
	case in.Email == "":
		return domain.User{}, "", invalid("email is required")
	case in.Password == "":
		return domain.User{}, "", invalid("password is required")
	case in.FirstName == "":
		return domain.User{}, "", invalid("firstName is required")
	case in.LastName == "":
		return domain.User{}, "", invalid("lastName is required")
	}
	email, err := auth.NormalizeEmail(in.Email)
	if err != nil {
		return domain.User{}, "", invalid("%s", err.Error())
	}
	if err := auth.ValidatePassword(in.Password); err != nil {
		return domain.User{}, "", invalid("%s", err.Error())
	}
	preferred := lang.Default
	if in.PreferredLanguage != "" {
		if !lang.IsSupported(in.PreferredLanguage) {
			return domain.User{}, "", invalid("unsupported language %q", in.PreferredLanguage)
		}
		preferred = lang.Canonical(in.PreferredLanguage)
	}

	exists, err := a.store.HasUserEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailExists
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, "", invalid("%s", err.Error())
	}
	now := a.now()
	user := domain.User{
		ID:                util.NewID(),
		Email:             email,
		PasswordHash:      hash,
		FirstName:         in.FirstName,
		LastName:          in.LastName,
		PreferredLanguage: preferred,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Login checks credentials and opens a session.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return domain.User{}, "", invalid("email and password are required")
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// Authenticate resolves a bearer token to its user.
func (a *App) Authenticate(token string) (domain.User, error) {
	if strings.TrimSpace(token) == "" {
		return domain.User{}, ErrUnauthorized
	}
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, ErrUnauthorized
	}
	user, ok, err := a.store.GetUserByID(uid)
	if err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UpdateProfile applies upd to user and returns the stored result.
func (a *App) UpdateProfile(user domain.User, upd ProfileUpdate) (domain.User, error) {
	if upd.FirstName != nil {
		v := strings.TrimSpace(*upd.FirstName)
		if v == "" {
			return domain.User{}, invalid("firstName must not be empty")
		}
		user.FirstName = v
	}
	if upd.LastName != nil {
		v := strings.TrimSpace(*upd.LastName)
		if v == "" {
			return domain.User{}, invalid("lastName must not be empty")
		}
		user.LastName = v
	}
	if upd.PreferredLanguage != nil {
		if !lang.IsSupported(*upd.PreferredLanguage) {
			return domain.User{}, invalid("unsupported language %q", *upd.PreferredLanguage)
		}
		user.PreferredLanguage = lang.Canonical(*upd.PreferredLanguage)
	}
	user.UpdatedAt = a.now()
	if err := a.store.SaveUser(user); err != nil {
		return domain.User{}, fmt.Errorf("save user: %w", err)
	}
	return user, nil
}

// Stats summarizes the user's reports and chat activity. Recent reports
// are those created in the last seven days.
func (a *App) Stats(user domain.User) (domain.UserStats, error) {
	var stats domain.UserStats
	var err error
	if stats.TotalReports, err = a.store.CountReports(user.ID, store.ReportFilter{}); err != nil {
		return stats, fmt.Errorf("count reports: %w", err)
	}
	if stats.ProcessedReports, err = a.store.CountReports(user.ID, store.ReportFilter{Status: domain.StatusProcessed}); err != nil {
		return stats, fmt.Errorf("count processed reports: %w", err)
	}
	if stats.RecentReports, err = a.store.CountReports(user.ID, store.ReportFilter{Since: a.now().Add(-7 * 24 * time.Hour)}); err != nil {
		return stats, fmt.Errorf("count recent reports: %w", err)
	}
	if stats.TotalMessages, err = a.store.CountMessages(user.ID); err != nil {
		return stats, fmt.Errorf("count messages: %w", err)
	}
	return stats, nil
}
