package store

import (
	"time"

	"medexplain/pkg/domain"
)

// Store defines persistence operations for users, reports and chat messages.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserEmail(email string) (bool, error)
	GetUserByEmail(email string) (domain.User, bool, error)
	GetUserByID(id string) (domain.User, bool, error)

	// reports
	SaveReport(domain.Report) error
	SetReportStatus(id string, status domain.ReportStatus, errMsg string) error
	GetReport(id string) (domain.Report, bool, error)
	ListReportsByOwner(ownerID string) ([]domain.Report, error)
	DeleteReport(id string) error
	CountReports(ownerID string, filter ReportFilter) (int64, error)

	// chat
	AppendMessage(domain.ChatMessage) error
	GetMessage(id string) (domain.ChatMessage, bool, error)
	ListMessages(ownerID, reportID string, limit int) ([]domain.ChatMessage, error)
	ListMessagesByOwner(ownerID string) ([]domain.ChatMessage, error)
	DeleteMessage(id string) error
	DeleteMessages(ownerID, reportID string) error
	CountMessages(ownerID string) (int64, error)
}

// ReportFilter narrows CountReports. Zero fields do not filter.
type ReportFilter struct {
	Status domain.ReportStatus
	Since  time.Time
}

// SessionStore issues and validates session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
