package store

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"medexplain/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID                string `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex;not null"`
	PasswordHash      string `gorm:"not null"`
	FirstName         string
	LastName          string
	PreferredLanguage string    `gorm:"not null;default:en"`
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time
}

type ReportModel struct {
	ID                 string `gorm:"primaryKey"`
	OwnerID            string `gorm:"not null;index"`
	Title              string `gorm:"not null"`
	OriginalFilename   string
	FileType           string `gorm:"not null"`
	FileLocation       string
	OriginalContent    string `gorm:"type:text"`
	TranslatedContent  string `gorm:"type:text"`
	TranslatedLanguage string
	Explanation        string `gorm:"type:text"`
	HealthTips         string `gorm:"type:text"`
	KeyFindings        datatypes.JSON
	Status             string    `gorm:"not null;index"`
	ErrorMessage       string    `gorm:"type:text"`
	CreatedAt          time.Time `gorm:"not null;index"`
	UpdatedAt          time.Time `gorm:"not null"`
}

type ChatMessageModel struct {
	ID        string    `gorm:"primaryKey"`
	OwnerID   string    `gorm:"not null;index:idx_chat_scope,priority:1"`
	ReportID  *string   `gorm:"index:idx_chat_scope,priority:2"`
	Sender    string    `gorm:"not null"`
	Text      string    `gorm:"type:text;not null"`
	Fallback  bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:                u.ID,
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		FirstName:         u.FirstName,
		LastName:          u.LastName,
		PreferredLanguage: u.PreferredLanguage,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:                m.ID,
		Email:             m.Email,
		PasswordHash:      m.PasswordHash,
		FirstName:         m.FirstName,
		LastName:          m.LastName,
		PreferredLanguage: m.PreferredLanguage,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func reportToModel(r domain.Report) ReportModel {
	findings := r.KeyFindings
	if findings == nil {
		findings = []string{}
	}
	raw, _ := json.Marshal(findings)
	return ReportModel{
		ID:                 r.ID,
		OwnerID:            r.OwnerID,
		Title:              r.Title,
		OriginalFilename:   r.OriginalFilename,
		FileType:           r.FileType,
		FileLocation:       r.FileLocation,
		OriginalContent:    r.OriginalContent,
		TranslatedContent:  r.TranslatedContent,
		TranslatedLanguage: r.TranslatedLanguage,
		Explanation:        r.Explanation,
		HealthTips:         r.HealthTips,
		KeyFindings:        raw,
		Status:             string(r.Status),
		ErrorMessage:       r.ErrorMessage,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

func reportFromModel(m ReportModel) domain.Report {
	return domain.Report{
		ID:                 m.ID,
		OwnerID:            m.OwnerID,
		Title:              m.Title,
		OriginalFilename:   m.OriginalFilename,
		FileType:           m.FileType,
		FileLocation:       m.FileLocation,
		OriginalContent:    m.OriginalContent,
		TranslatedContent:  m.TranslatedContent,
		TranslatedLanguage: m.TranslatedLanguage,
		Explanation:        m.Explanation,
		HealthTips:         m.HealthTips,
		KeyFindings:        decodeFindings(m.KeyFindings),
		Status:             domain.ReportStatus(m.Status),
		ErrorMessage:       m.ErrorMessage,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// decodeFindings never returns nil; unreadable JSON yields an empty list.
func decodeFindings(raw []byte) []string {
	var items []string
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return []string{}
	}
	return items
}

func messageToModel(msg domain.ChatMessage) ChatMessageModel {
	var reportID *string
	if id := strings.TrimSpace(msg.ReportID); id != "" {
		reportID = &id
	}
	return ChatMessageModel{
		ID:        msg.ID,
		OwnerID:   msg.OwnerID,
		ReportID:  reportID,
		Sender:    string(msg.Sender),
		Text:      msg.Text,
		Fallback:  msg.Fallback,
		CreatedAt: msg.CreatedAt,
	}
}

func messageFromModel(m ChatMessageModel) domain.ChatMessage {
	reportID := ""
	if m.ReportID != nil {
		reportID = *m.ReportID
	}
	return domain.ChatMessage{
		ID:        m.ID,
		OwnerID:   m.OwnerID,
		ReportID:  reportID,
		Sender:    domain.Sender(m.Sender),
		Text:      m.Text,
		Fallback:  m.Fallback,
		CreatedAt: m.CreatedAt,
	}
}
