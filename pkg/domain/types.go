package domain

import "time"

type ReportStatus string

const (
	StatusProcessing ReportStatus = "processing"
	StatusProcessed  ReportStatus = "processed"
	StatusFailed     ReportStatus = "failed"
)

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// DefaultReportTitle is used when an upload carries no title.
const DefaultReportTitle = "Medical Report"

type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	PreferredLanguage string    `json:"preferredLanguage"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Report is an uploaded (or pasted) medical document together with the text
// and annotations derived from it.
type Report struct {
	ID                 string       `json:"id"`
	OwnerID            string       `json:"userId"`
	Title              string       `json:"title"`
	OriginalFilename   string       `json:"originalFilename,omitempty"`
	FileType           string       `json:"fileType"`
	FileLocation       string       `json:"-"`
	OriginalContent    string       `json:"originalContent"`
	TranslatedContent  string       `json:"translatedContent"`
	TranslatedLanguage string       `json:"translatedLanguage"`
	Explanation        string       `json:"explanation"`
	HealthTips         string       `json:"healthTips"`
	KeyFindings        []string     `json:"keyFindings"`
	Status             ReportStatus `json:"status"`
	ErrorMessage       string       `json:"errorMessage,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// AnnotationSource returns the text annotations are generated from: the
// translation when present, the original otherwise.
func (r Report) AnnotationSource() string {
	if r.TranslatedContent != "" {
		return r.TranslatedContent
	}
	return r.OriginalContent
}

// ClearDerived drops everything computed from the original content.
func (r *Report) ClearDerived() {
	r.TranslatedContent = ""
	r.TranslatedLanguage = ""
	r.Explanation = ""
	r.HealthTips = ""
	r.KeyFindings = []string{}
}

type ChatMessage struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"userId"`
	ReportID  string    `json:"reportId,omitempty"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"message"`
	Fallback  bool      `json:"fallback,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
}

// UserStats summarizes a user's activity.
type UserStats struct {
	TotalReports     int64 `json:"totalReports"`
	ProcessedReports int64 `json:"processedReports"`
	TotalMessages    int64 `json:"totalMessages"`
	RecentReports    int64 `json:"recentReports"`
}
