package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"medexplain/pkg/domain"
)

const migrateLockID int64 = 52610417

// GormStore implements Store using GORM over Postgres or SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. DSNs starting with
// "sqlite:" or "file:", or ending in ".db", use SQLite; anything else is
// handed to the Postgres driver.
func NewGormStore(dsn string) (*GormStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("database dsn required")
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dialector, isSQLite := dialectorFor(dsn)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &ReportModel{}, &ChatMessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		// SQLite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
		err = migrate(db)
		if err != nil {
			return nil, err
		}
	} else if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func dialectorFor(dsn string) (gorm.Dialector, bool) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), true
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), true
	case strings.HasPrefix(dsn, "file:"), strings.HasSuffix(dsn, ".db"), dsn == ":memory:":
		return sqlite.Open(dsn), true
	default:
		return postgres.Open(dsn), false
	}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash", "first_name", "last_name", "preferred_language", "updated_at"}),
	}).Create(&model).Error
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// SaveReport stores or updates a report.
func (s *GormStore) SaveReport(r domain.Report) error {
	model := reportToModel(r)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "original_filename", "file_type", "file_location",
			"original_content", "translated_content", "translated_language",
			"explanation", "health_tips", "key_findings",
			"status", "error_message", "updated_at",
		}),
	}).Create(&model).Error
}

// SetReportStatus updates report status/error.
func (s *GormStore) SetReportStatus(id string, status domain.ReportStatus, errMsg string) error {
	return s.db.Model(&ReportModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":        string(status),
			"error_message": errMsg,
			"updated_at":    time.Now().UTC(),
		}).Error
}

// GetReport retrieves a report.
func (s *GormStore) GetReport(id string) (domain.Report, bool, error) {
	var model ReportModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Report{}, false, nil
		}
		return domain.Report{}, false, err
	}
	return reportFromModel(model), true, nil
}

// ListReportsByOwner returns an owner's reports, newest first.
func (s *GormStore) ListReportsByOwner(ownerID string) ([]domain.Report, error) {
	var models []ReportModel
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Report, 0, len(models))
	for _, m := range models {
		res = append(res, reportFromModel(m))
	}
	return res, nil
}

// DeleteReport removes a report and its chat history.
func (s *GormStore) DeleteReport(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChatMessageModel{}, "report_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ReportModel{}, "id = ?", id).Error
	})
}

// CountReports counts an owner's reports matching filter.
func (s *GormStore) CountReports(ownerID string, filter ReportFilter) (int64, error) {
	q := s.db.Model(&ReportModel{}).Where("owner_id = ?", ownerID)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since.UTC())
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// AppendMessage records a chat message.
func (s *GormStore) AppendMessage(msg domain.ChatMessage) error {
	model := messageToModel(msg)
	return s.db.Create(&model).Error
}

// GetMessage returns a chat message by ID.
func (s *GormStore) GetMessage(id string) (domain.ChatMessage, bool, error) {
	var model ChatMessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ChatMessage{}, false, nil
		}
		return domain.ChatMessage{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListMessages returns the latest limit messages of one conversation scope
// in chronological order. An empty reportID selects general conversation;
// limit <= 0 returns the whole scope.
func (s *GormStore) ListMessages(ownerID, reportID string, limit int) ([]domain.ChatMessage, error) {
	q := scopeQuery(s.db.Model(&ChatMessageModel{}), ownerID, reportID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var models []ChatMessageModel
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		msgs = append(msgs, messageFromModel(models[i]))
	}
	return msgs, nil
}

// ListMessagesByOwner returns every message of a user in chronological order.
func (s *GormStore) ListMessagesByOwner(ownerID string) ([]domain.ChatMessage, error) {
	var models []ChatMessageModel
	if err := s.db.Where("owner_id = ?", ownerID).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, m := range models {
		msgs = append(msgs, messageFromModel(m))
	}
	return msgs, nil
}

// DeleteMessage removes one chat message.
func (s *GormStore) DeleteMessage(id string) error {
	return s.db.Delete(&ChatMessageModel{}, "id = ?", id).Error
}

// DeleteMessages clears one conversation scope of a user.
func (s *GormStore) DeleteMessages(ownerID, reportID string) error {
	return scopeQuery(s.db, ownerID, reportID).Delete(&ChatMessageModel{}).Error
}

// CountMessages counts all chat messages of a user.
func (s *GormStore) CountMessages(ownerID string) (int64, error) {
	var count int64
	if err := s.db.Model(&ChatMessageModel{}).Where("owner_id = ?", ownerID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func scopeQuery(tx *gorm.DB, ownerID, reportID string) *gorm.DB {
	tx = tx.Where("owner_id = ?", ownerID)
	if reportID == "" {
		return tx.Where("report_id IS NULL")
	}
	return tx.Where("report_id = ?", reportID)
}
