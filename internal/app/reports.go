package app

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"medexplain/internal/util"
	"medexplain/pkg/domain"
	"medexplain/pkg/extract"
	"medexplain/pkg/lang"
	"medexplain/pkg/storage"
	"medexplain/pkg/translate"
)

const extractionFailedMsg = "could not extract text"

// Upload is a file submitted for processing.
type Upload struct {
	Filename       string
	ContentType    string
	Size           int64
	Body           io.Reader
	Title          string
	TargetLanguage string
}

// UploadReport stores the file, records a processing report and runs the
// full pipeline on it. The returned report reflects the final state even
// when an error is returned, as long as it was persisted.
func (a *App) UploadReport(ctx context.Context, owner domain.User, up Upload) (domain.Report, error) {
	name := strings.TrimSpace(up.Filename)
	if name == "" {
		return domain.Report{}, invalid("no file selected")
	}
	fileType, err := extract.NormalizeType(filepath.Ext(name))
	if err != nil {
		return domain.Report{}, err
	}
	target, err := a.targetLanguage(owner, up.TargetLanguage)
	if err != nil {
		return domain.Report{}, err
	}
	contentType := up.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension("." + fileType)
	}

	location, err := a.files.Save(ctx, storage.NewKey(name), up.Body, up.Size, contentType)
	if err != nil {
		return domain.Report{}, fmt.Errorf("%w: save file: %w", ErrProcessingFailed, err)
	}
	now := a.now()
	report := domain.Report{
		ID:               util.NewID(),
		OwnerID:          owner.ID,
		Title:            titleOr(up.Title),
		OriginalFilename: storage.SafeFilename(name),
		FileType:         fileType,
		FileLocation:     location,
		KeyFindings:      []string{},
		Status:           domain.StatusProcessing,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.store.SaveReport(report); err != nil {
		if derr := a.files.Delete(context.WithoutCancel(ctx), location); derr != nil {
			a.logger.Warn("remove orphaned upload failed", "location", location, "error", derr)
		}
		return domain.Report{}, fmt.Errorf("%w: save report: %w", ErrProcessingFailed, err)
	}

	// The pipeline finishes even if the client goes away; provider
	// timeouts bound it.
	ctx = context.WithoutCancel(ctx)
	report, err = a.extractInto(ctx, report)
	if err != nil {
		return report, err
	}
	return a.annotateReport(ctx, report, target)
}

// CreateReport records pasted report text and runs translation and
// annotation on it.
func (a *App) CreateReport(ctx context.Context, owner domain.User, title, content, targetLanguage string) (domain.Report, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Report{}, invalid("content is required")
	}
	target, err := a.targetLanguage(owner, targetLanguage)
	if err != nil {
		return domain.Report{}, err
	}
	now := a.now()
	report := domain.Report{
		ID:              util.NewID(),
		OwnerID:         owner.ID,
		Title:           titleOr(title),
		FileType:        "txt",
		OriginalContent: content,
		KeyFindings:     []string{},
		Status:          domain.StatusProcessing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("%w: save report: %w", ErrProcessingFailed, err)
	}
	return a.annotateReport(context.WithoutCancel(ctx), report, target)
}

// ReprocessReport re-runs translation and annotation on the stored
// original content. The original text and stored file are left untouched.
func (a *App) ReprocessReport(ctx context.Context, owner domain.User, id, targetLanguage string) (domain.Report, error) {
	report, err := a.ownedReport(owner, id)
	if err != nil {
		return domain.Report{}, err
	}
	if strings.TrimSpace(report.OriginalContent) == "" {
		return domain.Report{}, ErrNoContent
	}
	target, err := a.targetLanguage(owner, targetLanguage)
	if err != nil {
		return domain.Report{}, err
	}
	report.Status = domain.StatusProcessing
	report.ErrorMessage = ""
	report.UpdatedAt = a.now()
	if err := a.store.SaveReport(report); err != nil {
		return domain.Report{}, fmt.Errorf("%w: save report: %w", ErrProcessingFailed, err)
	}
	return a.annotateReport(context.WithoutCancel(ctx), report, target)
}

// ListReports returns the owner's reports, newest first.
func (a *App) ListReports(owner domain.User) ([]domain.Report, error) {
	return a.store.ListReportsByOwner(owner.ID)
}

// GetReport returns one of the owner's reports.
func (a *App) GetReport(owner domain.User, id string) (domain.Report, error) {
	return a.ownedReport(owner, id)
}

// DeleteReport removes a report with its chat history, then its stored
// file. File removal is best effort.
func (a *App) DeleteReport(ctx context.Context, owner domain.User, id string) error {
	report, err := a.ownedReport(owner, id)
	if err != nil {
		return err
	}
	if err := a.store.DeleteReport(report.ID); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	if report.FileLocation != "" {
		if err := a.files.Delete(ctx, report.FileLocation); err != nil {
			a.logger.Warn("delete stored file failed", "report_id", report.ID, "error", err)
		}
	}
	return nil
}

// extractInto reads the stored file and saves its text as the original
// content. Empty output fails the report with ErrExtractionEmpty.
func (a *App) extractInto(ctx context.Context, r domain.Report) (domain.Report, error) {
	path, cleanup, err := a.files.Open(ctx, r.FileLocation)
	if err != nil {
		return a.fail(r, "stored file unavailable", err)
	}
	res := a.extractor.Extract(ctx, path, r.FileType)
	cleanup()
	if res.Empty() {
		a.logger.Warn("extraction produced no text", "report_id", r.ID, "file_type", r.FileType, "error", res.Err)
		r.Status = domain.StatusFailed
		r.ErrorMessage = extractionFailedMsg
		if err := a.store.SetReportStatus(r.ID, domain.StatusFailed, extractionFailedMsg); err != nil {
			a.logger.Error("mark report failed", "report_id", r.ID, "error", err)
		}
		return r, ErrExtractionEmpty
	}
	r.OriginalContent = res.Text
	r.UpdatedAt = a.now()
	if err := a.store.SaveReport(r); err != nil {
		return a.fail(r, "save extracted text", err)
	}
	return r, nil
}

// annotateReport translates the original content when the target is not
// English, generates the three annotations and marks the report processed.
// Each stage is persisted before the next starts.
func (a *App) annotateReport(ctx context.Context, r domain.Report, target string) (domain.Report, error) {
	r.ClearDerived()
	if target == lang.Default {
		r.TranslatedContent = r.OriginalContent
	} else {
		tr := a.translator.Translate(ctx, r.OriginalContent, target, translate.AutoDetect)
		if tr.Fallback {
			a.logger.Warn("translation fell back to original text", "report_id", r.ID, "target", target, "error", tr.Err)
		}
		r.TranslatedContent = tr.Text
	}
	r.TranslatedLanguage = target
	r.UpdatedAt = a.now()
	if err := a.store.SaveReport(r); err != nil {
		return a.fail(r, "save translation", err)
	}

	source := r.AnnotationSource()
	r.Explanation = a.annotator.Explain(ctx, source, target).Value
	r.HealthTips = a.annotator.HealthTips(ctx, source, target).Value
	r.KeyFindings = a.annotator.KeyFindings(ctx, source).Items
	if r.KeyFindings == nil {
		r.KeyFindings = []string{}
	}
	r.Status = domain.StatusProcessed
	r.ErrorMessage = ""
	r.UpdatedAt = a.now()
	if err := a.store.SaveReport(r); err != nil {
		return a.fail(r, "save annotations", err)
	}
	a.logger.Info("report processed", "report_id", r.ID, "target", target)
	return r, nil
}

// fail marks r failed, keeping whatever earlier stages already stored.
func (a *App) fail(r domain.Report, stage string, cause error) (domain.Report, error) {
	a.logger.Error("report pipeline failed", "report_id", r.ID, "stage", stage, "error", cause)
	r.Status = domain.StatusFailed
	r.ErrorMessage = stage + " failed"
	if err := a.store.SetReportStatus(r.ID, domain.StatusFailed, r.ErrorMessage); err != nil {
		a.logger.Error("mark report failed", "report_id", r.ID, "error", err)
	}
	return r, fmt.Errorf("%w: %s: %w", ErrProcessingFailed, stage, cause)
}

// targetLanguage resolves the requested language, defaulting to the
// user's preference.
func (a *App) targetLanguage(owner domain.User, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		return lang.Normalize(owner.PreferredLanguage), nil
	}
	if !lang.IsSupported(requested) {
		return "", invalid("unsupported language %q", requested)
	}
	return lang.Canonical(requested), nil
}

func titleOr(title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return domain.DefaultReportTitle
}

