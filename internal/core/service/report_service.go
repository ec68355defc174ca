package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rl1809/easy-inventory/internal/core/domain"
	"github.com/rl1809/easy-inventory/internal/port"
)

type ReportService struct {
	inventory *InventoryService
	auth      *AuthService
	renderer  port.ReportRenderer
	outputDir string
	now       func() time.Time
}

func NewReportService(inventory *InventoryService, auth *AuthService, renderer port.ReportRenderer, outputDir string) *ReportService {
	return &ReportService{
		inventory: inventory,
		auth:      auth,
		renderer:  renderer,
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Summarize collects the owner's records, sorted by name, and their totals.
func (s *ReportService) Summarize(ctx context.Context, ownerID string) (domain.Report, error) {
	items, err := s.inventory.List(ctx, ownerID, domain.ListQuery{SortBy: domain.SortByName, Order: domain.Ascending})
	if err != nil {
		return domain.Report{}, err
	}
	return domain.NewReport(items, s.auth.DisplayName(ctx, ownerID), s.now()), nil
}

// Generate renders the report and writes it under the output directory.
func (s *ReportService) Generate(ctx context.Context, ownerID string) (domain.GeneratedReport, error) {
	report, err := s.Summarize(ctx, ownerID)
	if err != nil {
		return domain.GeneratedReport{}, err
	}
	return s.Write(report)
}

// Write renders an already summarized report to disk.
func (s *ReportService) Write(report domain.Report) (domain.GeneratedReport, error) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, report); err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("render report: %w", err)
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("create report dir: %w", err)
	}
	name := domain.ReportFilename(report.GeneratedAt)
	path := filepath.Join(s.outputDir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return domain.GeneratedReport{}, fmt.Errorf("write report: %w", err)
	}

	log.Printf("report: wrote %s (%d items) for %s", path, len(report.Items), report.GeneratedBy)
	return domain.GeneratedReport{Filename: name, Path: path, Content: buf.Bytes()}, nil
}
