package service

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
	"github.com/noah-isme/season-scheduler/pkg/export"
	"github.com/noah-isme/season-scheduler/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures a stored export and its signed download link.
type ExportResult struct {
	RelativePath string              `json:"-"`
	Token        string              `json:"token"`
	URL          string              `json:"url"`
	Format       models.ExportFormat `json:"format"`
	ExpiresAt    time.Time           `json:"expiresAt"`
}

var scheduleExportHeaders = []string{"Date", "Weekday", "Week", "Home", "Away", "Venue", "Type", "Series", "Game", "Locked"}

// ExportService renders schedules as CSV or PDF and optionally stores them behind signed URLs.
type ExportService struct {
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService. storage and signer may be nil when only
// inline rendering is needed.
func NewExportService(storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage: storage,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// Render encodes the schedule in the requested format.
func (s *ExportService) Render(schedule *models.Schedule, format models.ExportFormat) ([]byte, error) {
	if schedule == nil {
		return nil, fmt.Errorf("schedule nil")
	}
	dataset := BuildScheduleDataset(schedule)
	switch format {
	case models.ExportFormatCSV:
		return s.csv.Render(dataset)
	case models.ExportFormatPDF:
		return s.pdf.Render(dataset, scheduleTitle(schedule))
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// Generate renders the schedule, stores it and signs a download token bound to jobID.
func (s *ExportService) Generate(jobID string, schedule *models.Schedule, format models.ExportFormat) (*ExportResult, error) {
	if s.storage == nil || s.signer == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	payload, err := s.Render(schedule, format)
	if err != nil {
		return nil, err
	}
	relPath, err := s.storage.Save(s.buildFilename(jobID, schedule, format), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(jobID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Sugar().Infow("schedule export stored", "job_id", jobID, "path", relPath, "format", format)
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/season-schedules/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	if s.signer == nil {
		return "", "", time.Time{}, fmt.Errorf("export signer not configured")
	}
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	if s.storage == nil {
		return nil, fmt.Errorf("export storage not configured")
	}
	return s.storage.Open(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(jobID string, schedule *models.Schedule, format models.ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s_%s.%s", sanitizeFilename(schedule.Sport), sanitizeFilename(string(schedule.Format)), sanitizeFilename(jobID), timestamp, format)
}

// BuildScheduleDataset flattens fixtures into export rows in schedule order.
func BuildScheduleDataset(schedule *models.Schedule) export.Dataset {
	rows := make([]map[string]string, 0, len(schedule.Matchups))
	for _, m := range schedule.Matchups {
		row := map[string]string{
			"Week":   strconv.Itoa(m.Week),
			"Home":   m.HomeTeamID,
			"Away":   m.AwayTeamID,
			"Venue":  m.Venue,
			"Type":   string(m.Type),
			"Series": m.SeriesID,
			"Locked": strconv.FormatBool(m.Locked),
		}
		if m.Assigned() {
			row["Date"] = m.Date.Format(dateLayout)
			row["Weekday"] = m.Date.Weekday().String()[:3]
		}
		if m.SeriesGame > 0 {
			row["Game"] = strconv.Itoa(m.SeriesGame)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: scheduleExportHeaders, Rows: rows}
}

func scheduleTitle(schedule *models.Schedule) string {
	sport := schedule.Sport
	if sport == "" {
		sport = "season"
	}
	return fmt.Sprintf("%s %s schedule %s to %s", sport, strings.ReplaceAll(string(schedule.Format), "_", " "),
		schedule.SeasonStart.Format(dateLayout), schedule.SeasonEnd.Format(dateLayout))
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
