package service

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/season-scheduler/internal/models"
	"github.com/noah-isme/season-scheduler/pkg/export"
	"github.com/noah-isme/season-scheduler/pkg/storage"
)

func sampleSchedule() *models.Schedule {
	return &models.Schedule{
		Sport:       "basketball",
		Format:      models.FormatThreeGameSeries,
		SeasonStart: day(2025, 1, 6),
		SeasonEnd:   day(2025, 3, 30),
		Matchups: []models.Matchup{
			{HomeTeamID: "t00", AwayTeamID: "t01", Week: 1, Date: day(2025, 1, 10), Type: models.MatchupSeries, Venue: "t00-arena", SeriesID: "S001-t00-t01", SeriesGame: 1},
			{HomeTeamID: "t00", AwayTeamID: "t01", Week: 1, Date: day(2025, 1, 11), Type: models.MatchupSeries, Venue: "t00-arena", SeriesID: "S001-t00-t01", SeriesGame: 2, Locked: true},
			{HomeTeamID: "t02", AwayTeamID: "t03", Week: 2, Type: models.MatchupConference, Venue: "t02-arena"},
		},
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func TestBuildScheduleDataset(t *testing.T) {
	data := BuildScheduleDataset(sampleSchedule())
	require.Len(t, data.Rows, 3)
	assert.Equal(t, scheduleExportHeaders, data.Headers)
	assert.Equal(t, "2025-01-10", data.Rows[0]["Date"])
	assert.Equal(t, "Fri", data.Rows[0]["Weekday"])
	assert.Equal(t, "1", data.Rows[0]["Game"])
	assert.Equal(t, "true", data.Rows[1]["Locked"])
	assert.Empty(t, data.Rows[2]["Date"], "unassigned games have no date")
	assert.Empty(t, data.Rows[2]["Game"])
}

func TestExportServiceRenderCSV(t *testing.T) {
	svc := NewExportService(nil, nil, ExportConfig{}, nil, nil, nil)
	out, err := svc.Render(sampleSchedule(), models.ExportFormatCSV)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Weekday,Week,Home,Away,Venue,Type,Series,Game,Locked", lines[0])
	assert.Equal(t, "2025-01-10,Fri,1,t00,t01,t00-arena,series,S001-t00-t01,1,false", lines[1])

	_, err = svc.Render(sampleSchedule(), "xlsx")
	assert.Error(t, err)
	_, err = svc.Generate("job-1", sampleSchedule(), models.ExportFormatCSV)
	assert.Error(t, err, "generate needs storage")
}

func TestExportServiceGenerateStoresAndSigns(t *testing.T) {
	svc, store := newExportServiceForTest(t)

	result, err := svc.Generate("job-1", sampleSchedule(), models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Contains(t, result.URL, "/api/v1/season-schedules/exports/")
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))
	assert.True(t, strings.HasPrefix(result.RelativePath, "basketball_three_game_series_job-1_"))

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, relPath)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	require.NoError(t, file.Close())
}

func TestExportServiceCleanup(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	result, err := svc.Generate("job-2", sampleSchedule(), models.ExportFormatCSV)
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(result.RelativePath), old, old))

	removed, err := svc.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, []string{result.RelativePath}, removed)
}
