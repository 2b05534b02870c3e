package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	testingutil "github.com/amirphl/docnum/testing"
	"github.com/amirphl/docnum/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newHistoryFixture(t *testing.T, opts HistoryFlowOptions) (HistoryFlow, repository.NumberLogRepository) {
	t.Helper()

	testDB, err := testingutil.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = testDB.TeardownTestDB() })

	repo := repository.NewNumberLogRepository(testDB.DB)
	return NewHistoryFlow(repo, opts), repo
}

func appendAll(t *testing.T, repo repository.NumberLogRepository, entries ...*models.NumberLog) {
	t.Helper()
	for _, entry := range entries {
		require.NoError(t, repo.Append(context.Background(), entry))
	}
}

func TestHistoryList(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("NewestFirstRegardlessOfInsertionOrder", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{})

		first := testingutil.NewLogAt("OF", 2025, 1, "u1", base)
		second := testingutil.NewLogAt("OF", 2025, 2, "u1", base.Add(time.Minute))
		third := testingutil.NewLogAt("OF", 2025, 3, "u1", base.Add(2*time.Minute))
		appendAll(t, repo, second, third, first)

		result, err := flow.List(ctx, &dto.ListHistoryRequest{})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, third.ID, result.Items[0].ID)
		assert.Equal(t, second.ID, result.Items[1].ID)
		assert.Equal(t, first.ID, result.Items[2].ID)
		assert.Equal(t, "OF 0003/2025", result.Items[0].Formatted)
		assert.Equal(t, int64(3), result.Total)
		assert.Equal(t, 1, result.Page)
		assert.Equal(t, DefaultHistoryPageSize, result.PageSize)
		assert.Equal(t, 1, result.TotalPages)
	})

	t.Run("SameSecondEntriesAreAllKept", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{})

		appendAll(t, repo,
			testingutil.NewLogAt("OF", 2025, 1, "u1", base),
			testingutil.NewLogAt("OF", 2025, 2, "u1", base),
			testingutil.NewLogAt("OF", 2025, 3, "u1", base.Add(500*time.Millisecond)),
		)

		result, err := flow.List(ctx, &dto.ListHistoryRequest{})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, int64(3), result.Items[0].Number)
	})

	t.Run("Pagination", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{})

		for i := 1; i <= 7; i++ {
			appendAll(t, repo, testingutil.NewLogAt("OF", 2025, int64(i), "u1", base.Add(time.Duration(i)*time.Second)))
		}

		page2, err := flow.List(ctx, &dto.ListHistoryRequest{Page: 2, PageSize: 3})
		require.NoError(t, err)
		require.Len(t, page2.Items, 3)
		assert.Equal(t, int64(4), page2.Items[0].Number)
		assert.Equal(t, int64(7), page2.Total)
		assert.Equal(t, 3, page2.TotalPages)

		page3, err := flow.List(ctx, &dto.ListHistoryRequest{Page: 3, PageSize: 3})
		require.NoError(t, err)
		require.Len(t, page3.Items, 1)
		assert.Equal(t, int64(1), page3.Items[0].Number)

		beyond, err := flow.List(ctx, &dto.ListHistoryRequest{Page: 9, PageSize: 3})
		require.NoError(t, err)
		assert.Empty(t, beyond.Items)

		negative, err := flow.List(ctx, &dto.ListHistoryRequest{Page: -4, PageSize: 3})
		require.NoError(t, err)
		assert.Equal(t, 1, negative.Page)
	})

	t.Run("PageSizeIsClamped", func(t *testing.T) {
		flow, _ := newHistoryFixture(t, HistoryFlowOptions{})

		result, err := flow.List(ctx, &dto.ListHistoryRequest{PageSize: 5000})
		require.NoError(t, err)
		assert.Equal(t, MaxHistoryPageSize, result.PageSize)
		assert.Equal(t, 1, result.TotalPages)
		assert.Empty(t, result.Items)
	})

	t.Run("Filters", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{})

		counter := models.NewSequenceCounter("OF", 2025, base)
		counter.CurrentNumber = 9
		correction := models.NewCorrectedLog(counter, 12, "fixing a skipped number", "admin", "Admin", base.Add(time.Hour))

		appendAll(t, repo,
			testingutil.NewLogAt("OF", 2025, 1, "u1", base),
			testingutil.NewLogAt("OF", 2024, 1, "u2", base.Add(time.Second)),
			testingutil.NewLogAt("MEM", 2025, 1, "u2", base.Add(2*time.Second)),
			correction,
		)

		cases := []struct {
			name     string
			filter   dto.HistoryFilter
			expected int
		}{
			{"ByCode", dto.HistoryFilter{DocumentTypeCode: utils.ToPtr("of")}, 3},
			{"ByYear", dto.HistoryFilter{Year: utils.ToPtr(2025)}, 3},
			{"ByScope", dto.HistoryFilter{DocumentTypeCode: utils.ToPtr("OF"), Year: utils.ToPtr(2025)}, 2},
			{"ByActor", dto.HistoryFilter{ActorID: utils.ToPtr("u2")}, 2},
			{"ByAction", dto.HistoryFilter{Action: utils.ToPtr("corrected")}, 1},
			{"UnknownActionIgnored", dto.HistoryFilter{Action: utils.ToPtr("deleted")}, 4},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				result, err := flow.List(ctx, &dto.ListHistoryRequest{Filter: tc.filter})
				require.NoError(t, err)
				assert.Len(t, result.Items, tc.expected)
				assert.Equal(t, int64(tc.expected), result.Total)
			})
		}

		corrected, err := flow.List(ctx, &dto.ListHistoryRequest{Filter: dto.HistoryFilter{Action: utils.ToPtr("corrected")}})
		require.NoError(t, err)
		require.Len(t, corrected.Items, 1)
		require.NotNil(t, corrected.Items[0].PreviousNumber)
		assert.Equal(t, int64(12), *corrected.Items[0].PreviousNumber)
		assert.Equal(t, "fixing a skipped number", *corrected.Items[0].Notes)
	})
}

func TestHistoryGetEntry(t *testing.T) {
	ctx := context.Background()
	flow, repo := newHistoryFixture(t, HistoryFlowOptions{})

	entry := testingutil.NewLogAt("OF", 2025, 4, "u1", time.Now())
	appendAll(t, repo, entry)

	found, err := flow.GetEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)
	assert.Equal(t, "OF 0004/2025", found.Formatted)

	_, err = flow.GetEntry(ctx, "missing")
	assert.True(t, IsNumberLogNotFound(err))
	assert.True(t, IsNotFound(err))
}

func TestHistoryStatistics(t *testing.T) {
	ctx := context.Background()
	flow, repo := newHistoryFixture(t, HistoryFlowOptions{})
	base := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	anonymous := testingutil.NewLogAt("MEM", 2025, 1, "u3", base.Add(3*time.Second))
	anonymous.ActorName = ""
	appendAll(t, repo,
		testingutil.NewLogAt("OF", 2025, 1, "u1", base),
		testingutil.NewLogAt("OF", 2025, 2, "u1", base.Add(time.Second)),
		testingutil.NewLogAt("OF", 2025, 3, "u2", base.Add(2*time.Second)),
		anonymous,
	)

	stats, err := flow.Statistics(ctx, dto.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(4), stats.Generated)
	assert.Equal(t, int64(0), stats.Corrected)
	assert.Equal(t, map[string]int64{"OF": 3, "MEM": 1}, stats.ByDocumentType)
	assert.Equal(t, map[string]int64{"User u1": 2, "User u2": 1, "u3": 1}, stats.ByActor)

	scoped, err := flow.Statistics(ctx, dto.HistoryFilter{DocumentTypeCode: utils.ToPtr("MEM")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), scoped.Total)
}

func TestHistoryExport(t *testing.T) {
	ctx := context.Background()
	utils.SetLocalLocation(utils.LoadLocation(utils.DefaultTimezone, utils.DefaultTimezoneOffset))

	created := time.Date(2025, 1, 15, 13, 4, 5, 0, time.UTC)
	fixedNow := func() time.Time { return time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC) }

	seed := func(t *testing.T, repo repository.NumberLogRepository) {
		counter := models.NewSequenceCounter("OF", 2025, created)
		counter.CurrentNumber = 3
		appendAll(t, repo,
			testingutil.NewLogAt("OF", 2025, 1, "u1", created),
			models.NewCorrectedLog(counter, 8, "ajuste; numeração", "admin", "Admin", created.Add(time.Minute)),
		)
	}

	t.Run("CSV", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{Now: fixedNow})
		seed(t, repo)

		filename, data, err := flow.Export(ctx, &dto.ExportHistoryRequest{
			Filter: dto.HistoryFilter{DocumentTypeCode: utils.ToPtr("of"), Year: utils.ToPtr(2025)},
		})
		require.NoError(t, err)
		assert.Equal(t, "historico_OF_2025_20250201_090000.csv", filename)
		require.True(t, bytes.HasPrefix(data, []byte("\uFEFF")))

		reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\uFEFF"))))
		reader.Comma = ';'
		records, err := reader.ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, exportHeader, records[0])
		assert.Equal(t, []string{"15/01/2025 10:05:05", "OF", "2025", "3", "Corrigido", "Admin", "8", "ajuste; numeração"}, records[1])
		assert.Equal(t, []string{"15/01/2025 10:04:05", "OF", "2025", "1", "Gerado", "User u1", "", ""}, records[2])
	})

	t.Run("XLSX", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{Now: fixedNow})
		seed(t, repo)

		filename, data, err := flow.Export(ctx, &dto.ExportHistoryRequest{Format: "XLSX"})
		require.NoError(t, err)
		assert.Equal(t, "historico_20250201_090000.xlsx", filename)

		xl, err := excelize.OpenReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer func() { _ = xl.Close() }()

		rows, err := xl.GetRows("Historico")
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Data/Hora", rows[0][0])
		assert.Equal(t, "Corrigido", rows[1][4])
		assert.Equal(t, "Gerado", rows[2][4])
	})

	t.Run("UnsupportedFormat", func(t *testing.T) {
		flow, _ := newHistoryFixture(t, HistoryFlowOptions{})

		_, _, err := flow.Export(ctx, &dto.ExportHistoryRequest{Format: "pdf"})
		assert.ErrorIs(t, err, ErrUnsupportedExportFormat)
		assert.True(t, IsValidation(err))
	})

	t.Run("ExportLimit", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{ExportLimit: 2})
		for i := 1; i <= 5; i++ {
			appendAll(t, repo, testingutil.NewLogAt("OF", 2025, int64(i), "u1", created.Add(time.Duration(i)*time.Second)))
		}

		entries, err := flow.ExportAll(ctx, dto.HistoryFilter{})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, int64(5), entries[0].Number)

		for _, limit := range []int{0, -1} {
			unlimited := NewHistoryFlow(repo, HistoryFlowOptions{ExportLimit: limit})
			all, err := unlimited.ExportAll(ctx, dto.HistoryFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 5, "limit %d", limit)
		}
	})

	t.Run("ZeroExportLimitIsUnlimited", func(t *testing.T) {
		flow, repo := newHistoryFixture(t, HistoryFlowOptions{ExportLimit: 0})
		// more entries than the limit production configs default to
		for i := 1; i <= 10050; i++ {
			appendAll(t, repo, testingutil.NewLogAt("OF", 2025, int64(i), "u1", created.Add(time.Duration(i)*time.Millisecond)))
		}

		entries, err := flow.ExportAll(ctx, dto.HistoryFilter{})
		require.NoError(t, err)
		assert.Len(t, entries, 10050)
		assert.Equal(t, int64(10050), entries[0].Number)
	})
}

func TestExportFilename(t *testing.T) {
	utils.SetLocalLocation(time.UTC)
	defer utils.SetLocalLocation(utils.LoadLocation(utils.DefaultTimezone, utils.DefaultTimezoneOffset))

	now := time.Date(2025, 12, 31, 23, 59, 58, 0, time.UTC)
	assert.Equal(t, "historico_20251231_235958.csv", ExportFilename(models.NumberLogFilter{}, now, ExportFormatCSV))
	assert.Equal(t, "historico_MEM_20251231_235958.xlsx", ExportFilename(models.NumberLogFilter{DocumentTypeCode: utils.ToPtr("MEM")}, now, ExportFormatXLSX))
	assert.True(t, strings.HasPrefix(ExportFilename(models.NumberLogFilter{Year: utils.ToPtr(2024)}, now, "csv"), "historico_2024_"))
}
