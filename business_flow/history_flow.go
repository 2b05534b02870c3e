package businessflow

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/xuri/excelize/v2"
)

// History defaults
const (
	DefaultHistoryPageSize = 50
	MaxHistoryPageSize     = 100
)

// Export formats
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

const exportTimeLayout = "02/01/2006 15:04:05"

var exportHeader = []string{
	"Data/Hora",
	"Tipo Documento",
	"Ano",
	"Número",
	"Ação",
	"Usuário",
	"Número Anterior",
	"Observações",
}

// HistoryFlow browses, summarises and exports the number history. All listings are newest first.
type HistoryFlow interface {
	List(ctx context.Context, req *dto.ListHistoryRequest) (*dto.ListHistoryResponse, error)
	GetEntry(ctx context.Context, id string) (*dto.NumberLogDTO, error)
	Statistics(ctx context.Context, filter dto.HistoryFilter) (*dto.HistoryStatisticsResponse, error)
	// ExportAll returns every matching entry up to the export limit
	ExportAll(ctx context.Context, filter dto.HistoryFilter) ([]*models.NumberLog, error)
	// Export renders the matching entries and returns the download filename and content
	Export(ctx context.Context, req *dto.ExportHistoryRequest) (string, []byte, error)
}

// HistoryFlowOptions configures paging and export. Zero values mean the defaults.
type HistoryFlowOptions struct {
	DefaultPageSize int
	MaxPageSize     int
	// ExportLimit caps exports; zero or negative means unlimited
	ExportLimit int
	Now         func() time.Time
	Logger      hclog.Logger
}

type HistoryFlowImpl struct {
	repo            repository.NumberLogRepository
	defaultPageSize int
	maxPageSize     int
	exportLimit     int
	now             func() time.Time
	logger          hclog.Logger
}

func NewHistoryFlow(repo repository.NumberLogRepository, opts HistoryFlowOptions) HistoryFlow {
	f := &HistoryFlowImpl{
		repo:            repo,
		defaultPageSize: opts.DefaultPageSize,
		maxPageSize:     opts.MaxPageSize,
		exportLimit:     opts.ExportLimit,
		now:             opts.Now,
		logger:          opts.Logger,
	}
	if f.maxPageSize <= 0 {
		f.maxPageSize = MaxHistoryPageSize
	}
	if f.defaultPageSize <= 0 {
		f.defaultPageSize = DefaultHistoryPageSize
	}
	if f.defaultPageSize > f.maxPageSize {
		f.defaultPageSize = f.maxPageSize
	}
	if f.exportLimit < 0 {
		f.exportLimit = 0
	}
	if f.now == nil {
		f.now = utils.LocalNow
	}
	if f.logger == nil {
		f.logger = hclog.NewNullLogger()
	}
	f.logger = f.logger.Named("history")
	return f
}

// ToNumberLogFilter normalizes the request filter. Unknown actions are dropped.
func ToNumberLogFilter(filter dto.HistoryFilter) models.NumberLogFilter {
	out := models.NumberLogFilter{Year: filter.Year}
	if filter.DocumentTypeCode != nil {
		if code := NormalizeDocumentTypeCode(*filter.DocumentTypeCode); code != "" {
			out.DocumentTypeCode = &code
		}
	}
	if filter.ActorID != nil {
		if actorID := strings.TrimSpace(*filter.ActorID); actorID != "" {
			out.ActorID = &actorID
		}
	}
	if filter.Action != nil {
		switch action := strings.ToLower(strings.TrimSpace(*filter.Action)); action {
		case models.NumberActionGenerated, models.NumberActionCorrected:
			out.Action = &action
		}
	}
	return out
}

func (f *HistoryFlowImpl) List(ctx context.Context, req *dto.ListHistoryRequest) (*dto.ListHistoryResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = f.defaultPageSize
	}
	if pageSize > f.maxPageSize {
		pageSize = f.maxPageSize
	}

	filter := ToNumberLogFilter(req.Filter)
	total, err := f.repo.Count(ctx, filter)
	if err != nil {
		return nil, newInfrastructureError("HISTORY_COUNT_FAILED", "Failed to count history", err)
	}

	entries, err := f.repo.ByFilter(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, newInfrastructureError("HISTORY_LIST_FAILED", "Failed to list history", err)
	}

	items := make([]dto.NumberLogDTO, 0, len(entries))
	for _, entry := range entries {
		items = append(items, ToNumberLogDTO(entry))
	}

	totalPages := 1
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &dto.ListHistoryResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (f *HistoryFlowImpl) GetEntry(ctx context.Context, id string) (*dto.NumberLogDTO, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNumberLogNotFound
	}
	entry, err := f.repo.ByID(ctx, id)
	if err != nil {
		return nil, newInfrastructureError("HISTORY_LOOKUP_FAILED", "Failed to look up history entry", err)
	}
	if entry == nil {
		return nil, ErrNumberLogNotFound
	}
	out := ToNumberLogDTO(entry)
	return &out, nil
}

func (f *HistoryFlowImpl) Statistics(ctx context.Context, filter dto.HistoryFilter) (*dto.HistoryStatisticsResponse, error) {
	stats, err := f.repo.Statistics(ctx, ToNumberLogFilter(filter))
	if err != nil {
		return nil, newInfrastructureError("HISTORY_STATISTICS_FAILED", "Failed to compute history statistics", err)
	}
	return &dto.HistoryStatisticsResponse{
		Total:          stats.Total,
		Generated:      stats.Generated,
		Corrected:      stats.Corrected,
		ByDocumentType: stats.ByDocumentType,
		ByActor:        stats.ByActor,
	}, nil
}

func (f *HistoryFlowImpl) ExportAll(ctx context.Context, filter dto.HistoryFilter) ([]*models.NumberLog, error) {
	limit := f.exportLimit
	entries, err := f.repo.ByFilter(ctx, ToNumberLogFilter(filter), limit, 0)
	if err != nil {
		return nil, newInfrastructureError("HISTORY_EXPORT_FAILED", "Failed to read history for export", err)
	}
	if limit > 0 && len(entries) == limit {
		f.logger.Warn("history export truncated", "limit", limit)
	}
	return entries, nil
}

func (f *HistoryFlowImpl) Export(ctx context.Context, req *dto.ExportHistoryRequest) (string, []byte, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatXLSX {
		return "", nil, ErrUnsupportedExportFormat
	}

	entries, err := f.ExportAll(ctx, req.Filter)
	if err != nil {
		return "", nil, err
	}

	var data []byte
	switch format {
	case ExportFormatXLSX:
		data, err = RenderHistoryXLSX(entries)
	default:
		data, err = RenderHistoryCSV(entries)
	}
	if err != nil {
		return "", nil, err
	}
	return ExportFilename(ToNumberLogFilter(req.Filter), f.now(), format), data, nil
}

// ExportFilename builds historico[_CODE][_YEAR]_YYYYMMDD_HHMMSS.<format>
func ExportFilename(filter models.NumberLogFilter, now time.Time, format string) string {
	parts := []string{"historico"}
	if filter.DocumentTypeCode != nil {
		parts = append(parts, *filter.DocumentTypeCode)
	}
	if filter.Year != nil {
		parts = append(parts, strconv.Itoa(*filter.Year))
	}
	parts = append(parts, utils.ToLocal(now).Format("20060102_150405"))
	return strings.Join(parts, "_") + "." + format
}

func exportRecord(entry *models.NumberLog) []string {
	action := "Gerado"
	if entry.IsCorrection() {
		action = "Corrigido"
	}
	previous := ""
	if entry.PreviousNumber != nil {
		previous = strconv.FormatInt(*entry.PreviousNumber, 10)
	}
	return []string{
		utils.ToLocal(entry.CreatedAt).Format(exportTimeLayout),
		entry.DocumentTypeCode,
		strconv.Itoa(entry.Year),
		strconv.FormatInt(entry.Number, 10),
		action,
		entry.ActorLabel(),
		previous,
		utils.Deref(entry.Notes),
	}
}

// RenderHistoryCSV writes a semicolon separated file prefixed with a UTF-8 BOM so spreadsheets detect the encoding
func RenderHistoryCSV(entries []*models.NumberLog) ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(buf)
	w.Comma = ';'
	if err := w.Write(exportHeader); err != nil {
		return nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to write CSV header", err)
	}
	for _, entry := range entries {
		if err := w.Write(exportRecord(entry)); err != nil {
			return nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to write CSV row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, NewBusinessError("CSV_WRITE_ERROR", "Failed to flush CSV", err)
	}
	return buf.Bytes(), nil
}

// RenderHistoryXLSX writes the same columns as RenderHistoryCSV to a single sheet
func RenderHistoryXLSX(entries []*models.NumberLog) ([]byte, error) {
	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	sheet := "Historico"
	if err := xl.SetSheetName(xl.GetSheetName(0), sheet); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to name sheet", err)
	}
	if err := xl.SetSheetRow(sheet, "A1", &exportHeader); err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}
	for i, entry := range entries {
		record := exportRecord(entry)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to address Excel row", err)
		}
		if err := xl.SetSheetRow(sheet, cell, &record); err != nil {
			return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	return buf.Bytes(), nil
}
