package businessflow

import (
	"context"
	"strings"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
)

// AuditFlow lets administrators browse the audit trail written by RepositoryAuditSink
type AuditFlow interface {
	List(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error)
	Get(ctx context.Context, id uint) (*dto.AuditLogDTO, error)
}

type AuditFlowImpl struct {
	repo repository.AuditLogRepository
}

func NewAuditFlow(repo repository.AuditLogRepository) AuditFlow {
	return &AuditFlowImpl{repo: repo}
}

func (f *AuditFlowImpl) List(ctx context.Context, req *dto.ListAuditLogsRequest) (*dto.ListAuditLogsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = DefaultHistoryPageSize
	}
	if pageSize > MaxHistoryPageSize {
		pageSize = MaxHistoryPageSize
	}

	filter := models.AuditLogFilter{
		Action:     trimmed(req.Action),
		ActorID:    trimmed(req.ActorID),
		TargetType: trimmed(req.TargetType),
		TargetID:   trimmed(req.TargetID),
	}
	if filter.TargetID != nil {
		// scope keys are stored upper-case
		filter.TargetID = utils.ToPtr(strings.ToUpper(*filter.TargetID))
	}

	total, err := f.repo.Count(ctx, filter)
	if err != nil {
		return nil, newInfrastructureError("AUDIT_COUNT_FAILED", "Failed to count audit logs", err)
	}
	logs, err := f.repo.ByFilter(ctx, filter, "", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, newInfrastructureError("AUDIT_LIST_FAILED", "Failed to list audit logs", err)
	}

	items := make([]dto.AuditLogDTO, 0, len(logs))
	for _, entry := range logs {
		items = append(items, ToAuditLogDTO(entry))
	}

	totalPages := 1
	if total > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return &dto.ListAuditLogsResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

func (f *AuditFlowImpl) Get(ctx context.Context, id uint) (*dto.AuditLogDTO, error) {
	if id == 0 {
		return nil, ErrAuditLogNotFound
	}
	entry, err := f.repo.ByID(ctx, id)
	if err != nil {
		return nil, newInfrastructureError("AUDIT_LOOKUP_FAILED", "Failed to look up audit log", err)
	}
	if entry == nil {
		return nil, ErrAuditLogNotFound
	}
	out := ToAuditLogDTO(entry)
	return &out, nil
}

// ToAuditLogDTO converts an audit event for API responses
func ToAuditLogDTO(entry *models.AuditLog) dto.AuditLogDTO {
	return dto.AuditLogDTO{
		ID:          entry.ID,
		Action:      entry.Action,
		ActorID:     entry.ActorID,
		ActorName:   entry.ActorName,
		TargetType:  entry.TargetType,
		TargetID:    entry.TargetID,
		Description: entry.Description,
		IPAddress:   entry.IPAddress,
		RequestID:   entry.RequestID,
		Metadata:    entry.Metadata,
		Success:     !entry.IsFailed(),
		CreatedAt:   utils.ToLocal(entry.CreatedAt).Format(time.RFC3339),
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
