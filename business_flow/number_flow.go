package businessflow

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/amirphl/docnum/app/dto"
	"github.com/amirphl/docnum/models"
	"github.com/amirphl/docnum/repository"
	"github.com/amirphl/docnum/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// DefaultMaxAttempts bounds the compare-and-swap loop of one allocation
const DefaultMaxAttempts = 5

// NumberFlow hands out document numbers and lets administrators correct counters.
// Allocation serializes only on the store's conditional write; nothing is locked in process.
type NumberFlow interface {
	Allocate(ctx context.Context, req *dto.GenerateNumberRequest, actor Actor, metadata *ClientMetadata) (*dto.GenerateNumberResponse, error)
	Correct(ctx context.Context, req *dto.CorrectNumberRequest, actor Actor, metadata *ClientMetadata) (*dto.CorrectNumberResponse, error)
	ListSequences(ctx context.Context) (*dto.ListSequencesResponse, error)
}

// NumberFlowOptions tunes the allocation loop. Zero values mean the defaults.
type NumberFlowOptions struct {
	MaxAttempts int
	// RetryBackoff enables exponential waits between conflicting attempts when positive
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	MinYear         int
	MaxYear         int
	Now             func() time.Time
	Logger          hclog.Logger
	Audit           AuditSink
}

type NumberFlowImpl struct {
	store           repository.SequenceStore
	registry        DocumentTypeRegistry
	audit           AuditSink
	logger          hclog.Logger
	now             func() time.Time
	maxAttempts     int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	minYear         int
	maxYear         int
}

func NewNumberFlow(store repository.SequenceStore, registry DocumentTypeRegistry, opts NumberFlowOptions) NumberFlow {
	f := &NumberFlowImpl{
		store:           store,
		registry:        registry,
		audit:           opts.Audit,
		logger:          opts.Logger,
		now:             opts.Now,
		maxAttempts:     opts.MaxAttempts,
		retryBackoff:    opts.RetryBackoff,
		retryBackoffMax: opts.RetryBackoffMax,
		minYear:         opts.MinYear,
		maxYear:         opts.MaxYear,
	}
	if f.audit == nil {
		f.audit = NewNopAuditSink()
	}
	if f.logger == nil {
		f.logger = hclog.NewNullLogger()
	}
	f.logger = f.logger.Named("numbers")
	if f.now == nil {
		f.now = utils.UTCNow
	}
	if f.maxAttempts <= 0 {
		f.maxAttempts = DefaultMaxAttempts
	}
	if f.minYear == 0 {
		f.minYear = utils.MinDocumentYear
	}
	if f.maxYear == 0 {
		f.maxYear = utils.MaxDocumentYear
	}
	return f
}

// Allocate returns the next number of the (type, year) scope
func (f *NumberFlowImpl) Allocate(ctx context.Context, req *dto.GenerateNumberRequest, actor Actor, metadata *ClientMetadata) (*dto.GenerateNumberResponse, error) {
	if actor.ID == "" {
		return nil, ErrActorRequired
	}

	documentType, err := f.registry.Resolve(ctx, req.DocumentTypeCode)
	if err != nil {
		return nil, err
	}

	year := utils.ToLocal(f.now()).Year()
	if req.Year != nil {
		year = *req.Year
	}
	if err := f.validateYear(year); err != nil {
		return nil, err
	}

	counter, attempts, err := f.increment(ctx, documentType.Code, year)
	sequenceAllocationAttempts.Observe(float64(attempts))
	if err != nil {
		if IsGenerationExhausted(err) {
			sequenceAllocationsTotal.WithLabelValues(allocationResultExhausted).Inc()
			f.logger.Warn("number generation exhausted", "scope", models.ScopeKey(documentType.Code, year), "attempts", attempts)
		} else {
			sequenceAllocationsTotal.WithLabelValues(allocationResultError).Inc()
			f.logger.Error("number generation failed", "scope", models.ScopeKey(documentType.Code, year), "error", err)
		}
		return nil, err
	}
	sequenceAllocationsTotal.WithLabelValues(allocationResultSuccess).Inc()

	now := f.now()
	entry := models.NewGeneratedLog(counter, actor.ID, actor.Name, now)
	f.appendHistory(ctx, entry)
	f.recordAudit(ctx, AuditEvent{
		Action:           models.AuditActionNumberGenerated,
		ScopeKey:         counter.ScopeKey,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		Number:           counter.CurrentNumber,
		Actor:            actor,
		Metadata:         metadata,
		Extra:            map[string]string{"attempts": strconv.Itoa(attempts)},
		OccurredAt:       now,
	})

	f.logger.Debug("number generated", "scope", counter.ScopeKey, "number", counter.CurrentNumber, "actor", actor.ID)

	return &dto.GenerateNumberResponse{
		Number:           counter.CurrentNumber,
		DocumentTypeCode: counter.DocumentTypeCode,
		DocumentTypeName: documentType.Name,
		Year:             counter.Year,
		Formatted:        counter.Formatted(),
	}, nil
}

// increment runs the compare-and-swap loop and returns the updated counter and the attempts used
func (f *NumberFlowImpl) increment(ctx context.Context, code string, year int) (*models.SequenceCounter, int, error) {
	var wait backoff.BackOff
	if f.retryBackoff > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = f.retryBackoff
		if f.retryBackoffMax > 0 {
			exp.MaxInterval = f.retryBackoffMax
		}
		exp.MaxElapsedTime = 0
		exp.Reset()
		wait = exp
	}

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		counter, _, err := f.store.GetOrCreate(ctx, code, year)
		if err != nil {
			return nil, attempt, newInfrastructureError("SEQUENCE_READ_FAILED", "Failed to read sequence counter", err)
		}

		expected := counter.Version
		counter.CurrentNumber++

		err = f.store.ConditionalUpdate(ctx, counter, expected)
		if err == nil {
			return counter, attempt, nil
		}
		switch {
		case errors.Is(err, repository.ErrVersionConflict):
			sequenceVersionConflictsTotal.Inc()
			f.logger.Debug("version conflict, retrying", "scope", counter.ScopeKey, "attempt", attempt)
		case errors.Is(err, repository.ErrCounterNotFound):
			return nil, attempt, NewBusinessError("SEQUENCE_COUNTER_MISSING", "Sequence counter disappeared during update", err)
		default:
			return nil, attempt, newInfrastructureError("SEQUENCE_UPDATE_FAILED", "Failed to update sequence counter", err)
		}

		if wait != nil && attempt < f.maxAttempts {
			if err := sleep(ctx, wait.NextBackOff()); err != nil {
				return nil, attempt, newInfrastructureError("SEQUENCE_RETRY_CANCELLED", "Number generation cancelled", err)
			}
		}
	}

	return nil, f.maxAttempts, NewBusinessError("GENERATION_EXHAUSTED", "Could not generate a number, please retry", ErrGenerationExhausted)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d == backoff.Stop || d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Correct overwrites a scope's counter. It is not serialized against concurrent allocations.
func (f *NumberFlowImpl) Correct(ctx context.Context, req *dto.CorrectNumberRequest, actor Actor, metadata *ClientMetadata) (*dto.CorrectNumberResponse, error) {
	if actor.ID == "" {
		return nil, ErrActorRequired
	}
	if req.NewNumber == nil || *req.NewNumber < 0 {
		return nil, ErrInvalidNewNumber
	}
	if err := f.validateYear(req.Year); err != nil {
		return nil, err
	}

	// Inactive types may still be corrected.
	documentType, err := f.registry.Lookup(ctx, req.DocumentTypeCode)
	if err != nil {
		return nil, err
	}

	counter, _, err := f.store.GetOrCreate(ctx, documentType.Code, req.Year)
	if err != nil {
		return nil, newInfrastructureError("SEQUENCE_READ_FAILED", "Failed to read sequence counter", err)
	}

	previous := counter.CurrentNumber
	counter.CurrentNumber = *req.NewNumber
	if err := f.store.Overwrite(ctx, counter); err != nil {
		if errors.Is(err, repository.ErrCounterNotFound) {
			return nil, NewBusinessError("SEQUENCE_COUNTER_MISSING", "Sequence counter disappeared during correction", err)
		}
		return nil, newInfrastructureError("SEQUENCE_CORRECT_FAILED", "Failed to correct sequence counter", err)
	}
	sequenceCorrectionsTotal.Inc()

	now := f.now()
	entry := models.NewCorrectedLog(counter, previous, req.Notes, actor.ID, actor.Name, now)
	f.appendHistory(ctx, entry)
	f.recordAudit(ctx, AuditEvent{
		Action:           models.AuditActionNumberCorrected,
		ScopeKey:         counter.ScopeKey,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		Number:           counter.CurrentNumber,
		PreviousNumber:   &previous,
		Notes:            &req.Notes,
		Actor:            actor,
		Metadata:         metadata,
		OccurredAt:       now,
	})

	f.logger.Info("sequence corrected", "scope", counter.ScopeKey, "previous", previous, "new", counter.CurrentNumber, "actor", actor.ID)

	return &dto.CorrectNumberResponse{
		PreviousNumber:   previous,
		NewNumber:        counter.CurrentNumber,
		DocumentTypeCode: counter.DocumentTypeCode,
		Year:             counter.Year,
		Formatted:        counter.Formatted(),
		Notes:            req.Notes,
	}, nil
}

// ListSequences returns every counter ordered by scope key
func (f *NumberFlowImpl) ListSequences(ctx context.Context) (*dto.ListSequencesResponse, error) {
	counters, err := f.store.List(ctx)
	if err != nil {
		return nil, newInfrastructureError("SEQUENCE_LIST_FAILED", "Failed to list sequences", err)
	}
	items := make([]dto.SequenceCounterDTO, 0, len(counters))
	for _, counter := range counters {
		items = append(items, ToSequenceCounterDTO(counter))
	}
	return &dto.ListSequencesResponse{Sequences: items}, nil
}

func (f *NumberFlowImpl) validateYear(year int) error {
	if year < f.minYear || year > f.maxYear {
		return NewBusinessErrorf("INVALID_YEAR", "year must be between %d and %d", ErrInvalidYear, f.minYear, f.maxYear)
	}
	return nil
}

// appendHistory writes the entry. The counter is already committed, so failures are only logged.
func (f *NumberFlowImpl) appendHistory(ctx context.Context, entry *models.NumberLog) {
	if err := f.store.Append(ctx, entry); err != nil {
		numberLogAppendFailuresTotal.Inc()
		f.logger.Error("failed to append history entry",
			"scope", entry.ScopeKey,
			"number", entry.Number,
			"action", entry.Action,
			"error", err,
		)
	}
}

func (f *NumberFlowImpl) recordAudit(ctx context.Context, event AuditEvent) {
	if err := f.audit.Record(ctx, event); err != nil {
		auditRecordFailuresTotal.Inc()
		f.logger.Warn("failed to record audit event", "action", event.Action, "scope", event.ScopeKey, "error", err)
	}
}
