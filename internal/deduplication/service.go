package deduplication

import (
	"context"
	"fmt"
	"strings"
	"time"

	"veritas/internal/config"
	"veritas/internal/constants"
	"veritas/internal/logger"
	"veritas/pkg/metrics"
	"veritas/pkg/tracing"
)

// Service admits each event id at most once within the retention window.
type Service struct {
	repo   Repository
	hasher *Hasher
	cfg    config.DeduplicationConfig
	logger logger.Logger
	now    func() time.Time
}

func NewService(repo Repository, cfg config.DeduplicationConfig, log logger.Logger) *Service {
	if cfg.Retention <= 0 {
		cfg.Retention = constants.DefaultDedupRetention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = constants.DefaultDedupSweepInterval
	}

	return &Service{
		repo:   repo,
		hasher: NewHasher(cfg.HashAlgorithm),
		cfg:    cfg,
		logger: log,
		now:    time.Now,
	}
}

// Admit returns Admitted for exactly one caller per live event id and Duplicate
// for every other. A store failure is resolved by on_store_error: allow admits
// the event, deny returns an error wrapping ErrStoreUnavailable.
func (s *Service) Admit(ctx context.Context, eventID string) (Admission, error) {
	if eventID == "" {
		return 0, ErrEmptyEventID
	}

	ctx, span := tracing.StartStage(ctx, "dedup_check", eventID)

	start := time.Now()
	created, err := s.repo.CreateIfAbsent(ctx, s.hasher.Key(eventID), s.now(), s.cfg.Retention)
	metrics.ObserveDedupStore(s.repo.Name(), "create", time.Since(start))

	if err != nil {
		admission, policyErr := s.handleStoreError(ctx, err, eventID)
		tracing.EndStage(span, policyErr)
		return admission, policyErr
	}
	tracing.EndStage(span, nil)

	if !created {
		metrics.DedupAdmissionsTotal.WithLabelValues(Duplicate.String()).Inc()
		return Duplicate, nil
	}

	metrics.DedupAdmissionsTotal.WithLabelValues(Admitted.String()).Inc()
	return Admitted, nil
}

func (s *Service) handleStoreError(ctx context.Context, err error, eventID string) (Admission, error) {
	metrics.DedupAdmissionsTotal.WithLabelValues("error").Inc()

	if strings.EqualFold(s.cfg.OnStoreError, constants.FallbackAllow) {
		metrics.FallbackUsageTotal.WithLabelValues("deduplication", "allow_on_error", s.repo.Name()).Inc()
		s.logger.WarnwCtx(ctx, "Dedup store error, admitting event (fallback: allow)",
			"store", s.repo.Name(),
			"error", err,
		)
		return Admitted, nil
	}

	metrics.FallbackUsageTotal.WithLabelValues("deduplication", "deny_on_error", s.repo.Name()).Inc()
	return 0, fmt.Errorf("%w: admit %s via %s: %v", ErrStoreUnavailable, eventID, s.repo.Name(), err)
}

// Complete marks the event as fully handled. It is idempotent.
func (s *Service) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return ErrEmptyEventID
	}

	start := time.Now()
	err := s.repo.MarkCompleted(ctx, s.hasher.Key(eventID))
	metrics.ObserveDedupStore(s.repo.Name(), "complete", time.Since(start))
	if err != nil {
		return fmt.Errorf("complete %s via %s: %w", eventID, s.repo.Name(), err)
	}
	return nil
}

// Sweep evicts records older than the retention window once.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	removed, err := s.repo.Sweep(ctx, s.now().Add(-s.cfg.Retention))
	metrics.ObserveDedupStore(s.repo.Name(), "sweep", time.Since(start))
	if err != nil {
		return 0, err
	}
	metrics.DedupSweptTotal.Add(float64(removed))
	return removed, nil
}

// RunSweeper calls Sweep every sweep_interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.WarnwCtx(ctx, "Dedup sweep failed",
					"store", s.repo.Name(),
					"error", err,
				)
				continue
			}
			if removed > 0 {
				s.logger.DebugwCtx(ctx, "Dedup sweep evicted expired records",
					"store", s.repo.Name(),
					"removed", removed,
				)
			}
		}
	}
}

func (s *Service) StoreName() string {
	return s.repo.Name()
}
