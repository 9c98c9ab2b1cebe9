package resolution

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/itdd/backend/internal/domain/resolution"
	"github.com/itdd/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// maxReconcileRounds bounds a pass that keeps losing merges to concurrent writers
	maxReconcileRounds = 64
	scoreEpsilon       = 1e-9
)

// ReconciliationConfig tunes the reconciliation pass
type ReconciliationConfig struct {
	Policy  resolution.MatchPolicy
	LockTTL time.Duration
	Retry   RetryPolicy
}

// MergeOutcome is one merge applied by a pass
type MergeOutcome struct {
	SurvivorID string  `json:"survivor_id"`
	LoserID    string  `json:"loser_id"`
	Score      float64 `json:"score"`
	Round      int     `json:"round"`
}

// ConflictOutcome is one pair sent to manual review
type ConflictOutcome struct {
	shared.MergeConflict
	Queued bool `json:"queued"`
}

// ReconciliationReport summarises one pass over a scope
type ReconciliationReport struct {
	Scope         resolution.ScopeKey `json:"-"`
	ScopeName     string              `json:"scope"`
	Rounds        int                 `json:"rounds"`
	RecordsBefore int                 `json:"records_before"`
	RecordsAfter  int                 `json:"records_after"`
	Merges        []MergeOutcome      `json:"merges"`
	Conflicts     []ConflictOutcome   `json:"conflicts"`
	StaleWrites   int                 `json:"stale_writes"`
	Superseded    int64               `json:"superseded"`
	Duration      time.Duration       `json:"duration"`
}

// ReconciliationService finds near-duplicates within one scope and merges them
type ReconciliationService struct {
	records   resolution.InventoryRecordRepository
	reviews   resolution.MergeReviewRepository
	locker    shared.Locker
	cfg       ReconciliationConfig
	publisher shared.EventPublisher
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	records resolution.InventoryRecordRepository,
	reviews resolution.MergeReviewRepository,
	locker shared.Locker,
	cfg ReconciliationConfig,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Policy.Threshold == 0 {
		cfg.Policy = resolution.DefaultMatchPolicy()
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &ReconciliationService{
		records:   records,
		reviews:   reviews,
		locker:    locker,
		cfg:       cfg,
		publisher: shared.NoopPublisher{},
		metrics:   NoopMetrics{},
		logger:    logger,
		now:       time.Now,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ReconciliationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// SetMetrics sets the metrics sink
func (s *ReconciliationService) SetMetrics(m Metrics) {
	s.metrics = m
}

// WithClock overrides the clock used for merge timestamps
func (s *ReconciliationService) WithClock(now func() time.Time) *ReconciliationService {
	s.now = now
	return s
}

// LockKey returns the scope lock name for a reconciliation pass
func LockKey(key resolution.ScopeKey) string {
	return "itdd:reconcile:" + key.String()
}

// Reconcile runs one pass over the active records of a scope. Rounds repeat over the
// reduced set until a round merges nothing; conflicts found in that last round are
// queued for review. A concurrent pass on the same scope fails fast.
func (s *ReconciliationService) Reconcile(ctx context.Context, key resolution.ScopeKey) (*ReconciliationReport, error) {
	if !key.Scope.IsValid() {
		return nil, shared.NewValidationError("ownership_scope", `must be "target" or "acquirer"`)
	}
	lock, ok, err := s.locker.TryAcquire(ctx, LockKey(key), s.cfg.LockTTL)
	if err != nil {
		return nil, &shared.StorageError{Op: "acquire_scope_lock", Err: err, Transient: true}
	}
	if !ok {
		return nil, shared.ErrReconciliationInProgress
	}
	defer func() {
		if rerr := lock.Release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("Failed to release scope lock", zap.String("scope", key.String()), zap.Error(rerr))
		}
	}()

	started := time.Now()
	report := &ReconciliationReport{Scope: key, ScopeName: key.String()}

	rejected, err := s.reviews.RejectedPairs(ctx, key.Scope, key.DealID)
	if err != nil {
		return nil, err
	}

	for round := 1; round <= maxReconcileRounds; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		active, err := s.records.FindByScope(ctx, key.Scope, key.DealID, resolution.StatusActive)
		if err != nil {
			return nil, err
		}
		if round == 1 {
			report.RecordsBefore = len(active)
			swept, err := s.sweepReviews(ctx, key, active)
			if err != nil {
				return nil, err
			}
			report.Superseded += swept
		}
		report.Rounds = round

		candidates, conflicts := s.scoreRound(active, rejected)
		merged, stale, err := s.applyMerges(ctx, candidates, round, report)
		if err != nil {
			return nil, err
		}
		report.StaleWrites += stale
		report.RecordsAfter = len(active) - merged

		if merged == 0 && stale == 0 {
			if err := s.queueConflicts(ctx, conflicts, active, report); err != nil {
				return nil, err
			}
			break
		}
	}

	report.Duration = time.Since(started)
	s.metrics.ReconciliationFinished(report)
	s.logger.Info("Reconciliation pass complete",
		zap.String("scope", key.String()),
		zap.Int("rounds", report.Rounds),
		zap.Int("merges", len(report.Merges)),
		zap.Int("conflicts", len(report.Conflicts)),
		zap.Int64("superseded", report.Superseded),
		zap.Int("records_before", report.RecordsBefore),
		zap.Int("records_after", report.RecordsAfter))
	return report, nil
}

type candidate struct {
	a, b  *resolution.InventoryRecord
	score resolution.PairScore
}

func (c candidate) pair() resolution.PairKey {
	return resolution.NewPairKey(c.a.ID, c.b.ID)
}

// scoreRound compares every same-type pair and splits them into merge candidates,
// ordered by descending score, and conflicts for review
func (s *ReconciliationService) scoreRound(active []*resolution.InventoryRecord, rejected map[resolution.PairKey]struct{}) ([]candidate, []shared.MergeConflict) {
	byType := map[resolution.RecordType][]*resolution.InventoryRecord{}
	for _, r := range active {
		byType[r.Type] = append(byType[r.Type], r)
	}

	var (
		candidates []candidate
		conflicts  []shared.MergeConflict
	)
	for _, t := range resolution.AllRecordTypes {
		group := byType[t]
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if _, skip := rejected[resolution.NewPairKey(a.ID, b.ID)]; skip {
					continue
				}
				score := s.cfg.Policy.Score(a, b)
				decision, reason := s.cfg.Policy.Decide(score)
				switch decision {
				case resolution.DecisionMerge:
					candidates = append(candidates, candidate{a: a, b: b, score: score})
				case resolution.DecisionReview:
					conflicts = append(conflicts, conflictOf(a, b, score, reason))
				}
			}
		}
	}

	candidates, ties := splitTies(candidates)
	conflicts = append(conflicts, ties...)

	sort.SliceStable(candidates, func(i, j int) bool {
		if math.Abs(candidates[i].score.Blended-candidates[j].score.Blended) > scoreEpsilon {
			return candidates[i].score.Blended > candidates[j].score.Blended
		}
		pi, pj := candidates[i].pair(), candidates[j].pair()
		if pi.A != pj.A {
			return pi.A < pj.A
		}
		return pi.B < pj.B
	})
	return candidates, conflicts
}

// splitTies removes candidates of records whose best score is shared by two partners
func splitTies(candidates []candidate) ([]candidate, []shared.MergeConflict) {
	best := map[string]float64{}
	partners := map[string]int{}
	consider := func(id string, score float64) {
		b, seen := best[id]
		switch {
		case !seen || score > b+scoreEpsilon:
			best[id] = score
			partners[id] = 1
		case math.Abs(score-b) <= scoreEpsilon:
			partners[id]++
		}
	}
	for _, c := range candidates {
		consider(c.a.ID, c.score.Blended)
		consider(c.b.ID, c.score.Blended)
	}

	tiedAtBest := func(id string, score float64) bool {
		return partners[id] > 1 && math.Abs(best[id]-score) <= scoreEpsilon
	}

	kept := make([]candidate, 0, len(candidates))
	var ties []shared.MergeConflict
	for _, c := range candidates {
		if tiedAtBest(c.a.ID, c.score.Blended) || tiedAtBest(c.b.ID, c.score.Blended) {
			ties = append(ties, conflictOf(c.a, c.b, c.score, shared.MergeConflictAmbiguousTie))
			continue
		}
		kept = append(kept, c)
	}
	return kept, ties
}

func conflictOf(a, b *resolution.InventoryRecord, score resolution.PairScore, reason shared.MergeConflictReason) shared.MergeConflict {
	key := resolution.NewPairKey(a.ID, b.ID)
	vendor := score.Vendor
	if !score.HasVendor {
		vendor = 0
	}
	return shared.MergeConflict{
		RecordA:     key.A,
		RecordB:     key.B,
		Score:       score.Blended,
		VendorScore: vendor,
		Reason:      reason,
	}
}

// applyMerges merges candidates greedily; a record takes part in at most one merge per round
func (s *ReconciliationService) applyMerges(ctx context.Context, candidates []candidate, round int, report *ReconciliationReport) (merged, stale int, err error) {
	used := map[string]struct{}{}
	for _, c := range candidates {
		if _, ok := used[c.a.ID]; ok {
			continue
		}
		if _, ok := used[c.b.ID]; ok {
			continue
		}
		used[c.a.ID], used[c.b.ID] = struct{}{}, struct{}{}

		survivor, loser := resolution.SurvivorOf(c.a, c.b)
		if err := survivor.Merge(loser, resolution.MergeByReconciliation, s.now()); err != nil {
			return merged, stale, err
		}
		lost := false
		_, err := s.cfg.Retry.run(ctx, nil, nil, func(ctx context.Context) error {
			err := s.records.MergeRecords(ctx, survivor, loser)
			if errors.Is(err, shared.ErrOptimisticLock) {
				lost = true
				return nil
			}
			return err
		})
		if err != nil {
			return merged, stale, err
		}
		if lost {
			// records changed underneath; the next round reloads them
			s.logger.Debug("Merge lost to a concurrent write",
				zap.String("survivor", survivor.ID), zap.String("loser", loser.ID))
			stale++
			continue
		}

		s.publish(ctx, survivor)
		report.Superseded += supersedeReviews(ctx, s.reviews, report.Scope, []string{loser.ID}, s.now(), s.logger)
		merged++
		report.Merges = append(report.Merges, MergeOutcome{
			SurvivorID: survivor.ID,
			LoserID:    loser.ID,
			Score:      c.score.Blended,
			Round:      round,
		})
	}
	return merged, stale, nil
}

// sweepReviews closes pending items that name a record outside the active set,
// left behind when a merge or removal committed but superseding its items did not
func (s *ReconciliationService) sweepReviews(ctx context.Context, key resolution.ScopeKey, active []*resolution.InventoryRecord) (int64, error) {
	ids, err := s.reviews.PendingRecordIDs(ctx, key.Scope, key.DealID)
	if err != nil {
		return 0, err
	}
	live := make(map[string]struct{}, len(active))
	for _, r := range active {
		live[r.ID] = struct{}{}
	}
	var gone []string
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			gone = append(gone, id)
		}
	}
	if len(gone) == 0 {
		return 0, nil
	}
	return s.reviews.Supersede(ctx, key.Scope, key.DealID, gone, s.now())
}

func (s *ReconciliationService) queueConflicts(ctx context.Context, conflicts []shared.MergeConflict, active []*resolution.InventoryRecord, report *ReconciliationReport) error {
	byID := make(map[string]*resolution.InventoryRecord, len(active))
	for _, r := range active {
		byID[r.ID] = r
	}
	for i := range conflicts {
		c := conflicts[i]
		review := resolution.NewMergeReview(&c, byID[c.RecordA], s.now())
		queued, err := s.reviews.Enqueue(ctx, review)
		if err != nil {
			return err
		}
		if queued {
			s.publish(ctx, review)
		}
		report.Conflicts = append(report.Conflicts, ConflictOutcome{MergeConflict: c, Queued: queued})
	}
	return nil
}

func (s *ReconciliationService) publish(ctx context.Context, agg shared.AggregateRoot) {
	publishPending(ctx, s.publisher, agg, s.logger)
}
