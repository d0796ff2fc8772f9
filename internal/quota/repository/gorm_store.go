package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/studyquota/internal/observability/metrics"
	"github.com/smallbiznis/studyquota/internal/quota/domain"
	"github.com/smallbiznis/studyquota/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps usage records in SQL. The bounded increment is a single
// conditional UPDATE, so the database serializes competing callers.
type GormStore struct {
	db         *gorm.DB
	genID      *snowflake.Node
	log        *zap.Logger
	metrics    *metrics.StoreMetrics
	now        func() time.Time
	retryDelay time.Duration
}

// maxIncrementAttempts bounds retries of serialization failures and busy
// sqlite locks. Every step of an increment is idempotent until the UPDATE
// succeeds, so a failed attempt never counts twice.
const maxIncrementAttempts = 3

func NewGormStore(conn *gorm.DB, genID *snowflake.Node, log *zap.Logger, storeMetrics *metrics.StoreMetrics) *GormStore {
	return &GormStore{
		db:      conn,
		genID:   genID,
		log:     log.Named("quota.store.sql"),
		metrics: storeMetrics,
		now:     func() time.Time { return time.Now().UTC() },

		retryDelay: 10 * time.Millisecond,
	}
}

type counterRow struct {
	Count int
}

func (s *GormStore) TryIncrement(ctx context.Context, req domain.TryIncrementRequest) (result domain.IncrementResult, err error) {
	if err := req.Validate(); err != nil {
		return domain.IncrementResult{}, err
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(metrics.StoreBackendSQL, metrics.StoreOpTryIncrement, time.Since(start), err)
		if err == nil {
			s.metrics.IncIncrement(metrics.StoreBackendSQL, result.Allowed)
		}
	}()

	var (
		allowed bool
		used    int
	)
	err = s.withRetry(ctx, func() error {
		now := s.now()
		windowStart := req.WindowStart.UTC()

		recordID, err := s.ensureRecord(ctx, req.UserID, req.Cadence, windowStart, now)
		if err != nil {
			return err
		}
		if err := s.ensureCounter(ctx, recordID, req.Feature, now); err != nil {
			return err
		}
		allowed, used, err = s.incrementBelow(ctx, recordID, req.Feature, req.Limit, now)
		return err
	})
	if err != nil {
		return domain.IncrementResult{}, unavailable(err)
	}

	remaining := req.Limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.IncrementResult{Allowed: allowed, Used: used, Remaining: remaining}, nil
}

// withRetry runs fn again after a serialization failure, up to
// maxIncrementAttempts times. Other errors return immediately.
func (s *GormStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxIncrementAttempts; attempt++ {
		err = fn()
		if err == nil || !db.IsSerializationErr(err) || attempt == maxIncrementAttempts {
			return err
		}
		s.log.Debug("usage increment conflicted, retrying", zap.Int("attempt", attempt), zap.Error(err))

		timer := time.NewTimer(time.Duration(attempt) * s.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func (s *GormStore) Get(ctx context.Context, userID string, cadence domain.Cadence, windowStart time.Time) (record *domain.UsageRecord, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation(metrics.StoreBackendSQL, metrics.StoreOpGet, time.Since(start), err)
	}()

	var rec domain.UsageRecord
	err = s.db.WithContext(ctx).
		Preload("Counters").
		Where("user_id = ? AND cadence = ? AND window_start = ?", userID, cadence, windowStart.UTC()).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &rec, nil
}

// ensureRecord inserts the window record unless it exists and returns its id.
// Concurrent first use converges on the row that won the unique index.
func (s *GormStore) ensureRecord(ctx context.Context, userID string, cadence domain.Cadence, windowStart, now time.Time) (snowflake.ID, error) {
	record := domain.UsageRecord{
		ID:          s.genID.Generate(),
		UserID:      userID,
		Cadence:     cadence,
		WindowStart: windowStart,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	stmt := s.db.WithContext(ctx).Omit(clause.Associations)
	if db.IsMySQL(s.db) {
		stmt = stmt.Clauses(clause.Insert{Modifier: "IGNORE"})
	} else {
		stmt = stmt.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "cadence"}, {Name: "window_start"}},
			DoNothing: true,
		})
	}

	res := stmt.Create(&record)
	if res.Error != nil && !db.IsDuplicateKeyErr(res.Error) {
		return 0, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return record.ID, nil
	}

	var existing domain.UsageRecord
	err := s.db.WithContext(ctx).
		Select("id").
		Where("user_id = ? AND cadence = ? AND window_start = ?", userID, cadence, windowStart).
		Take(&existing).Error
	if err != nil {
		return 0, fmt.Errorf("resolve usage record: %w", err)
	}
	return existing.ID, nil
}

func (s *GormStore) ensureCounter(ctx context.Context, recordID snowflake.ID, feature string, now time.Time) error {
	query := `INSERT INTO usage_counters (record_id, feature, count, updated_at) VALUES (?, ?, 0, ?)
		ON CONFLICT (record_id, feature) DO NOTHING`
	if db.IsMySQL(s.db) {
		query = `INSERT IGNORE INTO usage_counters (record_id, feature, count, updated_at) VALUES (?, ?, 0, ?)`
	}
	return s.db.WithContext(ctx).Exec(query, recordID, feature, now).Error
}

// incrementBelow adds one to the counter only while it is below limit.
func (s *GormStore) incrementBelow(ctx context.Context, recordID snowflake.ID, feature string, limit int, now time.Time) (bool, int, error) {
	const update = `UPDATE usage_counters SET count = count + 1, updated_at = ?
		WHERE record_id = ? AND feature = ? AND count < ?`

	if db.IsMySQL(s.db) {
		res := s.db.WithContext(ctx).Exec(update, now, recordID, feature, limit)
		if res.Error != nil {
			return false, 0, res.Error
		}
		// MySQL has no RETURNING. The re-read may include a later caller's
		// increment, so used can overstate this call's slot; the bound holds.
		used, err := s.readCount(ctx, recordID, feature)
		return res.RowsAffected == 1, used, err
	}

	var rows []counterRow
	if err := s.db.WithContext(ctx).Raw(update+` RETURNING count`, now, recordID, feature, limit).Scan(&rows).Error; err != nil {
		return false, 0, err
	}
	if len(rows) == 1 {
		return true, rows[0].Count, nil
	}

	used, err := s.readCount(ctx, recordID, feature)
	return false, used, err
}

func (s *GormStore) readCount(ctx context.Context, recordID snowflake.ID, feature string) (int, error) {
	var rows []counterRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT count FROM usage_counters WHERE record_id = ? AND feature = ?`, recordID, feature).
		Scan(&rows).Error
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

func unavailable(err error) error {
	if err == nil || errors.Is(err, domain.ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

var _ domain.Store = (*GormStore)(nil)
