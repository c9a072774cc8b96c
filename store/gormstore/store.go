// Package gormstore implements store.Store on gorm for Postgres and MySQL.
//
// Every compound write runs in one database transaction. Posting and day
// writes hold the month's period row in shared mode and the day row for
// update; closure holds the period row for update while it re-checks the
// month. The unique (outlet_id, idempotency_key) index is the last line of
// idempotency.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/store"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Row lock strengths.
const (
	lockShare  = "SHARE"
	lockUpdate = "UPDATE"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using gorm.
type Store struct {
	db *gorm.DB
}

// New wraps an open gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// OpenPostgres connects to Postgres through pgx.
func OpenPostgres(dsn string) (*Store, error) {
	return open(postgres.Open(dsn))
}

// OpenMySQL connects to MySQL. The DSN must carry parseTime=true.
func OpenMySQL(dsn string) (*Store, error) {
	return open(gormmysql.Open(dsn))
}

func open(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, translate("open", err)
	}
	if err := db.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("daybook/gorm: install tracing plugin: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB { return s.db }

// Migrate creates or updates every daybook table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("daybook/gorm: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return translate("ping", err)
	}
	return translate("ping", sqlDB.PingContext(ctx))
}

// Close closes the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// unit runs fn in one database transaction.
func (s *Store) unit(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	return translate(op, s.db.WithContext(ctx).Transaction(fn))
}

// ==================== Day Store ====================

func (s *Store) CreateDay(ctx context.Context, r *day.Record) error {
	return translate("create day", s.db.WithContext(ctx).Create(toDayRow(r)).Error)
}

func (s *Store) GetDay(ctx context.Context, dayID id.DayID) (*day.Record, error) {
	var m dayRow
	err := s.db.WithContext(ctx).Where("id = ?", dayID.String()).Take(&m).Error
	if err != nil {
		return nil, notFound("get day", err, daybook.ErrDayNotFound)
	}
	return fromDayRow(&m)
}

func (s *Store) GetDayByDate(ctx context.Context, outletID string, date time.Time) (*day.Record, error) {
	var m dayRow
	err := s.db.WithContext(ctx).
		Where("outlet_id = ? AND business_date = ?", outletID, types.DateOf(date)).
		Take(&m).Error
	if err != nil {
		return nil, notFound("get day by date", err, daybook.ErrDayNotFound)
	}
	return fromDayRow(&m)
}

func (s *Store) ListDays(ctx context.Context, opts day.ListOpts) ([]*day.Record, error) {
	q := s.db.WithContext(ctx).Model(&dayRow{})
	if opts.OutletID != "" {
		q = q.Where("outlet_id = ?", opts.OutletID)
	}
	if !opts.From.IsZero() {
		q = q.Where("business_date >= ?", types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		q = q.Where("business_date <= ?", types.DateOf(opts.To))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Unsynced {
		q = q.Where("status = ? AND synced_at IS NULL", string(day.StatusLocked))
	}

	var rows []dayRow
	err := paginate(q.Order("business_date ASC, outlet_id ASC"), opts.Limit, opts.Offset).Find(&rows).Error
	if err != nil {
		return nil, translate("list days", err)
	}
	return mapRows(rows, fromDayRow)
}

func (s *Store) LastLockedDay(ctx context.Context, outletID string, before time.Time) (*day.Record, error) {
	var m dayRow
	err := s.db.WithContext(ctx).
		Where("outlet_id = ? AND status = ? AND business_date < ?", outletID, string(day.StatusLocked), types.DateOf(before)).
		Order("business_date DESC").
		Take(&m).Error
	if err != nil {
		return nil, notFound("last locked day", err, daybook.ErrDayNotFound)
	}
	return fromDayRow(&m)
}

func (s *Store) UpdateDay(ctx context.Context, r *day.Record) error {
	return s.unit(ctx, "update day", func(tx *gorm.DB) error {
		stored, p, err := holdDay(tx, r.ID.String(), r.UpdatedAt)
		if err != nil {
			return err
		}
		switch {
		case p.Status == string(period.StatusClosed):
			return daybook.ErrPeriodClosed
		case stored.Status == string(day.StatusLocked):
			return daybook.ErrDayLocked
		case stored.Version != r.Version-1:
			return daybook.ErrConcurrentUpdate
		}
		return saveDay(tx, toDayRow(r))
	})
}

func (s *Store) TransitionDay(ctx context.Context, r *day.Record, from day.Status, entry *audit.Entry) error {
	return s.unit(ctx, "transition day", func(tx *gorm.DB) error {
		stored, p, err := holdDay(tx, r.ID.String(), r.UpdatedAt)
		if err != nil {
			return err
		}
		switch {
		case p.Status == string(period.StatusClosed):
			return daybook.ErrPeriodClosed
		case stored.Status != string(from), stored.Version != r.Version-1:
			return daybook.ErrConcurrentUpdate
		}
		if err := saveDay(tx, toDayRow(r)); err != nil {
			return err
		}
		return appendAudit(tx, entry)
	})
}

func (s *Store) MarkSynced(ctx context.Context, dayID id.DayID, at time.Time) error {
	return s.unit(ctx, "mark synced", func(tx *gorm.DB) error {
		m, err := lockDay(tx, dayID.String())
		if err != nil {
			return err
		}
		if m.Status != string(day.StatusLocked) {
			return daybook.ErrDayNotLocked
		}
		if m.SyncedAt != nil {
			return nil
		}
		return tx.Model(&dayRow{}).Where("id = ?", m.ID).Update("synced_at", at.UTC()).Error
	})
}

// holdDay locks the day's period row in shared mode and then the day row
// for update, in that order.
func holdDay(tx *gorm.DB, dayID string, now time.Time) (*dayRow, *periodRow, error) {
	var peek dayRow
	if err := tx.Select("business_date").Where("id = ?", dayID).Take(&peek).Error; err != nil {
		return nil, nil, notFound("hold day", err, daybook.ErrDayNotFound)
	}
	p, err := holdPeriod(tx, period.MonthOf(types.DateOf(peek.Date)), now, lockShare)
	if err != nil {
		return nil, nil, err
	}
	m, err := lockDay(tx, dayID)
	if err != nil {
		return nil, nil, err
	}
	return m, p, nil
}

func lockDay(tx *gorm.DB, dayID string) (*dayRow, error) {
	var m dayRow
	err := tx.Clauses(clause.Locking{Strength: lockUpdate}).Where("id = ?", dayID).Take(&m).Error
	if err != nil {
		return nil, notFound("lock day", err, daybook.ErrDayNotFound)
	}
	return &m, nil
}

func saveDay(tx *gorm.DB, m *dayRow) error {
	return tx.Model(&dayRow{}).Where("id = ?", m.ID).Select("*").Updates(m).Error
}

// holdPeriod makes sure the month has a row and locks it with strength.
func holdPeriod(tx *gorm.DB, month period.Month, now time.Time, strength string) (*periodRow, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(openPeriodRow(month, now)).Error; err != nil {
		return nil, err
	}
	var m periodRow
	err := tx.Clauses(clause.Locking{Strength: strength}).Where("month = ?", string(month)).Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ==================== Transaction Store ====================

func (s *Store) PostTransaction(ctx context.Context, t *transaction.Transaction, entry *audit.Entry) (*transaction.Transaction, bool, error) {
	var (
		stored  *transaction.Transaction
		created bool
	)
	err := s.unit(ctx, "post transaction", func(tx *gorm.DB) error {
		existing, err := txnByKey(tx, t.OutletID, t.IdempotencyKey)
		switch {
		case err == nil:
			stored = existing
			return nil
		case !errors.Is(err, daybook.ErrTransactionNotFound):
			return err
		}

		p, err := holdPeriod(tx, period.MonthOf(t.Date), t.CreatedAt, lockShare)
		if err != nil {
			return err
		}
		if p.Status == string(period.StatusClosed) {
			return daybook.ErrPeriodClosed
		}
		dm, err := lockDay(tx, t.DayID.String())
		if err != nil {
			return err
		}
		if dm.Status == string(day.StatusLocked) {
			return daybook.ErrDayLocked
		}
		rec, err := fromDayRow(dm)
		if err != nil {
			return err
		}

		row := toTxnRow(t)
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		rec.Totals.Apply(t)
		rec.Version++
		rec.Touch(t.CreatedAt)
		if err := saveDay(tx, toDayRow(rec)); err != nil {
			return err
		}
		if err := appendAudit(tx, entry); err != nil {
			return err
		}

		stored, err = fromTxnRow(row)
		created = true
		return err
	})
	if errors.Is(err, daybook.ErrAlreadyExists) {
		// A concurrent post with the same key committed first.
		if existing, lookupErr := s.GetTransactionByKey(ctx, t.OutletID, t.IdempotencyKey); lookupErr == nil {
			return existing, false, nil
		}
	}
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) GetTransaction(ctx context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	var m txnRow
	err := s.db.WithContext(ctx).Where("id = ?", txnID.String()).Take(&m).Error
	if err != nil {
		return nil, notFound("get transaction", err, daybook.ErrTransactionNotFound)
	}
	return fromTxnRow(&m)
}

func (s *Store) GetTransactionByKey(ctx context.Context, outletID, key string) (*transaction.Transaction, error) {
	return txnByKey(s.db.WithContext(ctx), outletID, key)
}

func txnByKey(db *gorm.DB, outletID, key string) (*transaction.Transaction, error) {
	var m txnRow
	err := db.Where("outlet_id = ? AND idempotency_key = ?", outletID, key).Take(&m).Error
	if err != nil {
		return nil, notFound("get transaction by key", err, daybook.ErrTransactionNotFound)
	}
	return fromTxnRow(&m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	q := s.db.WithContext(ctx).Model(&txnRow{})
	if opts.OutletID != "" {
		q = q.Where("outlet_id = ?", opts.OutletID)
	}
	if !opts.DayID.IsNil() {
		q = q.Where("daily_record_id = ?", opts.DayID.String())
	}
	if !opts.From.IsZero() {
		q = q.Where("business_date >= ?", types.DateOf(opts.From))
	}
	if !opts.To.IsZero() {
		q = q.Where("business_date <= ?", types.DateOf(opts.To))
	}

	var rows []txnRow
	err := paginate(q.Order("created_at ASC, id ASC"), opts.Limit, opts.Offset).Find(&rows).Error
	if err != nil {
		return nil, translate("list transactions", err)
	}
	return mapRows(rows, fromTxnRow)
}

// ==================== Period Store ====================

func (s *Store) GetPeriod(ctx context.Context, month period.Month) (*period.Period, error) {
	var m periodRow
	err := s.db.WithContext(ctx).Where("month = ?", string(month)).Take(&m).Error
	if err != nil {
		return nil, notFound("get period", err, daybook.ErrPeriodNotFound)
	}
	return fromPeriodRow(&m)
}

func (s *Store) ListPeriods(ctx context.Context) ([]*period.Period, error) {
	var rows []periodRow
	if err := s.db.WithContext(ctx).Order("month ASC").Find(&rows).Error; err != nil {
		return nil, translate("list periods", err)
	}
	return mapRows(rows, fromPeriodRow)
}

func (s *Store) ClosePeriod(ctx context.Context, p *period.Period, entry *audit.Entry) error {
	return s.unit(ctx, "close period", func(tx *gorm.DB) error {
		held, err := holdPeriod(tx, p.Month, p.CreatedAt, lockUpdate)
		if err != nil {
			return err
		}
		if held.Status == string(period.StatusClosed) {
			return daybook.ErrPeriodClosed
		}

		var open int64
		err = tx.Model(&dayRow{}).
			Where("business_date BETWEEN ? AND ? AND status <> ?", p.Month.Start(), p.Month.End(), string(day.StatusLocked)).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return daybook.ErrPeriodNotReady
		}

		// The row keeps the id it was created with.
		row := toPeriodRow(p)
		row.ID = held.ID
		if err := tx.Model(&periodRow{}).Where("month = ?", string(p.Month)).Select("*").Updates(row).Error; err != nil {
			return err
		}
		return appendAudit(tx, entry)
	})
}

// ==================== Anomaly Store ====================

func (s *Store) RecordAnomaly(ctx context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, bool, error) {
	var (
		stored  *anomaly.Anomaly
		created bool
	)
	err := s.unit(ctx, "record anomaly", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(toAnomalyRow(a))
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1

		var m anomalyRow
		if err := tx.Where("dedupe_key = ?", a.DedupeKey).Take(&m).Error; err != nil {
			return err
		}
		var err error
		stored, err = fromAnomalyRow(&m)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	var m anomalyRow
	err := s.db.WithContext(ctx).Where("id = ?", anomalyID.String()).Take(&m).Error
	if err != nil {
		return nil, notFound("get anomaly", err, daybook.ErrAnomalyNotFound)
	}
	return fromAnomalyRow(&m)
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	q := s.db.WithContext(ctx).Model(&anomalyRow{})
	if opts.OutletID != "" {
		q = q.Where("outlet_id = ?", opts.OutletID)
	}
	if opts.RuleType != "" {
		q = q.Where("rule_type = ?", string(opts.RuleType))
	}
	if opts.Severity != "" {
		q = q.Where("severity = ?", string(opts.Severity))
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if !opts.Since.IsZero() {
		q = q.Where("detected_at >= ?", opts.Since.UTC())
	}

	var rows []anomalyRow
	err := paginate(q.Order("detected_at DESC, id DESC"), opts.Limit, opts.Offset).Find(&rows).Error
	if err != nil {
		return nil, translate("list anomalies", err)
	}
	return mapRows(rows, fromAnomalyRow)
}

func (s *Store) ResolveAnomaly(ctx context.Context, a *anomaly.Anomaly, entry *audit.Entry) error {
	return s.unit(ctx, "resolve anomaly", func(tx *gorm.DB) error {
		res := tx.Model(&anomalyRow{}).
			Where("id = ? AND status = ?", a.ID.String(), string(anomaly.StatusOpen)).
			Updates(map[string]any{
				"status":          string(a.Status),
				"resolved_by":     a.ResolvedBy,
				"resolved_at":     a.ResolvedAt,
				"resolution_note": a.ResolutionNote,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOr(tx, &anomalyRow{}, a.ID.String(), daybook.ErrAnomalyNotFound)
		}
		return appendAudit(tx, entry)
	})
}

// ==================== Recommendation Store ====================

func (s *Store) CreateRecommendation(ctx context.Context, r *anomaly.Recommendation) (*anomaly.Recommendation, bool, error) {
	var (
		stored  *anomaly.Recommendation
		created bool
	)
	err := s.unit(ctx, "create recommendation", func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(toRecommendationRow(r))
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected == 1

		var m recommendationRow
		err := tx.Where("outlet_id = ? AND business_date = ?", r.OutletID, types.DateOf(r.Date)).Take(&m).Error
		if err != nil {
			return err
		}
		stored, err = fromRecommendationRow(&m)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) GetRecommendation(ctx context.Context, recID id.RecommendationID) (*anomaly.Recommendation, error) {
	var m recommendationRow
	err := s.db.WithContext(ctx).Where("id = ?", recID.String()).Take(&m).Error
	if err != nil {
		return nil, notFound("get recommendation", err, daybook.ErrRecommendationNotFound)
	}
	return fromRecommendationRow(&m)
}

func (s *Store) GetRecommendationFor(ctx context.Context, outletID string, date time.Time) (*anomaly.Recommendation, error) {
	var m recommendationRow
	err := s.db.WithContext(ctx).
		Where("outlet_id = ? AND business_date = ?", outletID, types.DateOf(date)).
		Take(&m).Error
	if err != nil {
		return nil, notFound("get recommendation for day", err, daybook.ErrRecommendationNotFound)
	}
	return fromRecommendationRow(&m)
}

func (s *Store) ListRecommendations(ctx context.Context, opts anomaly.RecommendationListOpts) ([]*anomaly.Recommendation, error) {
	q := s.db.WithContext(ctx).Model(&recommendationRow{})
	if opts.OutletID != "" {
		q = q.Where("outlet_id = ?", opts.OutletID)
	}
	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}

	var rows []recommendationRow
	err := paginate(q.Order("created_at DESC, id DESC"), opts.Limit, opts.Offset).Find(&rows).Error
	if err != nil {
		return nil, translate("list recommendations", err)
	}
	return mapRows(rows, fromRecommendationRow)
}

func (s *Store) DecideRecommendation(ctx context.Context, r *anomaly.Recommendation, entry *audit.Entry) error {
	return s.unit(ctx, "decide recommendation", func(tx *gorm.DB) error {
		res := tx.Model(&recommendationRow{}).
			Where("id = ? AND status = ?", r.ID.String(), string(anomaly.RecommendationPending)).
			Updates(map[string]any{
				"status":     string(r.Status),
				"decided_at": r.DecidedAt,
				"decided_by": r.DecidedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return missingOr(tx, &recommendationRow{}, r.ID.String(), daybook.ErrRecommendationNotFound)
		}
		return appendAudit(tx, entry)
	})
}

// missingOr tells a row that does not exist from one another writer has
// already moved on.
func missingOr(tx *gorm.DB, model any, rowID string, sentinel error) error {
	var n int64
	if err := tx.Model(model).Where("id = ?", rowID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return sentinel
	}
	return daybook.ErrConcurrentUpdate
}

// ==================== Audit Store ====================

func appendAudit(tx *gorm.DB, e *audit.Entry) error {
	if e == nil {
		return nil
	}
	return tx.Create(toAuditRow(e)).Error
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return translate("append audit", appendAudit(s.db.WithContext(ctx), e))
}

func (s *Store) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	q := s.db.WithContext(ctx).Model(&auditRow{})
	if opts.Entity != "" {
		q = q.Where("entity = ?", string(opts.Entity))
	}
	if opts.EntityID != "" {
		q = q.Where("entity_id = ?", opts.EntityID)
	}
	if opts.Action != "" {
		q = q.Where("action = ?", string(opts.Action))
	}
	if opts.ActorID != "" {
		q = q.Where("actor_id = ?", opts.ActorID)
	}
	if !opts.Since.IsZero() {
		q = q.Where("timestamp >= ?", opts.Since.UTC())
	}
	if !opts.Until.IsZero() {
		q = q.Where("timestamp < ?", opts.Until.UTC())
	}

	var rows []auditRow
	err := paginate(q.Order("timestamp ASC, id ASC"), opts.Limit, opts.Offset).Find(&rows).Error
	if err != nil {
		return nil, translate("list audit", err)
	}
	return mapRows(rows, fromAuditRow)
}

// ==================== Helpers ====================

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q
}

func mapRows[M, T any](rows []M, from func(*M) (T, error)) ([]T, error) {
	out := make([]T, 0, len(rows))
	for i := range rows {
		v, err := from(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
