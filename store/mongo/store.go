// Package mongo implements store.Store on MongoDB through the grove ORM.
//
// Compound writes run inside a session transaction, which needs a replica
// set. MongoDB has no shared read locks, so posting and day writes bump a
// counter on the month's period document instead: a closure racing them
// conflicts on that document and one side is retried.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/daybook"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	daybookstore "github.com/xraph/daybook/store"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Collection name constants.
const (
	colDays            = "daybook_days"
	colTransactions    = "daybook_transactions"
	colPeriods         = "daybook_periods"
	colAnomalies       = "daybook_anomalies"
	colRecommendations = "daybook_lock_recommendations"
	colAudit           = "daybook_audit"
)

// Error labels the server attaches to failures a retry can cure.
var transientLabels = []string{
	"TransientTransactionError",
	"UnknownTransactionCommitResult",
	"RetryableWriteError",
}

// compile-time interface check
var _ daybookstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all daybook collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("daybook/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return translate("ping", s.db.Ping(ctx))
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// unit runs fn in a session transaction. The driver retries fn on
// transient transaction errors.
func (s *Store) unit(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	client := s.mdb.Collection(colDays).Database().Client()
	sess, err := client.StartSession()
	if err != nil {
		return translate(op, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return translate(op, err)
}

// ==================== Day Store ====================

func (s *Store) CreateDay(ctx context.Context, r *day.Record) error {
	_, err := s.mdb.NewInsert(toDayModel(r)).Exec(ctx)
	return translate("create day", err)
}

func (s *Store) GetDay(ctx context.Context, dayID id.DayID) (*day.Record, error) {
	return s.findDay(ctx, "get day", bson.M{"_id": dayID.String()})
}

func (s *Store) GetDayByDate(ctx context.Context, outletID string, date time.Time) (*day.Record, error) {
	return s.findDay(ctx, "get day by date", bson.M{
		"outlet_id":     outletID,
		"business_date": types.DateOf(date),
	})
}

func (s *Store) findDay(ctx context.Context, op string, filter bson.M) (*day.Record, error) {
	var m dayModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, daybook.ErrDayNotFound
		}
		return nil, translate(op, err)
	}
	return fromDayModel(&m)
}

func (s *Store) ListDays(ctx context.Context, opts day.ListOpts) ([]*day.Record, error) {
	filter := bson.M{}
	if opts.OutletID != "" {
		filter["outlet_id"] = opts.OutletID
	}
	if dates := dateRange(opts.From, opts.To); dates != nil {
		filter["business_date"] = dates
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if opts.Unsynced {
		filter["status"] = string(day.StatusLocked)
		filter["synced_at"] = nil
	}

	var models []dayModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "business_date", Value: 1}, {Key: "outlet_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate("list days", err)
	}
	return mapModels(models, fromDayModel)
}

func (s *Store) LastLockedDay(ctx context.Context, outletID string, before time.Time) (*day.Record, error) {
	var models []dayModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"outlet_id":     outletID,
			"status":        string(day.StatusLocked),
			"business_date": bson.M{"$lt": types.DateOf(before)},
		}).
		Sort(bson.D{{Key: "business_date", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, translate("last locked day", err)
	}
	if len(models) == 0 {
		return nil, daybook.ErrDayNotFound
	}
	return fromDayModel(&models[0])
}

func (s *Store) UpdateDay(ctx context.Context, r *day.Record) error {
	return s.unit(ctx, "update day", func(ctx context.Context) error {
		stored, p, err := s.holdDay(ctx, r.ID.String(), r.UpdatedAt)
		if err != nil {
			return err
		}
		switch {
		case p.Status == string(period.StatusClosed):
			return daybook.ErrPeriodClosed
		case stored.Status == string(day.StatusLocked):
			return daybook.ErrDayLocked
		}
		return s.replaceDay(ctx, toDayModel(r), stored.Status)
	})
}

func (s *Store) TransitionDay(ctx context.Context, r *day.Record, from day.Status, entry *audit.Entry) error {
	return s.unit(ctx, "transition day", func(ctx context.Context) error {
		_, p, err := s.holdDay(ctx, r.ID.String(), r.UpdatedAt)
		if err != nil {
			return err
		}
		if p.Status == string(period.StatusClosed) {
			return daybook.ErrPeriodClosed
		}
		if err := s.replaceDay(ctx, toDayModel(r), string(from)); err != nil {
			return err
		}
		return s.appendAudit(ctx, entry)
	})
}

func (s *Store) MarkSynced(ctx context.Context, dayID id.DayID, at time.Time) error {
	stored, err := s.GetDay(ctx, dayID)
	if err != nil {
		return err
	}
	if !stored.Locked() {
		return daybook.ErrDayNotLocked
	}
	_, err = s.mdb.NewUpdate((*dayModel)(nil)).
		Filter(bson.M{"_id": dayID.String(), "status": string(day.StatusLocked), "synced_at": nil}).
		Set("synced_at", at.UTC()).
		Exec(ctx)
	return translate("mark synced", err)
}

// holdDay touches the day's period document and reads the day.
func (s *Store) holdDay(ctx context.Context, dayID string, now time.Time) (*dayModel, *periodModel, error) {
	var m dayModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": dayID}).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, nil, daybook.ErrDayNotFound
		}
		return nil, nil, err
	}
	p, err := s.touchPeriod(ctx, period.MonthOf(businessDate(m.Date)), now)
	if err != nil {
		return nil, nil, err
	}
	return &m, p, nil
}

// replaceDay writes m over the stored day while the stored version and
// status still match.
func (s *Store) replaceDay(ctx context.Context, m *dayModel, status string) error {
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": m.Version - 1, "status": status}).
		Exec(ctx)
	if err != nil {
		return err
	}
	if res.MatchedCount() == 0 {
		return daybook.ErrConcurrentUpdate
	}
	return nil
}

// touchPeriod upserts the month's period document, bumps its write
// counter and returns it.
func (s *Store) touchPeriod(ctx context.Context, month period.Month, now time.Time) (*periodModel, error) {
	now = now.UTC()
	_, err := s.mdb.Collection(colPeriods).UpdateOne(ctx,
		bson.M{"month": string(month)},
		bson.M{
			"$inc": bson.M{"touches": 1},
			"$setOnInsert": bson.M{
				"_id":        id.NewPeriodID().String(),
				"status":     string(period.StatusOpen),
				"created_at": now,
				"updated_at": now,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return nil, err
	}
	var p periodModel
	if err := s.mdb.NewFind(&p).Filter(bson.M{"month": string(month)}).Scan(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// ==================== Transaction Store ====================

func (s *Store) PostTransaction(ctx context.Context, t *transaction.Transaction, entry *audit.Entry) (*transaction.Transaction, bool, error) {
	var (
		stored  *transaction.Transaction
		created bool
	)
	err := s.unit(ctx, "post transaction", func(ctx context.Context) error {
		existing, err := s.GetTransactionByKey(ctx, t.OutletID, t.IdempotencyKey)
		switch {
		case err == nil:
			stored, created = existing, false
			return nil
		case !errors.Is(err, daybook.ErrTransactionNotFound):
			return err
		}

		p, err := s.touchPeriod(ctx, period.MonthOf(t.Date), t.CreatedAt)
		if err != nil {
			return err
		}
		if p.Status == string(period.StatusClosed) {
			return daybook.ErrPeriodClosed
		}
		var dm dayModel
		if err := s.mdb.NewFind(&dm).Filter(bson.M{"_id": t.DayID.String()}).Scan(ctx); err != nil {
			if isNoDocuments(err) {
				return daybook.ErrDayNotFound
			}
			return err
		}
		if dm.Status == string(day.StatusLocked) {
			return daybook.ErrDayLocked
		}
		rec, err := fromDayModel(&dm)
		if err != nil {
			return err
		}

		m := toTransactionModel(t)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return err
		}
		rec.Totals.Apply(t)
		rec.Version++
		rec.Touch(t.CreatedAt)
		if err := s.replaceDay(ctx, toDayModel(rec), dm.Status); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, entry); err != nil {
			return err
		}

		stored, err = fromTransactionModel(m)
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
	return s.findTransaction(ctx, "get transaction", bson.M{"_id": txnID.String()})
}

func (s *Store) GetTransactionByKey(ctx context.Context, outletID, key string) (*transaction.Transaction, error) {
	return s.findTransaction(ctx, "get transaction by key", bson.M{
		"outlet_id":       outletID,
		"idempotency_key": key,
	})
}

func (s *Store) findTransaction(ctx context.Context, op string, filter bson.M) (*transaction.Transaction, error) {
	var m transactionModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, daybook.ErrTransactionNotFound
		}
		return nil, translate(op, err)
	}
	return fromTransactionModel(&m)
}

func (s *Store) ListTransactions(ctx context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	filter := bson.M{}
	if opts.OutletID != "" {
		filter["outlet_id"] = opts.OutletID
	}
	if !opts.DayID.IsNil() {
		filter["daily_record_id"] = opts.DayID.String()
	}
	if dates := dateRange(opts.From, opts.To); dates != nil {
		filter["business_date"] = dates
	}

	var models []transactionModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate("list transactions", err)
	}
	return mapModels(models, fromTransactionModel)
}

// ==================== Period Store ====================

func (s *Store) GetPeriod(ctx context.Context, month period.Month) (*period.Period, error) {
	var m periodModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"month": string(month)}).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, daybook.ErrPeriodNotFound
		}
		return nil, translate("get period", err)
	}
	return fromPeriodModel(&m)
}

func (s *Store) ListPeriods(ctx context.Context) ([]*period.Period, error) {
	var models []periodModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "month", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, translate("list periods", err)
	}
	return mapModels(models, fromPeriodModel)
}

func (s *Store) ClosePeriod(ctx context.Context, p *period.Period, entry *audit.Entry) error {
	next, err := toPeriodModel(p)
	if err != nil {
		return fmt.Errorf("daybook/mongo: close period: %w", err)
	}
	return s.unit(ctx, "close period", func(ctx context.Context) error {
		held, err := s.touchPeriod(ctx, p.Month, p.UpdatedAt)
		if err != nil {
			return err
		}
		if held.Status == string(period.StatusClosed) {
			return daybook.ErrPeriodClosed
		}

		open, err := s.mdb.Collection(colDays).CountDocuments(ctx, bson.M{
			"business_date": dateRange(p.Month.Start(), p.Month.End()),
			"status":        bson.M{"$ne": string(day.StatusLocked)},
		})
		if err != nil {
			return err
		}
		if open > 0 {
			return daybook.ErrPeriodNotReady
		}

		// The document keeps the _id it was created with.
		next.ID = held.ID
		next.Touches = held.Touches
		res, err := s.mdb.NewUpdate(next).
			Filter(bson.M{"_id": held.ID, "status": string(period.StatusOpen)}).
			Exec(ctx)
		if err != nil {
			return err
		}
		if res.MatchedCount() == 0 {
			return daybook.ErrPeriodClosed
		}
		return s.appendAudit(ctx, entry)
	})
}

// ==================== Anomaly Store ====================

func (s *Store) RecordAnomaly(ctx context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, bool, error) {
	_, err := s.mdb.NewInsert(toAnomalyModel(a)).Exec(ctx)
	created := err == nil
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, translate("record anomaly", err)
	}

	var m anomalyModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"dedupe_key": a.DedupeKey}).Scan(ctx); err != nil {
		return nil, false, translate("record anomaly", err)
	}
	stored, err := fromAnomalyModel(&m)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) GetAnomaly(ctx context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	var m anomalyModel
	if err := s.mdb.NewFind(&m).Filter(bson.M{"_id": anomalyID.String()}).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, daybook.ErrAnomalyNotFound
		}
		return nil, translate("get anomaly", err)
	}
	return fromAnomalyModel(&m)
}

func (s *Store) ListAnomalies(ctx context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	filter := bson.M{}
	if opts.OutletID != "" {
		filter["outlet_id"] = opts.OutletID
	}
	if opts.RuleType != "" {
		filter["rule_type"] = string(opts.RuleType)
	}
	if opts.Severity != "" {
		filter["severity"] = string(opts.Severity)
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}
	if !opts.Since.IsZero() {
		filter["detected_at"] = bson.M{"$gte": opts.Since.UTC()}
	}

	var models []anomalyModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "detected_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate("list anomalies", err)
	}
	return mapModels(models, fromAnomalyModel)
}

func (s *Store) ResolveAnomaly(ctx context.Context, a *anomaly.Anomaly, entry *audit.Entry) error {
	return s.unit(ctx, "resolve anomaly", func(ctx context.Context) error {
		res, err := s.mdb.NewUpdate((*anomalyModel)(nil)).
			Filter(bson.M{"_id": a.ID.String(), "status": string(anomaly.StatusOpen)}).
			Set("status", string(a.Status)).
			Set("resolved_by", a.ResolvedBy).
			Set("resolved_at", a.ResolvedAt).
			Set("resolution_note", a.ResolutionNote).
			Exec(ctx)
		if err != nil {
			return err
		}
		if res.MatchedCount() == 0 {
			if _, err := s.GetAnomaly(ctx, a.ID); err != nil {
				return err
			}
			return daybook.ErrConcurrentUpdate
		}
		return s.appendAudit(ctx, entry)
	})
}

// ==================== Recommendation Store ====================

func (s *Store) CreateRecommendation(ctx context.Context, r *anomaly.Recommendation) (*anomaly.Recommendation, bool, error) {
	_, err := s.mdb.NewInsert(toRecommendationModel(r)).Exec(ctx)
	created := err == nil
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, translate("create recommendation", err)
	}

	stored, err := s.GetRecommendationFor(ctx, r.OutletID, r.Date)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (s *Store) GetRecommendation(ctx context.Context, recID id.RecommendationID) (*anomaly.Recommendation, error) {
	return s.findRecommendation(ctx, "get recommendation", bson.M{"_id": recID.String()})
}

func (s *Store) GetRecommendationFor(ctx context.Context, outletID string, date time.Time) (*anomaly.Recommendation, error) {
	return s.findRecommendation(ctx, "get recommendation for day", bson.M{
		"outlet_id":     outletID,
		"business_date": types.DateOf(date),
	})
}

func (s *Store) findRecommendation(ctx context.Context, op string, filter bson.M) (*anomaly.Recommendation, error) {
	var m recommendationModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, daybook.ErrRecommendationNotFound
		}
		return nil, translate(op, err)
	}
	return fromRecommendationModel(&m)
}

func (s *Store) ListRecommendations(ctx context.Context, opts anomaly.RecommendationListOpts) ([]*anomaly.Recommendation, error) {
	filter := bson.M{}
	if opts.OutletID != "" {
		filter["outlet_id"] = opts.OutletID
	}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	var models []recommendationModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate("list recommendations", err)
	}
	return mapModels(models, fromRecommendationModel)
}

func (s *Store) DecideRecommendation(ctx context.Context, r *anomaly.Recommendation, entry *audit.Entry) error {
	return s.unit(ctx, "decide recommendation", func(ctx context.Context) error {
		res, err := s.mdb.NewUpdate((*recommendationModel)(nil)).
			Filter(bson.M{"_id": r.ID.String(), "status": string(anomaly.RecommendationPending)}).
			Set("status", string(r.Status)).
			Set("decided_at", r.DecidedAt).
			Set("decided_by", r.DecidedBy).
			Exec(ctx)
		if err != nil {
			return err
		}
		if res.MatchedCount() == 0 {
			if _, err := s.GetRecommendation(ctx, r.ID); err != nil {
				return err
			}
			return daybook.ErrConcurrentUpdate
		}
		return s.appendAudit(ctx, entry)
	})
}

// ==================== Audit Store ====================

func (s *Store) appendAudit(ctx context.Context, e *audit.Entry) error {
	if e == nil {
		return nil
	}
	_, err := s.mdb.NewInsert(toAuditModel(e)).Exec(ctx)
	return err
}

func (s *Store) AppendAudit(ctx context.Context, e *audit.Entry) error {
	return translate("append audit", s.appendAudit(ctx, e))
}

func (s *Store) ListAudit(ctx context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	filter := bson.M{}
	if opts.Entity != "" {
		filter["entity"] = string(opts.Entity)
	}
	if opts.EntityID != "" {
		filter["entity_id"] = opts.EntityID
	}
	if opts.Action != "" {
		filter["action"] = string(opts.Action)
	}
	if opts.ActorID != "" {
		filter["actor.id"] = opts.ActorID
	}
	ts := bson.M{}
	if !opts.Since.IsZero() {
		ts["$gte"] = opts.Since.UTC()
	}
	if !opts.Until.IsZero() {
		ts["$lt"] = opts.Until.UTC()
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}

	var models []auditModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, translate("list audit", err)
	}
	return mapModels(models, fromAuditModel)
}

// ==================== Helpers ====================

// dateRange builds an inclusive business-date filter. It returns nil when
// both ends are open.
func dateRange(from, to time.Time) bson.M {
	r := bson.M{}
	if !from.IsZero() {
		r["$gte"] = types.DateOf(from)
	}
	if !to.IsZero() {
		r["$lte"] = types.DateOf(to)
	}
	if len(r) == 0 {
		return nil
	}
	return r
}

func mapModels[M, T any](models []M, from func(*M) (T, error)) ([]T, error) {
	out := make([]T, 0, len(models))
	for i := range models {
		v, err := from(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// isTransient reports errors the server or driver labelled retryable.
func isTransient(err error) bool {
	var labeled interface{ HasErrorLabel(string) bool }
	if errors.As(err, &labeled) {
		for _, label := range transientLabels {
			if labeled.HasErrorLabel(label) {
				return true
			}
		}
	}
	return mongo.IsNetworkError(err) || mongo.IsTimeout(err)
}

// translate maps a driver error onto the daybook error contract.
// Domain sentinels returned from inside a unit pass through.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case daybook.IsNotFound(err),
		errors.Is(err, daybook.ErrConcurrentUpdate),
		errors.Is(err, daybook.ErrDayLocked),
		errors.Is(err, daybook.ErrDayNotLocked),
		errors.Is(err, daybook.ErrPeriodClosed),
		errors.Is(err, daybook.ErrPeriodNotReady):
		return err
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("daybook/mongo: %s: %w", op, daybook.ErrAlreadyExists)
	case isTransient(err):
		return fmt.Errorf("daybook/mongo: %s: %w: %w", op, daybook.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("daybook/mongo: %s: %w", op, err)
}

// migrationIndexes returns the index definitions for all daybook collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colDays: {
			{
				Keys:    bson.D{{Key: "outlet_id", Value: 1}, {Key: "business_date", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "business_date", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "synced_at", Value: 1}}},
		},
		colTransactions: {
			{
				Keys:    bson.D{{Key: "outlet_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "daily_record_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "outlet_id", Value: 1}, {Key: "business_date", Value: 1}}},
		},
		colPeriods: {
			{
				Keys:    bson.D{{Key: "month", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colAnomalies: {
			{
				Keys:    bson.D{{Key: "dedupe_key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "outlet_id", Value: 1}, {Key: "severity", Value: 1}, {Key: "detected_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "detected_at", Value: -1}}},
		},
		colRecommendations: {
			{
				Keys:    bson.D{{Key: "outlet_id", Value: 1}, {Key: "business_date", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colAudit: {
			{Keys: bson.D{{Key: "entity", Value: 1}, {Key: "entity_id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "actor.id", Value: 1}, {Key: "timestamp", Value: 1}}},
			{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		},
	}
}
