// Package memory is an in-process Store. A single mutex guards all state,
// which makes every compound write trivially atomic. Values are copied on
// the way in and out so callers never alias stored records.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

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

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Day storage, by ID and by outlet|date
	days       map[string]*day.Record
	daysByDate map[string]string

	// Transaction storage, by ID and by outlet|idempotency key
	txns      map[string]*transaction.Transaction
	txnsByKey map[string]string

	// Period storage, by month
	periods map[period.Month]*period.Period

	// Anomaly storage, by ID and by dedupe key
	anomalies      map[string]*anomaly.Anomaly
	anomaliesByKey map[string]string

	// Recommendation storage, by ID and by outlet|date
	recs       map[string]*anomaly.Recommendation
	recsByDate map[string]string

	// Audit log, append-only
	audit []*audit.Entry

	closed bool
}

func New() *Store {
	return &Store{
		days:           make(map[string]*day.Record),
		daysByDate:     make(map[string]string),
		txns:           make(map[string]*transaction.Transaction),
		txnsByKey:      make(map[string]string),
		periods:        make(map[period.Month]*period.Period),
		anomalies:      make(map[string]*anomaly.Anomaly),
		anomaliesByKey: make(map[string]string),
		recs:           make(map[string]*anomaly.Recommendation),
		recsByDate:     make(map[string]string),
	}
}

func dateKey(outletID string, date time.Time) string {
	return outletID + "|" + types.FormatDate(date)
}

func page[T any](items []T, limit, offset int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Day Store implementation

func (s *Store) CreateDay(_ context.Context, r *day.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(r.OutletID, r.Date)
	if _, exists := s.daysByDate[key]; exists {
		return daybook.ErrAlreadyExists
	}
	if _, exists := s.days[r.ID.String()]; exists {
		return daybook.ErrAlreadyExists
	}
	s.days[r.ID.String()] = r.Clone()
	s.daysByDate[key] = r.ID.String()
	return nil
}

func (s *Store) GetDay(_ context.Context, dayID id.DayID) (*day.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.days[dayID.String()]; ok {
		return r.Clone(), nil
	}
	return nil, daybook.ErrDayNotFound
}

func (s *Store) GetDayByDate(_ context.Context, outletID string, date time.Time) (*day.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if dayID, ok := s.daysByDate[dateKey(outletID, date)]; ok {
		return s.days[dayID].Clone(), nil
	}
	return nil, daybook.ErrDayNotFound
}

func (s *Store) ListDays(_ context.Context, opts day.ListOpts) ([]*day.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*day.Record, 0)
	for _, r := range s.days {
		if opts.Matches(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].OutletID < result[j].OutletID
	})
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) LastLockedDay(_ context.Context, outletID string, before time.Time) (*day.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *day.Record
	for _, r := range s.days {
		if r.OutletID != outletID || !r.Locked() || !r.Date.Before(before) {
			continue
		}
		if last == nil || r.Date.After(last.Date) {
			last = r
		}
	}
	if last == nil {
		return nil, daybook.ErrDayNotFound
	}
	return last.Clone(), nil
}

// checkVersion enforces the optimistic write contract.
func checkVersion(stored, next *day.Record) error {
	if stored.Version != next.Version-1 {
		return daybook.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) periodClosed(date time.Time) bool {
	p, ok := s.periods[period.MonthOf(date)]
	return ok && p.Closed()
}

func (s *Store) UpdateDay(_ context.Context, r *day.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.days[r.ID.String()]
	if !ok {
		return daybook.ErrDayNotFound
	}
	if s.periodClosed(stored.Date) {
		return daybook.ErrPeriodClosed
	}
	if stored.Locked() {
		return daybook.ErrDayLocked
	}
	if err := checkVersion(stored, r); err != nil {
		return err
	}
	s.days[r.ID.String()] = r.Clone()
	return nil
}

func (s *Store) TransitionDay(_ context.Context, r *day.Record, from day.Status, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.days[r.ID.String()]
	if !ok {
		return daybook.ErrDayNotFound
	}
	if s.periodClosed(stored.Date) {
		return daybook.ErrPeriodClosed
	}
	if stored.Status != from {
		return daybook.ErrConcurrentUpdate
	}
	if err := checkVersion(stored, r); err != nil {
		return err
	}
	s.days[r.ID.String()] = r.Clone()
	s.appendAudit(entry)
	return nil
}

func (s *Store) MarkSynced(_ context.Context, dayID id.DayID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.days[dayID.String()]
	if !ok {
		return daybook.ErrDayNotFound
	}
	if !r.Locked() {
		return daybook.ErrDayNotLocked
	}
	if r.SyncedAt != nil {
		return nil
	}
	stamp := at.UTC()
	r.SyncedAt = &stamp
	return nil
}

// Transaction Store implementation

func copyTxn(t *transaction.Transaction) *transaction.Transaction {
	c := *t
	if t.Account != nil {
		acct := *t.Account
		c.Account = &acct
	}
	return &c
}

func (s *Store) PostTransaction(_ context.Context, t *transaction.Transaction, entry *audit.Entry) (*transaction.Transaction, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := t.OutletID + "|" + t.IdempotencyKey
	if txnID, exists := s.txnsByKey[key]; exists {
		return copyTxn(s.txns[txnID]), false, nil
	}
	if s.periodClosed(t.Date) {
		return nil, false, daybook.ErrPeriodClosed
	}
	r, ok := s.days[t.DayID.String()]
	if !ok {
		return nil, false, daybook.ErrDayNotFound
	}
	if r.Locked() {
		return nil, false, daybook.ErrDayLocked
	}

	stored := copyTxn(t)
	s.txns[t.ID.String()] = stored
	s.txnsByKey[key] = t.ID.String()

	r.Totals.Apply(stored)
	r.Version++
	r.Touch(t.CreatedAt)

	s.appendAudit(entry)
	return copyTxn(stored), true, nil
}

func (s *Store) GetTransaction(_ context.Context, txnID id.TransactionID) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if t, ok := s.txns[txnID.String()]; ok {
		return copyTxn(t), nil
	}
	return nil, daybook.ErrTransactionNotFound
}

func (s *Store) GetTransactionByKey(_ context.Context, outletID, key string) (*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if txnID, ok := s.txnsByKey[outletID+"|"+key]; ok {
		return copyTxn(s.txns[txnID]), nil
	}
	return nil, daybook.ErrTransactionNotFound
}

func (s *Store) ListTransactions(_ context.Context, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*transaction.Transaction, 0)
	for _, t := range s.txns {
		if opts.Matches(t) {
			result = append(result, copyTxn(t))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return page(result, opts.Limit, opts.Offset), nil
}

// Period Store implementation

func copyPeriod(p *period.Period) *period.Period {
	c := *p
	return &c
}

func (s *Store) GetPeriod(_ context.Context, month period.Month) (*period.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.periods[month]; ok {
		return copyPeriod(p), nil
	}
	return nil, daybook.ErrPeriodNotFound
}

func (s *Store) ListPeriods(_ context.Context) ([]*period.Period, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*period.Period, 0, len(s.periods))
	for _, p := range s.periods {
		result = append(result, copyPeriod(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Month < result[j].Month })
	return result, nil
}

func (s *Store) ClosePeriod(_ context.Context, p *period.Period, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.periods[p.Month]; ok && existing.Closed() {
		return daybook.ErrPeriodClosed
	}
	for _, r := range s.days {
		if p.Month.Contains(r.Date) && !r.Locked() {
			return daybook.ErrPeriodNotReady
		}
	}
	s.periods[p.Month] = copyPeriod(p)
	s.appendAudit(entry)
	return nil
}

// Anomaly Store implementation

func copyAnomaly(a *anomaly.Anomaly) *anomaly.Anomaly {
	c := *a
	c.TransactionIDs = append([]id.TransactionID(nil), a.TransactionIDs...)
	return &c
}

func (s *Store) RecordAnomaly(_ context.Context, a *anomaly.Anomaly) (*anomaly.Anomaly, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if anomalyID, exists := s.anomaliesByKey[a.DedupeKey]; exists {
		return copyAnomaly(s.anomalies[anomalyID]), false, nil
	}
	s.anomalies[a.ID.String()] = copyAnomaly(a)
	s.anomaliesByKey[a.DedupeKey] = a.ID.String()
	return copyAnomaly(a), true, nil
}

func (s *Store) GetAnomaly(_ context.Context, anomalyID id.AnomalyID) (*anomaly.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.anomalies[anomalyID.String()]; ok {
		return copyAnomaly(a), nil
	}
	return nil, daybook.ErrAnomalyNotFound
}

func (s *Store) ListAnomalies(_ context.Context, opts anomaly.ListOpts) ([]*anomaly.Anomaly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*anomaly.Anomaly, 0)
	for _, a := range s.anomalies {
		if opts.Matches(a) {
			result = append(result, copyAnomaly(a))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DetectedAt.Equal(result[j].DetectedAt) {
			return result[i].DetectedAt.After(result[j].DetectedAt)
		}
		return result[i].ID.String() > result[j].ID.String()
	})
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) ResolveAnomaly(_ context.Context, a *anomaly.Anomaly, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.anomalies[a.ID.String()]
	if !ok {
		return daybook.ErrAnomalyNotFound
	}
	if stored.Status == anomaly.StatusResolved {
		return daybook.ErrConcurrentUpdate
	}
	s.anomalies[a.ID.String()] = copyAnomaly(a)
	s.appendAudit(entry)
	return nil
}

// Recommendation Store implementation

func copyRec(r *anomaly.Recommendation) *anomaly.Recommendation {
	c := *r
	c.AnomalyIDs = append([]id.AnomalyID(nil), r.AnomalyIDs...)
	return &c
}

func (s *Store) CreateRecommendation(_ context.Context, r *anomaly.Recommendation) (*anomaly.Recommendation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dateKey(r.OutletID, r.Date)
	if recID, exists := s.recsByDate[key]; exists {
		return copyRec(s.recs[recID]), false, nil
	}
	s.recs[r.ID.String()] = copyRec(r)
	s.recsByDate[key] = r.ID.String()
	return copyRec(r), true, nil
}

func (s *Store) GetRecommendation(_ context.Context, recID id.RecommendationID) (*anomaly.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.recs[recID.String()]; ok {
		return copyRec(r), nil
	}
	return nil, daybook.ErrRecommendationNotFound
}

func (s *Store) GetRecommendationFor(_ context.Context, outletID string, date time.Time) (*anomaly.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if recID, ok := s.recsByDate[dateKey(outletID, date)]; ok {
		return copyRec(s.recs[recID]), nil
	}
	return nil, daybook.ErrRecommendationNotFound
}

func (s *Store) ListRecommendations(_ context.Context, opts anomaly.RecommendationListOpts) ([]*anomaly.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*anomaly.Recommendation, 0)
	for _, r := range s.recs {
		if opts.OutletID != "" && r.OutletID != opts.OutletID {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		result = append(result, copyRec(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, opts.Limit, opts.Offset), nil
}

func (s *Store) DecideRecommendation(_ context.Context, r *anomaly.Recommendation, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.recs[r.ID.String()]
	if !ok {
		return daybook.ErrRecommendationNotFound
	}
	if stored.Status != anomaly.RecommendationPending {
		return daybook.ErrConcurrentUpdate
	}
	s.recs[r.ID.String()] = copyRec(r)
	s.appendAudit(entry)
	return nil
}

// Audit Store implementation

func (s *Store) appendAudit(e *audit.Entry) {
	if e == nil {
		return
	}
	c := *e
	s.audit = append(s.audit, &c)
}

func (s *Store) AppendAudit(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendAudit(e)
	return nil
}

func (s *Store) ListAudit(_ context.Context, opts audit.ListOpts) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*audit.Entry, 0)
	for _, e := range s.audit {
		if opts.Matches(e) {
			c := *e
			result = append(result, &c)
		}
	}
	return page(result, opts.Limit, opts.Offset), nil
}

// Core methods

func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return daybook.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
