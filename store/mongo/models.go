package mongo

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/daybook/access"
	"github.com/xraph/daybook/anomaly"
	"github.com/xraph/daybook/audit"
	"github.com/xraph/daybook/day"
	"github.com/xraph/daybook/id"
	"github.com/xraph/daybook/period"
	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// ==================== Day models ====================

type dayModel struct {
	grove.BaseModel `grove:"table:daybook_days"`

	ID           string      `grove:"id,pk"          bson:"_id"`
	OutletID     string      `grove:"outlet_id"      bson:"outlet_id"`
	Date         time.Time   `grove:"business_date"  bson:"business_date"`
	Currency     string      `grove:"currency"       bson:"currency"`
	Status       string      `grove:"status"         bson:"status"`
	OpeningCash  int64       `grove:"opening_cash"   bson:"opening_cash"`
	OpeningUPI   int64       `grove:"opening_upi"    bson:"opening_upi"`
	OpeningSet   bool        `grove:"opening_set"    bson:"opening_set"`
	Totals       totalsModel `grove:"totals"         bson:"totals"`
	PhysicalCash int64       `grove:"physical_cash"  bson:"physical_cash"`
	PhysicalUPI  int64       `grove:"physical_upi"   bson:"physical_upi"`
	TallySet     bool        `grove:"tally_set"      bson:"tally_set"`
	TallyComment string      `grove:"tally_comment"  bson:"tally_comment,omitempty"`
	SubmittedAt  *time.Time  `grove:"submitted_at"   bson:"submitted_at,omitempty"`
	SubmittedBy  string      `grove:"submitted_by"   bson:"submitted_by,omitempty"`
	LockedAt     *time.Time  `grove:"locked_at"      bson:"locked_at,omitempty"`
	LockedBy     string      `grove:"locked_by"      bson:"locked_by,omitempty"`
	LockCause    string      `grove:"lock_cause"     bson:"lock_cause,omitempty"`
	UnlockedAt   *time.Time  `grove:"unlocked_at"    bson:"unlocked_at,omitempty"`
	UnlockedBy   string      `grove:"unlocked_by"    bson:"unlocked_by,omitempty"`
	UnlockReason string      `grove:"unlock_reason"  bson:"unlock_reason,omitempty"`
	SyncedAt     *time.Time  `grove:"synced_at"      bson:"synced_at"`
	Version      int64       `grove:"version"        bson:"version"`
	CreatedAt    time.Time   `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time   `grove:"updated_at"     bson:"updated_at"`
}

type totalsModel struct {
	Income  int64 `bson:"income"`
	Expense int64 `bson:"expense"`
	CashIn  int64 `bson:"cash_in"`
	CashOut int64 `bson:"cash_out"`
	UPIIn   int64 `bson:"upi_in"`
	UPIOut  int64 `bson:"upi_out"`
	Count   int   `bson:"count"`
}

func toDayModel(r *day.Record) *dayModel {
	return &dayModel{
		ID:          r.ID.String(),
		OutletID:    r.OutletID,
		Date:        types.DateOf(r.Date),
		Currency:    r.Currency,
		Status:      string(r.Status),
		OpeningCash: r.OpeningCash.Amount,
		OpeningUPI:  r.OpeningUPI.Amount,
		OpeningSet:  r.OpeningSet,
		Totals: totalsModel{
			Income:  r.Totals.Income.Amount,
			Expense: r.Totals.Expense.Amount,
			CashIn:  r.Totals.CashIn.Amount,
			CashOut: r.Totals.CashOut.Amount,
			UPIIn:   r.Totals.UPIIn.Amount,
			UPIOut:  r.Totals.UPIOut.Amount,
			Count:   r.Totals.Count,
		},
		PhysicalCash: r.PhysicalCash.Amount,
		PhysicalUPI:  r.PhysicalUPI.Amount,
		TallySet:     r.TallySet,
		TallyComment: r.TallyComment,
		SubmittedAt:  r.SubmittedAt,
		SubmittedBy:  r.SubmittedBy,
		LockedAt:     r.LockedAt,
		LockedBy:     r.LockedBy,
		LockCause:    r.LockCause,
		UnlockedAt:   r.UnlockedAt,
		UnlockedBy:   r.UnlockedBy,
		UnlockReason: r.UnlockReason,
		SyncedAt:     r.SyncedAt,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func fromDayModel(m *dayModel) (*day.Record, error) {
	dayID, err := id.ParseDayID(m.ID)
	if err != nil {
		return nil, err
	}
	money := func(amount int64) types.Money {
		return types.Money{Amount: amount, Currency: m.Currency}
	}
	return &day.Record{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:          dayID,
		OutletID:    m.OutletID,
		Date:        businessDate(m.Date),
		Currency:    m.Currency,
		Status:      day.Status(m.Status),
		OpeningCash: money(m.OpeningCash),
		OpeningUPI:  money(m.OpeningUPI),
		OpeningSet:  m.OpeningSet,
		Totals: day.Totals{
			Income:  money(m.Totals.Income),
			Expense: money(m.Totals.Expense),
			CashIn:  money(m.Totals.CashIn),
			CashOut: money(m.Totals.CashOut),
			UPIIn:   money(m.Totals.UPIIn),
			UPIOut:  money(m.Totals.UPIOut),
			Count:   m.Totals.Count,
		},
		PhysicalCash: money(m.PhysicalCash),
		PhysicalUPI:  money(m.PhysicalUPI),
		TallySet:     m.TallySet,
		TallyComment: m.TallyComment,
		SubmittedAt:  utc(m.SubmittedAt),
		SubmittedBy:  m.SubmittedBy,
		LockedAt:     utc(m.LockedAt),
		LockedBy:     m.LockedBy,
		LockCause:    m.LockCause,
		UnlockedAt:   utc(m.UnlockedAt),
		UnlockedBy:   m.UnlockedBy,
		UnlockReason: m.UnlockReason,
		SyncedAt:     utc(m.SyncedAt),
		Version:      m.Version,
	}, nil
}

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:daybook_transactions"`

	ID             string        `grove:"id,pk"            bson:"_id"`
	OutletID       string        `grove:"outlet_id"        bson:"outlet_id"`
	Date           time.Time     `grove:"business_date"    bson:"business_date"`
	DayID          string        `grove:"daily_record_id"  bson:"daily_record_id"`
	Type           string        `grove:"type"             bson:"type"`
	Category       string        `grove:"category"         bson:"category"`
	PaymentMode    string        `grove:"payment_mode"     bson:"payment_mode"`
	Amount         int64         `grove:"amount"           bson:"amount"`
	Currency       string        `grove:"currency"         bson:"currency"`
	Account        *accountModel `grove:"account"          bson:"account,omitempty"`
	Note           string        `grove:"note"             bson:"note,omitempty"`
	CreatedBy      string        `grove:"created_by"       bson:"created_by"`
	CreatedAt      time.Time     `grove:"created_at"       bson:"created_at"`
	IsManual       bool          `grove:"is_manual"        bson:"is_manual"`
	IsReversal     bool          `grove:"is_reversal"      bson:"is_reversal"`
	IdempotencyKey string        `grove:"idempotency_key"  bson:"idempotency_key"`
}

type accountModel struct {
	Code string `bson:"code"`
	Type string `bson:"type"`
}

func toTransactionModel(t *transaction.Transaction) *transactionModel {
	m := &transactionModel{
		ID:             t.ID.String(),
		OutletID:       t.OutletID,
		Date:           types.DateOf(t.Date),
		DayID:          t.DayID.String(),
		Type:           string(t.Type),
		Category:       t.Category,
		PaymentMode:    string(t.PaymentMode),
		Amount:         t.Amount.Amount,
		Currency:       t.Amount.Currency,
		Note:           t.Note,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
		IsManual:       t.IsManual,
		IsReversal:     t.IsReversal,
		IdempotencyKey: t.IdempotencyKey,
	}
	if t.Account != nil {
		m.Account = &accountModel{Code: t.Account.Code, Type: string(t.Account.Type)}
	}
	return m
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	dayID, err := id.ParseDayID(m.DayID)
	if err != nil {
		return nil, err
	}
	t := &transaction.Transaction{
		ID:             txnID,
		OutletID:       m.OutletID,
		Date:           businessDate(m.Date),
		DayID:          dayID,
		Type:           transaction.Type(m.Type),
		Category:       m.Category,
		PaymentMode:    transaction.PaymentMode(m.PaymentMode),
		Amount:         types.Money{Amount: m.Amount, Currency: m.Currency},
		Note:           m.Note,
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt.UTC(),
		IsManual:       m.IsManual,
		IsReversal:     m.IsReversal,
		IdempotencyKey: m.IdempotencyKey,
	}
	if m.Account != nil {
		t.Account = &transaction.Account{Code: m.Account.Code, Type: transaction.AccountType(m.Account.Type)}
	}
	return t, nil
}

// ==================== Period models ====================

type periodModel struct {
	grove.BaseModel `grove:"table:daybook_periods"`

	ID           string         `grove:"id,pk"          bson:"_id"`
	Month        string         `grove:"month"          bson:"month"`
	Status       string         `grove:"status"         bson:"status"`
	ClosedAt     *time.Time     `grove:"closed_at"      bson:"closed_at,omitempty"`
	ClosedBy     string         `grove:"closed_by"      bson:"closed_by,omitempty"`
	Snapshot     *snapshotModel `grove:"snapshot"       bson:"snapshot,omitempty"`
	SnapshotHash string         `grove:"snapshot_hash"  bson:"snapshot_hash,omitempty"`
	Touches      int64          `grove:"touches"        bson:"touches"`
	CreatedAt    time.Time      `grove:"created_at"     bson:"created_at"`
	UpdatedAt    time.Time      `grove:"updated_at"     bson:"updated_at"`
}

// snapshotModel keeps the closing snapshot as its canonical JSON so the
// stored bytes hash exactly as they did at closure.
type snapshotModel struct {
	JSON string `bson:"json"`
}

func toPeriodModel(p *period.Period) (*periodModel, error) {
	m := &periodModel{
		ID:           p.ID.String(),
		Month:        string(p.Month),
		Status:       string(p.Status),
		ClosedAt:     p.ClosedAt,
		ClosedBy:     p.ClosedBy,
		SnapshotHash: p.SnapshotHash,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	if p.Snapshot != nil {
		b, err := json.Marshal(p.Snapshot)
		if err != nil {
			return nil, err
		}
		m.Snapshot = &snapshotModel{JSON: string(b)}
	}
	return m, nil
}

func fromPeriodModel(m *periodModel) (*period.Period, error) {
	periodID, err := id.ParsePeriodID(m.ID)
	if err != nil {
		return nil, err
	}
	p := &period.Period{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           periodID,
		Month:        period.Month(m.Month),
		Status:       period.Status(m.Status),
		ClosedAt:     utc(m.ClosedAt),
		ClosedBy:     m.ClosedBy,
		SnapshotHash: m.SnapshotHash,
	}
	if m.Snapshot != nil {
		p.Snapshot = new(period.Snapshot)
		if err := json.Unmarshal([]byte(m.Snapshot.JSON), p.Snapshot); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ==================== Anomaly models ====================

type anomalyModel struct {
	grove.BaseModel `grove:"table:daybook_anomalies"`

	ID             string     `grove:"id,pk"            bson:"_id"`
	OutletID       string     `grove:"outlet_id"        bson:"outlet_id"`
	Date           time.Time  `grove:"business_date"    bson:"business_date"`
	RuleType       string     `grove:"rule_type"        bson:"rule_type"`
	Severity       string     `grove:"severity"         bson:"severity"`
	Title          string     `grove:"title"            bson:"title"`
	Description    string     `grove:"description"      bson:"description"`
	Bucket         string     `grove:"bucket"           bson:"bucket"`
	DedupeKey      string     `grove:"dedupe_key"       bson:"dedupe_key"`
	TransactionIDs []string   `grove:"transaction_ids"  bson:"transaction_ids,omitempty"`
	RequiresReview bool       `grove:"requires_review"  bson:"requires_review"`
	DetectedAt     time.Time  `grove:"detected_at"      bson:"detected_at"`
	Status         string     `grove:"status"           bson:"status"`
	ResolvedBy     string     `grove:"resolved_by"      bson:"resolved_by,omitempty"`
	ResolvedAt     *time.Time `grove:"resolved_at"      bson:"resolved_at,omitempty"`
	ResolutionNote string     `grove:"resolution_note"  bson:"resolution_note,omitempty"`
}

func toAnomalyModel(a *anomaly.Anomaly) *anomalyModel {
	return &anomalyModel{
		ID:             a.ID.String(),
		OutletID:       a.OutletID,
		Date:           types.DateOf(a.Date),
		RuleType:       string(a.RuleType),
		Severity:       string(a.Severity),
		Title:          a.Title,
		Description:    a.Description,
		Bucket:         a.Bucket,
		DedupeKey:      a.DedupeKey,
		TransactionIDs: idStrings(a.TransactionIDs),
		RequiresReview: a.RequiresReview,
		DetectedAt:     a.DetectedAt,
		Status:         string(a.Status),
		ResolvedBy:     a.ResolvedBy,
		ResolvedAt:     a.ResolvedAt,
		ResolutionNote: a.ResolutionNote,
	}
}

func fromAnomalyModel(m *anomalyModel) (*anomaly.Anomaly, error) {
	anomalyID, err := id.ParseAnomalyID(m.ID)
	if err != nil {
		return nil, err
	}
	txnIDs, err := parseIDs(m.TransactionIDs, id.ParseTransactionID)
	if err != nil {
		return nil, err
	}
	return &anomaly.Anomaly{
		ID:             anomalyID,
		OutletID:       m.OutletID,
		Date:           businessDate(m.Date),
		RuleType:       anomaly.RuleType(m.RuleType),
		Severity:       anomaly.Severity(m.Severity),
		Title:          m.Title,
		Description:    m.Description,
		Bucket:         m.Bucket,
		DedupeKey:      m.DedupeKey,
		TransactionIDs: txnIDs,
		RequiresReview: m.RequiresReview,
		DetectedAt:     m.DetectedAt.UTC(),
		Status:         anomaly.Status(m.Status),
		ResolvedBy:     m.ResolvedBy,
		ResolvedAt:     utc(m.ResolvedAt),
		ResolutionNote: m.ResolutionNote,
	}, nil
}

type recommendationModel struct {
	grove.BaseModel `grove:"table:daybook_lock_recommendations"`

	ID         string     `grove:"id,pk"          bson:"_id"`
	OutletID   string     `grove:"outlet_id"      bson:"outlet_id"`
	Date       time.Time  `grove:"business_date"  bson:"business_date"`
	AnomalyIDs []string   `grove:"anomaly_ids"    bson:"anomaly_ids"`
	Reason     string     `grove:"reason"         bson:"reason"`
	Status     string     `grove:"status"         bson:"status"`
	CreatedAt  time.Time  `grove:"created_at"     bson:"created_at"`
	DecidedAt  *time.Time `grove:"decided_at"     bson:"decided_at,omitempty"`
	DecidedBy  string     `grove:"decided_by"     bson:"decided_by,omitempty"`
}

func toRecommendationModel(r *anomaly.Recommendation) *recommendationModel {
	return &recommendationModel{
		ID:         r.ID.String(),
		OutletID:   r.OutletID,
		Date:       types.DateOf(r.Date),
		AnomalyIDs: idStrings(r.AnomalyIDs),
		Reason:     r.Reason,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		DecidedAt:  r.DecidedAt,
		DecidedBy:  r.DecidedBy,
	}
}

func fromRecommendationModel(m *recommendationModel) (*anomaly.Recommendation, error) {
	recID, err := id.ParseRecommendationID(m.ID)
	if err != nil {
		return nil, err
	}
	anomalyIDs, err := parseIDs(m.AnomalyIDs, id.ParseAnomalyID)
	if err != nil {
		return nil, err
	}
	return &anomaly.Recommendation{
		ID:         recID,
		OutletID:   m.OutletID,
		Date:       businessDate(m.Date),
		AnomalyIDs: anomalyIDs,
		Reason:     m.Reason,
		Status:     anomaly.RecommendationStatus(m.Status),
		CreatedAt:  m.CreatedAt.UTC(),
		DecidedAt:  utc(m.DecidedAt),
		DecidedBy:  m.DecidedBy,
	}, nil
}

// ==================== Audit models ====================

type auditModel struct {
	grove.BaseModel `grove:"table:daybook_audit"`

	ID        string      `grove:"id,pk"      bson:"_id"`
	Actor     actorModel  `grove:"actor"      bson:"actor"`
	Action    string      `grove:"action"     bson:"action"`
	Entity    string      `grove:"entity"     bson:"entity"`
	EntityID  string      `grove:"entity_id"  bson:"entity_id"`
	Before    string      `grove:"before"     bson:"before,omitempty"`
	After     string      `grove:"after"      bson:"after,omitempty"`
	Reason    string      `grove:"reason"     bson:"reason,omitempty"`
	Severity  string      `grove:"severity"   bson:"severity"`
	Timestamp time.Time   `grove:"timestamp"  bson:"timestamp"`
	Origin    originModel `grove:"origin"     bson:"origin"`
}

type actorModel struct {
	ID   string `bson:"id"`
	Name string `bson:"name,omitempty"`
	Role string `bson:"role"`
}

type originModel struct {
	IP            string `bson:"ip,omitempty"`
	UserAgent     string `bson:"user_agent,omitempty"`
	RequestID     string `bson:"request_id,omitempty"`
	CorrelationID string `bson:"correlation_id"`
}

func toAuditModel(e *audit.Entry) *auditModel {
	return &auditModel{
		ID:        e.ID.String(),
		Actor:     actorModel{ID: e.Actor.ID, Name: e.Actor.Name, Role: string(e.Actor.Role)},
		Action:    string(e.Action),
		Entity:    string(e.Entity),
		EntityID:  e.EntityID,
		Before:    string(e.Before),
		After:     string(e.After),
		Reason:    e.Reason,
		Severity:  string(e.Severity),
		Timestamp: e.Timestamp,
		Origin: originModel{
			IP:            e.Origin.IP,
			UserAgent:     e.Origin.UserAgent,
			RequestID:     e.Origin.RequestID,
			CorrelationID: e.Origin.CorrelationID,
		},
	}
}

func fromAuditModel(m *auditModel) (*audit.Entry, error) {
	entryID, err := id.ParseAuditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	e := &audit.Entry{
		ID:        entryID,
		Actor:     access.Actor{ID: m.Actor.ID, Name: m.Actor.Name, Role: access.Role(m.Actor.Role)},
		Action:    audit.Action(m.Action),
		Entity:    audit.Entity(m.Entity),
		EntityID:  m.EntityID,
		Reason:    m.Reason,
		Severity:  audit.Severity(m.Severity),
		Timestamp: m.Timestamp.UTC(),
		Origin: audit.Origin{
			IP:            m.Origin.IP,
			UserAgent:     m.Origin.UserAgent,
			RequestID:     m.Origin.RequestID,
			CorrelationID: m.Origin.CorrelationID,
		},
	}
	if m.Before != "" {
		e.Before = json.RawMessage(m.Before)
	}
	if m.After != "" {
		e.After = json.RawMessage(m.After)
	}
	return e, nil
}

// ==================== Helpers ====================

// businessDate reads a stored date back as a midnight UTC business date.
func businessDate(t time.Time) time.Time {
	return types.DateOf(t.UTC())
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func idStrings(ids []id.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

func parseIDs(ss []string, parse func(string) (id.ID, error)) ([]id.ID, error) {
	if len(ss) == 0 {
		return nil, nil
	}
	out := make([]id.ID, 0, len(ss))
	for _, s := range ss {
		v, err := parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
