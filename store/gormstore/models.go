package gormstore

import (
	"encoding/json"
	"time"

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

type dayRow struct {
	ID       string    `gorm:"column:id;primaryKey;size:64"`
	OutletID string    `gorm:"column:outlet_id;size:64;not null;uniqueIndex:ux_daybook_days_outlet_date,priority:1"`
	Date     time.Time `gorm:"column:business_date;type:date;not null;uniqueIndex:ux_daybook_days_outlet_date,priority:2;index:ix_daybook_days_date"`
	Currency string    `gorm:"column:currency;size:8;not null"`
	Status   string    `gorm:"column:status;size:16;not null;index:ix_daybook_days_status"`

	OpeningCash int64 `gorm:"column:opening_cash;not null"`
	OpeningUPI  int64 `gorm:"column:opening_upi;not null"`
	OpeningSet  bool  `gorm:"column:opening_set;not null"`

	TotalIncome  int64 `gorm:"column:total_income;not null"`
	TotalExpense int64 `gorm:"column:total_expense;not null"`
	CashIn       int64 `gorm:"column:cash_in;not null"`
	CashOut      int64 `gorm:"column:cash_out;not null"`
	UPIIn        int64 `gorm:"column:upi_in;not null"`
	UPIOut       int64 `gorm:"column:upi_out;not null"`
	TxnCount     int   `gorm:"column:transaction_count;not null"`

	PhysicalCash int64  `gorm:"column:physical_cash;not null"`
	PhysicalUPI  int64  `gorm:"column:physical_upi;not null"`
	TallySet     bool   `gorm:"column:tally_set;not null"`
	TallyComment string `gorm:"column:tally_comment;type:text"`

	SubmittedAt  *time.Time `gorm:"column:submitted_at"`
	SubmittedBy  string     `gorm:"column:submitted_by;size:64"`
	LockedAt     *time.Time `gorm:"column:locked_at"`
	LockedBy     string     `gorm:"column:locked_by;size:64"`
	LockCause    string     `gorm:"column:lock_cause;size:255"`
	UnlockedAt   *time.Time `gorm:"column:unlocked_at"`
	UnlockedBy   string     `gorm:"column:unlocked_by;size:64"`
	UnlockReason string     `gorm:"column:unlock_reason;type:text"`
	SyncedAt     *time.Time `gorm:"column:synced_at"`

	Version   int64     `gorm:"column:version;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (dayRow) TableName() string { return "daybook_days" }

func toDayRow(r *day.Record) *dayRow {
	return &dayRow{
		ID:           r.ID.String(),
		OutletID:     r.OutletID,
		Date:         types.DateOf(r.Date),
		Currency:     r.Currency,
		Status:       string(r.Status),
		OpeningCash:  r.OpeningCash.Amount,
		OpeningUPI:   r.OpeningUPI.Amount,
		OpeningSet:   r.OpeningSet,
		TotalIncome:  r.Totals.Income.Amount,
		TotalExpense: r.Totals.Expense.Amount,
		CashIn:       r.Totals.CashIn.Amount,
		CashOut:      r.Totals.CashOut.Amount,
		UPIIn:        r.Totals.UPIIn.Amount,
		UPIOut:       r.Totals.UPIOut.Amount,
		TxnCount:     r.Totals.Count,
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

func fromDayRow(m *dayRow) (*day.Record, error) {
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
		Date:        types.DateOf(m.Date),
		Currency:    m.Currency,
		Status:      day.Status(m.Status),
		OpeningCash: money(m.OpeningCash),
		OpeningUPI:  money(m.OpeningUPI),
		OpeningSet:  m.OpeningSet,
		Totals: day.Totals{
			Income:  money(m.TotalIncome),
			Expense: money(m.TotalExpense),
			CashIn:  money(m.CashIn),
			CashOut: money(m.CashOut),
			UPIIn:   money(m.UPIIn),
			UPIOut:  money(m.UPIOut),
			Count:   m.TxnCount,
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

type txnRow struct {
	ID             string    `gorm:"column:id;primaryKey;size:64"`
	OutletID       string    `gorm:"column:outlet_id;size:64;not null;uniqueIndex:ux_daybook_txns_key,priority:1;index:ix_daybook_txns_outlet_date,priority:1"`
	Date           time.Time `gorm:"column:business_date;type:date;not null;index:ix_daybook_txns_outlet_date,priority:2"`
	DayID          string    `gorm:"column:daily_record_id;size:64;not null;index:ix_daybook_txns_day"`
	Type           string    `gorm:"column:type;size:16;not null"`
	Category       string    `gorm:"column:category;size:128;not null"`
	PaymentMode    string    `gorm:"column:payment_mode;size:16;not null"`
	Amount         int64     `gorm:"column:amount;not null"`
	Currency       string    `gorm:"column:currency;size:8;not null"`
	AccountCode    string    `gorm:"column:account_code;size:32"`
	AccountType    string    `gorm:"column:account_type;size:16"`
	Note           string    `gorm:"column:note;type:text"`
	CreatedBy      string    `gorm:"column:created_by;size:64;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	IsManual       bool      `gorm:"column:is_manual;not null"`
	IsReversal     bool      `gorm:"column:is_reversal;not null"`
	IdempotencyKey string    `gorm:"column:idempotency_key;size:128;not null;uniqueIndex:ux_daybook_txns_key,priority:2"`
}

func (txnRow) TableName() string { return "daybook_transactions" }

func toTxnRow(t *transaction.Transaction) *txnRow {
	m := &txnRow{
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
		m.AccountCode = t.Account.Code
		m.AccountType = string(t.Account.Type)
	}
	return m
}

func fromTxnRow(m *txnRow) (*transaction.Transaction, error) {
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
		Date:           types.DateOf(m.Date),
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
	if m.AccountCode != "" || m.AccountType != "" {
		t.Account = &transaction.Account{
			Code: m.AccountCode,
			Type: transaction.AccountType(m.AccountType),
		}
	}
	return t, nil
}

// ==================== Period models ====================

type periodRow struct {
	ID           string           `gorm:"column:id;primaryKey;size:64"`
	Month        string           `gorm:"column:month;size:7;not null;uniqueIndex:ux_daybook_periods_month"`
	Status       string           `gorm:"column:status;size:16;not null"`
	ClosedAt     *time.Time       `gorm:"column:closed_at"`
	ClosedBy     string           `gorm:"column:closed_by;size:64"`
	Snapshot     *period.Snapshot `gorm:"column:snapshot;type:text;serializer:json"`
	SnapshotHash string           `gorm:"column:snapshot_hash;size:64"`
	CreatedAt    time.Time        `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;not null"`
}

func (periodRow) TableName() string { return "daybook_periods" }

func toPeriodRow(p *period.Period) *periodRow {
	return &periodRow{
		ID:           p.ID.String(),
		Month:        string(p.Month),
		Status:       string(p.Status),
		ClosedAt:     p.ClosedAt,
		ClosedBy:     p.ClosedBy,
		Snapshot:     p.Snapshot,
		SnapshotHash: p.SnapshotHash,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// openPeriodRow is the placeholder row posting creates so that it has a
// row to hold a shared lock on.
func openPeriodRow(month period.Month, now time.Time) *periodRow {
	now = now.UTC()
	return &periodRow{
		ID:        id.NewPeriodID().String(),
		Month:     string(month),
		Status:    string(period.StatusOpen),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func fromPeriodRow(m *periodRow) (*period.Period, error) {
	periodID, err := id.ParsePeriodID(m.ID)
	if err != nil {
		return nil, err
	}
	return &period.Period{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt.UTC(),
			UpdatedAt: m.UpdatedAt.UTC(),
		},
		ID:           periodID,
		Month:        period.Month(m.Month),
		Status:       period.Status(m.Status),
		ClosedAt:     utc(m.ClosedAt),
		ClosedBy:     m.ClosedBy,
		Snapshot:     m.Snapshot,
		SnapshotHash: m.SnapshotHash,
	}, nil
}

// ==================== Anomaly models ====================

type anomalyRow struct {
	ID             string     `gorm:"column:id;primaryKey;size:64"`
	OutletID       string     `gorm:"column:outlet_id;size:64;not null;index:ix_daybook_anomalies_outlet,priority:1"`
	Date           time.Time  `gorm:"column:business_date;type:date;not null"`
	RuleType       string     `gorm:"column:rule_type;size:32;not null"`
	Severity       string     `gorm:"column:severity;size:16;not null"`
	Title          string     `gorm:"column:title;size:255;not null"`
	Description    string     `gorm:"column:description;type:text"`
	Bucket         string     `gorm:"column:bucket;size:64"`
	DedupeKey      string     `gorm:"column:dedupe_key;size:255;not null;uniqueIndex:ux_daybook_anomalies_dedupe"`
	TransactionIDs []string   `gorm:"column:transaction_ids;type:text;serializer:json"`
	RequiresReview bool       `gorm:"column:requires_review;not null"`
	DetectedAt     time.Time  `gorm:"column:detected_at;not null;index:ix_daybook_anomalies_outlet,priority:2"`
	Status         string     `gorm:"column:status;size:16;not null"`
	ResolvedBy     string     `gorm:"column:resolved_by;size:64"`
	ResolvedAt     *time.Time `gorm:"column:resolved_at"`
	ResolutionNote string     `gorm:"column:resolution_note;type:text"`
}

func (anomalyRow) TableName() string { return "daybook_anomalies" }

func toAnomalyRow(a *anomaly.Anomaly) *anomalyRow {
	txnIDs := make([]string, len(a.TransactionIDs))
	for i, t := range a.TransactionIDs {
		txnIDs[i] = t.String()
	}
	return &anomalyRow{
		ID:             a.ID.String(),
		OutletID:       a.OutletID,
		Date:           types.DateOf(a.Date),
		RuleType:       string(a.RuleType),
		Severity:       string(a.Severity),
		Title:          a.Title,
		Description:    a.Description,
		Bucket:         a.Bucket,
		DedupeKey:      a.DedupeKey,
		TransactionIDs: txnIDs,
		RequiresReview: a.RequiresReview,
		DetectedAt:     a.DetectedAt,
		Status:         string(a.Status),
		ResolvedBy:     a.ResolvedBy,
		ResolvedAt:     a.ResolvedAt,
		ResolutionNote: a.ResolutionNote,
	}
}

func fromAnomalyRow(m *anomalyRow) (*anomaly.Anomaly, error) {
	anomalyID, err := id.ParseAnomalyID(m.ID)
	if err != nil {
		return nil, err
	}
	var txnIDs []id.TransactionID
	for _, s := range m.TransactionIDs {
		t, err := id.ParseTransactionID(s)
		if err != nil {
			return nil, err
		}
		txnIDs = append(txnIDs, t)
	}
	return &anomaly.Anomaly{
		ID:             anomalyID,
		OutletID:       m.OutletID,
		Date:           types.DateOf(m.Date),
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

type recommendationRow struct {
	ID         string     `gorm:"column:id;primaryKey;size:64"`
	OutletID   string     `gorm:"column:outlet_id;size:64;not null;uniqueIndex:ux_daybook_recs_outlet_date,priority:1"`
	Date       time.Time  `gorm:"column:business_date;type:date;not null;uniqueIndex:ux_daybook_recs_outlet_date,priority:2"`
	AnomalyIDs []string   `gorm:"column:anomaly_ids;type:text;serializer:json"`
	Reason     string     `gorm:"column:reason;type:text"`
	Status     string     `gorm:"column:status;size:16;not null;index:ix_daybook_recs_status"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	DecidedAt  *time.Time `gorm:"column:decided_at"`
	DecidedBy  string     `gorm:"column:decided_by;size:64"`
}

func (recommendationRow) TableName() string { return "daybook_lock_recommendations" }

func toRecommendationRow(r *anomaly.Recommendation) *recommendationRow {
	ids := make([]string, len(r.AnomalyIDs))
	for i, a := range r.AnomalyIDs {
		ids[i] = a.String()
	}
	return &recommendationRow{
		ID:         r.ID.String(),
		OutletID:   r.OutletID,
		Date:       types.DateOf(r.Date),
		AnomalyIDs: ids,
		Reason:     r.Reason,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		DecidedAt:  r.DecidedAt,
		DecidedBy:  r.DecidedBy,
	}
}

func fromRecommendationRow(m *recommendationRow) (*anomaly.Recommendation, error) {
	recID, err := id.ParseRecommendationID(m.ID)
	if err != nil {
		return nil, err
	}
	var ids []id.AnomalyID
	for _, s := range m.AnomalyIDs {
		a, err := id.ParseAnomalyID(s)
		if err != nil {
			return nil, err
		}
		ids = append(ids, a)
	}
	return &anomaly.Recommendation{
		ID:         recID,
		OutletID:   m.OutletID,
		Date:       types.DateOf(m.Date),
		AnomalyIDs: ids,
		Reason:     m.Reason,
		Status:     anomaly.RecommendationStatus(m.Status),
		CreatedAt:  m.CreatedAt.UTC(),
		DecidedAt:  utc(m.DecidedAt),
		DecidedBy:  m.DecidedBy,
	}, nil
}

// ==================== Audit models ====================

type auditRow struct {
	ID            string    `gorm:"column:id;primaryKey;size:64"`
	ActorID       string    `gorm:"column:actor_id;size:64;not null;index:ix_daybook_audit_actor"`
	ActorName     string    `gorm:"column:actor_name;size:128"`
	ActorRole     string    `gorm:"column:actor_role;size:32;not null"`
	Action        string    `gorm:"column:action;size:64;not null"`
	Entity        string    `gorm:"column:entity;size:32;not null;index:ix_daybook_audit_entity,priority:1"`
	EntityID      string    `gorm:"column:entity_id;size:64;not null;index:ix_daybook_audit_entity,priority:2"`
	Before        string    `gorm:"column:before_state;type:text"`
	After         string    `gorm:"column:after_state;type:text"`
	Reason        string    `gorm:"column:reason;type:text"`
	Severity      string    `gorm:"column:severity;size:16;not null"`
	Timestamp     time.Time `gorm:"column:timestamp;not null;index:ix_daybook_audit_timestamp"`
	IP            string    `gorm:"column:ip;size:64"`
	UserAgent     string    `gorm:"column:user_agent;size:255"`
	RequestID     string    `gorm:"column:request_id;size:64"`
	CorrelationID string    `gorm:"column:correlation_id;size:64;not null"`
}

func (auditRow) TableName() string { return "daybook_audit_entries" }

func toAuditRow(e *audit.Entry) *auditRow {
	return &auditRow{
		ID:            e.ID.String(),
		ActorID:       e.Actor.ID,
		ActorName:     e.Actor.Name,
		ActorRole:     string(e.Actor.Role),
		Action:        string(e.Action),
		Entity:        string(e.Entity),
		EntityID:      e.EntityID,
		Before:        string(e.Before),
		After:         string(e.After),
		Reason:        e.Reason,
		Severity:      string(e.Severity),
		Timestamp:     e.Timestamp,
		IP:            e.Origin.IP,
		UserAgent:     e.Origin.UserAgent,
		RequestID:     e.Origin.RequestID,
		CorrelationID: e.Origin.CorrelationID,
	}
}

func fromAuditRow(m *auditRow) (*audit.Entry, error) {
	entryID, err := id.ParseAuditEntryID(m.ID)
	if err != nil {
		return nil, err
	}
	return &audit.Entry{
		ID: entryID,
		Actor: access.Actor{
			ID:   m.ActorID,
			Name: m.ActorName,
			Role: access.Role(m.ActorRole),
		},
		Action:    audit.Action(m.Action),
		Entity:    audit.Entity(m.Entity),
		EntityID:  m.EntityID,
		Before:    rawJSON(m.Before),
		After:     rawJSON(m.After),
		Reason:    m.Reason,
		Severity:  audit.Severity(m.Severity),
		Timestamp: m.Timestamp.UTC(),
		Origin: audit.Origin{
			IP:            m.IP,
			UserAgent:     m.UserAgent,
			RequestID:     m.RequestID,
			CorrelationID: m.CorrelationID,
		},
	}, nil
}

// ==================== Helpers ====================

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func rawJSON(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	return json.RawMessage(s)
}

// allModels lists every table for AutoMigrate.
func allModels() []any {
	return []any{
		&dayRow{},
		&txnRow{},
		&periodRow{},
		&anomalyRow{},
		&recommendationRow{},
		&auditRow{},
	}
}
