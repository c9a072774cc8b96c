// Package id defines the prefixed TypeID identifiers of daybook records.
//
// An ID reads "prefix_suffix", where the prefix names the record kind and
// the suffix is a UUIDv7, so IDs of one kind sort by creation time.
// Parsing with a kind-specific parser rejects an ID of another kind.
package id

import (
	"database/sql/driver"
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix names the record kind encoded in an ID.
type Prefix string

const (
	PrefixDay            Prefix = "day"
	PrefixTransaction    Prefix = "txn"
	PrefixPeriod         Prefix = "period"
	PrefixAnomaly        Prefix = "anom"
	PrefixRecommendation Prefix = "lrec"
	PrefixAuditEntry     Prefix = "audit"
)

// ID is a prefixed TypeID. The zero value is the nil ID.
//
//nolint:recvcheck // UnmarshalText and Scan mutate; the rest read.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero ID.
var Nil ID

// Aliases document which kind a field holds. They do not enforce it;
// the Parse* functions do.
type (
	DayID            = ID
	TransactionID    = ID
	PeriodID         = ID
	AnomalyID        = ID
	RecommendationID = ID
	AuditEntryID     = ID
)

// New generates an ID with the given prefix. It panics on a prefix
// TypeID rejects, which is a programming error.
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}
	return ID{inner: tid, valid: true}
}

func NewDayID() ID            { return New(PrefixDay) }
func NewTransactionID() ID    { return New(PrefixTransaction) }
func NewPeriodID() ID         { return New(PrefixPeriod) }
func NewAnomalyID() ID        { return New(PrefixAnomaly) }
func NewRecommendationID() ID { return New(PrefixRecommendation) }
func NewAuditEntryID() ID     { return New(PrefixAuditEntry) }

// Parse parses an ID of any kind.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires the given prefix.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}
	return parsed, nil
}

func ParseDayID(s string) (ID, error)            { return ParseWithPrefix(s, PrefixDay) }
func ParseTransactionID(s string) (ID, error)    { return ParseWithPrefix(s, PrefixTransaction) }
func ParsePeriodID(s string) (ID, error)         { return ParseWithPrefix(s, PrefixPeriod) }
func ParseAnomalyID(s string) (ID, error)        { return ParseWithPrefix(s, PrefixAnomaly) }
func ParseRecommendationID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRecommendation) }
func ParseAuditEntryID(s string) (ID, error)     { return ParseWithPrefix(s, PrefixAuditEntry) }

// String returns "prefix_suffix", or "" for the nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return i.inner.String()
}

// Prefix returns the record kind, or "" for the nil ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return Prefix(i.inner.Prefix())
}

// IsNil reports whether i is the zero ID.
func (i ID) IsNil() bool { return !i.valid }

// Equal reports whether i and o are the same ID.
func (i ID) Equal(o ID) bool { return i.String() == o.String() }

// MarshalText implements encoding.TextMarshaler. The nil ID marshals empty.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The nil ID stores NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // NULL
	}
	return i.inner.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
