package daybook

import "github.com/xraph/daybook/types"

// Re-export common types so callers rarely need the types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	INR    = types.INR
	Rupees = types.Rupees
	Zero   = types.Zero
	Sum    = types.Sum
)

// Re-export date helpers
var (
	Date       = types.Date
	DateOf     = types.DateOf
	ParseDate  = types.ParseDate
	FormatDate = types.FormatDate
)
