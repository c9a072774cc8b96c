package reconcile

import (
	"sort"

	"github.com/xraph/daybook/transaction"
	"github.com/xraph/daybook/types"
)

// Settlement accounts the payment-mode leg of a posting lands on.
const (
	AccountCash         = "cash"
	AccountUPIClearing  = "upi_clearing"
	AccountCardClearing = "card_clearing"
	AccountReceivable   = "receivable"
	AccountPayable      = "payable"
)

// Line is one account row of a trial balance.
type Line struct {
	Code    string                  `json:"code"`
	Type    transaction.AccountType `json:"type"`
	Debit   int64                   `json:"debit"`
	Credit  int64                   `json:"credit"`
	Balance int64                   `json:"balance"` // on the account's normal side

	// Settlement marks a payment-mode row. Its amounts are shown but not
	// counted in the trial balance totals.
	Settlement bool `json:"settlement,omitempty"`
}

// TrialBalance aggregates debits and credits across ledger accounts.
type TrialBalance struct {
	Lines        []Line      `json:"lines"`
	Debit        types.Money `json:"debit"`
	Credit       types.Money `json:"credit"`
	Imbalance    types.Money `json:"imbalance"`
	Contributing int         `json:"contributing"`
}

// Balanced reports whether the trial balance proves the books balance. An
// empty trial balance proves nothing and is never balanced.
func (tb TrialBalance) Balanced(epsilon int64) bool {
	return tb.Contributing > 0 && tb.Imbalance.Amount < epsilon
}

// DebitsAccount reports whether a mapped transaction lands on the debit
// side of its account. Income debits asset and expense accounts and
// credits liability, income and equity accounts. Expense is the reverse.
func DebitsAccount(t *transaction.Transaction) bool {
	return t.Account.Type.DebitNormal() == (t.Type == transaction.TypeIncome)
}

// BuildTrialBalance totals the account leg of each mapped transaction on
// the side DebitsAccount gives it. The payment-mode leg is listed on the
// opposite side of a settlement line and stays out of the totals.
// Transactions without a mapped account are skipped.
func BuildTrialBalance(currency string, txns []*transaction.Transaction) TrialBalance {
	if currency == "" {
		currency = types.DefaultCurrency
	}

	type key struct {
		code       string
		settlement bool
	}
	lines := make(map[key]*Line)
	line := func(code string, typ transaction.AccountType, settlement bool) *Line {
		k := key{code, settlement}
		l, ok := lines[k]
		if !ok {
			l = &Line{Code: code, Type: typ, Settlement: settlement}
			lines[k] = l
		}
		return l
	}

	var debit, credit int64
	contributing := 0

	for _, t := range txns {
		if !t.Account.Mapped() || t.Amount.Amount <= 0 {
			continue
		}
		contributing++

		acct := line(t.Account.Code, t.Account.Type, false)
		settleCode, settleType := settlementAccount(t)
		settle := line(settleCode, settleType, true)

		amt := t.Amount.Amount
		if DebitsAccount(t) {
			acct.Debit += amt
			settle.Credit += amt
			debit += amt
		} else {
			acct.Credit += amt
			settle.Debit += amt
			credit += amt
		}
	}

	tb := TrialBalance{
		Debit:        types.Money{Amount: debit, Currency: currency},
		Credit:       types.Money{Amount: credit, Currency: currency},
		Contributing: contributing,
	}
	diff := debit - credit
	if diff < 0 {
		diff = -diff
	}
	tb.Imbalance = types.Money{Amount: diff, Currency: currency}

	for _, l := range lines {
		if l.Type.DebitNormal() {
			l.Balance = l.Debit - l.Credit
		} else {
			l.Balance = l.Credit - l.Debit
		}
		tb.Lines = append(tb.Lines, *l)
	}
	sort.Slice(tb.Lines, func(i, j int) bool {
		a, b := tb.Lines[i], tb.Lines[j]
		if a.Settlement != b.Settlement {
			return !a.Settlement
		}
		return a.Code < b.Code
	})

	return tb
}

func settlementAccount(t *transaction.Transaction) (string, transaction.AccountType) {
	switch t.PaymentMode {
	case transaction.ModeUPI:
		return AccountUPIClearing, transaction.AccountAsset
	case transaction.ModeCard:
		return AccountCardClearing, transaction.AccountAsset
	case transaction.ModeCredit:
		if t.Type == transaction.TypeExpense {
			return AccountPayable, transaction.AccountLiability
		}
		return AccountReceivable, transaction.AccountAsset
	default:
		return AccountCash, transaction.AccountAsset
	}
}
