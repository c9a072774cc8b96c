// Package daybook is the integrity core of a retail outlet's daily cash and
// UPI ledger.
//
// Daybook is a library, not a service. Import it into the application that
// owns the outlets and give it a store. It provides:
//
//   - A transaction gate that admits or refuses every posting and read
//   - A day state machine (OPEN, SUBMITTED, LOCKED) with audited unlocks
//   - Reconciliation of recorded cash and UPI against the physical tally
//   - Anomaly rules with dedupe keys and lock recommendations
//   - Month-end closure behind a checklist, frozen on a hashed snapshot
//   - An append-only audit trail written in the same unit as each change
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/daybook"
//	    "github.com/xraph/daybook/store/memory"
//	)
//
//	eng, err := daybook.New(memory.New(),
//	    daybook.WithLogger(slog.Default()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Posting
//
// Every posting carries an idempotency key. Retrying with the same key
// returns the stored transaction and changes nothing:
//
//	txn, err := eng.PostTransaction(ctx, daybook.PostTransactionInput{
//	    OutletID:       "outlet-12",
//	    Type:           transaction.TypeIncome,
//	    Category:       "sales",
//	    PaymentMode:    transaction.ModeCash,
//	    Amount:         2500_00, // ₹2,500
//	    Actor:          access.Actor{ID: "u-7", Role: access.RoleOutletStaff},
//	    IdempotencyKey: "pos-88412",
//	})
//	if daybook.IsGateDenied(err) {
//	    // day locked, period closed or outside the back-date window
//	}
//
// # Closing a day and a month
//
//	eng.SetPhysicalTally(ctx, dayID, cash, upi, "", actor)
//	eng.TransitionDay(ctx, daybook.TransitionInput{DayID: dayID, Target: day.StatusLocked, Actor: actor})
//	res, _ := eng.CanClose(ctx, "2024-03")
//	p, err := eng.ClosePeriod(ctx, "2024-03", headOffice)
//
// # Money and time
//
// Amounts are int64 minor units (paise). Business dates are civil dates in
// the configured timezone (Asia/Kolkata by default); hours before the day
// start hour (07:00) belong to the previous business date.
//
// # TypeID
//
// All entities use TypeID identifiers:
//
//	day_01h2xcejqtf2nbrexx3vqjhp41   // Day ID
//	txn_01h2xcejqtf2nbrexx3vqjhp41   // Transaction ID
//	anom_01h455vb4pex5vsknk084sn02q  // Anomaly ID
package daybook
