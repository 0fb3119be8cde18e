package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerReason string

const (
	LedgerReasonBetDebit   LedgerReason = "bet_debit"
	LedgerReasonBetCredit  LedgerReason = "bet_credit"
	LedgerReasonVoidRefund LedgerReason = "void_refund"
	LedgerReasonDeposit    LedgerReason = "deposit"
)

// LedgerEntry is one append-only balance mutation. At most one entry exists
// per (BetID, Reason); stores reject duplicates, which is what makes settle
// and void retries safe.
type LedgerEntry struct {
	ID               string          `json:"id" redis:"id"`
	UserID           int64           `json:"user_id" redis:"user_id"`
	Currency         string          `json:"currency" redis:"currency"`
	Delta            decimal.Decimal `json:"delta" redis:"delta"`
	Reason           LedgerReason    `json:"reason" redis:"reason"`
	BetID            string          `json:"bet_id,omitempty" redis:"bet_id"`
	ResultingBalance decimal.Decimal `json:"resulting_balance" redis:"resulting_balance"`
	CreatedAt        time.Time       `json:"created_at" redis:"created_at"`
}
