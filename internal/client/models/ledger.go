package models

import "time"

// LedgerAction is the direction of a credits change.
type LedgerAction string

const (
	LedgerEarn  LedgerAction = "earn"
	LedgerSpend LedgerAction = "spend"
)

// LedgerEntry is an append-only Credit_History row.
type LedgerEntry struct {
	ID          string       `json:"id,omitempty"`
	UserID      string       `json:"user_id"`
	Amount      int64        `json:"amount"`
	ActionType  LedgerAction `json:"action_type"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
}

// CreditPackage is a purchasable bundle of credits. Price is in whole
// currency units.
type CreditPackage struct {
	ID       int    `json:"id"`
	Credits  int64  `json:"credits"`
	Price    int64  `json:"price"`
	Popular  bool   `json:"popular"`
	Discount string `json:"discount,omitempty"`
}

// CreditPackages lists the bundles offered on the buy-credits screen.
var CreditPackages = []CreditPackage{
	{ID: 1, Credits: 100, Price: 30},
	{ID: 2, Credits: 300, Price: 80, Popular: true, Discount: "11%"},
	{ID: 3, Credits: 500, Price: 120, Discount: "20%"},
	{ID: 4, Credits: 1000, Price: 220, Discount: "26%"},
}

// FindCreditPackage looks a package up by id.
func FindCreditPackage(id int) (CreditPackage, bool) {
	for _, p := range CreditPackages {
		if p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}
