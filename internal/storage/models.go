package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRecord captures an emitted alert for auditing.
type AlertRecord struct {
	ID        int64
	Symbol    string
	Kind      string
	Price     decimal.Decimal
	Level     decimal.Decimal
	Rationale string
	FiredAt   time.Time
	Channels  []string
	CreatedAt time.Time
}

// AlertStateRecord is the persisted debounce state of one symbol.
type AlertStateRecord struct {
	Symbol      string
	Armed       bool
	LastFiredAt *time.Time
	UpdatedAt   time.Time
}
