package models

import (
	"time"

	"gorm.io/gorm"
)

// Reward settlement outcomes.
const (
	RewardStatusPaid   = "paid"
	RewardStatusFailed = "failed"
)

// Contribution records one benefactor deposit observed on the feed.
type Contribution struct {
	EventSequence uint64 `gorm:"primaryKey;autoIncrement:false"`
	Benefactor    string `gorm:"size:64;index"`
	Amount        string `gorm:"size:80"`
	PendingTotal  string `gorm:"size:80"`
	ObservedAt    time.Time
}

// Conversion records one completed conversion. AccumulatedFees tracks the
// lifetime fee total credited to the conversion by later harvest events.
type Conversion struct {
	EventSequence   uint64 `gorm:"primaryKey;autoIncrement:false"`
	RecordSequence  uint64 `gorm:"uniqueIndex"`
	Caller          string `gorm:"size:64;index"`
	ConvertedTotal  string `gorm:"size:80"`
	SwapIn          string `gorm:"size:80"`
	SwapOut         string `gorm:"size:80"`
	LiquidityDelta  string `gorm:"size:80"`
	Benefactors     int
	AccumulatedFees string `gorm:"size:80"`
	ObservedAt      time.Time
}

// Claim records one benefactor fee withdrawal.
type Claim struct {
	EventSequence uint64 `gorm:"primaryKey;autoIncrement:false"`
	Benefactor    string `gorm:"size:64;index"`
	Amount        string `gorm:"size:80"`
	Records       int
	ObservedAt    time.Time
}

// Reward records one caller incentive settlement, paid or failed.
type Reward struct {
	EventSequence  uint64 `gorm:"primaryKey;autoIncrement:false"`
	RecordSequence uint64 `gorm:"index"`
	Caller         string `gorm:"size:64;index"`
	Amount         string `gorm:"size:80"`
	Status         string `gorm:"size:16;index"`
	Reason         string `gorm:"size:255"`
	ObservedAt     time.Time
}

// Cursor stores the resume point of the feed consumer.
type Cursor struct {
	Name      string `gorm:"primaryKey;size:32"`
	Sequence  uint64
	UpdatedAt time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Contribution{},
		&Conversion{},
		&Claim{},
		&Reward{},
		&Cursor{},
	)
}
