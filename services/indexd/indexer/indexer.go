package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"benevault/core/events"
	"benevault/core/types"
	"benevault/observability"
	"benevault/services/indexd/models"
)

const cursorName = "events"

// Update mirrors one entry of the node event feed.
type Update struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Indexer applies feed entries to the relational store. Every apply advances
// the cursor in the same transaction as the row it writes, so a crash never
// leaves the cursor ahead of the data.
type Indexer struct {
	db      *gorm.DB
	logger  *slog.Logger
	metrics *observability.IndexdMetrics
	now     func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(ix *Indexer) {
		if l != nil {
			ix.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(ix *Indexer) {
		if now != nil {
			ix.now = now
		}
	}
}

// New constructs an indexer over a migrated database handle.
func New(db *gorm.DB, opts ...Option) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle required")
	}
	ix := &Indexer{
		db:      db,
		logger:  slog.Default(),
		metrics: observability.Indexd(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ix)
		}
	}
	return ix, nil
}

// Cursor returns the highest applied feed sequence, zero when nothing has been
// indexed yet.
func (ix *Indexer) Cursor() (uint64, error) {
	var cursor models.Cursor
	err := ix.db.First(&cursor, "name = ?", cursorName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}
	return cursor.Sequence, nil
}

// Apply persists one feed entry. Entries at or below the stored cursor are
// replays and are skipped without error.
func (ix *Indexer) Apply(update Update) error {
	if update.Sequence == 0 {
		return fmt.Errorf("feed entry missing sequence")
	}
	var applied bool
	err := ix.db.Transaction(func(tx *gorm.DB) error {
		var cursor models.Cursor
		err := tx.First(&cursor, "name = ?", cursorName).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			cursor = models.Cursor{Name: cursorName}
		case err != nil:
			return fmt.Errorf("load cursor: %w", err)
		}
		if update.Sequence <= cursor.Sequence {
			return nil
		}
		if update.Event != nil {
			if err := ix.applyEvent(tx, update); err != nil {
				return err
			}
		}
		cursor.Sequence = update.Sequence
		cursor.UpdatedAt = ix.now().UTC()
		if err := tx.Save(&cursor).Error; err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return err
	}
	if applied {
		eventType := ""
		if update.Event != nil {
			eventType = update.Event.Type
		}
		ix.metrics.RecordIndexed(eventType, update.Sequence)
	}
	return nil
}

func (ix *Indexer) applyEvent(tx *gorm.DB, update Update) error {
	attrs := update.Event.Attributes
	observed := ix.now().UTC()
	switch update.Event.Type {
	case events.TypeContributionReceived:
		row := models.Contribution{
			EventSequence: update.Sequence,
			Benefactor:    attrs["benefactor"],
			Amount:        attrString(attrs, "amount"),
			PendingTotal:  attrString(attrs, "pendingTotal"),
			ObservedAt:    observed,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
	case events.TypeConversionCompleted:
		recordSeq, err := attrUint64(attrs, "sequence")
		if err != nil {
			return err
		}
		benefactors, _ := strconv.Atoi(attrs["benefactors"])
		row := models.Conversion{
			EventSequence:   update.Sequence,
			RecordSequence:  recordSeq,
			Caller:          attrs["caller"],
			ConvertedTotal:  attrString(attrs, "convertedTotal"),
			SwapIn:          attrString(attrs, "swapIn"),
			SwapOut:         attrString(attrs, "swapOut"),
			LiquidityDelta:  attrString(attrs, "liquidityDelta"),
			Benefactors:     benefactors,
			AccumulatedFees: "0",
			ObservedAt:      observed,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert conversion: %w", err)
		}
	case events.TypeFeesRecorded:
		recordSeq, err := attrUint64(attrs, "sequence")
		if err != nil {
			return err
		}
		result := tx.Model(&models.Conversion{}).
			Where("record_sequence = ?", recordSeq).
			Update("accumulated_fees", attrString(attrs, "accumulatedFees"))
		if result.Error != nil {
			return fmt.Errorf("update conversion fees: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			ix.logger.Warn("fees recorded for unknown conversion", "record", recordSeq, "sequence", update.Sequence)
		}
	case events.TypeFeesClaimed:
		records, _ := strconv.Atoi(attrs["records"])
		row := models.Claim{
			EventSequence: update.Sequence,
			Benefactor:    attrs["benefactor"],
			Amount:        attrString(attrs, "amount"),
			Records:       records,
			ObservedAt:    observed,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert claim: %w", err)
		}
	case events.TypeRewardPaid, events.TypeRewardFailed:
		recordSeq, err := attrUint64(attrs, "sequence")
		if err != nil {
			return err
		}
		status := models.RewardStatusPaid
		if update.Event.Type == events.TypeRewardFailed {
			status = models.RewardStatusFailed
		}
		row := models.Reward{
			EventSequence:  update.Sequence,
			RecordSequence: recordSeq,
			Caller:         attrs["caller"],
			Amount:         attrString(attrs, "amount"),
			Status:         status,
			Reason:         attrs["reason"],
			ObservedAt:     observed,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("insert reward: %w", err)
		}
	default:
		// Position updates and future event types only move the cursor.
	}
	return nil
}

func attrString(attrs map[string]string, key string) string {
	if attrs == nil {
		return "0"
	}
	value := attrs[key]
	if value == "" {
		return "0"
	}
	return value
}

func attrUint64(attrs map[string]string, key string) (uint64, error) {
	raw := ""
	if attrs != nil {
		raw = attrs[key]
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %s=%q: %w", key, raw, err)
	}
	return parsed, nil
}
