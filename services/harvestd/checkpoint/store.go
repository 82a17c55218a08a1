package checkpoint

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCheckpoints = []byte("checkpoints")
	keyHarvest        = []byte("harvest")
)

// Checkpoint captures the durable progress of the harvest loop.
type Checkpoint struct {
	LastRun       time.Time `json:"lastRun"`
	LastJobID     string    `json:"lastJobId"`
	LastHarvested string    `json:"lastHarvested"`
	EventCursor   uint64    `json:"eventCursor"`
	Runs          uint64    `json:"runs"`
	Failures      uint64    `json:"failures"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Store persists harvest checkpoints in a Bolt database.
type Store struct {
	db *bolt.DB
}

// Open initialises (and migrates) the BoltDB-backed store.
func Open(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCheckpoints)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load fetches the stored checkpoint. A missing record yields the zero value
// with ok=false.
func (s *Store) Load() (Checkpoint, bool, error) {
	var (
		cp    Checkpoint
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCheckpoints).Get(keyHarvest)
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &cp); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Checkpoint{}, false, err
	}
	return cp, found, nil
}

// Save overwrites the stored checkpoint, stamping UpdatedAt.
func (s *Store) Save(cp Checkpoint) error {
	cp.UpdatedAt = time.Now().UTC()
	return s.db.Update(func(tx *bolt.Tx) error {
		payload, err := json.Marshal(cp)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCheckpoints).Put(keyHarvest, payload)
	})
}
