// Package checkpoint stores fitted unit parameters in a bolt database,
// so an interrupted run can be resumed without refitting finished
// units.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// UNITS is the bucket name for unit checkpoints.
var UNITS = []byte("units")

// CheckpointData stores checkpoint data of a single unit.
type CheckpointData struct {
	Parameters map[string]float64
	Likelihood float64
	Iter       int
	Final      bool
}

// Open opens (or creates) a checkpoint database.
func Open(fn string) (*bolt.DB, error) {
	return bolt.Open(fn, 0666, &bolt.Options{Timeout: time.Second})
}

// CheckpointIO saves and loads checkpoints of one unit.
type CheckpointIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO for the unit key.
// Intermediate checkpoints are saved at most every seconds.
func NewCheckpointIO(db *bolt.DB, key string, seconds float64) *CheckpointIO {
	return &CheckpointIO{
		db:      db,
		key:     []byte(key),
		seconds: seconds,
	}
}

// Save saves checkpoint to the database.
func (s *CheckpointIO) Save(data *CheckpointData) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Errorf("Error serializing checkpoint: %v", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Errorf("Error saving checkpoint: %v", err)
	}
	return err
}

// Load returns the unit checkpoint, or nil if there is none.
func (s *CheckpointIO) Load() (*CheckpointData, error) {
	var data *CheckpointData

	b, err := LoadData(s.db, s.key)
	if err != nil || b == nil {
		return nil, err
	}

	if err = json.Unmarshal(b, &data); err != nil {
		return nil, err
	}

	if data == nil || len(data.Parameters) == 0 {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished checkpoint for %s (lnL=%v)", s.key, data.Likelihood)
	} else {
		log.Noticef("Found unfinished checkpoint for %s (iter=%v, lnL=%v)", s.key, data.Iter, data.Likelihood)
	}

	return data, nil
}

// Old returns true if the last checkpoint was saved too long ago.
func (s *CheckpointIO) Old() bool {
	return time.Since(s.last).Seconds() > s.seconds
}

// SetNow sets last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(UNITS)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

// LoadData loads data from bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(UNITS)
		if b == nil {
			return nil
		}
		// values are only valid within the transaction
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Keys returns keys of all the stored checkpoints.
func Keys(db *bolt.DB) (keys []string, err error) {
	if db == nil {
		return nil, nil
	}
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(UNITS)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return
}
