package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pelora/outreach/internal/models"
)

var bucketSnapshots = []byte("snapshots")

// Store persists the recipient list captured at approval time, keyed by
// campaign id. Freezing the list here means later edits to consumer
// data never change an in-flight campaign's targets.
type Store struct {
	db *bolt.DB
}

// New opens (or creates) the snapshot database at path.
func New(path string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSnapshots)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create snapshot bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Capture stores the resolved recipient list for a campaign, replacing
// any previous snapshot.
func (s *Store) Capture(campaignID string, recipients []models.Recipient) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(recipients)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := tx.Bucket(bucketSnapshots).Put([]byte(campaignID), data); err != nil {
			return fmt.Errorf("failed to store snapshot: %w", err)
		}
		return nil
	})
}

// Get returns the snapshot for a campaign, or nil if none was captured.
func (s *Store) Get(campaignID string) ([]models.Recipient, error) {
	var recipients []models.Recipient

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSnapshots).Get([]byte(campaignID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &recipients)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	return recipients, nil
}

// Delete removes a campaign's snapshot.
func (s *Store) Delete(campaignID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte(campaignID))
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
