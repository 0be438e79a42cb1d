// Package storage provides persistent data storage for the ensemble engine.
// It uses BoltDB as the underlying storage engine to store cross-validation
// score history and versioned snapshots of fitted ensembles.
//
// The package provides thread-safe operations for storing and retrieving
// time-series score data with efficient range queries and automatic bucket
// management.
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/ilyacartwright/iljicevs-ml/internal/ensemble"
)

const (
	scoresBucket    = "scores"    // Bucket name for cross-validation score history
	ensemblesBucket = "ensembles" // Bucket name for versioned ensemble snapshots
	metaBucket      = "meta"      // Bucket name for the active-version pointer
)

// Store provides persistent storage for engine data using BoltDB.
// It manages buckets for score history and ensemble snapshots and provides
// efficient time-range queries over past scoring runs.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
// Returns an error if the database cannot be opened or buckets cannot be created.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "iljicevs-ml.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{scoresBucket, ensemblesBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
// It should be called when the storage is no longer needed to ensure
// proper cleanup of database resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ScoreEntry couples a cross-validation record with the moment it was taken,
// so past scoring runs can be compared over time.
type ScoreEntry struct {
	Record    ensemble.ScoreRecord `json:"record"`
	Timestamp time.Time            `json:"timestamp"`
}

// StoreScores stores one scoring run's records, all stamped with the same
// timestamp. Each record is stored with a key format of
// "candidateID_timestamp_metric" for efficient per-candidate range queries.
func (s *Store) StoreScores(records []ensemble.ScoreRecord, at time.Time) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scoresBucket))

		for _, rec := range records {
			entry := ScoreEntry{Record: rec, Timestamp: at}
			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal score entry: %w", err)
			}

			key := fmt.Sprintf("%s_%d_%s", rec.CandidateID, at.UnixNano(), rec.Metric)
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScores retrieves score entries for a specific candidate within a time
// range. Returns entries ordered by timestamp, or an error if the query
// fails. The time range is inclusive of both start and end times.
func (s *Store) GetScores(candidateID string, start, end time.Time) ([]ScoreEntry, error) {
	var entries []ScoreEntry

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scoresBucket))
		c := b.Cursor()

		prefix := []byte(candidateID + "_")
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var entry ScoreEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue // Skip malformed records
			}

			// Another candidate id may extend this one ("knn" vs "knn_v2"),
			// so the decoded record decides ownership, not the key prefix.
			if entry.Record.CandidateID != candidateID {
				continue
			}

			if !entry.Timestamp.Before(start) && !entry.Timestamp.After(end) {
				entries = append(entries, entry)
			}
		}
		return nil
	})

	return entries, err
}
