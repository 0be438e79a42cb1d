package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const activeKey = "active"

// EnsembleVersion describes one persisted ensemble snapshot.
type EnsembleVersion struct {
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Members   []string  `json:"members"`
	Note      string    `json:"note,omitempty"`
}

type ensembleRecord struct {
	EnsembleVersion
	Blob []byte `json:"blob"`
}

// SaveEnsemble stores a serialized ensemble as a new version and makes it
// the active one. Returns the assigned version number.
func (s *Store) SaveEnsemble(blob []byte, members []string, note string) (uint64, error) {
	var version uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ensemblesBucket))

		v, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next version: %w", err)
		}
		version = v

		rec := ensembleRecord{
			EnsembleVersion: EnsembleVersion{
				Version:   v,
				CreatedAt: time.Now().UTC(),
				Members:   members,
				Note:      note,
			},
			Blob: blob,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal ensemble record: %w", err)
		}
		if err := b.Put(versionKey(v), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), versionKey(v))
	})
	return version, err
}

// LoadVersion retrieves the blob of a specific ensemble version.
func (s *Store) LoadVersion(version uint64) ([]byte, error) {
	var blob []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(ensemblesBucket)).Get(versionKey(version))
		if data == nil {
			return fmt.Errorf("ensemble version %d not found", version)
		}
		var rec ensembleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal ensemble record: %w", err)
		}
		blob = rec.Blob
		return nil
	})
	return blob, err
}

// LoadActive retrieves the currently active ensemble blob and its version.
// Returns an error if no version has been activated.
func (s *Store) LoadActive() ([]byte, uint64, error) {
	version, ok, err := s.ActiveVersion()
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("no active ensemble version")
	}
	blob, err := s.LoadVersion(version)
	return blob, version, err
}

// ActiveVersion returns the active version number and whether one is set.
func (s *Store) ActiveVersion() (uint64, bool, error) {
	var version uint64
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))
		if data == nil {
			return nil
		}
		if len(data) != 8 {
			return fmt.Errorf("corrupt active-version pointer")
		}
		version = binary.BigEndian.Uint64(data)
		ok = true
		return nil
	})
	return version, ok, err
}

// Activate marks an existing version as the active one.
func (s *Store) Activate(version uint64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(ensemblesBucket)).Get(versionKey(version)) == nil {
			return fmt.Errorf("ensemble version %d not found", version)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), versionKey(version))
	})
}

// Rollback activates the newest version older than the active one and
// returns it. Fails when there is nothing to roll back to.
func (s *Store) Rollback() (uint64, error) {
	var target uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket([]byte(metaBucket))
		data := meta.Get([]byte(activeKey))
		if data == nil {
			return fmt.Errorf("no active ensemble version")
		}

		c := tx.Bucket([]byte(ensemblesBucket)).Cursor()
		c.Seek(data)
		k, _ := c.Prev()
		if k == nil {
			return fmt.Errorf("no earlier ensemble version to roll back to")
		}
		target = binary.BigEndian.Uint64(k)
		return meta.Put([]byte(activeKey), versionKey(target))
	})
	return target, err
}

// Versions lists all stored ensemble versions in ascending order.
func (s *Store) Versions() ([]EnsembleVersion, error) {
	var versions []EnsembleVersion
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(ensemblesBucket)).ForEach(func(_, v []byte) error {
			var rec ensembleRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil // Skip malformed records
			}
			versions = append(versions, rec.EnsembleVersion)
			return nil
		})
	})
	return versions, err
}

// versionKey encodes a version number so keys sort numerically.
func versionKey(v uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, v)
	return key
}
