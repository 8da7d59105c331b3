package common

import (
	"encoding/binary"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/samber/do/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	ArchiveEventsBucket  = "archive:events"
	ArchiveMatchesBucket = "archive:matches"
	ArchiveHistoryBucket = "archive:history"
)

type DatabaseService struct {
	DB *bolt.DB
}

func NewDatabaseService(i do.Injector) (*DatabaseService, error) {
	dataDir := do.MustInvokeNamed[string](i, "data-dir")

	return OpenDatabase(dataDir, false)
}

// OpenDatabase opens (and creates, unless read-only) wager.db inside dataDir.
func OpenDatabase(dataDir string, readOnly bool) (*DatabaseService, error) {
	if !readOnly {
		err := os.MkdirAll(dataDir, 0750)
		if err != nil {
			return nil, fmt.Errorf("failed to create database path: %w", err)
		}
	}

	dbPath := path.Join(dataDir, "wager.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if readOnly {
		return &DatabaseService{DB: db}, nil
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{
			ArchiveEventsBucket,
			ArchiveMatchesBucket,
			ArchiveHistoryBucket,
		} {
			_, err := tx.CreateBucketIfNotExists([]byte(bucket))
			if err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", bucket, err)
			}
		}

		return nil
	})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to initialize database buckets: %w", err)
	}

	return &DatabaseService{
		DB: db,
	}, nil
}

func (s *DatabaseService) Shutdown() error {
	//nolint:wrapcheck
	return s.DB.Close()
}

// LastEventSeq is the highest sequence number stored in the events bucket,
// 0 when it is empty.
func (s *DatabaseService) LastEventSeq() (uint64, error) {
	var seq uint64

	err := s.DB.View(func(tx *bolt.Tx) error {
		events := tx.Bucket([]byte(ArchiveEventsBucket))
		if events == nil {
			return nil
		}

		k, _ := events.Cursor().Last()
		seq = BytesToUint64(k, 0)

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read last event: %w", err)
	}

	return seq, nil
}

// Uint64ToBytes encodes big-endian so bbolt cursors iterate in numeric order.
func Uint64ToBytes(u uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, u)

	return buf
}

func BytesToUint64(b []byte, _default uint64) uint64 {
	if len(b) < 8 {
		return _default
	}

	return binary.BigEndian.Uint64(b)
}
