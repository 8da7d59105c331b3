// Package archive keeps an append-only copy of every committed event in
// bbolt and folds match events into per-match summaries.
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/samber/do/v2"
	"github.com/vreid/wager/internal/pkg/chain"
	"github.com/vreid/wager/internal/pkg/common"
	"github.com/vreid/wager/internal/pkg/escrow"
	"go.etcd.io/bbolt"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var (
	ErrEventsBucketNotFound  = errors.New("events bucket doesn't exist")
	ErrMatchesBucketNotFound = errors.New("matches bucket doesn't exist")
	ErrHistoryBucketNotFound = errors.New("history bucket doesn't exist")
)

type ArchiveService struct {
	DatabaseService *common.DatabaseService

	EventSource <-chan chain.Event

	done chan struct{}
}

func NewArchiveService(i do.Injector) (*ArchiveService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	eventSource := do.MustInvokeNamed[<-chan chain.Event](i, "event-source")

	result := &ArchiveService{
		DatabaseService: databaseService,

		EventSource: eventSource,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

// Start consumes EventSource until it is closed.
func (s *ArchiveService) Start() {
	s.done = make(chan struct{})

	go s.processEvents()
}

// Wait blocks until every event sent before EventSource was closed is stored.
func (s *ArchiveService) Wait() {
	if s.done != nil {
		<-s.done
	}
}

func (s *ArchiveService) processEvents() {
	defer close(s.done)

	for ev := range s.EventSource {
		err := s.HandleEvent(ev)
		if err != nil {
			slog.Error("failed to archive event", "seq", ev.Seq, "name", ev.Name, "error", err)
		}
	}
}

//nolint:cyclop
func (s *ArchiveService) HandleEvent(ev chain.Event) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate record ID: %w", err)
	}

	record, err := json.Marshal(Record{ID: id.String(), Event: ev})
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	//nolint:wrapcheck
	return s.DatabaseService.DB.Update(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.ArchiveEventsBucket))
		if events == nil {
			return ErrEventsBucketNotFound
		}

		matches := tx.Bucket([]byte(common.ArchiveMatchesBucket))
		if matches == nil {
			return ErrMatchesBucketNotFound
		}

		history := tx.Bucket([]byte(common.ArchiveHistoryBucket))
		if history == nil {
			return ErrHistoryBucketNotFound
		}

		err := events.Put(common.Uint64ToBytes(ev.Seq), record)
		if err != nil {
			return fmt.Errorf("failed to put event: %w", err)
		}

		handle := ev.Emitter
		if ev.Name == "MatchCreated" {
			handle = gethcommon.HexToAddress(ev.Attributes["escrow"])
		}

		// Handles repeat across restarts, so each MatchCreated opens a new
		// summary keyed by its own sequence number; later events fold into
		// the newest one.
		var (
			summary MatchSummary
			key     []byte
		)

		if ev.Name == "MatchCreated" {
			key = matchKey(handle, ev.Seq)
		} else {
			var raw []byte

			key, raw = latest(matches, handle)
			if key == nil {
				return nil
			}

			err = json.Unmarshal(raw, &summary)
			if err != nil {
				return fmt.Errorf("failed to unmarshal summary: %w", err)
			}
		}

		fold(&summary, ev)

		raw, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}

		err = matches.Put(key, raw)
		if err != nil {
			return fmt.Errorf("failed to put summary: %w", err)
		}

		err = history.Put(append(key, common.Uint64ToBytes(ev.Seq)...), common.Uint64ToBytes(ev.Seq))
		if err != nil {
			return fmt.Errorf("failed to put history: %w", err)
		}

		return nil
	})
}

func fold(summary *MatchSummary, ev chain.Event) {
	switch ev.Name {
	case "MatchCreated":
		*summary = MatchSummary{
			Escrow:     gethcommon.HexToAddress(ev.Attributes["escrow"]).Hex(),
			Creator:    ev.Attributes["creator"],
			FeeAsset:   ev.Attributes["fee_asset"],
			Fee:        ev.Attributes["fee"],
			BetAsset:   ev.Attributes["bet_asset"],
			BetAmount:  ev.Attributes["bet_amount"],
			Status:     escrow.StatusOpen.String(),
			CreatedSeq: ev.Seq,
		}
	case "MatchJoined":
		summary.Counterparty = ev.Attributes["counterparty"]
		summary.Status = escrow.StatusActive.String()
	case "StepRecorded":
		summary.Steps++
	case "MatchSettled":
		summary.Status = escrow.StatusSettled.String()
		summary.Winner = ev.Attributes["account"]
		summary.Payout = ev.Attributes["payout"]
		summary.SettledSeq = ev.Seq
	}
}

func matchKey(handle gethcommon.Address, created uint64) []byte {
	return append(handle.Bytes(), common.Uint64ToBytes(created)...)
}

// latest returns the newest summary stored for handle.
func latest(matches *bbolt.Bucket, handle gethcommon.Address) ([]byte, []byte) {
	c := matches.Cursor()

	k, v := c.Seek(matchKey(handle, math.MaxUint64))
	if k == nil {
		k, v = c.Last()
	} else if !bytes.Equal(k, matchKey(handle, math.MaxUint64)) {
		k, v = c.Prev()
	}

	if k == nil || !bytes.HasPrefix(k, handle.Bytes()) {
		return nil, nil
	}

	return bytes.Clone(k), v
}

// ListEvents returns up to limit records with a sequence number above after.
func ListEvents(db *bbolt.DB, after uint64, limit int) ([]Record, error) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}

	result := []Record{}

	err := db.View(func(tx *bbolt.Tx) error {
		events := tx.Bucket([]byte(common.ArchiveEventsBucket))
		if events == nil {
			return ErrEventsBucketNotFound
		}

		c := events.Cursor()
		for k, v := c.Seek(common.Uint64ToBytes(after + 1)); k != nil && len(result) < limit; k, v = c.Next() {
			var record Record

			err := json.Unmarshal(v, &record)
			if err != nil {
				return fmt.Errorf("failed to unmarshal record %d: %w", common.BytesToUint64(k, 0), err)
			}

			result = append(result, record)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	return result, nil
}

// Match returns the summary and the events of one match, oldest first. A
// handle can be reused by a later run; created selects the match by the
// sequence number of its MatchCreated event, 0 picks the newest.
func Match(db *bbolt.DB, handle gethcommon.Address, created uint64) (*MatchHistory, error) {
	var result *MatchHistory

	err := db.View(func(tx *bbolt.Tx) error {
		matches := tx.Bucket([]byte(common.ArchiveMatchesBucket))
		if matches == nil {
			return ErrMatchesBucketNotFound
		}

		history := tx.Bucket([]byte(common.ArchiveHistoryBucket))
		if history == nil {
			return ErrHistoryBucketNotFound
		}

		events := tx.Bucket([]byte(common.ArchiveEventsBucket))
		if events == nil {
			return ErrEventsBucketNotFound
		}

		var key, raw []byte

		if created == 0 {
			key, raw = latest(matches, handle)
		} else {
			key = matchKey(handle, created)
			raw = matches.Get(key)
		}

		if raw == nil {
			return fmt.Errorf("%w: archived match %s", common.ErrNotFound, handle.Hex())
		}

		result = &MatchHistory{Events: []Record{}}

		err := json.Unmarshal(raw, &result.Summary)
		if err != nil {
			return fmt.Errorf("failed to unmarshal summary: %w", err)
		}

		c := history.Cursor()
		for k, v := c.Seek(key); k != nil && bytes.HasPrefix(k, key); k, v = c.Next() {
			var record Record

			err = json.Unmarshal(events.Get(v), &record)
			if err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}

			result.Events = append(result.Events, record)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
