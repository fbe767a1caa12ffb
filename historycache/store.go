// Package historycache persists one row per completed fetch and answers
// the URL+engine freshness-window cache lookup, built on the same
// pebble-backed shared KV store shape: an append-only, prefix-iterable
// keyspace maps directly onto "one row per fetch, prefer the most
// recent".
package historycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/fxamacker/cbor/v2"

	"github.com/zxjlm/playwright-gateway/fetchtypes"
)

// FreshnessWindow is how long a status-200 row remains cache-eligible.
const FreshnessWindow = 24 * time.Hour

// Store is the append-only history keyspace: history/<url_hash>/<engine>/<created_at_unix_nano>.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble store at path. An empty path opens an
// in-memory store, used by tests.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{}
	if path == "" {
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// URLHash is the sha256 used as the cache key's first component.
func URLHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func rowKey(urlHash string, engine fetchtypes.Engine, createdAt time.Time) []byte {
	return []byte(fmt.Sprintf("history/%s/%s/%020d", urlHash, engine, createdAt.UnixNano()))
}

func rowPrefix(urlHash string, engine fetchtypes.Engine) []byte {
	return []byte(fmt.Sprintf("history/%s/%s/", urlHash, engine))
}

// Append writes one history row. Rows are never updated in place.
func (s *Store) Append(ctx context.Context, rec *fetchtypes.HistoryRecord) error {
	if rec.URLHash == "" {
		rec.URLHash = URLHash(rec.URL)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.UpdatedAt = rec.CreatedAt

	buf, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Set(rowKey(rec.URLHash, rec.Engine, rec.CreatedAt), buf, pebble.NoSync)
}

// Lookup implements the cache policy: a hit requires a
// matching row with status==200 and created_at within FreshnessWindow,
// preferring the most recent row when multiple exist.
func (s *Store) Lookup(ctx context.Context, url string, engine fetchtypes.Engine) (*fetchtypes.HistoryRecord, bool, error) {
	urlHash := URLHash(url)
	prefix := rowPrefix(urlHash, engine)

	iter, err := s.db.NewIterWithContext(ctx, &pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = iter.Close() }()

	cutoff := time.Now().Add(-FreshnessWindow)

	// Keys embed a zero-padded nanosecond timestamp, so lexicographic
	// order is chronological; scan newest-first.
	for ok := iter.Last(); ok; ok = iter.Prev() {
		val, err := iter.ValueAndErr()
		if err != nil {
			continue
		}

		var rec fetchtypes.HistoryRecord
		if err := cbor.Unmarshal(val, &rec); err != nil {
			continue
		}

		if rec.Status != 200 {
			continue
		}
		if rec.CreatedAt.Before(cutoff) {
			// Scanning newest-first, so every remaining row is older
			// still and can't be fresh either.
			break
		}
		return &rec, true, nil
	}

	return nil, false, nil
}

func upperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
