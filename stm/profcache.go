package stm

import (
	"encoding/json"
	"fmt"
	"io"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/jad-hamza/vscoq/backend"
)

// profCache memoizes request_ltac_prof results within a single STM
// session, keyed by state-id. It is backed by an in-memory-only Badger
// instance: nothing here is ever written to disk, matching the "does
// not persist state across sessions" non-goal — the cache's lifetime
// is exactly the controller's, and it is torn down on dispose.
//
// Profiling a given sentence is expensive and idempotent (the result
// for an already-Complete sentence never changes), so caching is a
// pure latency win with no staleness risk as long as cancellation
// evicts the entry (handled by the controller calling invalidate).
type profCache struct {
	db *badger.DB
}

func newProfCache(maxSizeBytes int64) (*profCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	if maxSizeBytes > 0 {
		opts = opts.WithMemTableSize(maxSizeBytes)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("stm: open profiling cache: %w", err)
	}
	return &profCache{db: db}, nil
}

func profCacheKey(stateID int) []byte {
	return []byte(fmt.Sprintf("ltac_prof:%d", stateID))
}

// get returns a cached result for stateID, if present.
func (c *profCache) get(stateID int) (backend.ProfilingResults, bool) {
	var results backend.ProfilingResults
	found := false

	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(profCacheKey(stateID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if jerr := json.Unmarshal(val, &results); jerr != nil {
				return jerr
			}
			found = true
			return nil
		})
	})
	if err != nil {
		return backend.ProfilingResults{}, false
	}
	return results, found
}

// put stores results for stateID.
func (c *profCache) put(stateID int, results backend.ProfilingResults) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	_ = c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(profCacheKey(stateID), data)
	})
}

// invalidate drops a cached result, called when a sentence is
// cancelled or edited so a stale profile is never served.
func (c *profCache) invalidate(stateID int) {
	_ = c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(profCacheKey(stateID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// close releases the in-memory store. Implements io.Closer so the
// controller can defer it alongside the backend transport.
func (c *profCache) close() error {
	return c.db.Close()
}

var _ io.Closer = (*profCache)(nil)

func (c *profCache) Close() error { return c.close() }
