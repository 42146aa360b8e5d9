package queue

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Badger is the durable Backend: ready items live under keys that sort
// in priority order so a forward iterator reproduces heap order without
// badger itself knowing about priorities, and scheduled items live under
// a separate prefix keyed by due time so an iterator bounded by "now"
// finds exactly the overdue ones. Payloads are gob-encoded; callers must
// gob.Register their concrete item type (e.g. *spider.Task) before using
// a Badger backend, the same requirement encoding/gob always has for
// encoding values behind an interface.
type Badger struct {
	db  *badger.DB
	seq int64
}

const (
	readyPrefix = "ready/"
	schedPrefix = "sched/"
)

// OpenBadger opens (creating if necessary) a badger database at path to
// back the queue.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("queue: open badger at %s: %w", path, err)
	}
	return &Badger{db: db}, nil
}

// priorityOffset keeps the inverted priority non-negative across any
// realistic priority value without risking overflow.
const priorityOffset = 1 << 30

func readyKey(priority int, seq int64) []byte {
	// Higher priority must sort first; badger iterates keys ascending,
	// so invert the priority into the key.
	inverted := priorityOffset - priority
	return []byte(fmt.Sprintf("%s%020d/%020d", readyPrefix, inverted, seq))
}

func schedKey(at time.Time, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d/%020d", schedPrefix, at.UnixNano(), uint64(seq)))
}

func encodeItem(item any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&item); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeItem(data []byte) (any, error) {
	var item any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&item); err != nil {
		return nil, err
	}
	return item, nil
}

func (b *Badger) Put(ctx context.Context, item any, priority int, scheduleTime *time.Time) error {
	seq := atomic.AddInt64(&b.seq, 1)
	payload, err := encodeItem(item)
	if err != nil {
		return fmt.Errorf("queue: encode item: %w", err)
	}

	var key []byte
	if scheduleTime != nil && scheduleTime.After(time.Now()) {
		key = schedKey(*scheduleTime, seq)
	} else {
		key = readyKey(priority, seq)
	}

	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
}

// promoteOverdue moves every scheduled entry whose time has passed into
// the ready set at priority 1, matching Memory's promotion rule.
func (b *Badger) promoteOverdue() error {
	nowPrefix := []byte(fmt.Sprintf("%s%020d", schedPrefix, time.Now().UnixNano()))

	return b.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var toMove [][]byte
		for it.Seek([]byte(schedPrefix)); it.ValidForPrefix([]byte(schedPrefix)); it.Next() {
			key := it.Item().KeyCopy(nil)
			if bytes.Compare(key, nowPrefix) > 0 {
				break
			}
			toMove = append(toMove, key)
		}

		for _, key := range toMove {
			item, err := txn.Get(key)
			if err != nil {
				continue
			}
			payload, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			seq := atomic.AddInt64(&b.seq, 1)
			if err := txn.Set(readyKey(1, seq), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Badger) Get(ctx context.Context) (any, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := b.promoteOverdue(); err != nil {
			return nil, err
		}

		var found []byte
		var key []byte
		err := b.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			prefix := []byte(readyPrefix)
			it.Seek(prefix)
			if !it.ValidForPrefix(prefix) {
				return nil
			}
			key = it.Item().KeyCopy(nil)
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			found = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		if found != nil {
			if delErr := b.db.Update(func(txn *badger.Txn) error {
				return txn.Delete(key)
			}); delErr != nil {
				return nil, delErr
			}
			return decodeItem(found)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Badger) Size() (int, error) {
	count := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(readyPrefix)); it.ValidForPrefix([]byte(readyPrefix)); it.Next() {
			count++
		}
		for it.Seek([]byte(schedPrefix)); it.ValidForPrefix([]byte(schedPrefix)); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (b *Badger) Clear() error {
	return b.db.DropAll()
}

func (b *Badger) Close() error {
	return b.db.Close()
}
