// Package ledger implements the campaign-funding engine: an append-only
// registry of campaigns, a shared fund pool and the settlement rules that
// connect them.
//
// Every operation runs inside a single bbolt write transaction, so a failed
// precondition or payout leaves no partial state behind. The pool tracks
// both its total balance and the committed portion (the sum of unsettled
// amount_raised); residual withdrawal by the authority only ever touches
// the free remainder, so funds owed to open campaigns cannot be drained.
//
// The payout sender runs inside the settlement transaction and must not
// call back into the ledger.
package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/fundry/internal/events"
	"github.com/foxzi/fundry/internal/payout"
)

var (
	bucketCampaigns = []byte("campaigns")
	bucketPool      = []byte("pool")
)

var (
	keyPoolTotal     = []byte("total")
	keyPoolCommitted = []byte("committed")
)

// Options configure a Ledger.
type Options struct {
	// Authority receives residual withdrawals.
	Authority Address
	// AuthorityKeyHash is the bcrypt hash of the authority's withdrawal
	// key. Empty means withdrawals are disabled.
	AuthorityKeyHash string
	// Sender performs external value transfers. Required.
	Sender payout.Sender
	// Events receives notifications, best-effort. May be nil.
	Events events.Sink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Ledger is the campaign registry plus pool accounting, persisted in bbolt.
type Ledger struct {
	db               *bolt.DB
	sender           payout.Sender
	sink             events.Sink
	authority        Address
	authorityKeyHash string
	logger           *slog.Logger
	now              func() time.Time
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string, opts Options) (*Ledger, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("ledger requires a payout sender")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCampaigns, bucketPool} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{
		db:               db,
		sender:           opts.Sender,
		sink:             opts.Events,
		authority:        opts.Authority,
		authorityKeyHash: opts.AuthorityKeyHash,
		logger:           opts.Logger,
		now:              opts.Now,
	}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// notify emits an event without affecting the calling operation.
func (l *Ledger) notify(ctx context.Context, ev events.Event) {
	if l.sink == nil {
		return
	}
	if err := l.sink.Publish(ctx, ev); err != nil {
		l.logger.Warn("failed to publish event", "kind", ev.Kind, "error", err)
	}
}

// itob encodes an id as a big-endian key so bucket order matches creation
// order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func btoi(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func getCampaign(tx *bolt.Tx, id uint64) (*Campaign, error) {
	data := tx.Bucket(bucketCampaigns).Get(itob(id))
	if data == nil {
		return nil, ErrNotFound
	}

	c := &Campaign{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode campaign %d: %w", id, err)
	}
	return c, nil
}

func putCampaign(tx *bolt.Tx, c *Campaign) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode campaign %d: %w", c.ID, err)
	}
	return tx.Bucket(bucketCampaigns).Put(itob(c.ID), data)
}

func poolGet(tx *bolt.Tx, key []byte) uint64 {
	return btoi(tx.Bucket(bucketPool).Get(key))
}

func poolPut(tx *bolt.Tx, key []byte, v uint64) error {
	return tx.Bucket(bucketPool).Put(key, itob(v))
}
