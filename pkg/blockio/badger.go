package blockio

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

var pinPrefix = []byte("pin/")

// StoreConfig configures the Badger-backed block store.
type StoreConfig struct {
	Paths            []string // absolute path, at the moment only the first path is used
	MinimumFreeSpace int      // in GB
	Logger           *logrus.Logger
}

// BadgerStore persists blocks in a Badger key-value database, keyed by the
// binary form of their CID.
type BadgerStore struct {
	config   StoreConfig
	badgerDB *badger.DB
	log      *logrus.Logger
}

// NewBadgerStore opens the database at config.Paths[0]. It refuses to open
// when the volume has less free space than configured.
func NewBadgerStore(config StoreConfig) (*BadgerStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	if len(config.Paths) == 0 {
		return nil, fmt.Errorf("no storage path configured")
	}

	if err := checkFreeSpace(config); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // 100MB per value log file
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", config.Paths[0], err)
	}

	return &BadgerStore{
		config:   config,
		badgerDB: db,
		log:      config.Logger,
	}, nil
}

func checkFreeSpace(config StoreConfig) error {
	usage, err := disk.Usage(config.Paths[0])
	if err != nil {
		// a missing directory is created by badger; skip the check then
		return nil
	}

	freeGB := float64(usage.Free) / 1e9
	config.Logger.WithFields(logrus.Fields{
		"path":      config.Paths[0],
		"free (GB)": fmt.Sprintf("%.2f", freeGB),
		"used %":    fmt.Sprintf("%.1f", usage.UsedPercent),
	}).Info("Block store disk usage")

	if config.MinimumFreeSpace > 0 && freeGB < float64(config.MinimumFreeSpace) {
		return fmt.Errorf("not enough free space on %s: %.2f GB free, %d GB required",
			config.Paths[0], freeGB, config.MinimumFreeSpace)
	}

	return nil
}

func (b *BadgerStore) Put(ctx context.Context, block blocks.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(block.Cid().Bytes(), block.RawData())
	})
}

func (b *BadgerStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := b.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Bytes())
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read block %s: %w", CIDString(c), err)
	}

	return blocks.NewBlockWithCid(data, c)
}

func (b *BadgerStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := b.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(c.Bytes())
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (b *BadgerStore) Pin(ctx context.Context, c cid.Cid) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(append(pinPrefix, c.Bytes()...), nil)
	})
}

// Close syncs and closes the underlying database.
func (b *BadgerStore) Close() error {
	if err := b.badgerDB.Sync(); err != nil {
		b.log.Errorf("error syncing db: %v", err)
	}
	return b.badgerDB.Close()
}

var _ Store = (*BadgerStore)(nil)
