package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"

	"github.com/aurumlabs/custodia/logger"
	"github.com/aurumlabs/custodia/transaction"
)

var (
	ErrNotFound        = errors.New("transaction does not exist in the ledger")
	ErrCorruptedRecord = errors.New("ledger record cannot be decoded")
)

const (
	gcRuntimeTick = time.Minute * 5

	trxPrefix = "trx:"
	seqPrefix = "seq:"
	seqKey    = "ledger_sequence"
)

// Config is the configuration of the Ledger storage.
// Empty DBPath runs the storage fully in memory.
type Config struct {
	DBPath string `yaml:"db_path"`
}

// HistoryEntry is a single append-only status history record.
// Prior entries are never overwritten.
type HistoryEntry struct {
	Status    transaction.Status `json:"status"`
	Reason    string             `json:"reason"`
	CreatedAt time.Time          `json:"created_at"`
}

// Record holds the latest transaction snapshot together with the full
// status history since it was first recorded.
type Record struct {
	Transaction transaction.Transaction `json:"transaction"`
	History     []HistoryEntry          `json:"history"`
}

// Entry is a single line of an account statement.
type Entry struct {
	TrxID     string             `json:"trx_id"`
	Type      transaction.Type   `json:"type"`
	ChainID   string             `json:"chain_id"`
	Asset     string             `json:"asset"`
	Amount    decimal.Decimal    `json:"amount"`
	Direction string             `json:"direction"`
	Status    transaction.Status `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
}

// Statement is an account statement for a single entity over a time range.
type Statement struct {
	EntityID  string                     `json:"entity_id"`
	From      time.Time                  `json:"from"`
	To        time.Time                  `json:"to"`
	Entries   []Entry                    `json:"entries"`
	TotalIn   map[string]decimal.Decimal `json:"total_in"`
	TotalOut  map[string]decimal.Decimal `json:"total_out"`
	CreatedAt time.Time                  `json:"created_at"`
}

// Ledger is the durable append-only record of all transactions and their
// status transitions. Balances are derived by replaying completed
// transactions, never stored separately.
type Ledger struct {
	db  *badger.DB
	seq *badger.Sequence
	log logger.Logger
}

// New opens the Ledger storage or returns an error when the path cannot be read.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Ledger, error) {
	db, err := createBadgerDB(ctx, cfg.DBPath, log)
	if err != nil {
		return nil, err
	}
	seq, err := db.GetSequence([]byte(seqKey), 100)
	if err != nil {
		if errx := db.Close(); errx != nil {
			log.Warn(fmt.Sprintf("ledger storage close failure: %s", errx))
		}
		return nil, err
	}
	return &Ledger{db: db, seq: seq, log: log}, nil
}

// Close releases the underlying storage.
func (l *Ledger) Close() error {
	if err := l.seq.Release(); err != nil {
		l.log.Warn(fmt.Sprintf("ledger sequence release failure: %s", err))
	}
	return l.db.Close()
}

// RecordTransaction writes the transaction snapshot and appends a history
// entry with its current status. Subsequent calls for the same id update the
// snapshot while preserving the history.
func (l *Ledger) RecordTransaction(_ context.Context, trx *transaction.Transaction) error {
	id := trx.ID.Hex()
	snapshot := trx.Copy()
	return l.db.Update(func(txn *badger.Txn) error {
		rec := Record{Transaction: snapshot}
		item, err := txn.Get(trxKey(id))
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				var prev Record
				if err := json.Unmarshal(val, &prev); err != nil {
					return errors.Join(ErrCorruptedRecord, err)
				}
				rec.History = prev.History
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			n, err := l.seq.Next()
			if err != nil {
				return err
			}
			if err := txn.SetEntry(badger.NewEntry(seqNumKey(n), []byte(id))); err != nil {
				return err
			}
		default:
			return err
		}
		rec.History = append(rec.History, HistoryEntry{
			Status:    snapshot.Status,
			Reason:    snapshot.StatusReason,
			CreatedAt: time.Now(),
		})
		buf, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(trxKey(id), buf))
	})
}

// UpdateTransactionStatus appends a new history entry for the transaction and
// moves the snapshot status forward. It never overwrites prior entries.
func (l *Ledger) UpdateTransactionStatus(_ context.Context, id string, s transaction.Status, reason string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		rec, err := readRecord(txn, id)
		if err != nil {
			return err
		}
		rec.Transaction.UpdateStatus(s, reason)
		rec.History = append(rec.History, HistoryEntry{
			Status:    s,
			Reason:    reason,
			CreatedAt: time.Now(),
		})
		buf, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		return txn.SetEntry(badger.NewEntry(trxKey(id), buf))
	})
}

// GetTransaction reads a single record by transaction id.
func (l *Ledger) GetTransaction(_ context.Context, id string) (Record, error) {
	var rec Record
	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, id)
		return err
	})
	return rec, err
}

// GetTransactions reads up to limit most recently recorded transactions,
// most recent first.
func (l *Ledger) GetTransactions(_ context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	recs := make([]Record, 0, limit)
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(seqPrefix)
		opts.Reverse = true
		iter := txn.NewIterator(opts)
		defer iter.Close()

		seekPast := append([]byte(seqPrefix), 0xFF)
		for iter.Seek(seekPast); iter.Valid() && len(recs) < limit; iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := readRecord(txn, id)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	return recs, err
}

// EntityBalance derives the balance of an entity by replaying all completed
// transactions that touch it. Result maps chain id to asset to amount.
// Empty chainID or asset apply no filter.
func (l *Ledger) EntityBalance(ctx context.Context, entityID, chainID, asset string) (map[string]map[string]decimal.Decimal, error) {
	balance := make(map[string]map[string]decimal.Decimal)
	apply := func(trx *transaction.Transaction, sign decimal.Decimal) {
		if _, ok := balance[trx.ChainID]; !ok {
			balance[trx.ChainID] = make(map[string]decimal.Decimal)
		}
		balance[trx.ChainID][trx.Asset] = balance[trx.ChainID][trx.Asset].Add(trx.Amount.Mul(sign))
	}
	err := l.replay(ctx, func(rec *Record) {
		trx := &rec.Transaction
		if trx.Status != transaction.StatusCompleted {
			return
		}
		if chainID != "" && trx.ChainID != chainID {
			return
		}
		if asset != "" && trx.Asset != asset {
			return
		}
		if trx.To.ID == entityID {
			apply(trx, decimal.NewFromInt(1))
		}
		if trx.From.ID == entityID {
			apply(trx, decimal.NewFromInt(-1))
		}
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// AccountStatement builds a statement of all completed transactions touching
// the entity between from and to. Zero to defaults to now.
func (l *Ledger) AccountStatement(ctx context.Context, entityID string, from, to time.Time) (Statement, error) {
	if to.IsZero() {
		to = time.Now()
	}
	st := Statement{
		EntityID:  entityID,
		From:      from,
		To:        to,
		Entries:   make([]Entry, 0),
		TotalIn:   make(map[string]decimal.Decimal),
		TotalOut:  make(map[string]decimal.Decimal),
		CreatedAt: time.Now(),
	}
	err := l.replay(ctx, func(rec *Record) {
		trx := &rec.Transaction
		if trx.Status != transaction.StatusCompleted {
			return
		}
		if trx.CompletedAt.Before(from) || trx.CompletedAt.After(to) {
			return
		}
		var direction string
		switch {
		case trx.To.ID == entityID:
			direction = "in"
			st.TotalIn[trx.Asset] = st.TotalIn[trx.Asset].Add(trx.Amount)
		case trx.From.ID == entityID:
			direction = "out"
			st.TotalOut[trx.Asset] = st.TotalOut[trx.Asset].Add(trx.Amount)
		default:
			return
		}
		st.Entries = append(st.Entries, Entry{
			TrxID:     trx.ID.Hex(),
			Type:      trx.Type,
			ChainID:   trx.ChainID,
			Asset:     trx.Asset,
			Amount:    trx.Amount,
			Direction: direction,
			Status:    trx.Status,
			CreatedAt: trx.CompletedAt,
		})
	})
	return st, err
}

// replay walks all recorded transactions in recording order.
func (l *Ledger) replay(_ context.Context, f func(rec *Record)) error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(seqPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Seek([]byte(seqPrefix)); iter.Valid(); iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := readRecord(txn, id)
			if err != nil {
				return err
			}
			f(&rec)
		}
		return nil
	})
}

func readRecord(txn *badger.Txn, id string) (Record, error) {
	var rec Record
	item, err := txn.Get(trxKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return rec, ErrNotFound
		}
		return rec, err
	}
	if err := item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, &rec); err != nil {
			return errors.Join(ErrCorruptedRecord, err)
		}
		return nil
	}); err != nil {
		return rec, err
	}
	return rec, nil
}

func trxKey(id string) []byte {
	return []byte(trxPrefix + id)
}

func seqNumKey(n uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", seqPrefix, n))
}

func createBadgerDB(ctx context.Context, path string, l logger.Logger) (*badger.DB, error) {
	var opt badger.Options
	switch path {
	case "":
		opt = badger.DefaultOptions("").WithInMemory(true)
	default:
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		opt = badger.DefaultOptions(path)
	}

	db, err := badger.Open(opt)
	if err != nil {
		return nil, err
	}

	go func(ctx context.Context) {
		ticker := time.NewTicker(gcRuntimeTick)
		defer ticker.Stop()
		for range ticker.C {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if err := db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				l.Debug(fmt.Sprintf("ledger DB garbage collection failure: %s", err))
			}
		}
	}(ctx)

	return db, nil
}
