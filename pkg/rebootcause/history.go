package rebootcause

import (
	"errors"
	"fmt"
	"os"
	"time"

	"watchdogd/pkg/codec"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
)

const historyPrefix = "cause/"

// record 是写入 badger 的值，时间保存为毫秒
type record struct {
	AtMillis  int64  `cbor:"1,keyasint"`
	Component string `cbor:"2,keyasint"`
}

// History 在 badger 中归档历次重启原因
type History struct {
	db     *badger.DB
	logger *zap.SugaredLogger
}

// badgerLogger 把 badger 的日志接到 zap 上
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}

func OpenHistory(path string, logger *zap.SugaredLogger) (*History, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(badgerLogger{logger}).
		WithLoggingLevel(badger.WARNING)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open reboot cause history %s: %w", path, err)
	}

	return &History{
		db:     db,
		logger: logger,
	}, nil
}

func (h *History) Close() error {
	return h.db.Close()
}

func historyKey(c Cause) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", historyPrefix, c.At.UnixMilli(), c.Component))
}

// Add 写入一条记录，同一时间同一组件只保存一次，返回是否为新记录
func (h *History) Add(c Cause) (bool, error) {
	encoder, err := codec.GetEncoder()
	if err != nil {
		return false, err
	}

	data, err := encoder.Marshal(record{AtMillis: c.At.UnixMilli(), Component: c.Component})
	if err != nil {
		return false, err
	}

	key := historyKey(c)
	added := false

	err = h.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		added = true
		return txn.Set(key, data)
	})

	return added, err
}

// Ingest 归档原因文件；文件不存在返回 nil
//
// consume 为 true 时归档后删除原因文件。
func (h *History) Ingest(path string, consume bool) (*Cause, error) {
	c, err := Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	added, err := h.Add(c)
	if err != nil {
		return nil, err
	}

	if added {
		h.logger.Infof("Archived reboot cause %q from %s", c.Component, c.At.Format("2006-01-02T15:04:05.000Z07:00"))
	}

	if consume {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return &c, err
		}
	}

	return &c, nil
}

// List 按时间从旧到新返回所有记录
func (h *History) List() ([]Cause, error) {
	causes := make([]Cause, 0)

	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{
			PrefetchValues: true,
			PrefetchSize:   16,
			Prefix:         []byte(historyPrefix),
		})
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec record
				if err := cbor.Unmarshal(val, &rec); err != nil {
					return err
				}
				causes = append(causes, Cause{At: time.UnixMilli(rec.AtMillis), Component: rec.Component})
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	return causes, err
}
