package kv

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// --------------------------------------------------------------------------
// Instrumented Wrapper
// --------------------------------------------------------------------------

// Instrument decorates a Database with per-operation call and failure
// counters, exposed through the VictoriaMetrics default registry as
// rkv_backend_ops_total and rkv_backend_failures_total, labeled by backend
// name and operation.
func Instrument(name string, db Database) Database {
	return &instrumented{name: name, db: db}
}

type instrumented struct {
	name string
	db   Database
}

func (m *instrumented) count(op string, st Status) Status {
	metrics.GetOrCreateCounter(fmt.Sprintf(
		`rkv_backend_ops_total{backend=%q,op=%q}`, m.name, op)).Inc()
	if st != StatusOK {
		metrics.GetOrCreateCounter(fmt.Sprintf(
			`rkv_backend_failures_total{backend=%q,op=%q,status=%q}`, m.name, op, st)).Inc()
	}
	return st
}

func (m *instrumented) Type() string                { return m.db.Type() }
func (m *instrumented) Config() string              { return m.db.Config() }
func (m *instrumented) IsSorted() bool              { return m.db.IsSorted() }
func (m *instrumented) SupportsMode(mode Mode) bool { return m.db.SupportsMode(mode) }

func (m *instrumented) Count(mode Mode) (uint64, Status) {
	n, st := m.db.Count(mode)
	return n, m.count("count", st)
}

func (m *instrumented) Exists(mode Mode, keys UserMem, ksizes []uint64, flags BitField) Status {
	return m.count("exists", m.db.Exists(mode, keys, ksizes, flags))
}

func (m *instrumented) Length(mode Mode, keys UserMem, ksizes []uint64, vsizes []uint64) Status {
	return m.count("length", m.db.Length(mode, keys, ksizes, vsizes))
}

func (m *instrumented) Put(mode Mode, keys UserMem, ksizes []uint64, vals UserMem, vsizes []uint64) Status {
	return m.count("put", m.db.Put(mode, keys, ksizes, vals, vsizes))
}

func (m *instrumented) Get(mode Mode, packed bool, keys UserMem, ksizes []uint64,
	vals *UserMem, vsizes []uint64) Status {
	return m.count("get", m.db.Get(mode, packed, keys, ksizes, vals, vsizes))
}

func (m *instrumented) Fetch(mode Mode, keys UserMem, ksizes []uint64, cb FetchCallback) Status {
	return m.count("fetch", m.db.Fetch(mode, keys, ksizes, cb))
}

func (m *instrumented) Erase(mode Mode, keys UserMem, ksizes []uint64) Status {
	return m.count("erase", m.db.Erase(mode, keys, ksizes))
}

func (m *instrumented) ListKeys(mode Mode, packed bool, fromKey, filter []byte,
	keys *UserMem, ksizes []uint64) Status {
	return m.count("list_keys", m.db.ListKeys(mode, packed, fromKey, filter, keys, ksizes))
}

func (m *instrumented) ListKeyValues(mode Mode, packed bool, fromKey, filter []byte,
	keys *UserMem, ksizes []uint64, vals *UserMem, vsizes []uint64) Status {
	return m.count("list_keyvals",
		m.db.ListKeyValues(mode, packed, fromKey, filter, keys, ksizes, vals, vsizes))
}

func (m *instrumented) StartMigration() (MigrationHandle, Status) {
	h, st := m.db.StartMigration()
	return h, m.count("start_migration", st)
}

func (m *instrumented) Destroy() Status {
	return m.count("destroy", m.db.Destroy())
}

func (m *instrumented) Close() error { return m.db.Close() }
