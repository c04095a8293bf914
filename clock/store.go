package clock

import "encoding/binary"

// RecordSize is the wire size of a persisted clock record:
// {epoch_seconds: 8 bytes, utc_offset_seconds: 4 bytes}, little-endian.
const RecordSize = 12

// Record is the only state that survives a deep-sleep cycle. An Epoch of
// zero is reserved to mean "never synchronized"; any nonzero value is
// treated as valid absolute time, even if stale.
type Record struct {
	// Epoch is Unix seconds. Zero is the unset sentinel.
	Epoch uint64
	// OffsetSec is the signed seconds to add to Epoch for local time.
	OffsetSec int32
}

// Unset reports whether the record carries the never-synchronized sentinel.
func (r Record) Unset() bool { return r.Epoch == 0 }

// Encode writes the record into dst, which must be at least RecordSize long.
func (r Record) Encode(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], r.Epoch)
	binary.LittleEndian.PutUint32(dst[8:12], uint32(r.OffsetSec))
}

// DecodeRecord reads a record from src, which must be at least RecordSize long.
func DecodeRecord(src []byte) Record {
	return Record{
		Epoch:     binary.LittleEndian.Uint64(src[0:8]),
		OffsetSec: int32(binary.LittleEndian.Uint32(src[8:12])),
	}
}

// Store reads and writes the persisted clock record. The backing region
// survives deep sleep but not full power loss; a never-written region must
// load as the unset record, not fail.
//
// The store is exclusively owned by the orchestrator, which only touches it
// while no other task runs, so implementations need no locking.
type Store interface {
	Load() (Record, error)
	Store(Record) error
}

// MemStore is an in-memory Store used by tests and the host simulator. The
// zero value behaves like a never-written region.
type MemStore struct {
	rec Record
}

func (m *MemStore) Load() (Record, error)  { return m.rec, nil }
func (m *MemStore) Store(r Record) error   { m.rec = r; return nil }
