package synckit

import (
	"context"
	"encoding/json"
	"fmt"

	syncErrors "github.com/c0deZ3R0/sitesync/errors"
)

// KV is the persistence collaborator: an opaque key-value store that keeps
// the sync state across restarts.
type KV interface {
	// Get returns the value stored under key. ok is false if the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Close releases the resources held by the store.
	Close() error
}

// Codec encodes the persisted state. JSONCodec is the default.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec encodes with encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// RecordsKey and DataKey return the keys the state is persisted under.
func RecordsKey(prefix string) string { return prefix + ".records" }
func DataKey(prefix string) string    { return prefix + ".data" }

// SaveSnapshot writes the records and data of snap to kv.
func SaveSnapshot[D, E any](ctx context.Context, kv KV, codec Codec, prefix string, snap *Snapshot[D, E]) error {
	records, err := codec.Marshal(snap.Records())
	if err != nil {
		return syncErrors.E(syncErrors.OpSave, syncErrors.Component("persist"), syncErrors.KindInvalid, err)
	}
	data, err := codec.Marshal(snap.Data())
	if err != nil {
		return syncErrors.E(syncErrors.OpSave, syncErrors.Component("persist"), syncErrors.KindInvalid, err)
	}

	if err := kv.Set(ctx, RecordsKey(prefix), records); err != nil {
		return syncErrors.E(syncErrors.OpSave, syncErrors.Component("persist"), err)
	}
	if err := kv.Set(ctx, DataKey(prefix), data); err != nil {
		return syncErrors.E(syncErrors.OpSave, syncErrors.Component("persist"), err)
	}
	return nil
}

// LoadSnapshot reads records and data from kv. found is false when nothing
// was persisted under prefix yet.
func LoadSnapshot[D, E any](ctx context.Context, kv KV, codec Codec, prefix string) (data map[string]D, rs Records[D, E], found bool, err error) {
	rawRecords, okRecords, err := kv.Get(ctx, RecordsKey(prefix))
	if err != nil {
		return nil, nil, false, syncErrors.E(syncErrors.OpLoad, syncErrors.Component("persist"), err)
	}
	rawData, okData, err := kv.Get(ctx, DataKey(prefix))
	if err != nil {
		return nil, nil, false, syncErrors.E(syncErrors.OpLoad, syncErrors.Component("persist"), err)
	}
	if !okRecords && !okData {
		return nil, nil, false, nil
	}

	rs = make(Records[D, E])
	data = make(map[string]D)
	if okRecords {
		if err := codec.Unmarshal(rawRecords, &rs); err != nil {
			return nil, nil, false, syncErrors.E(syncErrors.OpLoad, syncErrors.Component("persist"), syncErrors.KindInvalid,
				fmt.Errorf("decode %s: %w", RecordsKey(prefix), err))
		}
	}
	if okData {
		if err := codec.Unmarshal(rawData, &data); err != nil {
			return nil, nil, false, syncErrors.E(syncErrors.OpLoad, syncErrors.Component("persist"), syncErrors.KindInvalid,
				fmt.Errorf("decode %s: %w", DataKey(prefix), err))
		}
	}
	return data, rs, true, nil
}
