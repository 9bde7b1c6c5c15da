package kv

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/tarmac-project/kvbridge"
	sdkproto "github.com/tarmac-project/protobuf-go/sdk"
	proto "github.com/tarmac-project/protobuf-go/sdk/kvstore"
	wapc "github.com/wapc/wapc-guest-tinygo"
	pb "google.golang.org/protobuf/proto"
)

const (
	capabilityName = "kvstore"
	fnGet          = "get"
	fnSet          = "set"
	fnDelete       = "delete"
	fnKeys         = "keys"

	hostStatusOK       = int32(200)
	hostStatusLegacyOK = int32(0)
	hostStatusBadInput = int32(400)
	hostStatusMissing  = int32(404)
	hostStatusError    = int32(500)
)

var (
	// ErrMarshalRequest wraps failures while encoding the request payload.
	ErrMarshalRequest = errors.New("failed to marshal request")

	// ErrUnmarshalResponse wraps failures while decoding the host response.
	ErrUnmarshalResponse = errors.New("failed to unmarshal response")
)

// Config controls how a HostStore interacts with the host runtime.
type Config struct {
	// SDKConfig provides the runtime namespace used for host calls.
	SDKConfig kvbridge.RuntimeConfig

	// HostCall overrides the waPC host function used for key-value operations.
	HostCall kvbridge.HostCall
}

// HostStore is a RawStore backed by the Tarmac key-value capability. Host
// keys are the column family, a slash and the hex encoded key, so host-side
// string order matches binary key order. The capability has no expiry, so
// writes with a TTL fail with ErrTTLUnsupported.
type HostStore struct {
	runtime  kvbridge.RuntimeConfig
	hostCall kvbridge.HostCall
}

// Ensure HostStore satisfies the RawStore interface at compile time.
var _ RawStore = (*HostStore)(nil)

// New creates a HostStore with namespace defaults and optional host-call override.
func New(config Config) (*HostStore, error) {
	hostCall := config.HostCall
	if hostCall == nil {
		hostCall = wapc.HostCall
	}

	return &HostStore{runtime: config.SDKConfig.WithDefaults(), hostCall: hostCall}, nil
}

// statusResponse is implemented by every kvstore response message.
type statusResponse interface {
	pb.Message
	GetStatus() *sdkproto.Status
}

func (s *HostStore) call(ctx context.Context, fn string, req pb.Message, resp statusResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b, err := pb.Marshal(req)
	if err != nil {
		return errors.Join(ErrMarshalRequest, err)
	}

	respBytes, callErr := s.hostCall(s.runtime.Namespace, capabilityName, fn, b)
	if callErr != nil && len(respBytes) == 0 {
		return errors.Join(kvbridge.ErrHostCall, callErr)
	}

	if unmarshalErr := pb.Unmarshal(respBytes, resp); unmarshalErr != nil {
		if callErr != nil {
			return errors.Join(
				kvbridge.ErrHostCall,
				callErr,
				kvbridge.ErrHostResponseInvalid,
				ErrUnmarshalResponse,
				unmarshalErr,
			)
		}
		return errors.Join(kvbridge.ErrHostResponseInvalid, ErrUnmarshalResponse, unmarshalErr)
	}

	return validateStatus(resp.GetStatus(), callErr)
}

func hostKey(cf ColumnFamily, key Key) string {
	return string(cf) + "/" + hex.EncodeToString(key)
}

func fromHostKey(cf ColumnFamily, hk string) (Key, bool) {
	rest, ok := strings.CutPrefix(hk, string(cf)+"/")
	if !ok {
		return nil, false
	}
	key, err := hex.DecodeString(rest)
	if err != nil {
		return nil, false
	}
	return key, true
}

// Get returns the value stored under key.
func (s *HostStore) Get(ctx context.Context, cf ColumnFamily, key Key) (Value, bool, error) {
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	var resp proto.KVStoreGetResponse
	err := s.call(ctx, fnGet, &proto.KVStoreGet{Key: hostKey(cf, key)}, &resp)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return Value(resp.GetData()), true, nil
}

// BatchGet returns the pairs for the keys that have values, in request order.
func (s *HostStore) BatchGet(ctx context.Context, cf ColumnFamily, keys []Key) ([]KvPair, error) {
	pairs := make([]KvPair, 0, len(keys))
	for _, key := range keys {
		v, ok, err := s.Get(ctx, cf, key)
		if err != nil {
			return nil, err
		}
		if ok {
			pairs = append(pairs, KvPair{Key: key, Value: v})
		}
	}
	return pairs, nil
}

// GetKeyTTL reports zero for every present key since the capability has no expiry.
func (s *HostStore) GetKeyTTL(ctx context.Context, cf ColumnFamily, key Key) (uint64, bool, error) {
	_, ok, err := s.Get(ctx, cf, key)
	return 0, ok, err
}

func (s *HostStore) keys(ctx context.Context, cf ColumnFamily, r BoundRange, limit uint32) ([]Key, error) {
	var resp proto.KVStoreKeysResponse
	if err := s.call(ctx, fnKeys, &proto.KVStoreKeys{ReturnProto: true}, &resp); err != nil {
		return nil, err
	}

	keys := make([]Key, 0, len(resp.GetKeys()))
	for _, hk := range resp.GetKeys() {
		key, ok := fromHostKey(cf, hk)
		if ok && r.Contains(key) {
			keys = append(keys, key)
		}
	}
	SortKeys(keys)
	return ApplyLimit(keys, limit), nil
}

// Scan lists the host keys, filters them to r and fetches each value.
func (s *HostStore) Scan(ctx context.Context, cf ColumnFamily, r BoundRange, limit uint32) ([]KvPair, error) {
	keys, err := s.keys(ctx, cf, r, limit)
	if err != nil {
		return nil, err
	}
	return s.BatchGet(ctx, cf, keys)
}

// ScanKeys returns up to limit keys within r in key order.
func (s *HostStore) ScanKeys(ctx context.Context, cf ColumnFamily, r BoundRange, limit uint32) ([]Key, error) {
	return s.keys(ctx, cf, r, limit)
}

// Put stores value under key. A non-zero ttl fails with ErrTTLUnsupported.
func (s *HostStore) Put(ctx context.Context, cf ColumnFamily, key Key, value Value, ttl uint64) error {
	if ttl > 0 {
		return ErrTTLUnsupported
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ValidateValue(value); err != nil {
		return err
	}

	var resp proto.KVStoreSetResponse
	return s.call(ctx, fnSet, &proto.KVStoreSet{Key: hostKey(cf, key), Data: value}, &resp)
}

// BatchPut stores every pair.
func (s *HostStore) BatchPut(ctx context.Context, cf ColumnFamily, pairs []KvPair) error {
	for _, p := range pairs {
		if err := s.Put(ctx, cf, p.Key, p.Value, 0); err != nil {
			return fmt.Errorf("batch put %x: %w", []byte(p.Key), err)
		}
	}
	return nil
}

// BatchPutWithTTL stores every pair; any non-zero TTL fails with ErrTTLUnsupported.
func (s *HostStore) BatchPutWithTTL(ctx context.Context, cf ColumnFamily, pairs []TTLPair) error {
	plain := make([]KvPair, 0, len(pairs))
	for _, p := range pairs {
		if p.TTL > 0 {
			return ErrTTLUnsupported
		}
		plain = append(plain, KvPair{Key: p.Key, Value: p.Value})
	}
	return s.BatchPut(ctx, cf, plain)
}

// Delete removes key. Deleting a missing key succeeds.
func (s *HostStore) Delete(ctx context.Context, cf ColumnFamily, key Key) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	var resp proto.KVStoreDeleteResponse
	err := s.call(ctx, fnDelete, &proto.KVStoreDelete{Key: hostKey(cf, key)}, &resp)
	if errors.Is(err, ErrKeyNotFound) {
		return nil
	}
	return err
}

// BatchDelete removes every key.
func (s *HostStore) BatchDelete(ctx context.Context, cf ColumnFamily, keys []Key) error {
	for _, key := range keys {
		if err := s.Delete(ctx, cf, key); err != nil {
			return fmt.Errorf("batch delete %x: %w", []byte(key), err)
		}
	}
	return nil
}

// DeleteRange removes every key within r.
func (s *HostStore) DeleteRange(ctx context.Context, cf ColumnFamily, r BoundRange) error {
	keys, err := s.keys(ctx, cf, r, math.MaxUint32)
	if err != nil {
		return err
	}
	return s.BatchDelete(ctx, cf, keys)
}

// Close releases resources held by the store.
func (s *HostStore) Close() error { return nil }

func validateStatus(status *sdkproto.Status, callErr error) error {
	if status == nil {
		if callErr != nil {
			return errors.Join(kvbridge.ErrHostCall, callErr, kvbridge.ErrHostResponseInvalid)
		}
		return kvbridge.ErrHostResponseInvalid
	}

	code := status.GetCode()
	switch code {
	case hostStatusOK, hostStatusLegacyOK:
		return nil
	case hostStatusMissing:
		return ErrKeyNotFound
	case hostStatusBadInput, hostStatusError:
		detail := fmt.Sprintf("host status %d", code)
		if msg := status.GetStatus(); msg != "" {
			detail = fmt.Sprintf("%s: %s", detail, msg)
		}
		if callErr != nil {
			return errors.Join(kvbridge.ErrHostCall, callErr, kvbridge.ErrHostError, errors.New(detail))
		}
		return errors.Join(kvbridge.ErrHostError, errors.New(detail))
	default:
		statusErr := fmt.Errorf("unexpected host status code %d", code)
		if callErr != nil {
			return errors.Join(kvbridge.ErrHostCall, callErr, kvbridge.ErrHostResponseInvalid, statusErr)
		}
		return errors.Join(kvbridge.ErrHostResponseInvalid, statusErr)
	}
}
