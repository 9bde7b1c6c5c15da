package mock

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tarmac-project/kvbridge/kv"
)

// Operation names used for per-call configuration and call records.
const (
	OpGet         = "GET"
	OpBatchGet    = "BATCH_GET"
	OpGetKeyTTL   = "GET_KEY_TTL"
	OpScan        = "SCAN"
	OpScanKeys    = "SCAN_KEYS"
	OpPut         = "PUT"
	OpBatchPut    = "BATCH_PUT"
	OpDelete      = "DELETE"
	OpBatchDelete = "BATCH_DELETE"
	OpDeleteRange = "DELETE_RANGE"
	OpBegin       = "BEGIN"
	OpSnapshot    = "SNAPSHOT"
	OpTimestamp   = "TIMESTAMP"
	OpGC          = "GC"
	OpKeyExists   = "KEY_EXISTS"
	OpGetForUpd   = "GET_FOR_UPDATE"
	OpLockKeys    = "LOCK_KEYS"
	OpInsert      = "INSERT"
	OpCommit      = "COMMIT"
	OpRollback    = "ROLLBACK"
)

// Config configures the mock store.
type Config struct {
	// Seed pre-populates the default column family of the raw store.
	Seed map[string][]byte

	// TxnSeed pre-populates the transactional store as if committed at timestamp 1.
	TxnSeed map[string][]byte

	// Now overrides the clock used for raw TTLs.
	Now func() time.Time
}

// Response describes a configured mock outcome.
type Response struct {
	// Err is returned by the operation.
	Err error
	// Wait delays the operation until it is closed or the context ends.
	Wait <-chan struct{}
}

// ResponseBuilder allows fluent configuration of responses.
type ResponseBuilder struct {
	m   *Store
	key string
}

// ReturnError sets an error for the configured operation.
func (b *ResponseBuilder) ReturnError(err error) *Store {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	r := b.m.responses[b.key]
	r.Err = err
	b.m.responses[b.key] = r
	return b.m
}

// Block makes the configured operation wait until ch is closed.
func (b *ResponseBuilder) Block(ch <-chan struct{}) *ResponseBuilder {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	r := b.m.responses[b.key]
	r.Wait = ch
	b.m.responses[b.key] = r
	return b
}

// Call records an operation performed against the mock.
type Call struct {
	Op    string
	CF    kv.ColumnFamily
	Keys  []kv.Key
	Value []byte
}

type rawEntry struct {
	value   []byte
	expires time.Time
}

type version struct {
	ts      uint64
	value   []byte
	deleted bool
}

// Store implements kv.RawStore and kv.TxnStore in memory.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	raw       map[kv.ColumnFamily]map[string]rawEntry
	versions  map[string][]version
	locks     map[string]uint64
	oracle    uint64
	safepoint uint64
	closed    bool
	responses map[string]Response
	calls     []Call
}

// Ensure Store satisfies the store interfaces at compile time.
var (
	_ kv.RawStore = (*Store)(nil)
	_ kv.TxnStore = (*Store)(nil)
)

// New creates a new mock store.
func New(cfg Config) *Store {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		now:       now,
		raw:       make(map[kv.ColumnFamily]map[string]rawEntry),
		versions:  make(map[string][]version),
		locks:     make(map[string]uint64),
		responses: make(map[string]Response),
	}
	for k, v := range cfg.Seed {
		s.cf(kv.CFDefault)[k] = rawEntry{value: append([]byte(nil), v...)}
	}
	if len(cfg.TxnSeed) > 0 {
		s.oracle = 1
		for k, v := range cfg.TxnSeed {
			s.versions[k] = []version{{ts: 1, value: append([]byte(nil), v...)}}
		}
	}
	return s
}

// On configures a response for op on key. A nil key matches every call of op
// that has no key specific response.
func (s *Store) On(op string, key kv.Key) *ResponseBuilder {
	if key == nil {
		return &ResponseBuilder{m: s, key: op}
	}
	return &ResponseBuilder{m: s, key: op + " " + string(key)}
}

// OnGet configures a GET response for a key.
func (s *Store) OnGet(key kv.Key) *ResponseBuilder { return s.On(OpGet, key) }

// OnPut configures a PUT response for a key.
func (s *Store) OnPut(key kv.Key) *ResponseBuilder { return s.On(OpPut, key) }

// OnScan configures the SCAN response.
func (s *Store) OnScan() *ResponseBuilder { return s.On(OpScan, nil) }

// OnCommit configures the COMMIT response.
func (s *Store) OnCommit() *ResponseBuilder { return s.On(OpCommit, nil) }

// Calls returns a copy of the recorded operations.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// intercept records the call and applies any configured response. It must be
// called without s.mu held.
func (s *Store) intercept(ctx context.Context, op string, cf kv.ColumnFamily, keys []kv.Key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, CF: cf, Keys: copyKeys(keys), Value: append([]byte(nil), value...)})
	if s.closed {
		s.mu.Unlock()
		return kv.ErrStoreClosed
	}
	r, ok := s.responses[op]
	if len(keys) == 1 {
		if kr, kok := s.responses[op+" "+string(keys[0])]; kok {
			r, ok = kr, kok
		}
	}
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if r.Wait != nil {
		select {
		case <-r.Wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return r.Err
}

func copyKeys(keys []kv.Key) []kv.Key {
	if keys == nil {
		return nil
	}
	out := make([]kv.Key, len(keys))
	for i, k := range keys {
		out[i] = append(kv.Key(nil), k...)
	}
	return out
}

func (s *Store) cf(cf kv.ColumnFamily) map[string]rawEntry {
	m, ok := s.raw[cf]
	if !ok {
		m = make(map[string]rawEntry)
		s.raw[cf] = m
	}
	return m
}

// live returns the raw entry for key if it exists and has not expired.
func (s *Store) live(cf kv.ColumnFamily, key kv.Key) (rawEntry, bool) {
	e, ok := s.cf(cf)[string(key)]
	if !ok {
		return rawEntry{}, false
	}
	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		delete(s.cf(cf), string(key))
		return rawEntry{}, false
	}
	return e, true
}

// Get implements kv.RawStore.
func (s *Store) Get(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (kv.Value, bool, error) {
	if err := s.intercept(ctx, OpGet, cf, []kv.Key{key}, nil); err != nil {
		return nil, false, err
	}
	if err := kv.ValidateKey(key); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(cf, key)
	if !ok {
		return nil, false, nil
	}
	return append(kv.Value(nil), e.value...), true, nil
}

// BatchGet implements kv.RawStore.
func (s *Store) BatchGet(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) ([]kv.KvPair, error) {
	if err := s.intercept(ctx, OpBatchGet, cf, keys, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	pairs := make([]kv.KvPair, 0, len(keys))
	for _, key := range keys {
		if e, ok := s.live(cf, key); ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: append(kv.Value(nil), e.value...)})
		}
	}
	return pairs, nil
}

// GetKeyTTL implements kv.RawStore.
func (s *Store) GetKeyTTL(ctx context.Context, cf kv.ColumnFamily, key kv.Key) (uint64, bool, error) {
	if err := s.intercept(ctx, OpGetKeyTTL, cf, []kv.Key{key}, nil); err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(cf, key)
	if !ok {
		return 0, false, nil
	}
	if e.expires.IsZero() {
		return 0, true, nil
	}
	return uint64(math.Ceil(e.expires.Sub(s.now()).Seconds())), true, nil
}

func (s *Store) rangePairs(cf kv.ColumnFamily, r kv.BoundRange, limit uint32) []kv.KvPair {
	var pairs []kv.KvPair
	for k := range s.cf(cf) {
		key := kv.Key(k)
		if !r.Contains(key) {
			continue
		}
		if e, ok := s.live(cf, key); ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: append(kv.Value(nil), e.value...)})
		}
	}
	kv.SortPairs(pairs)
	return kv.ApplyLimit(pairs, limit)
}

// Scan implements kv.RawStore.
func (s *Store) Scan(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := s.intercept(ctx, OpScan, cf, nil, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rangePairs(cf, r, limit), nil
}

// ScanKeys implements kv.RawStore.
func (s *Store) ScanKeys(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := s.intercept(ctx, OpScanKeys, cf, nil, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return pairKeys(s.rangePairs(cf, r, limit)), nil
}

func pairKeys(pairs []kv.KvPair) []kv.Key {
	keys := make([]kv.Key, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys
}

func (s *Store) put(cf kv.ColumnFamily, key kv.Key, value kv.Value, ttl uint64) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if err := kv.ValidateValue(value); err != nil {
		return err
	}
	e := rawEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = s.now().Add(time.Duration(ttl) * time.Second)
	}
	s.cf(cf)[string(key)] = e
	return nil
}

// Put implements kv.RawStore.
func (s *Store) Put(ctx context.Context, cf kv.ColumnFamily, key kv.Key, value kv.Value, ttl uint64) error {
	if err := s.intercept(ctx, OpPut, cf, []kv.Key{key}, value); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(cf, key, value, ttl)
}

// BatchPut implements kv.RawStore.
func (s *Store) BatchPut(ctx context.Context, cf kv.ColumnFamily, pairs []kv.KvPair) error {
	ttlPairs := make([]kv.TTLPair, len(pairs))
	for i, p := range pairs {
		ttlPairs[i] = kv.TTLPair{Key: p.Key, Value: p.Value}
	}
	return s.batchPut(ctx, cf, ttlPairs)
}

// BatchPutWithTTL implements kv.RawStore.
func (s *Store) BatchPutWithTTL(ctx context.Context, cf kv.ColumnFamily, pairs []kv.TTLPair) error {
	return s.batchPut(ctx, cf, pairs)
}

func (s *Store) batchPut(ctx context.Context, cf kv.ColumnFamily, pairs []kv.TTLPair) error {
	keys := make([]kv.Key, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	if err := s.intercept(ctx, OpBatchPut, cf, keys, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		if err := kv.ValidateKey(p.Key); err != nil {
			return err
		}
		if err := kv.ValidateValue(p.Value); err != nil {
			return fmt.Errorf("key %q: %w", []byte(p.Key), err)
		}
	}
	for _, p := range pairs {
		_ = s.put(cf, p.Key, p.Value, p.TTL)
	}
	return nil
}

// Delete implements kv.RawStore.
func (s *Store) Delete(ctx context.Context, cf kv.ColumnFamily, key kv.Key) error {
	if err := s.intercept(ctx, OpDelete, cf, []kv.Key{key}, nil); err != nil {
		return err
	}
	if err := kv.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cf(cf), string(key))
	return nil
}

// BatchDelete implements kv.RawStore.
func (s *Store) BatchDelete(ctx context.Context, cf kv.ColumnFamily, keys []kv.Key) error {
	if err := s.intercept(ctx, OpBatchDelete, cf, keys, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.cf(cf), string(key))
	}
	return nil
}

// DeleteRange implements kv.RawStore.
func (s *Store) DeleteRange(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange) error {
	if err := s.intercept(ctx, OpDeleteRange, cf, nil, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cf(cf) {
		if r.Contains(kv.Key(k)) {
			delete(s.cf(cf), k)
		}
	}
	return nil
}

// Close marks the store closed; later operations fail with kv.ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// readAt returns the value of key visible at ts. Callers hold s.mu.
func (s *Store) readAt(key string, ts uint64) ([]byte, bool) {
	vs := s.versions[key]
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].ts <= ts {
			if vs[i].deleted {
				return nil, false
			}
			return vs[i].value, true
		}
	}
	return nil, false
}

// scanAt returns every pair within r visible at ts. Callers hold s.mu.
func (s *Store) scanAt(r kv.BoundRange, ts uint64) map[string][]byte {
	out := make(map[string][]byte)
	for k := range s.versions {
		if !r.Contains(kv.Key(k)) {
			continue
		}
		if v, ok := s.readAt(k, ts); ok {
			out[k] = v
		}
	}
	return out
}

// Begin implements kv.TxnStore.
func (s *Store) Begin(ctx context.Context, opts kv.TxnOptions) (kv.Txn, error) {
	if err := s.intercept(ctx, OpBegin, "", nil, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracle++
	return &txn{
		s:           s,
		startTS:     s.oracle,
		pessimistic: opts.Pessimistic,
		writes:      make(map[string]write),
		locked:      make(map[string]struct{}),
	}, nil
}

// CurrentTimestamp implements kv.TxnStore.
func (s *Store) CurrentTimestamp(ctx context.Context) (uint64, error) {
	if err := s.intercept(ctx, OpTimestamp, "", nil, nil); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracle++
	return s.oracle, nil
}

// Snapshot implements kv.TxnStore.
func (s *Store) Snapshot(ctx context.Context, ts uint64, _ kv.TxnOptions) (kv.Snapshot, error) {
	if err := s.intercept(ctx, OpSnapshot, "", nil, nil); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ts < s.safepoint {
		return nil, fmt.Errorf("%w: %d < %d", kv.ErrSnapshotTooOld, ts, s.safepoint)
	}
	return &snapshot{s: s, ts: ts}, nil
}

// GC implements kv.TxnStore.
func (s *Store) GC(ctx context.Context, safepoint uint64) (bool, error) {
	if err := s.intercept(ctx, OpGC, "", nil, nil); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if safepoint <= s.safepoint {
		return false, nil
	}
	s.safepoint = safepoint

	for k, vs := range s.versions {
		keep := 0
		for i, v := range vs {
			if v.ts <= safepoint {
				keep = i
			}
		}
		vs = vs[keep:]
		if vs[0].ts <= safepoint && vs[0].deleted {
			vs = vs[1:]
		}
		if len(vs) == 0 {
			delete(s.versions, k)
			continue
		}
		s.versions[k] = vs
	}
	return true, nil
}

// Versions returns how many versions are kept for key, for GC assertions.
func (s *Store) Versions(key kv.Key) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions[string(key)])
}

type snapshot struct {
	s  *Store
	ts uint64
}

func (sn *snapshot) Timestamp() uint64 { return sn.ts }

func (sn *snapshot) Get(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := sn.s.intercept(ctx, OpGet, "", []kv.Key{key}, nil); err != nil {
		return nil, false, err
	}

	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	v, ok := sn.s.readAt(string(key), sn.ts)
	return append(kv.Value(nil), v...), ok, nil
}

func (sn *snapshot) KeyExists(ctx context.Context, key kv.Key) (bool, error) {
	if err := sn.s.intercept(ctx, OpKeyExists, "", []kv.Key{key}, nil); err != nil {
		return false, err
	}

	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	_, ok := sn.s.readAt(string(key), sn.ts)
	return ok, nil
}

func (sn *snapshot) BatchGet(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := sn.s.intercept(ctx, OpBatchGet, "", keys, nil); err != nil {
		return nil, err
	}

	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	pairs := make([]kv.KvPair, 0, len(keys))
	for _, key := range keys {
		if v, ok := sn.s.readAt(string(key), sn.ts); ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: append(kv.Value(nil), v...)})
		}
	}
	return pairs, nil
}

func (sn *snapshot) Scan(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := sn.s.intercept(ctx, OpScan, "", nil, nil); err != nil {
		return nil, err
	}

	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	return sortedPairs(sn.s.scanAt(r, sn.ts), limit), nil
}

func (sn *snapshot) ScanKeys(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := sn.s.intercept(ctx, OpScanKeys, "", nil, nil); err != nil {
		return nil, err
	}

	sn.s.mu.Lock()
	defer sn.s.mu.Unlock()
	return pairKeys(sortedPairs(sn.s.scanAt(r, sn.ts), limit)), nil
}

func sortedPairs(m map[string][]byte, limit uint32) []kv.KvPair {
	pairs := make([]kv.KvPair, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, kv.KvPair{Key: kv.Key(k), Value: append(kv.Value(nil), v...)})
	}
	kv.SortPairs(pairs)
	return kv.ApplyLimit(pairs, limit)
}

type write struct {
	value   []byte
	deleted bool
}

type txn struct {
	s           *Store
	startTS     uint64
	pessimistic bool
	writes      map[string]write
	locked      map[string]struct{}
	done        bool
}

func (t *txn) StartTimestamp() uint64 { return t.startTS }

// begin records the call and checks the transaction is open. On success
// s.mu is held and the caller must release it.
func (t *txn) begin(ctx context.Context, op string, keys []kv.Key, value []byte) error {
	if err := t.s.intercept(ctx, op, "", keys, value); err != nil {
		return err
	}
	t.s.mu.Lock()
	if t.done {
		t.s.mu.Unlock()
		return kv.ErrTxnClosed
	}
	return nil
}

// read returns the value of key as this transaction sees it. Callers hold s.mu.
func (t *txn) read(key kv.Key) ([]byte, bool) {
	if w, ok := t.writes[string(key)]; ok {
		return w.value, !w.deleted
	}
	return t.s.readAt(string(key), t.startTS)
}

// lock takes the pessimistic lock on key. Callers hold s.mu.
func (t *txn) lock(key kv.Key) error {
	owner, held := t.s.locks[string(key)]
	if held && owner != t.startTS {
		return fmt.Errorf("%w: %q", kv.ErrKeyLocked, []byte(key))
	}
	t.s.locks[string(key)] = t.startTS
	t.locked[string(key)] = struct{}{}
	return nil
}

func (t *txn) release() {
	for k := range t.locked {
		if t.s.locks[k] == t.startTS {
			delete(t.s.locks, k)
		}
	}
	t.done = true
}

func (t *txn) Get(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := t.begin(ctx, OpGet, []kv.Key{key}, nil); err != nil {
		return nil, false, err
	}
	defer t.s.mu.Unlock()

	v, ok := t.read(key)
	return append(kv.Value(nil), v...), ok, nil
}

func (t *txn) KeyExists(ctx context.Context, key kv.Key) (bool, error) {
	if err := t.begin(ctx, OpKeyExists, []kv.Key{key}, nil); err != nil {
		return false, err
	}
	defer t.s.mu.Unlock()

	_, ok := t.read(key)
	return ok, nil
}

func (t *txn) BatchGet(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := t.begin(ctx, OpBatchGet, keys, nil); err != nil {
		return nil, err
	}
	defer t.s.mu.Unlock()

	pairs := make([]kv.KvPair, 0, len(keys))
	for _, key := range keys {
		if v, ok := t.read(key); ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: append(kv.Value(nil), v...)})
		}
	}
	return pairs, nil
}

func (t *txn) scan(r kv.BoundRange, limit uint32) []kv.KvPair {
	m := t.s.scanAt(r, t.startTS)
	for k, w := range t.writes {
		if !r.Contains(kv.Key(k)) {
			continue
		}
		if w.deleted {
			delete(m, k)
			continue
		}
		m[k] = w.value
	}
	return sortedPairs(m, limit)
}

func (t *txn) Scan(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if err := t.begin(ctx, OpScan, nil, nil); err != nil {
		return nil, err
	}
	defer t.s.mu.Unlock()
	return t.scan(r, limit), nil
}

func (t *txn) ScanKeys(ctx context.Context, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	if err := t.begin(ctx, OpScanKeys, nil, nil); err != nil {
		return nil, err
	}
	defer t.s.mu.Unlock()
	return pairKeys(t.scan(r, limit)), nil
}

// latest returns the newest committed value of key. Callers hold s.mu.
func (t *txn) latest(key kv.Key) ([]byte, bool) {
	if w, ok := t.writes[string(key)]; ok {
		return w.value, !w.deleted
	}
	return t.s.readAt(string(key), math.MaxUint64)
}

func (t *txn) GetForUpdate(ctx context.Context, key kv.Key) (kv.Value, bool, error) {
	if err := t.begin(ctx, OpGetForUpd, []kv.Key{key}, nil); err != nil {
		return nil, false, err
	}
	defer t.s.mu.Unlock()

	if err := t.lock(key); err != nil {
		return nil, false, err
	}
	v, ok := t.latest(key)
	return append(kv.Value(nil), v...), ok, nil
}

func (t *txn) BatchGetForUpdate(ctx context.Context, keys []kv.Key) ([]kv.KvPair, error) {
	if err := t.begin(ctx, OpGetForUpd, keys, nil); err != nil {
		return nil, err
	}
	defer t.s.mu.Unlock()

	pairs := make([]kv.KvPair, 0, len(keys))
	for _, key := range keys {
		if err := t.lock(key); err != nil {
			return nil, err
		}
		if v, ok := t.latest(key); ok {
			pairs = append(pairs, kv.KvPair{Key: append(kv.Key(nil), key...), Value: append(kv.Value(nil), v...)})
		}
	}
	return pairs, nil
}

func (t *txn) LockKeys(ctx context.Context, keys []kv.Key) error {
	if err := t.begin(ctx, OpLockKeys, keys, nil); err != nil {
		return err
	}
	defer t.s.mu.Unlock()

	for _, key := range keys {
		if err := t.lock(key); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) write(key kv.Key, w write) error {
	if err := kv.ValidateKey(key); err != nil {
		return err
	}
	if t.pessimistic {
		if err := t.lock(key); err != nil {
			return err
		}
	}
	t.writes[string(key)] = w
	return nil
}

func (t *txn) Put(ctx context.Context, key kv.Key, value kv.Value) error {
	if err := t.begin(ctx, OpPut, []kv.Key{key}, value); err != nil {
		return err
	}
	defer t.s.mu.Unlock()

	if err := kv.ValidateValue(value); err != nil {
		return err
	}
	return t.write(key, write{value: append([]byte(nil), value...)})
}

func (t *txn) Insert(ctx context.Context, key kv.Key, value kv.Value) error {
	if err := t.begin(ctx, OpInsert, []kv.Key{key}, value); err != nil {
		return err
	}
	defer t.s.mu.Unlock()

	if err := kv.ValidateValue(value); err != nil {
		return err
	}
	if _, exists := t.read(key); exists {
		return fmt.Errorf("%w: %q", kv.ErrKeyExists, []byte(key))
	}
	return t.write(key, write{value: append([]byte(nil), value...)})
}

func (t *txn) Delete(ctx context.Context, key kv.Key) error {
	if err := t.begin(ctx, OpDelete, []kv.Key{key}, nil); err != nil {
		return err
	}
	defer t.s.mu.Unlock()
	return t.write(key, write{deleted: true})
}

func (t *txn) Commit(ctx context.Context) (uint64, bool, error) {
	if err := t.begin(ctx, OpCommit, nil, nil); err != nil {
		return 0, false, err
	}
	defer t.s.mu.Unlock()
	defer t.release()

	if len(t.writes) == 0 {
		return 0, false, nil
	}

	for k := range t.writes {
		if owner, held := t.s.locks[k]; held && owner != t.startTS {
			return 0, false, fmt.Errorf("%w: %q", kv.ErrKeyLocked, k)
		}
		vs := t.s.versions[k]
		if len(vs) > 0 && vs[len(vs)-1].ts > t.startTS {
			return 0, false, fmt.Errorf("%w: %q", kv.ErrWriteConflict, k)
		}
	}

	t.s.oracle++
	commitTS := t.s.oracle
	for k, w := range t.writes {
		t.s.versions[k] = append(t.s.versions[k], version{ts: commitTS, value: w.value, deleted: w.deleted})
	}
	return commitTS, true, nil
}

func (t *txn) Rollback(ctx context.Context) error {
	if err := t.begin(ctx, OpRollback, nil, nil); err != nil {
		return err
	}
	defer t.s.mu.Unlock()
	t.release()
	t.writes = make(map[string]write)
	return nil
}

// equalKeys reports whether two key lists match, for call assertions.
func equalKeys(a, b []kv.Key) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Called reports whether op was recorded with exactly keys.
func (s *Store) Called(op string, keys ...kv.Key) bool {
	for _, c := range s.Calls() {
		if c.Op == op && equalKeys(c.Keys, keys) {
			return true
		}
	}
	return false
}
