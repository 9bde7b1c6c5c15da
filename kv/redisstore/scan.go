package redisstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/tarmac-project/kvbridge/kv"
)

// pruneScript removes an index member only while its value is still missing.
var pruneScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 0 then
	return redis.call("ZREM", KEYS[1], ARGV[1])
end
return 0
`)

// lexBound renders a bound in ZRANGEBYLEX syntax.
func lexBound(b kv.Bound, lower bool) string {
	switch b.Kind {
	case kv.Included:
		return "[" + string(b.Key)
	case kv.Excluded:
		return "(" + string(b.Key)
	}
	if lower {
		return "-"
	}
	return "+"
}

// members lists the index members within r, up to count when count is positive.
func (s *Store) members(ctx context.Context, cf kv.ColumnFamily, lo, hi string, count int64) ([]string, error) {
	opt := &redis.ZRangeBy{Min: lo, Max: hi}
	if count > 0 {
		opt.Count = count
	}
	m, err := s.client.ZRangeByLex(ctx, s.indexKey(cf), opt).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to range index of %s: %w", cf, err)
	}
	return m, nil
}

func (s *Store) prune(ctx context.Context, cf kv.ColumnFamily, member string) {
	keys := []string{s.indexKey(cf), s.valueKey(cf, kv.Key(member))}
	if err := pruneScript.Run(ctx, s.client, keys, member).Err(); err != nil {
		s.log.Warn("failed to prune expired index member", "cf", cf, "key", member, "error", err)
	}
}

func (s *Store) scan(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	if limit == 0 {
		return nil, nil
	}

	lo, hi := lexBound(r.Start, true), lexBound(r.End, false)
	var pairs []kv.KvPair
	for uint32(len(pairs)) < limit {
		want := int64(limit) - int64(len(pairs))
		if want < scanBatch {
			want = scanBatch
		}

		members, err := s.members(ctx, cf, lo, hi, want)
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			break
		}

		keys := make([]kv.Key, len(members))
		for i, m := range members {
			keys[i] = kv.Key(m)
		}
		vals, err := s.values(ctx, cf, keys)
		if err != nil {
			return nil, err
		}

		for i, v := range vals {
			if v == nil {
				s.prune(ctx, cf, members[i])
				continue
			}
			if uint32(len(pairs)) < limit {
				pairs = append(pairs, kv.KvPair{Key: keys[i], Value: v})
			}
		}

		if int64(len(members)) < want {
			break
		}
		lo = "(" + members[len(members)-1]
	}
	return pairs, nil
}

// Scan implements kv.RawStore.
func (s *Store) Scan(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.KvPair, error) {
	return s.scan(ctx, cf, r, limit)
}

// ScanKeys implements kv.RawStore.
func (s *Store) ScanKeys(ctx context.Context, cf kv.ColumnFamily, r kv.BoundRange, limit uint32) ([]kv.Key, error) {
	pairs, err := s.scan(ctx, cf, r, limit)
	if err != nil {
		return nil, err
	}
	keys := make([]kv.Key, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys, nil
}
