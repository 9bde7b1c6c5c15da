package kv

import (
	"context"
	"testing"

	"github.com/tarmac-project/kvbridge"
	"github.com/tarmac-project/kvbridge/hostmock"
	sdkproto "github.com/tarmac-project/protobuf-go/sdk"
	proto "github.com/tarmac-project/protobuf-go/sdk/kvstore"
	pb "google.golang.org/protobuf/proto"
)

// BenchmarkHostStore provides happy-path benchmarks for Get, Put and
// ScanKeys using pre-canned hostmock responses.
func BenchmarkHostStore(b *testing.B) {
	const namespace = "benchmark"
	ctx := context.Background()
	ok := &sdkproto.Status{Status: "OK", Code: 200}

	getResp, _ := pb.Marshal(&proto.KVStoreGetResponse{Status: ok, Data: []byte("value")})
	setResp, _ := pb.Marshal(&proto.KVStoreSetResponse{Status: ok})
	keysResp, _ := pb.Marshal(&proto.KVStoreKeysResponse{
		Status: ok,
		Keys:   []string{"default/61", "default/62", "default/63", "write/61"},
	})

	mock, _ := hostmock.New(hostmock.Config{
		ExpectedNamespace:  namespace,
		ExpectedCapability: capabilityName,
		Handlers: map[string]hostmock.Handler{
			fnGet:  func([]byte) ([]byte, error) { return getResp, nil },
			fnSet:  func([]byte) ([]byte, error) { return setResp, nil },
			fnKeys: func([]byte) ([]byte, error) { return keysResp, nil },
		},
	})
	store, _ := New(Config{SDKConfig: kvbridge.RuntimeConfig{Namespace: namespace}, HostCall: mock.HostCall})

	b.Run("Get", func(b *testing.B) {
		b.ResetTimer()
		for range b.N {
			if _, _, err := store.Get(ctx, CFDefault, Key("benchmark-key")); err != nil {
				b.Fatalf("Get failed: %v", err)
			}
		}
	})

	b.Run("Put", func(b *testing.B) {
		b.ResetTimer()
		for range b.N {
			if err := store.Put(ctx, CFDefault, Key("benchmark-key"), Value("value"), 0); err != nil {
				b.Fatalf("Put failed: %v", err)
			}
		}
	})

	b.Run("ScanKeys", func(b *testing.B) {
		b.ResetTimer()
		for range b.N {
			if _, err := store.ScanKeys(ctx, CFDefault, BoundRange{}, 10); err != nil {
				b.Fatalf("ScanKeys failed: %v", err)
			}
		}
	})
}
