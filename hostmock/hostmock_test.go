package hostmock

import (
	"bytes"
	"errors"
	"sync"
	"testing"
)

var ErrMockError = errors.New("mock error")

func TestHostMock(t *testing.T) {
	respond := func() []byte { return []byte("ok") }

	tt := []struct {
		name       string
		cfg        Config
		namespace  string
		capability string
		function   string
		payload    []byte
		want       []byte
		wantErr    error
	}{
		{
			name:      "routed response",
			cfg:       Config{ExpectedNamespace: "ns", ExpectedCapability: "kvstore", ExpectedFunction: "get", Response: respond},
			namespace: "ns", capability: "kvstore", function: "get",
			want: []byte("ok"),
		},
		{
			name:      "custom failure",
			cfg:       Config{Fail: true, Error: ErrMockError},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrMockError,
		},
		{
			name:      "default failure",
			cfg:       Config{Fail: true},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrOperationFailed,
		},
		{
			name:      "wildcards accept anything",
			cfg:       Config{Response: respond},
			namespace: "any", capability: "thing", function: "at all",
			want: []byte("ok"),
		},
		{
			name:      "nil response",
			cfg:       Config{ExpectedFunction: "get"},
			namespace: "ns", capability: "kvstore", function: "get",
		},
		{
			name: "payload rejected",
			cfg: Config{PayloadValidator: func(p []byte) error {
				if string(p) != "valid" {
					return ErrMockError
				}
				return nil
			}, Response: respond},
			namespace: "ns", capability: "kvstore", function: "get",
			payload: []byte("invalid"),
			wantErr: ErrMockError,
		},
		{
			name:      "unexpected namespace",
			cfg:       Config{ExpectedNamespace: "expected"},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrUnexpectedNamespace,
		},
		{
			name:      "unexpected capability",
			cfg:       Config{ExpectedCapability: "expected"},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrUnexpectedCapability,
		},
		{
			name:      "unexpected function",
			cfg:       Config{ExpectedFunction: "expected"},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrUnexpectedFunction,
		},
		{
			name: "handler routing",
			cfg: Config{Handlers: map[string]Handler{
				"keys": func(p []byte) ([]byte, error) { return append([]byte("keys:"), p...), nil },
			}},
			namespace: "ns", capability: "kvstore", function: "keys",
			payload: []byte("x"),
			want:    []byte("keys:x"),
		},
		{
			name: "handler missing",
			cfg: Config{Handlers: map[string]Handler{
				"keys": func([]byte) ([]byte, error) { return nil, nil },
			}},
			namespace: "ns", capability: "kvstore", function: "get",
			wantErr: ErrUnexpectedFunction,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := New(tc.cfg)
			if err != nil {
				t.Fatalf("New Mock instance creation failed: %v", err)
			}

			got, err := mock.HostCall(tc.namespace, tc.capability, tc.function, tc.payload)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Mock call returned unexpected error: got %v, want %v", err, tc.wantErr)
			}

			if !bytes.Equal(got, tc.want) {
				t.Fatalf("Mock call returned unexpected response: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCallsRecorded(t *testing.T) {
	mock, err := New(Config{})
	if err != nil {
		t.Fatalf("New Mock instance creation failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = mock.HostCall("ns", "kvstore", "get", []byte("p"))
		}()
	}
	wg.Wait()

	calls := mock.Calls()
	if len(calls) != 10 {
		t.Fatalf("expected 10 calls, got %d", len(calls))
	}
	if calls[0].Function != "get" || string(calls[0].Payload) != "p" {
		t.Fatalf("unexpected call recorded: %+v", calls[0])
	}
}
