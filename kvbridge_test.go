package kvbridge

import "testing"

func TestRuntimeConfigWithDefaults(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name string
		cfg  RuntimeConfig
		want string
	}{
		{name: "empty namespace", cfg: RuntimeConfig{}, want: DefaultNamespace},
		{name: "custom namespace", cfg: RuntimeConfig{Namespace: "custom"}, want: "custom"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := tc.cfg.WithDefaults()
			if got.Namespace != tc.want {
				t.Fatalf("namespace mismatch: want %q, got %q", tc.want, got.Namespace)
			}
		})
	}
}
