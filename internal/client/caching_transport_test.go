package client

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCachingHTTPClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"keys":[]}`)
	}))
	defer srv.Close()

	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "memory cache", cfg: DefaultConfig()},
		{name: "disk cache", cfg: Config{Timeout: time.Second, CacheDir: t.TempDir()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits.Store(0)
			c := NewCachingHTTPClient(tt.cfg)
			require.Equal(t, tt.cfg.Timeout, c.Timeout)

			for range 3 {
				resp, err := c.Get(srv.URL)
				require.NoError(t, err)
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				require.NoError(t, resp.Body.Close())
				require.JSONEq(t, `{"keys":[]}`, string(body))
			}

			require.Equal(t, int32(1), hits.Load())
		})
	}
}
