package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoinGeckoClient_Fetch(t *testing.T) {
	tests := []struct {
		name    string
		coin    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{name: "ethereum", coin: CoinEthereum, status: 200, body: `{"ethereum":{"usd":3456.78}}`, want: "3456.78"},
		{name: "bnb integer price", coin: CoinBNB, status: 200, body: `{"binancecoin":{"usd":600}}`, want: "600"},
		{name: "hbar small price", coin: CoinHBAR, status: 200, body: `{"hedera-hashgraph":{"usd":0.0712}}`, want: "0.0712"},
		{name: "missing coin", coin: CoinEthereum, status: 200, body: `{}`, wantErr: true},
		{name: "missing usd", coin: CoinEthereum, status: 200, body: `{"ethereum":{"eur":3000}}`, wantErr: true},
		{name: "negative", coin: CoinEthereum, status: 200, body: `{"ethereum":{"usd":-1}}`, wantErr: true},
		{name: "malformed json", coin: CoinEthereum, status: 200, body: `{"ethereum":`, wantErr: true},
		{name: "server error", coin: CoinEthereum, status: 500, body: `boom`, wantErr: true},
		{name: "rate limited", coin: CoinEthereum, status: 429, body: `slow down`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
				assert.Equal(t, tt.coin, r.URL.Query().Get("ids"))
				assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewCoinGeckoClient(srv.URL+"/api/v3/", "", 0)
			quote, err := client.Fetch(context.Background(), tt.coin)

			if tt.wantErr {
				var fetchErr *FetchError
				require.True(t, errors.As(err, &fetchErr), "got %v", err)
				assert.Equal(t, tt.coin, fetchErr.Coin)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.coin, quote.Coin)
			assert.Equal(t, tt.want, quote.USD.String())
			assert.False(t, quote.FetchedAt.IsZero())
		})
	}
}

func TestCoinGeckoClient_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewCoinGeckoClient(srv.URL, "", 0).Fetch(context.Background(), CoinEthereum)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCoinGeckoClient_SendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`{"ethereum":{"usd":1}}`))
	}))
	defer srv.Close()

	_, err := NewCoinGeckoClient(srv.URL, "secret", 0).Fetch(context.Background(), CoinEthereum)
	require.NoError(t, err)
}

func TestCoinGeckoClient_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ethereum":{"usd":1}}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCoinGeckoClient(srv.URL, "", 0).Fetch(ctx, CoinEthereum)
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}
