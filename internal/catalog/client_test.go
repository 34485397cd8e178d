package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/partner-ledger/internal/model"
)

func TestCommissionConfigs_OK(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/api/products/vip-box/commission-configs" {
			t.Fatalf("path = %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"type":"youjin","enabled":true,"rate":"0.30","target":"all_partners"},
			{"type":"bloom","enabled":false,"rate":0.1}
		]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	configs, err := client.CommissionConfigs(ctx, "vip-box")
	require.NoError(t, err)
	require.Len(t, configs, 2)

	assert.Equal(t, model.PartnerTypeYoujin, configs[0].Type)
	assert.True(t, configs[0].Enabled)
	assert.Equal(t, "0.3", configs[0].Rate.String())
	assert.Equal(t, model.TargetAllPartners, configs[0].Target)

	assert.False(t, configs[1].Enabled)
	assert.Equal(t, model.TargetReferrer, configs[1].Target)
}

func TestCommissionConfigs_UnknownProduct(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	configs, err := NewClient(ts.URL, zap.NewNop()).CommissionConfigs(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestCommissionConfigs_RetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer ts.Close()

	configs, err := NewClient(ts.URL, zap.NewNop()).CommissionConfigs(context.Background(), "p1")
	require.NoError(t, err)
	assert.Empty(t, configs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCommissionConfigs_NotConfigured(t *testing.T) {
	client := NewClient("", zap.NewNop())

	_, err := client.CommissionConfigs(context.Background(), "p1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
