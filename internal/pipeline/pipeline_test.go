package pipeline_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pricestate/config"
	"pricestate/internal/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildSources_FeedAndCron(t *testing.T) {
	cfg := &config.Config{
		Feed:  config.FeedConfig{Enabled: true, URL: "ws://localhost:9001/prices"},
		Reset: config.ResetConfig{Cron: "0 0 * * *", Timezone: "UTC"},
	}

	src, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, src.Updates)
	assert.NotNil(t, src.Resets)
	assert.Len(t, src.ExternalResets, 1)
}

func TestBuildSources_PostgresResetChannel(t *testing.T) {
	cfg := &config.Config{
		App: config.AppConfig{Env: "dev"},
		Postgres: config.PostgresConfig{
			Enabled: true, Host: "localhost", Port: 5432, DBName: "pricestate",
			SSLMode: "disable", ResetChannel: "price_reset",
		},
	}

	src, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)

	assert.NotNil(t, src.Updates)
	assert.NotNil(t, src.Resets)
	assert.Len(t, src.ExternalResets, 1)
}

func TestBuildSources_BadCron(t *testing.T) {
	cfg := &config.Config{Reset: config.ResetConfig{Cron: "every tuesday", Timezone: "UTC"}}

	_, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBuildSources_BybitDiscoversTopics(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"retCode":0,"retMsg":"OK","result":{"category":"linear","list":[
			{"symbol":"BTCUSDT","baseCoin":"BTC","quoteCoin":"USDT","status":"Trading"}]}}`))
	}))
	defer srv.Close()

	cfg := &config.Config{
		Feed: config.FeedConfig{
			Enabled: true, URL: "ws://localhost:9001/v5/public/linear",
			Format: "bybit", RESTURL: srv.URL, Category: "linear",
		},
	}

	src, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, src.Resets)
	assert.Empty(t, src.ExternalResets)
	assert.EqualValues(t, 1, hits.Load())
}

func TestBuildSources_BybitDiscoveryFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := &config.Config{
		Feed: config.FeedConfig{Enabled: true, URL: "ws://localhost:9001", Format: "bybit", RESTURL: srv.URL},
	}

	_, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "bybit symbols")
}

func TestBuildSources_NoFeedKeepsStreamsOpen(t *testing.T) {
	cfg := &config.Config{}

	src, err := pipeline.BuildSources(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, src.Updates)
	assert.NotNil(t, src.Resets)
	assert.Empty(t, src.ExternalResets)
}
