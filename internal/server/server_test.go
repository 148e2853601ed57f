package server_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricestate/config"
	"pricestate/internal/aggregator"
	"pricestate/internal/price"
	"pricestate/internal/server"
	"pricestate/pkg/stream"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fixture struct {
	srv     *httptest.Server
	agg     *aggregator.Aggregator
	updates *stream.Subject[price.Update]
	resets  *stream.Subject[price.Reset]
}

func setup(t *testing.T, cfg config.ServerConfig) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	updates := stream.NewSubject[price.Update]()
	resets := stream.NewSubject[price.Reset]()
	agg := aggregator.New(updates, resets, logger)

	srv := httptest.NewServer(server.New(agg, cfg, logger).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, agg: agg, updates: updates, resets: resets}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame struct {
	Prices price.Table `json:"prices"`
	Error  string      `json:"error"`
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

var defaultCfg = config.ServerConfig{SendBuffer: 16, WriteWait: time.Second, PongWait: 5 * time.Second}

// go test -v --run TestServer_StreamsSnapshots
func TestServer_StreamsSnapshots(t *testing.T) {
	f := setup(t, defaultCfg)
	conn := f.dial(t)

	require.Equal(t, price.Table{}, readFrame(t, conn).Prices)

	require.NoError(t, f.updates.Publish(price.Update{Symbol: "XOM", Price: 48.17}))
	require.Equal(t, price.Table{"XOM": 48.17}, readFrame(t, conn).Prices)

	require.NoError(t, f.resets.Publish(price.Reset{}))
	require.Equal(t, price.Table{}, readFrame(t, conn).Prices)
}

func TestServer_LateClientSeesCurrentTable(t *testing.T) {
	f := setup(t, defaultCfg)
	first := f.dial(t)
	readFrame(t, first)

	require.NoError(t, f.updates.Publish(price.Update{Symbol: "XOM", Price: 48.17}))
	readFrame(t, first)

	second := f.dial(t)
	require.Equal(t, price.Table{"XOM": 48.17}, readFrame(t, second).Prices)
}

func TestServer_DisconnectReleasesSubscription(t *testing.T) {
	f := setup(t, defaultCfg)
	a := f.dial(t)
	b := f.dial(t)
	readFrame(t, a)
	readFrame(t, b)
	require.Eventually(t, func() bool { return f.agg.Subscribers() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return f.agg.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.updates.Publish(price.Update{Symbol: "BA", Price: 218.93}))
	require.Equal(t, price.Table{"BA": 218.93}, readFrame(t, b).Prices)
}

func TestServer_UpstreamErrorClosesClients(t *testing.T) {
	f := setup(t, defaultCfg)
	conn := f.dial(t)
	readFrame(t, conn)

	require.NoError(t, f.updates.Fail(errors.New("feed lost")))

	fr := readFrame(t, conn)
	assert.Equal(t, "feed lost", fr.Error)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestServer_PricesEndpoint(t *testing.T) {
	f := setup(t, defaultCfg)
	conn := f.dial(t)
	readFrame(t, conn)
	require.NoError(t, f.updates.Publish(price.Update{Symbol: "XOM", Price: 48.17}))
	readFrame(t, conn)

	resp, err := http.Get(f.srv.URL + "/prices")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Prices price.Table `json:"prices"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, price.Table{"XOM": 48.17}, body.Prices)
}

func TestServer_Healthz(t *testing.T) {
	f := setup(t, defaultCfg)
	conn := f.dial(t)
	readFrame(t, conn)

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Subscribers int    `json:"subscribers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Subscribers)
}
