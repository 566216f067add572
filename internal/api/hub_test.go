package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/domain"
)

func dialEvents(t *testing.T, ts *testServer, query string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/events/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) EventResponse {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e EventResponse
	require.NoError(t, conn.ReadJSON(&e))
	return e
}

func TestHub_StreamsCommittedEvents(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialEvents(t, ts, "")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/sales", authority, initRequest("phnx"), nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/v1/sales/phnx/purchase", purchaser,
		PurchaseRequest{Purchaser: purchaser, AmountLamports: sol}, nil))

	first := readEvent(t, conn)
	assert.Equal(t, domain.EventInitialize, first.Kind)
	assert.Equal(t, int64(1), first.Sequence)

	second := readEvent(t, conn)
	assert.Equal(t, domain.EventPurchase, second.Kind)
	assert.Equal(t, purchaser, second.Actor)
	assert.Equal(t, sol, second.Lamports)
}

func TestHub_FiltersBySale(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialEvents(t, ts, "?sale=beta")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/sales", authority, initRequest("alpha"), nil))
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/sales", authority, initRequest("beta"), nil))

	e := readEvent(t, conn)
	assert.Equal(t, "beta", e.SaleID)
}

func TestHub_FailedOperationsAreNotStreamed(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialEvents(t, ts, "")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/v1/sales", authority, initRequest("phnx"), nil))
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/v1/sales/phnx/purchase", purchaser,
		PurchaseRequest{Purchaser: purchaser}, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/v1/sales/phnx/purchase", purchaser,
		PurchaseRequest{Purchaser: purchaser, AmountLamports: sol}, nil))

	assert.Equal(t, domain.EventInitialize, readEvent(t, conn).Kind)
	next := readEvent(t, conn)
	assert.Equal(t, domain.EventPurchase, next.Kind)
	assert.Equal(t, int64(2), next.Sequence)
}

func TestHub_UnregistersOnClose(t *testing.T) {
	ts := newTestServer(t, false)
	conn := dialEvents(t, ts, "")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
