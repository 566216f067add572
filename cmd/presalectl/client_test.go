package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/api"
	"solana-presale/internal/solana"
)

func TestSalePath(t *testing.T) {
	assert.Equal(t, "/v1/sales/_/purchase", salePath("", "/purchase"))
	assert.Equal(t, "/v1/sales/phnx", salePath("phnx", ""))
	assert.Equal(t, "/v1/sales/a%2Fb/claim", salePath("a/b", "/claim"))
}

func TestClient_DecodesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorBody{Error: api.ErrorDetail{
			Kind:      "SaleNotStarted",
			Message:   "sale starts at 100",
			Retryable: true,
		}})
	}))
	defer srv.Close()

	c := newClient(srv.URL, solana.PublicKey{})
	err := c.do(context.Background(), http.MethodPost, salePath("", "/purchase"), api.PurchaseRequest{}, nil)

	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "SaleNotStarted", apiErr.Kind)
	assert.True(t, apiErr.Retryable)
}

func TestClient_SendsCallerHeader(t *testing.T) {
	caller := solana.MustPublicKey(solana.TokenProgramID)

	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(api.CallerHeader)
		json.NewEncoder(w).Encode(api.ClaimResponse{Tokens: 7})
	}))
	defer srv.Close()

	var resp api.ClaimResponse
	err := newClient(srv.URL+"/", caller).do(context.Background(), http.MethodPost, "/v1/sales/_/claim", nil, &resp)
	require.NoError(t, err)
	assert.Equal(t, caller.String(), got)
	assert.Equal(t, uint64(7), resp.Tokens)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var gotAuth, gotCaller string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCaller = r.Header.Get(api.CallerHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newClient(srv.URL, solana.MustPublicKey(solana.TokenProgramID))
	c.token = "abc.def.ghi"
	require.NoError(t, c.do(context.Background(), http.MethodPost, "/v1/sales/_/fund", nil, nil))
	assert.Equal(t, "Bearer abc.def.ghi", gotAuth)
	assert.Empty(t, gotCaller)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	got, err = parseTime("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	_, err = parseTime("tomorrow")
	assert.Error(t, err)
}

func TestClient_Text(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "csv", r.URL.Query().Get("format"))
		w.Write([]byte("purchaser,purchases\n"))
	}))
	defer srv.Close()

	body, err := newClient(srv.URL, solana.PublicKey{}).text(context.Background(), salePath("phnx", "/report?format=csv"))
	require.NoError(t, err)
	assert.Equal(t, "purchaser,purchases\n", body)
}
