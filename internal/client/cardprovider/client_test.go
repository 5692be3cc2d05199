package cardprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"claims/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, zap.NewNop())
}

func TestDepositFunds_SendsStableReference(t *testing.T) {
	var gotBody depositRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/cards/card-1/deposit", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(depositResponse{ReferenceID: "prov-ref-9"})
	})

	ref, err := client.DepositFunds(context.Background(), "card-1", 1240, "msg-id-42")

	require.NoError(t, err)
	assert.Equal(t, "prov-ref-9", ref)
	assert.Equal(t, 1240, gotBody.AmountInPence)
	assert.Equal(t, "msg-id-42", gotBody.Reference)
}

func TestDepositFunds_ClientErrorIsValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown card", http.StatusNotFound)
	})

	_, err := client.DepositFunds(context.Background(), "card-x", 100, "ref")

	require.Error(t, err)
	assert.True(t, domain.IsValidation(err), "a 4xx must park the message, not retry it")
	assert.False(t, domain.IsTransient(err))
}

func TestDepositFunds_ServerErrorIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider exploded", http.StatusInternalServerError)
	})

	_, err := client.DepositFunds(context.Background(), "card-x", 100, "ref")

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err), "a 5xx must leave the message queued for retry")
}

func TestDepositFunds_UnreachableProviderIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(srv.URL, 200*time.Millisecond, zap.NewNop())

	_, err := client.DepositFunds(context.Background(), "card-x", 100, "ref")

	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestCreateCard_ReturnsAccountID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cards", r.URL.Path)
		var req CreateCardRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "claim-1", req.ClaimID)
		json.NewEncoder(w).Encode(createCardResponse{CardAccountID: "card-77"})
	})

	id, err := client.CreateCard(context.Background(), CreateCardRequest{
		ClaimID:     "claim-1",
		FirstName:   "Sam",
		LastName:    "Jones",
		DateOfBirth: "1995-04-12",
	})

	require.NoError(t, err)
	assert.Equal(t, "card-77", id)
}

func TestCreateCard_EmptyAccountIDIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createCardResponse{})
	})

	_, err := client.CreateCard(context.Background(), CreateCardRequest{ClaimID: "claim-1"})

	require.Error(t, err)
}

func TestGetBalance(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/cards/card-1/balance", r.URL.Path)
		json.NewEncoder(w).Encode(balanceResponse{AvailableBalanceInPence: 3100})
	})

	balance, err := client.GetBalance(context.Background(), "card-1")

	require.NoError(t, err)
	assert.Equal(t, 3100, balance)
}
