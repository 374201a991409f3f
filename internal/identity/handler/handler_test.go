package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anchorid/internal/anchor"
	"anchorid/internal/crypto"
	"anchorid/internal/identity/service"
	"anchorid/internal/identity/store"
	jwttoken "anchorid/internal/jwt_token"
	"anchorid/internal/wallet"
	id "anchorid/pkg/domain"
	"anchorid/pkg/testutil"
)

var subjectWallet = id.WalletAddress("anchor1qqqsyqcyq5rqwzqfpg9scrgwpugpzysn")

type fakeAnchorer struct {
	receipt anchor.Receipt
}

func (f *fakeAnchorer) AnchorDIDCreation(context.Context, id.DID, string) (anchor.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeAnchorer) AnchorDIDUpdate(context.Context, id.DID, string) (anchor.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeAnchorer) AnchorDIDDeactivation(context.Context, id.DID, string) (anchor.Receipt, error) {
	return f.receipt, nil
}

func (f *fakeAnchorer) CheckChainStatus(context.Context) (anchor.ChainStatus, error) {
	return anchor.ChainStatus{Available: true, ChainID: "anchorhub-1"}, nil
}

type fakeHistory struct {
	records []anchor.Record
}

func (f *fakeHistory) History(context.Context, string) ([]anchor.Record, error) {
	return f.records, nil
}

type handlerEnv struct {
	router  chi.Router
	token   string
	history *fakeHistory
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	records := store.New(store.NewMemoryBackend(), crypto.New(crypto.WithIterations(1_000)),
		wallet.StaticSigner{Secret: []byte("test-secret")}, "anchorhub-1")
	anchorer := &fakeAnchorer{receipt: anchor.Receipt{Status: anchor.StatusAnchored, TxHash: "ABC", Network: "anchorhub-testnet"}}
	svc := service.NewService(records, anchorer, service.WithLogger(logger))

	tokens := jwttoken.NewJWTService("handler-test-key", "anchorid", "anchorid-api")
	token, err := tokens.GenerateAccessToken(subjectWallet, id.WalletKeplr, time.Hour)
	require.NoError(t, err)

	history := &fakeHistory{}
	router := chi.NewRouter()
	New(svc, history, logger, tokens).Register(router)
	return &handlerEnv{router: router, token: token, history: history}
}

func (env *handlerEnv) do(t *testing.T, req *http.Request, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	if authed {
		req.Header.Set("Authorization", "Bearer "+env.token)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func (env *handlerEnv) createDID(t *testing.T) string {
	t.Helper()
	rr := env.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/dids", map[string]any{
		"publicKey": "02a1b2c3",
	}), true)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp createResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.DID
}

func TestHandler_CreateAndResolveOwn(t *testing.T) {
	env := newHandlerEnv(t)
	did := env.createDID(t)
	assert.Equal(t, id.DIDForWallet(subjectWallet).String(), did)

	rr := env.do(t, testutil.NewRequest(t, http.MethodGet, "/dids/"+did), true)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp resolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Redacted, "the owner sees the full document")
	assert.Equal(t, did, resp.Document.ID)
}

func TestHandler_ResolveWithoutTokenIsRedacted(t *testing.T) {
	env := newHandlerEnv(t)
	did := env.createDID(t)

	rr := env.do(t, testutil.NewRequest(t, http.MethodGet, "/dids/"+did), false)
	require.Equal(t, http.StatusOK, rr.Code, "resolution is reachable without a token")

	var resp resolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Redacted)
}

func TestHandler_CreateRequiresAuth(t *testing.T) {
	env := newHandlerEnv(t)

	rr := env.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/dids", map[string]any{}), false)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandler_SecondCreateConflicts(t *testing.T) {
	env := newHandlerEnv(t)
	env.createDID(t)

	rr := env.do(t, testutil.NewJSONRequest(t, http.MethodPost, "/dids", map[string]any{}), true)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestHandler_History(t *testing.T) {
	env := newHandlerEnv(t)
	did := env.createDID(t)
	env.history.records = []anchor.Record{{
		ContentHash: "hash-1",
		Subject:     did,
		Operation:   anchor.OpDIDCreate,
		Receipt:     anchor.Receipt{Status: anchor.StatusAnchored, TxHash: "ABC", Network: "anchorhub-testnet"},
		CreatedAt:   time.Now().UTC(),
	}}

	rr := env.do(t, testutil.NewRequest(t, http.MethodGet, "/dids/"+did+"/history"), true)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "hash-1")

	rr = env.do(t, testutil.NewRequest(t, http.MethodGet, "/dids/not-a-did/history"), true)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
