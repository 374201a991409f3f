package anchor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "anchorid/pkg/domain-errors"
	id "anchorid/pkg/domain"
	"anchorid/pkg/platform/sentinel"
	"anchorid/pkg/requestcontext"
)

type fakeChain struct {
	status       ChainStatus
	statusErr    error
	broadcast    BroadcastResult
	broadcastErr error
	tx           TxStatus
	txErr        error
	memos        []Memo
}

func (f *fakeChain) Status(context.Context) (ChainStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeChain) BroadcastMemo(_ context.Context, memo Memo) (BroadcastResult, error) {
	f.memos = append(f.memos, memo)
	return f.broadcast, f.broadcastErr
}

func (f *fakeChain) TxStatus(context.Context, string) (TxStatus, error) {
	return f.tx, f.txErr
}

func (f *fakeChain) Network() string { return "anchorhub-testnet" }

type capturingPublisher struct {
	events [][]byte
	err    error
}

func (p *capturingPublisher) Produce(_ context.Context, _ string, _, value []byte) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, value)
	return nil
}

func healthyChain() *fakeChain {
	return &fakeChain{
		status:    ChainStatus{Available: true, ChainID: "anchorhub-1", LatestHeight: 100},
		broadcast: BroadcastResult{TxHash: "ABC123", Height: 101},
	}
}

func TestAnchorDIDCreation_Anchored(t *testing.T) {
	chain := healthyChain()
	store := NewMemoryStore()
	publisher := &capturingPublisher{}
	svc := NewService(chain, store, WithPublisher(publisher))

	did := id.DID("did:anchor:0011223344556677889900112233aabb")
	receipt, err := svc.AnchorDIDCreation(context.Background(), did, "deadbeef")
	require.NoError(t, err)

	assert.Equal(t, StatusAnchored, receipt.Status)
	assert.True(t, receipt.Anchored())
	assert.Equal(t, "ABC123", receipt.TxHash)
	assert.Equal(t, int64(101), receipt.BlockHeight)
	assert.Equal(t, "anchorhub-testnet", receipt.Network)
	assert.Empty(t, receipt.Reason)

	require.Len(t, chain.memos, 1)
	assert.Equal(t, "deadbeef", chain.memos[0].ContentHash)
	assert.Equal(t, OpDIDCreate, chain.memos[0].Operation)

	records, err := store.ListAnchors(context.Background(), did.String())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, receipt, records[0].Receipt)

	require.Len(t, publisher.events, 1)
	var event Record
	require.NoError(t, json.Unmarshal(publisher.events[0], &event))
	assert.Equal(t, did.String(), event.Subject)
}

func TestAnchor_ChainDown_UnanchoredReceipt(t *testing.T) {
	chain := &fakeChain{statusErr: fmt.Errorf("%w: connection refused", sentinel.ErrUnavailable)}
	store := NewMemoryStore()
	svc := NewService(chain, store)

	did := id.DID("did:anchor:0011223344556677889900112233aabb")
	receipt, err := svc.AnchorDIDUpdate(context.Background(), did, "deadbeef")
	require.NoError(t, err)

	assert.Equal(t, StatusUnanchored, receipt.Status)
	assert.Empty(t, receipt.TxHash)
	assert.Zero(t, receipt.BlockHeight)
	assert.Contains(t, receipt.Reason, "connection refused")
	assert.Empty(t, chain.memos)

	// Chain failure is still logged locally.
	records, err := store.ListAnchors(context.Background(), did.String())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusUnanchored, records[0].Receipt.Status)
}

func TestAnchor_BroadcastFails_UnanchoredReceipt(t *testing.T) {
	chain := healthyChain()
	chain.broadcastErr = errors.New("mempool full")
	svc := NewService(chain, NewMemoryStore())

	receipt, err := svc.AnchorCredentialIssuance(context.Background(), id.NewCredentialID(), "cafebabe")
	require.NoError(t, err)
	assert.Equal(t, StatusUnanchored, receipt.Status)
	assert.Contains(t, receipt.Reason, "mempool full")
}

func TestAnchor_StoreFailureIsAnError(t *testing.T) {
	svc := NewService(healthyChain(), failingStore{})

	_, err := svc.AnchorDIDCreation(context.Background(), id.DID("did:anchor:0011223344556677889900112233aabb"), "deadbeef")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

type failingStore struct{}

func (failingStore) AppendAnchor(context.Context, Record) error { return errors.New("disk full") }
func (failingStore) ListAnchors(context.Context, string) ([]Record, error) {
	return nil, errors.New("disk full")
}

func TestAnchor_PublisherFailureIsFailOpen(t *testing.T) {
	publisher := &capturingPublisher{err: errors.New("broker down")}
	store := NewMemoryStore()
	svc := NewService(healthyChain(), store, WithPublisher(publisher))

	receipt, err := svc.AnchorDIDCreation(context.Background(), id.DID("did:anchor:0011223344556677889900112233aabb"), "deadbeef")
	require.NoError(t, err)
	assert.True(t, receipt.Anchored())
}

func TestAnchor_AppendOnlyHistory(t *testing.T) {
	chain := healthyChain()
	store := NewMemoryStore()
	svc := NewService(chain, store)

	did := id.DID("did:anchor:0011223344556677889900112233aabb")
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	_, err := svc.AnchorDIDCreation(ctx, did, "hash-1")
	require.NoError(t, err)
	ctx = requestcontext.WithTime(context.Background(), now.Add(time.Hour))
	_, err = svc.AnchorDIDUpdate(ctx, did, "hash-2")
	require.NoError(t, err)

	records, err := svc.History(context.Background(), did.String())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, OpDIDCreate, records[0].Operation)
	assert.Equal(t, "hash-1", records[0].ContentHash)
	assert.Equal(t, OpDIDUpdate, records[1].Operation)
	assert.Equal(t, "hash-2", records[1].ContentHash)
}

func TestGetTransactionStatus(t *testing.T) {
	chain := healthyChain()
	chain.tx = TxStatus{TxHash: "ABC123", Confirmed: true, Height: 101}
	svc := NewService(chain, NewMemoryStore())

	status, err := svc.GetTransactionStatus(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.True(t, status.Confirmed)

	_, err = svc.GetTransactionStatus(context.Background(), "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	chain.txErr = fmt.Errorf("%w: no such tx", sentinel.ErrNotFound)
	_, err = svc.GetTransactionStatus(context.Background(), "MISSING")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	chain.txErr = fmt.Errorf("%w: timeout", sentinel.ErrUnavailable)
	_, err = svc.GetTransactionStatus(context.Background(), "ABC123")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeChainUnavailable))
}

func TestCheckChainStatus(t *testing.T) {
	chain := healthyChain()
	svc := NewService(chain, NewMemoryStore())

	status, err := svc.CheckChainStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Available)

	chain.statusErr = fmt.Errorf("%w: refused", sentinel.ErrUnavailable)
	_, err = svc.CheckChainStatus(context.Background())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeChainUnavailable))
}
