package anchor

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"anchorid/internal/platform/config"
	"anchorid/pkg/platform/circuit"
	"anchorid/pkg/platform/sentinel"
)

var tracer = otel.Tracer("anchorid/internal/anchor")

// Client talks to a Tendermint-style RPC node over HTTP JSON. Every call is
// bounded by the configured timeout and retried once on transport errors; a
// circuit breaker short-circuits calls while the node is known to be down.
type Client struct {
	rpcURL     string
	network    string
	chainID    string
	maxRetries int
	httpClient *http.Client
	breaker    *circuit.Breaker
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger used for breaker transitions.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient overrides the underlying HTTP client. Tests point it at an
// httptest server transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a chain RPC client from config.
func NewClient(cfg config.ChainConfig, opts ...ClientOption) *Client {
	c := &Client{
		rpcURL:     cfg.RPCURL,
		network:    cfg.Network,
		chainID:    cfg.ChainID,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    circuit.New("chain-rpc"),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Network returns the configured network label stamped into receipts.
func (c *Client) Network() string { return c.network }

// rpcResponse is the Tendermint RPC envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    string `json:"data"`
	} `json:"error"`
}

type statusResult struct {
	NodeInfo struct {
		Network string `json:"network"`
	} `json:"node_info"`
	SyncInfo struct {
		LatestBlockHeight string `json:"latest_block_height"`
		CatchingUp        bool   `json:"catching_up"`
	} `json:"sync_info"`
}

type broadcastResult struct {
	Code int    `json:"code"`
	Log  string `json:"log"`
	Hash string `json:"hash"`
}

type txResult struct {
	Hash     string `json:"hash"`
	Height   string `json:"height"`
	TxResult struct {
		Code int    `json:"code"`
		Log  string `json:"log"`
	} `json:"tx_result"`
}

// Status probes node health. An open breaker fails fast without a network
// round trip.
func (c *Client) Status(ctx context.Context) (ChainStatus, error) {
	ctx, span := tracer.Start(ctx, "anchor.chain_status")
	defer span.End()

	var result statusResult
	if err := c.call(ctx, span, "/status", nil, &result); err != nil {
		return ChainStatus{Available: false, Reason: err.Error()}, err
	}
	height, _ := strconv.ParseInt(result.SyncInfo.LatestBlockHeight, 10, 64)
	status := ChainStatus{
		Available:    !result.SyncInfo.CatchingUp,
		ChainID:      result.NodeInfo.Network,
		LatestHeight: height,
	}
	if result.SyncInfo.CatchingUp {
		status.Reason = "node is catching up"
	}
	span.SetAttributes(
		attribute.String("chain.id", status.ChainID),
		attribute.Int64("chain.height", status.LatestHeight),
	)
	return status, nil
}

// BroadcastMemo submits a memo transaction carrying the content hash and
// waits for sync acceptance.
func (c *Client) BroadcastMemo(ctx context.Context, memo Memo) (BroadcastResult, error) {
	ctx, span := tracer.Start(ctx, "anchor.broadcast_memo",
		trace.WithAttributes(
			attribute.String("anchor.operation", string(memo.Operation)),
			attribute.String("anchor.subject", memo.Subject),
		))
	defer span.End()

	payload, err := json.Marshal(memo)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("encode memo: %w", err)
	}
	params := url.Values{"tx": {`"0x` + hex.EncodeToString(payload) + `"`}}

	var result broadcastResult
	if err := c.call(ctx, span, "/broadcast_tx_sync", params, &result); err != nil {
		return BroadcastResult{}, err
	}
	if result.Code != 0 {
		span.SetAttributes(attribute.Int("tx.code", result.Code))
		return BroadcastResult{}, fmt.Errorf("%w: tx rejected with code %d: %s", sentinel.ErrUnavailable, result.Code, result.Log)
	}

	// broadcast_tx_sync does not return a height; confirm via tx query so
	// the receipt carries the inclusion height.
	status, err := c.TxStatus(ctx, result.Hash)
	if err != nil {
		// Accepted but not yet queryable. Hash is real; height unknown.
		return BroadcastResult{TxHash: result.Hash}, nil
	}
	return BroadcastResult{TxHash: result.Hash, Height: status.Height}, nil
}

// TxStatus queries a transaction by hash. Returns sentinel.ErrNotFound for
// unknown hashes.
func (c *Client) TxStatus(ctx context.Context, txHash string) (TxStatus, error) {
	ctx, span := tracer.Start(ctx, "anchor.tx_status",
		trace.WithAttributes(attribute.String("tx.hash", txHash)))
	defer span.End()

	params := url.Values{"hash": {`"0x` + txHash + `"`}}
	var result txResult
	if err := c.call(ctx, span, "/tx", params, &result); err != nil {
		return TxStatus{}, err
	}
	height, _ := strconv.ParseInt(result.Height, 10, 64)
	return TxStatus{
		TxHash:    result.Hash,
		Confirmed: result.TxResult.Code == 0 && height > 0,
		Height:    height,
	}, nil
}

// call performs one RPC with retry and breaker accounting. RPC-level errors
// (a valid envelope carrying an error) are terminal; transport errors are
// retried up to maxRetries additional attempts.
func (c *Client) call(ctx context.Context, span trace.Span, path string, params url.Values, out any) error {
	if c.breaker.IsOpen() {
		err := fmt.Errorf("%w: chain rpc circuit open", sentinel.ErrUnavailable)
		span.RecordError(err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := c.doRequest(ctx, path, params, out)
		if err == nil {
			if _, change := c.breaker.RecordSuccess(); change.Closed {
				c.logger.InfoContext(ctx, "chain rpc circuit closed")
			}
			return nil
		}
		var rpcErr *rpcCallError
		if errors.As(err, &rpcErr) {
			// The node answered, so this is not a transport failure and
			// does not count against the breaker.
			if _, change := c.breaker.RecordSuccess(); change.Closed {
				c.logger.InfoContext(ctx, "chain rpc circuit closed")
			}
			span.RecordError(err)
			if rpcErr.notFound {
				return fmt.Errorf("%w: %s", sentinel.ErrNotFound, rpcErr.msg)
			}
			return err
		}
		lastErr = err
	}

	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "chain rpc circuit opened", "path", path, "error", lastErr)
	}
	span.RecordError(lastErr)
	return fmt.Errorf("%w: %s: %s", sentinel.ErrUnavailable, path, lastErr)
}

// rpcCallError is a non-transport failure: the node answered with an error
// envelope.
type rpcCallError struct {
	msg      string
	notFound bool
}

func (e *rpcCallError) Error() string { return e.msg }

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, out any) error {
	endpoint := c.rpcURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var envelope rpcResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return &rpcCallError{
			msg:      fmt.Sprintf("rpc error %d: %s %s", envelope.Error.Code, envelope.Error.Message, envelope.Error.Data),
			notFound: strings.Contains(envelope.Error.Data, "not found"),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.Unmarshal(envelope.Result, out)
}

// WaitHealthy blocks until the node reports available or the context ends.
// Used at startup when the chain is a hard dependency.
func (c *Client) WaitHealthy(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if status, err := c.Status(ctx); err == nil && status.Available {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
