package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient implements TxnClient and NodeClient by POSTing JSON to
// each target node's RPC endpoints. Resolve maps a node name to its
// base URL ("http://host:port").
type HTTPClient struct {
	Resolve func(node string) (string, error)
	Client  *http.Client
}

func NewHTTPClient(resolve func(node string) (string, error)) *HTTPClient {
	return &HTTPClient{
		Resolve: resolve,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) post(ctx context.Context, node, path string, body interface{}) error {
	base, err := c.Resolve(node)
	if err != nil {
		return fmt.Errorf("rpc: resolve %s: %w", node, err)
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("rpc: encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, &buf)
	if err != nil {
		return fmt.Errorf("rpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc: call %s%s: %w", base, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("rpc: %s%s returned %d: %s", base, path, resp.StatusCode, string(data))
	}
	return nil
}

// broadcast calls path on every node in nodes, returning the first
// error encountered. Any single failure fails the whole call; callers
// never see which subset of peers actually applied the change.
func (c *HTTPClient) broadcast(ctx context.Context, nodes []string, path string, body interface{}) error {
	for _, node := range nodes {
		if err := c.post(ctx, node, path, body); err != nil {
			return err
		}
	}
	return nil
}

type startTxnRequest struct {
	TxnID        string   `json:"txnId"`
	NodesAdded   []string `json:"nodesAdded"`
	NodesRemoved []string `json:"nodesRemoved"`
}

func (c *HTTPClient) StartTransaction(ctx context.Context, txnID string, peers []string, nodesAdded, nodesRemoved []string) error {
	req := startTxnRequest{TxnID: txnID, NodesAdded: nodesAdded, NodesRemoved: nodesRemoved}
	return c.broadcast(ctx, peers, "/rpc/txn/start", req)
}

func (c *HTTPClient) UpdateRevisionAndManager(ctx context.Context, txnID string, peers []string) error {
	return c.broadcast(ctx, peers, "/rpc/txn/update-revision", txnIDRequest{TxnID: txnID})
}

type broadcastConfigRequest struct {
	TxnID string `json:"txnId"`
}

func (c *HTTPClient) BroadcastNewConfig(ctx context.Context, txnID string, nodes []string) error {
	return c.broadcast(ctx, nodes, "/rpc/txn/broadcast", broadcastConfigRequest{TxnID: txnID})
}

type txnIDRequest struct {
	TxnID string `json:"txnId"`
}

func (c *HTTPClient) CommitTransaction(ctx context.Context, txnID string, peers []string) error {
	return c.broadcast(ctx, peers, "/rpc/txn/commit", txnIDRequest{TxnID: txnID})
}

func (c *HTTPClient) RollbackTransaction(ctx context.Context, txnID string, peers []string) error {
	return c.broadcast(ctx, peers, "/rpc/txn/rollback", txnIDRequest{TxnID: txnID})
}

type nodeOpRequest struct {
	TxnID string `json:"txnId"`
	Node  string `json:"node"`
}

// ActivateNode, DeactivateNode, and MovePrimary are sent to the single
// node named by target — the node that must locally apply the change —
// not broadcast to the whole cohort.
func (c *HTTPClient) ActivateNode(ctx context.Context, txnID, target string) error {
	return c.post(ctx, target, "/rpc/node/activate", nodeOpRequest{TxnID: txnID, Node: target})
}

func (c *HTTPClient) DeactivateNode(ctx context.Context, txnID, target string) error {
	return c.post(ctx, target, "/rpc/node/deactivate", nodeOpRequest{TxnID: txnID, Node: target})
}

func (c *HTTPClient) MovePrimary(ctx context.Context, txnID, newPrimary string) error {
	return c.post(ctx, newPrimary, "/rpc/node/move-primary", nodeOpRequest{TxnID: txnID, Node: newPrimary})
}
