package rpc

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

type recordingBackend struct {
	prepared        []string
	revisionUpdated []string
	applied         []string
	committed       []string
	rolledBack      []string
	activated       []string
	deactivated     []string
	moved           []string
	failOn          string
}

func (b *recordingBackend) PrepareTransaction(txnID string, added, removed []string) error {
	if txnID == b.failOn {
		return errFake
	}
	b.prepared = append(b.prepared, txnID)
	return nil
}

func (b *recordingBackend) UpdateRevisionAndManager(txnID string) error {
	b.revisionUpdated = append(b.revisionUpdated, txnID)
	return nil
}

func (b *recordingBackend) ApplyNewConfig(txnID string) error {
	b.applied = append(b.applied, txnID)
	return nil
}

func (b *recordingBackend) CommitTransaction(txnID string) error {
	b.committed = append(b.committed, txnID)
	return nil
}

func (b *recordingBackend) RollbackTransaction(txnID string) error {
	b.rolledBack = append(b.rolledBack, txnID)
	return nil
}

func (b *recordingBackend) Activate(txnID, node string) error {
	b.activated = append(b.activated, node)
	return nil
}

func (b *recordingBackend) Deactivate(txnID, node string) error {
	b.deactivated = append(b.deactivated, node)
	return nil
}

func (b *recordingBackend) MovePrimary(txnID, node string) error {
	b.moved = append(b.moved, node)
	return nil
}

func newTestServer(t *testing.T, backend Backend) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	NewServer(backend).Register(r)
	return httptest.NewServer(r)
}

func TestHTTPClientStartTransactionAndCommit(t *testing.T) {
	backend := &recordingBackend{}
	srv := newTestServer(t, backend)
	defer srv.Close()

	client := NewHTTPClient(func(node string) (string, error) { return srv.URL, nil })

	ctx := context.Background()
	if err := client.StartTransaction(ctx, "txn-1", []string{"peer-a"}, []string{"n1"}, nil); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if err := client.CommitTransaction(ctx, "txn-1", []string{"peer-a"}); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	if len(backend.prepared) != 1 || backend.prepared[0] != "txn-1" {
		t.Errorf("prepared = %v, want [txn-1]", backend.prepared)
	}
	if len(backend.committed) != 1 {
		t.Errorf("committed = %v, want one commit", backend.committed)
	}
}

func TestHTTPClientBroadcastReturnsPeerFailure(t *testing.T) {
	backend := &recordingBackend{failOn: "bad-txn"}
	srv := newTestServer(t, backend)
	defer srv.Close()

	client := NewHTTPClient(func(node string) (string, error) { return srv.URL, nil })

	err := client.StartTransaction(context.Background(), "bad-txn", []string{"peer-a", "peer-b"}, nil, nil)
	if err == nil {
		t.Fatal("expected error from failing backend")
	}
}

func TestHTTPClientUpdateRevisionAndManager(t *testing.T) {
	backend := &recordingBackend{}
	srv := newTestServer(t, backend)
	defer srv.Close()

	client := NewHTTPClient(func(node string) (string, error) { return srv.URL, nil })
	if err := client.UpdateRevisionAndManager(context.Background(), "txn-1", []string{"peer-a"}); err != nil {
		t.Fatalf("UpdateRevisionAndManager: %v", err)
	}
	if len(backend.revisionUpdated) != 1 || backend.revisionUpdated[0] != "txn-1" {
		t.Errorf("revisionUpdated = %v, want [txn-1]", backend.revisionUpdated)
	}
}

func TestHTTPClientActivateNode(t *testing.T) {
	backend := &recordingBackend{}
	srv := newTestServer(t, backend)
	defer srv.Close()

	client := NewHTTPClient(func(node string) (string, error) { return srv.URL, nil })
	if err := client.ActivateNode(context.Background(), "txn-1", "node-x"); err != nil {
		t.Fatalf("ActivateNode: %v", err)
	}
	if len(backend.activated) != 1 || backend.activated[0] != "node-x" {
		t.Errorf("activated = %v, want [node-x]", backend.activated)
	}
}

func TestHTTPClientResolveError(t *testing.T) {
	client := NewHTTPClient(func(node string) (string, error) {
		return "", errFake
	})
	if err := client.ActivateNode(context.Background(), "txn-1", "node-x"); err == nil {
		t.Fatal("expected resolve error to propagate")
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	if err := f.StartTransaction(ctx, "txn-1", []string{"a"}, nil, nil); err != nil {
		t.Fatalf("StartTransaction: %v", err)
	}
	if err := f.ActivateNode(ctx, "txn-1", "node-a"); err != nil {
		t.Fatalf("ActivateNode: %v", err)
	}
	if err := f.CommitTransaction(ctx, "txn-1", []string{"a"}); err != nil {
		t.Fatalf("CommitTransaction: %v", err)
	}

	if len(f.StartedTxns) != 1 || len(f.Activated) != 1 || len(f.Commits) != 1 {
		t.Fatalf("fake did not record all calls: %+v", f)
	}
}

func TestFakeFailsConfiguredTransaction(t *testing.T) {
	f := NewFake()
	f.FailTxnID = "bad"

	if err := f.StartTransaction(context.Background(), "bad", nil, nil, nil); err == nil {
		t.Fatal("expected configured failure")
	}
}
