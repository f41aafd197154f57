package dispatch

import (
	"context"
	"testing"
)

type fakeDispatcher struct {
	startOK, stopOK, restartOK, running bool
}

func (f *fakeDispatcher) Start(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	return f.startOK
}
func (f *fakeDispatcher) Stop(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	return f.stopOK
}
func (f *fakeDispatcher) Restart(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	return f.restartOK
}
func (f *fakeDispatcher) IsRunning(ctx context.Context, service string, isPrimary bool) bool {
	return f.running
}

type recordedOutcome struct {
	service, operation string
	ok                 bool
}

type fakeRecorder struct {
	outcomes []recordedOutcome
}

func (r *fakeRecorder) RecordDispatchOutcome(service, operation string, ok bool) {
	r.outcomes = append(r.outcomes, recordedOutcome{service, operation, ok})
}

func TestMeteredDispatcherRecordsEachOutcome(t *testing.T) {
	inner := &fakeDispatcher{startOK: true, stopOK: false, restartOK: true}
	rec := &fakeRecorder{}
	d := NewMeteredDispatcher(inner, rec)
	ctx := context.Background()

	if !d.Start(ctx, "mcs-primproc", true, false) {
		t.Fatal("expected Start to pass through inner result")
	}
	if d.Stop(ctx, "mcs-primproc", true, false) {
		t.Fatal("expected Stop to pass through inner result")
	}
	if !d.Restart(ctx, "mcs-primproc", true, false) {
		t.Fatal("expected Restart to pass through inner result")
	}

	want := []recordedOutcome{
		{"mcs-primproc", "start", true},
		{"mcs-primproc", "stop", false},
		{"mcs-primproc", "restart", true},
	}
	if len(rec.outcomes) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(rec.outcomes), len(want))
	}
	for i, w := range want {
		if rec.outcomes[i] != w {
			t.Errorf("outcome %d = %+v, want %+v", i, rec.outcomes[i], w)
		}
	}
}

func TestMeteredDispatcherIsRunningDoesNotRecord(t *testing.T) {
	inner := &fakeDispatcher{running: true}
	rec := &fakeRecorder{}
	d := NewMeteredDispatcher(inner, rec)

	if !d.IsRunning(context.Background(), "mcs-primproc", true) {
		t.Fatal("expected IsRunning to pass through inner result")
	}
	if len(rec.outcomes) != 0 {
		t.Fatalf("IsRunning should not record an outcome, got %d", len(rec.outcomes))
	}
}
