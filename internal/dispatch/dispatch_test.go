package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAllServicesNoEmptySubcommand(t *testing.T) {
	for name, d := range AllServices {
		if d.Subcommand == "" {
			t.Errorf("service %s has empty Subcommand", name)
		}
	}
}

// fakeBin writes a tiny shell script standing in for an mcs-* binary so
// ContainerDispatcher has something real to exec in tests.
func fakeBin(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake binary %s: %v", name, err)
	}
}

func TestContainerDispatcherStartStopLongRunning(t *testing.T) {
	binDir := t.TempDir()
	logDir := t.TempDir()

	fakeBin(t, binDir, "mcs-primproc", "sleep 30")

	d := NewContainerDispatcher(binDir, logDir)
	ctx := context.Background()

	if !d.Start(ctx, "mcs-primproc", true, false) {
		t.Fatal("Start(mcs-primproc) = false, want true")
	}
	if !d.IsRunning(ctx, "mcs-primproc", true) {
		t.Fatal("expected mcs-primproc to be running after Start")
	}
	if !d.Stop(ctx, "mcs-primproc", true, false) {
		t.Fatal("Stop(mcs-primproc) = false, want true")
	}
	if d.IsRunning(ctx, "mcs-primproc", true) {
		t.Fatal("expected mcs-primproc to be stopped after Stop")
	}
}

func TestContainerDispatcherOneShot(t *testing.T) {
	binDir := t.TempDir()
	logDir := t.TempDir()
	fakeBin(t, binDir, "mcs-loadbrm", "exit 0")

	d := NewContainerDispatcher(binDir, logDir)
	if !d.Start(context.Background(), "mcs-loadbrm", false, false) {
		t.Fatal("Start(mcs-loadbrm) one-shot = false, want true")
	}
}

func TestContainerDispatcherWorkernodeInstancesAreIndependent(t *testing.T) {
	binDir := t.TempDir()
	logDir := t.TempDir()
	fakeBin(t, binDir, "mcs-workernode", "sleep 30")
	fakeBin(t, binDir, "mcs-loadbrm", "exit 0")
	fakeBin(t, binDir, "mcs-savebrm", "exit 0")

	d := NewContainerDispatcher(binDir, logDir)
	ctx := context.Background()

	if !d.Start(ctx, "mcs-workernode", true, false) {
		t.Fatal("start primary workernode failed")
	}
	if !d.Start(ctx, "mcs-workernode", false, false) {
		t.Fatal("start secondary workernode failed")
	}
	if !d.IsRunning(ctx, "mcs-workernode", true) || !d.IsRunning(ctx, "mcs-workernode", false) {
		t.Fatal("expected both workernode instances running independently")
	}

	d.Stop(ctx, "mcs-workernode", true, false)
	time.Sleep(10 * time.Millisecond)
	if d.IsRunning(ctx, "mcs-workernode", true) {
		t.Error("primary workernode instance should be stopped")
	}
	if !d.IsRunning(ctx, "mcs-workernode", false) {
		t.Error("secondary workernode instance should remain running")
	}
	d.Stop(ctx, "mcs-workernode", false, false)
}

func TestServiceManagerUnitNameSelectsWorkernodeInstance(t *testing.T) {
	d := &ServiceManagerDispatcher{}
	if got := d.unitName("mcs-workernode", true); got != "mcs-workernode@1" {
		t.Errorf("unitName(primary) = %q, want mcs-workernode@1", got)
	}
	if got := d.unitName("mcs-workernode", false); got != "mcs-workernode@2" {
		t.Errorf("unitName(secondary) = %q, want mcs-workernode@2", got)
	}
	if got := d.unitName("mcs-primproc", true); got != "mcs-primproc" {
		t.Errorf("unitName(mcs-primproc) = %q, want mcs-primproc", got)
	}
}
