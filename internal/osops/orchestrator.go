// Package osops sequences ColumnStore process start-up and shutdown on
// a single node: readiness gating, primary-vs-worker ordering, and the
// force-shutdown path that reinserts mcs-dmlproc when the DBRM system
// state call fails or dmlproc doesn't exit within the shutdown timeout.
package osops

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"cmapid/internal/dispatch"
)

// AddrBook supplies the addresses osops needs to probe for readiness,
// separate from clusterconfig.Config's membership queries.
type AddrBook interface {
	WorkerNodeAddrs() ([]Addr, error)
	ControllerAddr() (Addr, error)
}

// Addr mirrors clusterconfig.Addr so this package doesn't import
// clusterconfig just for a two-field struct.
type Addr struct {
	Host string
	Port int
}

func (a Addr) String() string { return fmt.Sprintf("%s:%d", a.Host, a.Port) }

// DBRMControl is the interface to the DBRM master's system-state
// control call. Its wire format is not defined in this module and no
// implementation ships with it; ShutdownNode skips the system-state
// step when Orchestrator.DBRM is nil, which is how cmd/cmapid wires it.
type DBRMControl interface {
	SetSystemState(ctx context.Context, states []string) error
}

// OpError records one failed step of an orchestration sequence without
// aborting the remaining steps: a per-node try/log/continue pattern.
type OpError struct {
	Service   string
	Operation string
	Err       error
}

func (e OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Service, e.Err)
}

// Orchestrator drives the Dispatcher through the exact ColumnStore
// start/stop sequence for one node.
type Orchestrator struct {
	Dispatcher dispatch.Dispatcher
	Addrs      AddrBook
	DBRM       DBRMControl

	// ReadinessTimeout bounds how long StartNode waits for a dependency
	// to accept TCP connections before giving up on that gate.
	ReadinessTimeout time.Duration
	dial             func(ctx context.Context, addr string, timeout time.Duration) bool
}

func NewOrchestrator(d dispatch.Dispatcher, addrs AddrBook, dbrm DBRMControl) *Orchestrator {
	return &Orchestrator{
		Dispatcher:       d,
		Addrs:            addrs,
		DBRM:             dbrm,
		ReadinessTimeout: 30 * time.Second,
		dial:             tcpReady,
	}
}

func tcpReady(ctx context.Context, addr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		d := net.Dialer{Timeout: time.Second}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return true
		}
		time.Sleep(time.Second)
	}
	return false
}

func (o *Orchestrator) waitReady(ctx context.Context, addr Addr, what string) error {
	if !o.dial(ctx, addr.String(), o.ReadinessTimeout) {
		return fmt.Errorf("%s at %s not ready after %v", what, addr, o.ReadinessTimeout)
	}
	return nil
}

// StartNode brings up this node's ColumnStore processes in dependency
// order: workernode, controllernode (primary only, after worker
// readiness), primproc/exemgr/writeengineserver, then dmlproc and
// ddlproc on the primary followed by the dbbuilder bootstrap hook, or
// dmlproc alone on a non-primary once the controller is reachable.
func (o *Orchestrator) StartNode(ctx context.Context, isPrimary bool) []error {
	var errs []error
	fail := func(service, op string, err error) {
		errs = append(errs, OpError{Service: service, Operation: op, Err: err})
		log.Printf("osops: %s %s failed: %v", op, service, err)
	}

	if !o.Dispatcher.Start(ctx, "mcs-workernode", isPrimary, false) {
		fail("mcs-workernode", "start", fmt.Errorf("dispatcher reported failure"))
	}

	if isPrimary {
		if addrs, err := o.Addrs.WorkerNodeAddrs(); err == nil {
			for _, a := range addrs {
				if err := o.waitReady(ctx, a, "workernode"); err != nil {
					fail("mcs-workernode", "wait-ready", err)
				}
			}
		}
	}

	if isPrimary {
		if !o.Dispatcher.Start(ctx, "mcs-controllernode", isPrimary, false) {
			fail("mcs-controllernode", "start", fmt.Errorf("dispatcher reported failure"))
		}
	}

	for _, svc := range []string{"mcs-primproc", "mcs-exemgr", "mcs-writeengineserver"} {
		if !o.Dispatcher.Start(ctx, svc, isPrimary, false) {
			fail(svc, "start", fmt.Errorf("dispatcher reported failure"))
		}
	}

	if !isPrimary {
		if controller, err := o.Addrs.ControllerAddr(); err == nil {
			if err := o.waitReady(ctx, controller, "controllernode"); err != nil {
				fail("mcs-controllernode", "wait-ready", err)
			}
		}
		if !o.Dispatcher.Start(ctx, "mcs-dmlproc", isPrimary, false) {
			fail("mcs-dmlproc", "start", fmt.Errorf("dispatcher reported failure"))
		}
		return errs
	}

	if !o.Dispatcher.Start(ctx, "mcs-dmlproc", isPrimary, false) {
		fail("mcs-dmlproc", "start", fmt.Errorf("dispatcher reported failure"))
	}
	if !o.Dispatcher.Start(ctx, "mcs-ddlproc", isPrimary, false) {
		fail("mcs-ddlproc", "start", fmt.Errorf("dispatcher reported failure"))
	}
	if err := o.bootstrapDBBuilder(ctx); err != nil {
		fail("dbbuilder", "bootstrap", err)
	}

	return errs
}

// bootstrapDBBuilder runs the one-time schema bootstrap after ddlproc
// comes up on the primary. A real deployment's dbbuilder invocation is
// environment-specific (systemd vs. container differ in how they reach
// mysql); this hook exists so StartNode's ordering is exercised even
// though the concrete bootstrap command is supplied by the caller.
var dbBuilderHook func(ctx context.Context) error

func (o *Orchestrator) bootstrapDBBuilder(ctx context.Context) error {
	if dbBuilderHook == nil {
		return nil
	}
	return dbBuilderHook(ctx)
}

// SetDBBuilderHook installs the environment-specific dbbuilder bootstrap
// command. Until a hook is set the bootstrap step does nothing;
// cmd/cmapid does not set one.
func SetDBBuilderHook(fn func(ctx context.Context) error) {
	dbBuilderHook = fn
}

// ShutdownNode tears down this node's ColumnStore processes: mcs-ddlproc
// (primary only), then primproc, writeengineserver, exemgr,
// controllernode, workernode and storagemanager. On a primary that isn't
// already in force mode, it first tries to set the DBRM system state to
// SS_ROLLBACK/SS_SHUTDOWN_PENDING and waits up to timeout for the local
// dmlproc to exit on its own; either one failing escalates to force
// mode, which adds a stop of mcs-dmlproc right after mcs-ddlproc. When
// the caller itself passes force on a primary, mcs-dmlproc is also
// restarted before the stop sequence begins.
func (o *Orchestrator) ShutdownNode(ctx context.Context, isPrimary bool, timeout time.Duration, force bool) []error {
	var errs []error
	fail := func(service, op string, err error) {
		errs = append(errs, OpError{Service: service, Operation: op, Err: err})
		log.Printf("osops: %s %s failed: %v", op, service, err)
	}

	if force && isPrimary {
		if !o.Dispatcher.Restart(ctx, "mcs-dmlproc", isPrimary, false) {
			fail("mcs-dmlproc", "force-restart", fmt.Errorf("dispatcher reported failure"))
		}
	}

	if isPrimary && !force {
		if o.DBRM != nil {
			if err := o.DBRM.SetSystemState(ctx, []string{"SS_ROLLBACK", "SS_SHUTDOWN_PENDING"}); err != nil {
				fail("dbrm", "set-system-state", err)
				force = true
			}
		}
		if !force {
			force = o.waitDmlprocExit(ctx, timeout)
		}
	}

	var order []string
	if isPrimary {
		order = append(order, "mcs-ddlproc")
	}
	if force {
		order = append(order, "mcs-dmlproc")
	}
	order = append(order, "mcs-primproc", "mcs-writeengineserver", "mcs-exemgr", "mcs-controllernode", "mcs-workernode", "mcs-storagemanager")

	for _, svc := range order {
		if !o.Dispatcher.Stop(ctx, svc, isPrimary, false) {
			fail(svc, "stop", fmt.Errorf("dispatcher reported failure"))
		}
	}

	return errs
}

// waitDmlprocExit polls mcs-dmlproc's running state until it stops or
// timeout elapses. It returns true (escalate to force mode) if dmlproc
// is still running once the deadline passes.
func (o *Orchestrator) waitDmlprocExit(ctx context.Context, timeout time.Duration) bool {
	if !o.Dispatcher.IsRunning(ctx, "mcs-dmlproc", true) {
		return false
	}
	deadline := time.Now().Add(timeout)
	for {
		if !time.Now().Before(deadline) {
			log.Printf("osops: dmlproc did not stop within %v, forcing shutdown", timeout)
			return true
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(time.Second):
		}
		if !o.Dispatcher.IsRunning(ctx, "mcs-dmlproc", true) {
			return false
		}
	}
}
