package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	"cmapid/internal/cmdutil"
)

// ServiceManagerDispatcher drives systemd units. Workernode has two
// possible instances (mcs-workernode@1, mcs-workernode@2); isPrimary
// selects instance 1, non-primary selects instance 2 — the
// dual-workernode convention on two-node clusters.
type ServiceManagerDispatcher struct {
	// Sudo prefixes systemctl invocations when usePrivileged is set and
	// the dispatcher isn't already running as root.
	Sudo bool
}

func (d *ServiceManagerDispatcher) unitName(service string, isPrimary bool) string {
	if service == "mcs-workernode" {
		if isPrimary {
			return "mcs-workernode@1"
		}
		return "mcs-workernode@2"
	}
	return service
}

func (d *ServiceManagerDispatcher) systemctl(ctx context.Context, usePrivileged bool, args ...string) ([]byte, error) {
	name := "systemctl"
	if usePrivileged && d.Sudo {
		args = append([]string{"systemctl"}, args...)
		name = "sudo"
	}
	return cmdutil.Run(cmdutil.TimeoutMedium, name, args...)
}

func (d *ServiceManagerDispatcher) Start(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	unit := d.unitName(service, isPrimary)
	if _, err := d.systemctl(ctx, usePrivileged, "start", unit); err != nil {
		log.Printf("dispatch(systemd): start %s failed: %v", unit, err)
		return false
	}
	desc, ok := AllServices[service]
	if ok && desc.OneShot {
		return true
	}
	return d.IsRunning(ctx, service, isPrimary)
}

func (d *ServiceManagerDispatcher) Stop(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	unit := d.unitName(service, isPrimary)
	if _, err := d.systemctl(ctx, usePrivileged, "stop", unit); err != nil {
		log.Printf("dispatch(systemd): stop %s failed: %v", unit, err)
		return false
	}
	return true
}

func (d *ServiceManagerDispatcher) Restart(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	unit := d.unitName(service, isPrimary)
	if _, err := d.systemctl(ctx, usePrivileged, "restart", unit); err != nil {
		log.Printf("dispatch(systemd): restart %s failed: %v", unit, err)
		return false
	}
	return d.IsRunning(ctx, service, isPrimary)
}

func (d *ServiceManagerDispatcher) IsRunning(ctx context.Context, service string, isPrimary bool) bool {
	unit := d.unitName(service, isPrimary)
	out, err := cmdutil.RunFast("systemctl", "is-active", unit)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "active"
}

var _ Dispatcher = (*ServiceManagerDispatcher)(nil)

func init() {
	// Guard against AllServices entries with an empty Subcommand, which
	// would mean a typo in the registry above.
	for name, d := range AllServices {
		if d.Subcommand == "" {
			panic(fmt.Sprintf("dispatch: service %s has empty Subcommand", name))
		}
	}
}
