// Package dispatch starts, stops, and polls the MariaDB ColumnStore
// processes (mcs-workernode, mcs-controllernode, mcs-primproc, and so
// on) via a pluggable backend: systemd unit management or direct
// exec inside a container.
package dispatch

import "context"

// ServiceDescriptor names one ColumnStore process and how it is
// addressed by the dispatcher backends.
type ServiceDescriptor struct {
	Name       string // e.g. "mcs-workernode"
	Subcommand string // unit/program name passed to the backend
	OneShot    bool   // true if the process exits on its own (no readiness poll)
}

// AllServices is the registry of every ColumnStore process a
// Dispatcher can manage, keyed by ServiceDescriptor.Name.
var AllServices = map[string]ServiceDescriptor{
	"mcs-workernode":       {Name: "mcs-workernode", Subcommand: "mcs-workernode"},
	"mcs-controllernode":   {Name: "mcs-controllernode", Subcommand: "mcs-controllernode"},
	"mcs-primproc":         {Name: "mcs-primproc", Subcommand: "mcs-primproc"},
	"mcs-exemgr":           {Name: "mcs-exemgr", Subcommand: "mcs-exemgr"},
	"mcs-writeengineserver": {Name: "mcs-writeengineserver", Subcommand: "mcs-writeengineserver"},
	"mcs-dmlproc":          {Name: "mcs-dmlproc", Subcommand: "mcs-dmlproc"},
	"mcs-ddlproc":          {Name: "mcs-ddlproc", Subcommand: "mcs-ddlproc"},
	"mcs-storagemanager":   {Name: "mcs-storagemanager", Subcommand: "mcs-storagemanager"},
	"mcs-loadbrm":          {Name: "mcs-loadbrm", Subcommand: "mcs-loadbrm", OneShot: true},
	"mcs-savebrm":          {Name: "mcs-savebrm", Subcommand: "mcs-savebrm", OneShot: true},
}

// Dispatcher is the uniform contract both process-management backends
// satisfy. usePrivileged selects a privileged invocation path (systemd:
// plain systemctl vs. sudo systemctl) for backends where that
// distinction matters; the container backend ignores the flag.
type Dispatcher interface {
	Start(ctx context.Context, service string, isPrimary, usePrivileged bool) bool
	Stop(ctx context.Context, service string, isPrimary, usePrivileged bool) bool
	Restart(ctx context.Context, service string, isPrimary, usePrivileged bool) bool
	IsRunning(ctx context.Context, service string, isPrimary bool) bool
}
