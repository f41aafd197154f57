package dispatch

import "context"

// OutcomeRecorder receives one observation per Start/Stop/Restart call.
// metrics.Registry implements this.
type OutcomeRecorder interface {
	RecordDispatchOutcome(service, operation string, ok bool)
}

// MeteredDispatcher wraps another Dispatcher and reports every
// Start/Stop/Restart outcome to an OutcomeRecorder, without changing
// the wrapped backend's behavior.
type MeteredDispatcher struct {
	Inner    Dispatcher
	Recorder OutcomeRecorder
}

func NewMeteredDispatcher(inner Dispatcher, recorder OutcomeRecorder) *MeteredDispatcher {
	return &MeteredDispatcher{Inner: inner, Recorder: recorder}
}

func (d *MeteredDispatcher) Start(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	ok := d.Inner.Start(ctx, service, isPrimary, usePrivileged)
	d.Recorder.RecordDispatchOutcome(service, "start", ok)
	return ok
}

func (d *MeteredDispatcher) Stop(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	ok := d.Inner.Stop(ctx, service, isPrimary, usePrivileged)
	d.Recorder.RecordDispatchOutcome(service, "stop", ok)
	return ok
}

func (d *MeteredDispatcher) Restart(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	ok := d.Inner.Restart(ctx, service, isPrimary, usePrivileged)
	d.Recorder.RecordDispatchOutcome(service, "restart", ok)
	return ok
}

func (d *MeteredDispatcher) IsRunning(ctx context.Context, service string, isPrimary bool) bool {
	return d.Inner.IsRunning(ctx, service, isPrimary)
}

var _ Dispatcher = (*MeteredDispatcher)(nil)
