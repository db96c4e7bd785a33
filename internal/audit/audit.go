// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

// Package audit persists security events asynchronously so that the
// request path never blocks on the audit trail. Failed writes are not
// silent: every error is logged with the originating request id.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/crewos/crew-service/internal/logging"
	"github.com/crewos/crew-service/internal/tracing"
	"github.com/crewos/crew-service/internal/types"
)

// Event kinds recorded by the platform.
const (
	KindLoginSucceeded       = "login_succeeded"
	KindLoginFailed          = "login_failed"
	KindAccountLocked        = "account_locked"
	KindImpersonationIssued  = "impersonation_issued"
	KindImpersonationBlocked = "impersonation_blocked"
	KindImpersonationRevoked = "impersonation_revoked"
	KindRoleChanged          = "role_changed"
	KindOrganizationUpdated  = "organization_updated"
	KindOrganizationCreated  = "organization_created"
)

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// EventWriter is the storage seam the recorder writes through.
type EventWriter interface {
	InsertAuditEvent(ctx context.Context, event *types.AuditEvent) error
}

// Recorder accepts events on the request path and writes them from a
// background worker. Record never blocks; when the queue is full the
// event is dropped and the drop is logged.
type Recorder struct {
	writer EventWriter

	queue chan *types.AuditEvent
	wg    sync.WaitGroup
	once  sync.Once

	tracer tracing.TracingInterface
	logger logging.LoggerInterface
}

func NewRecorder(writer EventWriter, tracer tracing.TracingInterface, logger logging.LoggerInterface) *Recorder {
	r := new(Recorder)

	r.writer = writer
	r.tracer = tracer
	r.logger = logger
	r.queue = make(chan *types.AuditEvent, queueSize)

	r.wg.Add(1)
	go r.run()

	return r
}

// Record enqueues an event without blocking the caller.
func (r *Recorder) Record(event *types.AuditEvent) {
	select {
	case r.queue <- event:
	default:
		r.logger.Errorf("audit queue full, dropping %s event for actor %s (request %s)",
			event.Kind, event.ActorID, event.RequestID)
	}
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for event := range r.queue {
		r.write(event)
	}
}

func (r *Recorder) write(event *types.AuditEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "audit.Recorder.write")
	defer span.End()

	if err := r.writer.InsertAuditEvent(ctx, event); err != nil {
		r.logger.Errorf("failed to persist %s audit event for actor %s (request %s): %v",
			event.Kind, event.ActorID, event.RequestID, err)
	}
}

// Close stops the worker after draining queued events.
func (r *Recorder) Close() {
	r.once.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}
