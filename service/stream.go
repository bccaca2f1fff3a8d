/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-svckit/log"
)

// Stream returns a lazy sequence of the named service's Notify payloads.
//
// The stream borrows the service (taking a reference that keeps it running),
// taps its observers through a bounded queue and delivers payloads on the
// returned channel only while the service stays in the Running state. The
// channel is closed — and the borrowed reference released — when the service
// leaves Running, when it never becomes ready in the first place, or when ctx
// is canceled. A consumer that cannot keep up loses payloads rather than
// blocking the worker's Notify.
//
// An unknown name is reported synchronously; a service that never reaches
// Running yields an empty, already-terminated stream instead of an error.
func (m *ServiceManager) Stream(ctx context.Context, name string) (<-chan interface{}, error) {
	if !m.Has(name) {
		return nil, fmt.Errorf("stream service %q: %w", name, ErrUnknownService)
	}

	out := make(chan interface{})
	go func() {
		defer close(out)

		svc, err := m.Get(name, true)
		if err != nil {
			m.logger.Debug("stream source did not become ready",
				log.String("service", name), log.Error(err))
			return
		}
		defer func() {
			if putErr := m.Put(name); putErr != nil {
				m.logger.Error("failed to release streamed service",
					log.String("service", name), log.Error(putErr))
			}
		}()

		queue := make(chan interface{}, m.opts.StreamBufferSize)
		untap := svc.Tap(func(data interface{}) {
			select {
			case queue <- data:
			default:
				svc.metrics.IncStreamDropped()
				m.logger.Debug("dropping stream payload, consumer too slow", log.String("service", name))
			}
		})
		defer untap()

		// The tick re-checks the run state so the stream terminates even
		// when no further payloads arrive.
		ticker := time.NewTicker(svc.timings.ReadyPollInterval)
		defer ticker.Stop()

		for svc.State() == Running {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case data := <-queue:
				select {
				case out <- data:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
