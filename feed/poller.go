// feed/poller.go
// Copyright(c) 2024-2026 busview contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package feed

import (
	"context"
	"time"

	"github.com/mmp/busview/event"
	"github.com/mmp/busview/log"

	"golang.org/x/sync/errgroup"
)

// Poller periodically calls fetch and delivers the results on a channel
// for the frame loop to drain. Fetch errors are logged and posted to the
// event stream; the consumer keeps showing its previous snapshot, so a
// flaky feed degrades to stale data rather than an empty screen.
type Poller[T any] struct {
	fetch    func(context.Context) (T, error)
	interval time.Duration
	updates  chan T
	ep       event.Poster
	lg       *log.Logger
	failing  bool
}

func NewPoller[T any](interval time.Duration, fetch func(context.Context) (T, error),
	ep event.Poster, lg *log.Logger) *Poller[T] {
	return &Poller[T]{
		fetch:    fetch,
		interval: interval,
		updates:  make(chan T, 1),
		ep:       ep,
		lg:       lg,
	}
}

// Updates returns the channel snapshots are delivered on. Only the most
// recent snapshot is kept if the consumer falls behind.
func (p *Poller[T]) Updates() <-chan T { return p.updates }

// Run polls until ctx is canceled; the first fetch happens immediately.
// It is meant to be run in its own goroutine.
func (p *Poller[T]) Run(ctx context.Context) {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller[T]) poll(ctx context.Context) {
	snap, err := p.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.lg.Errorf("feed fetch failed: %v", err)
		if p.ep != nil {
			p.ep.Post(event.Event{Type: event.FetchErrorEvent, Err: err})
		}
		p.failing = true
		return
	}

	if p.failing {
		p.failing = false
		if p.ep != nil {
			p.ep.Post(event.Event{Type: event.StatusMessageEvent, Message: "feed restored"})
		}
	}

	// Replace a pending snapshot rather than blocking on the consumer.
	for {
		select {
		case p.updates <- snap:
			return
		default:
			select {
			case <-p.updates:
			default:
			}
		}
	}
}

// FetchStartup fetches vehicles and routes concurrently before the first
// frame. A route failure is not fatal, since the map is usable without
// route overlays; a vehicle failure is, since there is nothing to show.
func FetchStartup(ctx context.Context, vc *VehicleClient, rc *RouteClient,
	lg *log.Logger) ([]VehicleTelemetry, []RoutePath, error) {
	var vehicles []VehicleTelemetry
	var routes []RoutePath

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vehicles, err = vc.Fetch(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		if routes, err = rc.Fetch(ctx); err != nil {
			lg.Warnf("startup route fetch failed: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vehicles, routes, nil
}
