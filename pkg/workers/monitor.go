package workers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nimbusfs/nimbusfs/pkg/log"
	"github.com/nimbusfs/nimbusfs/pkg/metadata"
)

var monitorLogger = log.New("workers.monitor")

// MonitorState is the primary-DB monitor's state machine.
type MonitorState int32

// The states a Monitor moves through.
const (
	PrimaryUp MonitorState = iota
	PrimaryDown
	MonitorStopped
)

// Availability is implemented by anything that needs to react to a
// primary-availability transition; pkg/namespace's Engine satisfies it.
type Availability interface {
	SetPrimaryAvailable(bool)
}

// Monitor polls the primary metadata store's connection and flips
// availability on transitions, gating the service's read-only mode.
type Monitor struct {
	store    metadata.Store
	targets  []Availability
	interval time.Duration

	state  atomic.Int32
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewMonitor builds a Monitor that flips every target's availability flag
// on a primary-health transition.
func NewMonitor(store metadata.Store, interval time.Duration, targets ...Availability) *Monitor {
	return &Monitor{store: store, targets: targets, interval: interval, stopCh: make(chan struct{}), doneCh: make(chan struct{})}
}

// Run drives the health-check loop until Stop is called.
func (m *Monitor) Run(ctx context.Context) {
	defer close(m.doneCh)
	m.state.Store(int32(PrimaryUp))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			m.state.Store(int32(MonitorStopped))
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Stop signals the loop to finish its in-flight check and return.
func (m *Monitor) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

// CheckOnce runs a single health check outside the periodic loop; exported
// for tests and for an operator-triggered probe.
func (m *Monitor) CheckOnce(ctx context.Context) {
	m.check(ctx)
}

func (m *Monitor) check(ctx context.Context) {
	err := m.store.CheckConnection(ctx)
	wasUp := MonitorState(m.state.Load()) == PrimaryUp

	switch {
	case err == nil && !wasUp:
		m.state.Store(int32(PrimaryUp))
		m.setAvailable(true)
		monitorLogger.Info(ctx).Msg("primary metadata store reachable again, resuming writes")
	case err != nil && wasUp:
		m.state.Store(int32(PrimaryDown))
		m.setAvailable(false)
		monitorLogger.Warn(ctx).Err(err).Msg("primary metadata store unreachable, entering read-only mode")
	}
}

func (m *Monitor) setAvailable(v bool) {
	for _, t := range m.targets {
		t.SetPrimaryAvailable(v)
	}
}

// State reports the current state machine value.
func (m *Monitor) State() MonitorState { return MonitorState(m.state.Load()) }
