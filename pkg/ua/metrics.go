package ua

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters tracks the call-level statistics from §4.3/§7: callsReceived
// increments on any INVITE received, callsCompleted when a call that
// reached Established terminates, callsFailed when a call terminates
// without ever reaching Established. Values are owned here and only ever
// exposed as an immutable Snapshot, mirroring the "global mutable
// statistics -> owned counters" design rule.
type Counters struct {
	received  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	promReceived  prometheus.Counter
	promCompleted prometheus.Counter
	promFailed    prometheus.Counter
}

// NewCounters registers the call counters against reg.
func NewCounters(reg prometheus.Registerer) *Counters {
	factory := promauto.With(reg)
	return &Counters{
		promReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "ua_calls_received_total",
			Help: "INVITE requests received.",
		}),
		promCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ua_calls_completed_total",
			Help: "Calls that reached Established and then terminated normally.",
		}),
		promFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ua_calls_failed_total",
			Help: "Calls that terminated without ever reaching Established.",
		}),
	}
}

func (c *Counters) recordReceived() {
	c.received.Add(1)
	c.promReceived.Inc()
}

// recordTermination is given whether the call had reached Established
// BEFORE the transition that ended it, i.e. a snapshot taken prior to the
// state change, not a read of the post-transition state (the bug this
// design deliberately avoids).
func (c *Counters) recordTermination(reachedEstablished bool) {
	if reachedEstablished {
		c.completed.Add(1)
		c.promCompleted.Inc()
	} else {
		c.failed.Add(1)
		c.promFailed.Inc()
	}
}

// Snapshot is an immutable point-in-time read of the counters.
type Snapshot struct {
	CallsReceived  int64
	CallsCompleted int64
	CallsFailed    int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		CallsReceived:  c.received.Load(),
		CallsCompleted: c.completed.Load(),
		CallsFailed:    c.failed.Load(),
	}
}
