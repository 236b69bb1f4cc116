package basp

import (
	"sync"
	"time"
)

// HeartbeatMonitor tracks inbound-data liveness for one connection, per
// spec §4.8: "if a positive heartbeat-interval is configured, the broker
// emits a heartbeat operation when idle; if connection-timeout elapses
// without any inbound data, the connection is declared dead."
type HeartbeatMonitor struct {
	heartbeatInterval time.Duration
	connectionTimeout time.Duration

	onHeartbeatDue func()
	onTimeout      func()

	mu           sync.Mutex
	heartbeatTmr *time.Timer
	timeoutTmr   *time.Timer
	stopped      bool
}

// NewHeartbeatMonitor starts both timers immediately. Pass a zero duration
// for either to disable that timer. onHeartbeatDue is invoked (on its own
// goroutine) whenever heartbeatInterval elapses without a Touch call;
// onTimeout is invoked once if connectionTimeout elapses without a Touch
// call, after which the monitor stops itself.
func NewHeartbeatMonitor(
	heartbeatInterval, connectionTimeout time.Duration,
	onHeartbeatDue, onTimeout func(),
) *HeartbeatMonitor {
	m := &HeartbeatMonitor{
		heartbeatInterval: heartbeatInterval,
		connectionTimeout: connectionTimeout,
		onHeartbeatDue:    onHeartbeatDue,
		onTimeout:         onTimeout,
	}

	if heartbeatInterval > 0 && onHeartbeatDue != nil {
		m.heartbeatTmr = time.AfterFunc(heartbeatInterval, m.fireHeartbeat)
	}
	if connectionTimeout > 0 && onTimeout != nil {
		m.timeoutTmr = time.AfterFunc(connectionTimeout, m.fireTimeout)
	}

	return m
}

func (m *HeartbeatMonitor) fireHeartbeat() {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}

	m.onHeartbeatDue()

	m.mu.Lock()
	if !m.stopped {
		m.heartbeatTmr.Reset(m.heartbeatInterval)
	}
	m.mu.Unlock()
}

func (m *HeartbeatMonitor) fireTimeout() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.onTimeout()
}

// Touch records inbound activity, rearming both timers from now.
func (m *HeartbeatMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if m.heartbeatTmr != nil {
		m.heartbeatTmr.Reset(m.heartbeatInterval)
	}
	if m.timeoutTmr != nil {
		m.timeoutTmr.Reset(m.connectionTimeout)
	}
}

// Stop permanently disarms both timers.
func (m *HeartbeatMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	if m.heartbeatTmr != nil {
		m.heartbeatTmr.Stop()
	}
	if m.timeoutTmr != nil {
		m.timeoutTmr.Stop()
	}
}
