// Package config implements the read-only configuration dictionary
// described in spec §1 ("configuration parsing is a passive external
// collaborator treated as read-only") and §6's configuration surface
// table. It wraps a plain map[string]any with typed getters for exactly
// the recognized keys, following the teacher's read-only-dictionary
// convention rather than pulling in a full parsing/validation framework —
// file-format parsing is out of scope for this module.
package config

import (
	"fmt"
	"time"
)

// Key names for the spec §6 configuration surface. Unrecognized keys are
// accepted by Store (an unknown key is simply never looked up by a typed
// getter) but every getter below corresponds to exactly one row in that
// table.
const (
	KeyNetworkBackend          = "middleman.network-backend"
	KeyAppIdentifiers          = "middleman.app-identifiers"
	KeyEnableAutomaticConnects = "middleman.enable-automatic-connections"
	KeyMaxConsecutiveReads     = "middleman.max-consecutive-reads"
	KeyHeartbeatInterval       = "middleman.heartbeat-interval"
	KeyConnectionTimeout       = "middleman.connection-timeout"
	KeyAttachUtilityActors     = "middleman.attach-utility-actors"
	KeySchedulerMaxThroughput  = "scheduler.max-throughput"
	KeySchedulerPolicy         = "scheduler.policy"
	loggerPrefix               = "logger."
)

// NetworkBackend is the value space for middleman.network-backend.
type NetworkBackend string

const (
	// NetworkBackendDefault uses the real TCP-based multiplexer.
	NetworkBackendDefault NetworkBackend = "default"

	// NetworkBackendTesting swaps in an in-memory transport for tests
	// that want to exercise the middleman without binding real sockets.
	NetworkBackendTesting NetworkBackend = "testing"
)

// ErrMissingKey is returned by the strict getters when a key is absent.
type ErrMissingKey struct{ Key string }

func (e *ErrMissingKey) Error() string {
	return fmt.Sprintf("config: missing key %q", e.Key)
}

// ErrWrongType is returned when a key's stored value doesn't match the
// type the caller asked for.
type ErrWrongType struct {
	Key  string
	Want string
	Got  any
}

func (e *ErrWrongType) Error() string {
	return fmt.Sprintf("config: key %q: want %s, got %T", e.Key, e.Want, e.Got)
}

// Store is an immutable, read-only configuration dictionary. The zero
// value is an empty store; use New to build one from a map.
type Store struct {
	values map[string]any
}

// New constructs a Store from values. The map is copied, so later
// mutation of the caller's map has no effect on the Store.
func New(values map[string]any) *Store {
	s := &Store{values: make(map[string]any, len(values))}
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Has reports whether key is present.
func (s *Store) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// String returns the string value for key, or def if absent or of the
// wrong type.
func (s *Store) String(key, def string) string {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		return def
	}
	return str
}

// Int returns the int value for key, or def if absent or of the wrong
// type.
func (s *Store) Int(key string, def int) int {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	default:
		return def
	}
}

// Bool returns the bool value for key, or def if absent or of the wrong
// type.
func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Duration returns the time.Duration value for key, or def if absent or
// of the wrong type.
func (s *Store) Duration(key string, def time.Duration) time.Duration {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	d, ok := v.(time.Duration)
	if !ok {
		return def
	}
	return d
}

// StringSet returns the []string value for key, or def if absent or of
// the wrong type. Returned slices are not copied; callers must not mutate
// them.
func (s *Store) StringSet(key string, def []string) []string {
	v, ok := s.values[key]
	if !ok {
		return def
	}
	set, ok := v.([]string)
	if !ok {
		return def
	}
	return set
}

// NetworkBackend returns the middleman.network-backend setting, defaulting
// to NetworkBackendDefault.
func (s *Store) NetworkBackend() NetworkBackend {
	return NetworkBackend(s.String(KeyNetworkBackend, string(NetworkBackendDefault)))
}

// AppIdentifiers returns middleman.app-identifiers.
func (s *Store) AppIdentifiers() []string {
	return s.StringSet(KeyAppIdentifiers, nil)
}

// EnableAutomaticConnections returns
// middleman.enable-automatic-connections, defaulting to false.
func (s *Store) EnableAutomaticConnections() bool {
	return s.Bool(KeyEnableAutomaticConnects, false)
}

// MaxConsecutiveReads returns middleman.max-consecutive-reads, defaulting
// to 50 (the teacher's scheduler uses the same order-of-magnitude default
// for its own per-resume throughput budget).
func (s *Store) MaxConsecutiveReads() int {
	return s.Int(KeyMaxConsecutiveReads, 50)
}

// HeartbeatInterval returns middleman.heartbeat-interval, defaulting to
// zero (disabled).
func (s *Store) HeartbeatInterval() time.Duration {
	return s.Duration(KeyHeartbeatInterval, 0)
}

// ConnectionTimeout returns middleman.connection-timeout, defaulting to
// zero (disabled).
func (s *Store) ConnectionTimeout() time.Duration {
	return s.Duration(KeyConnectionTimeout, 0)
}

// AttachUtilityActors returns middleman.attach-utility-actors, defaulting
// to true (scheduled, per spec §4.10's default expectation that utility
// actors run cooperatively unless configured otherwise).
func (s *Store) AttachUtilityActors() bool {
	return s.Bool(KeyAttachUtilityActors, true)
}

// SchedulerMaxThroughput returns scheduler.max-throughput, defaulting to
// 0 (unbounded), matching ActorConfig.MaxThroughput's zero-means-unbounded
// convention.
func (s *Store) SchedulerMaxThroughput() int {
	return s.Int(KeySchedulerMaxThroughput, 0)
}

// SchedulerPolicy returns scheduler.policy, defaulting to "work-stealing".
func (s *Store) SchedulerPolicy() string {
	return s.String(KeySchedulerPolicy, "work-stealing")
}

// LoggerSettings returns every key under the logger.* namespace, stripped
// of the prefix, passed through unchanged to the logger collaborator per
// spec §6: "logger.* is passed unchanged to the logger collaborator."
func (s *Store) LoggerSettings() map[string]any {
	out := make(map[string]any)
	for k, v := range s.values {
		if len(k) > len(loggerPrefix) && k[:len(loggerPrefix)] == loggerPrefix {
			out[k[len(loggerPrefix):]] = v
		}
	}
	return out
}
