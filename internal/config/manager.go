package config

import (
	"sync"

	"github.com/deskrecall/deskrecalld/internal/log"
	"github.com/rs/zerolog"
)

// Manager holds the single authoritative Config value in memory, persists
// it atomically on every Apply, and fans out the new value to every live
// subscriber (Capture, Scheduler, Orchestrator, Retention) so each picks it
// up no later than its own next tick (SPEC_FULL.md §5 "Config changes
// observed by a task take effect no later than that task's next tick").
type Manager struct {
	mu   sync.RWMutex
	path string
	cur  Config

	subMu       sync.Mutex
	subscribers []chan Config

	logger zerolog.Logger
}

// NewManager constructs a Manager, loading the current value from path (or
// Default() if absent). It does not validate the loaded value: a
// previously-written config.json is assumed valid, and a corrupt one
// surfaces as a read error to the caller rather than being silently
// replaced.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, cur: cfg, logger: log.WithComponent("config")}, nil
}

// Current returns a deep copy of the live configuration.
func (m *Manager) Current() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur.Clone()
}

// Apply validates next, persists it atomically, and only then swaps the
// in-memory value and notifies subscribers — so a rejected update never
// partially applies (§4.H) and a crash between validate and persist leaves
// the previous config.json intact.
func (m *Manager) Apply(next Config) error {
	if err := Validate(next); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := Save(m.path, next); err != nil {
		return err
	}
	m.cur = next
	m.logger.Info().Msg("configuration applied")
	m.notify(next)
	return nil
}

// Subscribe registers a channel that receives the new Config after every
// successful Apply. The channel is buffered (size 1, latest-wins) so a slow
// or currently-busy subscriber never blocks Apply; it only ever sees the
// most recent value once it next reads.
func (m *Manager) Subscribe() <-chan Config {
	ch := make(chan Config, 1)
	m.subMu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.subMu.Unlock()
	return ch
}

func (m *Manager) notify(cfg Config) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- cfg.Clone():
		default:
			// Drain the stale value and replace it with the fresh one so
			// the subscriber's next read always sees the latest config,
			// never a queued-up stale one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg.Clone():
			default:
			}
		}
	}
}
