// Package state is the single shared container between the ingestion loop
// and the serving layer. The loop replaces whole snapshots; readers only
// ever see fully built values.
package state

import (
	"sync"

	"trading-simv1/internal/model"
)

// Update is one published cycle, numbered for gap detection by stream clients.
type Update struct {
	Seq    int64                `json:"seq"`
	Latest model.LatestSnapshot `json:"latest"`
	Wallet model.WalletSnapshot `json:"wallet"`
}

// Store holds the latest cycle output and the last known status.
type Store struct {
	mu     sync.RWMutex
	seq    int64
	latest *model.LatestSnapshot
	wallet model.WalletSnapshot
	status model.Status

	subMu sync.Mutex
	subs  map[chan Update]struct{}
}

// New creates an empty store with the default status.
func New() *Store {
	return &Store{
		status: model.DefaultStatus(),
		subs:   make(map[chan Update]struct{}),
	}
}

// Publish replaces the latest and wallet snapshots together and fans the
// update out to subscribers. Slow subscribers miss updates rather than block
// the caller.
func (s *Store) Publish(latest model.LatestSnapshot, wallet model.WalletSnapshot) Update {
	s.mu.Lock()
	s.seq++
	l := latest
	s.latest = &l
	s.wallet = wallet
	u := Update{Seq: s.seq, Latest: latest, Wallet: wallet}
	s.mu.Unlock()

	s.subMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
	s.subMu.Unlock()
	return u
}

// SetWallet replaces only the wallet snapshot (e.g. after a liquidation
// outside a regular cycle).
func (s *Store) SetWallet(w model.WalletSnapshot) {
	s.mu.Lock()
	s.wallet = w
	s.mu.Unlock()
}

// SetStatus records the status most recently loaded or saved.
func (s *Store) SetStatus(st model.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Latest returns the latest snapshot; ok is false before the first cycle.
func (s *Store) Latest() (model.LatestSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return model.LatestSnapshot{}, false
	}
	return *s.latest, true
}

// Last returns the most recent update; ok is false before the first cycle.
func (s *Store) Last() (Update, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return Update{}, false
	}
	return Update{Seq: s.seq, Latest: *s.latest, Wallet: s.wallet}, true
}

// Wallet returns the wallet snapshot.
func (s *Store) Wallet() model.WalletSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wallet
}

// Status returns the last recorded status.
func (s *Store) Status() model.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Seq returns the sequence number of the last published update.
func (s *Store) Seq() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Subscribe registers a buffered channel that receives every published
// update. The returned cancel function unregisters and closes it.
func (s *Store) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, ch)
			s.subMu.Unlock()
			close(ch)
		})
	}
}
