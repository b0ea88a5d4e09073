package router

import (
	"sync"

	"github.com/blockberries/queryberry/types"
)

// snapshot pins a Storage to the version that was latest on first use, so
// every latest-height read of one dispatch sees the same commit. It
// resolves lazily: a request rejected by guards never touches storage.
type snapshot struct {
	Storage

	once   sync.Once
	height types.Height
	last   types.LastBlock
	ok     bool
}

// Snapshot returns a view of s that serves the latest-height sentinel from
// a single committed version. Wrapping a snapshot returns it unchanged.
func Snapshot(s Storage) Storage {
	if s == nil {
		return nil
	}
	if snap, ok := s.(*snapshot); ok {
		return snap
	}
	return &snapshot{Storage: s}
}

func (s *snapshot) pin() types.Height {
	s.once.Do(func() {
		s.last, s.ok = s.Storage.LastBlock()
		if s.ok {
			s.height = s.last.Height
		} else {
			s.height = s.Storage.LastBlockHeight()
		}
	})
	return s.height
}

func (s *snapshot) at(height types.Height) types.Height {
	if height.IsLatest() {
		return s.pin()
	}
	return height
}

func (s *snapshot) LastBlockHeight() types.Height {
	return s.pin()
}

func (s *snapshot) LastBlock() (types.LastBlock, bool) {
	s.pin()
	return s.last, s.ok
}

func (s *snapshot) Get(key []byte, height types.Height) ([]byte, error) {
	return s.Storage.Get(key, s.at(height))
}

func (s *snapshot) Has(key []byte, height types.Height) (bool, error) {
	return s.Storage.Has(key, s.at(height))
}

func (s *snapshot) IteratePrefix(prefix []byte, height types.Height, fn func(key, value []byte) bool) error {
	return s.Storage.IteratePrefix(prefix, s.at(height), fn)
}

func (s *snapshot) GetProof(key []byte, height types.Height) (*types.Proof, error) {
	return s.Storage.GetProof(key, s.at(height))
}
