package gradebook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/user"
)

const signInFetchTimeout = 10 * time.Second

// Registry holds one Store per signed-in owner.
// Stores are created and loaded on sign in or on first access, and dropped when the
// owner's last session ends.
type Registry struct {
	remote  Remote
	logger  core.Logger
	metrics *Metrics

	mu     sync.Mutex
	stores map[string]*Store
}

func NewRegistry(remote Remote, logger core.Logger, metrics *Metrics) *Registry {
	return &Registry{
		remote:  remote,
		logger:  logger,
		metrics: metrics,
		stores:  make(map[string]*Store),
	}
}

func (r *Registry) store(ownerID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[ownerID]; ok {
		return s, nil
	}
	s, err := NewStore(r.remote, ownerID, WithLogger(r.logger), WithMetrics(r.metrics))
	if err != nil {
		return nil, errors.Wrap(err, "creating store")
	}
	r.stores[ownerID] = s
	r.metrics.storeOpened()
	return s, nil
}

// Get returns the loaded Store of the owner.
func (r *Registry) Get(ctx context.Context, ownerID string) (*Store, error) {
	s, err := r.store(ownerID)
	if err != nil {
		return nil, err
	}
	if !s.Loaded() {
		if err := s.FetchAll(ctx, ownerID); err != nil {
			return nil, errors.Wrap(err, "loading store")
		}
	}
	return s, nil
}

// Drop forgets the Store of the owner.
func (r *Registry) Drop(ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stores[ownerID]; ok {
		delete(r.stores, ownerID)
		r.metrics.storeClosed()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// OnAuthStateChange keeps the registry in sync with the identity provider.
func (r *Registry) OnAuthStateChange(ev user.AuthEvent) {
	ownerID := ev.Session.UserID
	switch ev.Kind {
	case user.SignedIn:
		ctx, cancel := context.WithTimeout(context.Background(), signInFetchTimeout)
		defer cancel()
		if _, err := r.Get(ctx, ownerID); err != nil {
			r.logger.Warn(fmt.Sprintf("gradebook: preloading store of %q", ownerID), err)
		}
	case user.SignedOut:
		if ev.Remaining == 0 {
			r.Drop(ownerID)
		}
	}
}
