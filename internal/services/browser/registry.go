package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/metrics"
)

// Lease is the exclusive right to one browser process for one key
type Lease struct {
	key      Key
	browser  Browser
	registry *Registry
	once     sync.Once
	done     chan struct{}
	acquired time.Time
}

func (l *Lease) Key() Key         { return l.key }
func (l *Lease) Page() Page       { return l.browser.Page() }
func (l *Lease) Browser() Browser { return l.browser }

// NewPage opens another tab in the leased browser
func (l *Lease) NewPage(ctx context.Context) (Page, error) {
	if !l.Alive() {
		return nil, fmt.Errorf("%w: browser for %s is gone", common.ErrResource, l.key)
	}
	page, err := l.browser.NewPage(ctx)
	if err != nil && !errors.Is(err, common.ErrResource) && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: open tab: %v", common.ErrResource, err)
	}
	return page, err
}

// Alive reports whether the lease is held and the process is running
func (l *Lease) Alive() bool {
	select {
	case <-l.done:
		return false
	default:
		return l.browser.Alive()
	}
}

// Done is closed once the lease is released, including by a superseding acquire
func (l *Lease) Done() <-chan struct{} { return l.done }

// Release closes the browser and frees its slot. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		close(l.done)
		if err := l.browser.Close(); err != nil {
			l.registry.logger.Debug().Err(err).Str("key", l.key.String()).Msg("Browser close returned error")
		}
		l.registry.forget(l)
		<-l.registry.slots
		l.registry.logger.Debug().
			Str("key", l.key.String()).
			Dur("held", time.Since(l.acquired)).
			Msg("Browser released")
	})
}

// Registry maps each key to at most one live browser and bounds the total
type Registry struct {
	launcher Launcher
	logger   arbor.ILogger
	slots    chan struct{}

	mu       sync.Mutex
	leases   map[Key]*Lease
	keyLocks map[Key]*sync.Mutex
	closed   bool
}

// NewRegistry creates a registry allowing maxConcurrent live browsers
func NewRegistry(launcher Launcher, maxConcurrent int, logger arbor.ILogger) *Registry {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Registry{
		launcher: launcher,
		logger:   logger,
		slots:    make(chan struct{}, maxConcurrent),
		leases:   make(map[Key]*Lease),
		keyLocks: make(map[Key]*sync.Mutex),
	}
}

func (r *Registry) keyLock(key Key) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.keyLocks[key] = l
	}
	return l
}

// AcquireOrSupersede releases any browser already held for key, launches a
// new one and preloads restore cookies into it.
func (r *Registry) AcquireOrSupersede(ctx context.Context, key Key, restore []models.Cookie) (*Lease, error) {
	lock := r.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: registry is shut down", common.ErrResource)
	}
	prior := r.leases[key]
	r.mu.Unlock()

	if prior != nil {
		r.logger.Info().Str("key", key.String()).Msg("Superseding existing browser")
		prior.Release()
	}

	select {
	case r.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	start := time.Now()
	b, err := r.launcher.Launch(ctx, key)
	if err != nil {
		<-r.slots
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, common.ErrResource) {
			err = fmt.Errorf("%w: launch browser: %v", common.ErrResource, err)
		}
		return nil, err
	}

	lease := &Lease{
		key:      key,
		browser:  b,
		registry: r,
		done:     make(chan struct{}),
		acquired: time.Now(),
	}

	if len(restore) > 0 {
		if err := b.Page().SetCookies(ctx, restore); err != nil {
			lease.once.Do(func() { close(lease.done) })
			_ = b.Close()
			<-r.slots
			return nil, fmt.Errorf("%w: restore cookies: %v", common.ErrResource, err)
		}
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		lease.Release()
		return nil, fmt.Errorf("%w: registry is shut down", common.ErrResource)
	}
	r.leases[key] = lease
	metrics.SetBrowsersActive(len(r.leases))
	r.mu.Unlock()

	r.logger.Debug().
		Str("key", key.String()).
		Int("restored_cookies", len(restore)).
		Dur("launch_time", time.Since(start)).
		Msg("Browser acquired")

	return lease, nil
}

func (r *Registry) forget(l *Lease) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leases[l.key] == l {
		delete(r.leases, l.key)
		metrics.SetBrowsersActive(len(r.leases))
	}
}

// Release releases lease. Nil is ignored.
func (r *Registry) Release(lease *Lease) {
	if lease != nil {
		lease.Release()
	}
}

// Get returns the live lease for key, if any
func (r *Registry) Get(key Key) (*Lease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leases[key]
	return l, ok
}

// Count returns the number of live leases
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.leases)
}

// Shutdown releases every browser and refuses further acquires
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	leases := make([]*Lease, 0, len(r.leases))
	for _, l := range r.leases {
		leases = append(leases, l)
	}
	r.mu.Unlock()

	for _, l := range leases {
		l.Release()
	}
	r.logger.Info().Int("released", len(leases)).Msg("Browser registry shut down")
}

// AcquireWithRetry acquires a lease, retrying once when the launch fails
func AcquireWithRetry(ctx context.Context, r *Registry, key Key, restore []models.Cookie, logger arbor.ILogger) (*Lease, error) {
	var lease *Lease
	policy := common.RetryOn(2, time.Second, common.ErrResource)
	err := policy.Execute(ctx, logger, func() error {
		var err error
		lease, err = r.AcquireOrSupersede(ctx, key, restore)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lease, nil
}
