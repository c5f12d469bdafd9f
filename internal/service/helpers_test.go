package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spotshare/spotshare/internal/asset"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/cache"
	"github.com/spotshare/spotshare/internal/geo"
	"github.com/spotshare/spotshare/internal/memstore"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/model"
	"github.com/spotshare/spotshare/internal/reclaim"
	"github.com/spotshare/spotshare/internal/store"
	"github.com/spotshare/spotshare/internal/testutil"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var errInjected = errors.New("injected failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// faultyStore makes chosen transactions fail after their body ran, the way
// a failed commit would.
type faultyStore struct {
	*memstore.Store

	mu       sync.Mutex
	failures []error
	calls    int
}

func (f *faultyStore) failNextTx(errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, errs...)
}

func (f *faultyStore) txCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *faultyStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	f.mu.Lock()
	f.calls++
	var injected error
	if len(f.failures) > 0 {
		injected = f.failures[0]
		f.failures = f.failures[1:]
	}
	f.mu.Unlock()

	if injected == nil {
		return f.Store.RunInTx(ctx, fn)
	}
	_ = f.Store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return injected
	})
	return injected
}

type recordingQueue struct {
	mu      sync.Mutex
	orphans []reclaim.Orphan
}

func (q *recordingQueue) Enqueue(_ context.Context, o reclaim.Orphan) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.orphans = append(q.orphans, o)
	return nil
}

func (q *recordingQueue) all() []reclaim.Orphan {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]reclaim.Orphan(nil), q.orphans...)
}

type fakeCache struct {
	mu       sync.Mutex
	places   map[string]*model.Place
	negative map[string]bool
	leases   map[string]string
	seq      int

	// beforeFill, when set, runs once between the store read of a miss and
	// the cache write that follows it.
	beforeFill func(id string)
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		places:   map[string]*model.Place{},
		negative: map[string]bool{},
		leases:   map[string]string{},
	}
}

func (c *fakeCache) GetPlace(_ context.Context, id string) (*model.Place, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.places[id]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return p.Clone(), nil
}

func (c *fakeCache) ReserveFill(_ context.Context, id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	token := fmt.Sprintf("fill-%d", c.seq)
	c.leases[id] = token
	return token, nil
}

// takeLease runs the beforeFill hook, then consumes the lease if token
// still holds it. Callers must not hold c.mu.
func (c *fakeCache) takeLease(id, token string) bool {
	c.mu.Lock()
	hook := c.beforeFill
	c.beforeFill = nil
	c.mu.Unlock()
	if hook != nil {
		hook(id)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leases[id] != token {
		return false
	}
	delete(c.leases, id)
	return true
}

func (c *fakeCache) SetPlace(_ context.Context, p *model.Place, token string) error {
	if !c.takeLease(p.ID, token) {
		return cache.ErrFillRevoked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.places[p.ID] = p.Clone()
	delete(c.negative, p.ID)
	return nil
}

func (c *fakeCache) SetNegativeCache(_ context.Context, id, token string) error {
	if !c.takeLease(id, token) {
		return cache.ErrFillRevoked
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.places, id)
	c.negative[id] = true
	return nil
}

func (c *fakeCache) DeletePlace(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.places, id)
	delete(c.negative, id)
	delete(c.leases, id)
	return nil
}

func (c *fakeCache) IsNegativelyCached(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negative[id], nil
}

func (c *fakeCache) cached(id string) (*model.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.places[id]
	return p, ok
}

func (c *fakeCache) onNextFill(fn func(id string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeFill = fn
}

type failingGeocoder struct{}

func (failingGeocoder) Geocode(context.Context, string) (model.Location, error) {
	return model.Location{}, geo.ErrNoResults
}

type fixture struct {
	store    *faultyStore
	images   *asset.MemoryStore
	queue    *recordingQueue
	recorder *metrics.InMemoryRecorder
	places   *PlaceService
	users    *UserService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    &faultyStore{Store: memstore.New()},
		images:   asset.NewMemoryStore("http://assets.test"),
		queue:    &recordingQueue{},
		recorder: metrics.NewInMemory(),
	}
	all := append([]Option{
		WithOrphanQueue(f.queue),
		WithMetrics(f.recorder),
	}, opts...)

	f.places = NewPlaceService(f.store, f.images, geo.NewStatic(), discardLogger(), all...)
	f.places.tx.backoff = func(int) time.Duration { return time.Millisecond }

	hasher := auth.NewHasher(auth.Params{Time: 1, Memory: 1024, Threads: 1})
	creds := auth.NewCredentials(testSecret, time.Hour, time.Now)
	f.users = NewUserService(f.store, f.images, hasher, creds, discardLogger(), all...)
	return f
}

func (f *fixture) addUser(t *testing.T, name string) *model.User {
	t.Helper()
	u := testutil.NewTestUser(t, name)
	if err := f.store.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func (f *fixture) user(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.store.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetUserByID(%s): %v", id, err)
	}
	return u
}

func (f *fixture) imageExists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := f.images.Exists(context.Background(), key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	return ok
}

func pngImage() *Image {
	return &Image{Data: []byte("\x89PNG\r\n\x1a\nfake"), ContentType: "image/png"}
}

func jpegImage() *Image {
	return &Image{Data: []byte("\xff\xd8\xff\xe0fake"), ContentType: "image/jpeg"}
}

func validCreate(img *Image) CreatePlaceInput {
	return CreatePlaceInput{
		Title:       "Cafe",
		Description: "Best espresso in town",
		Address:     "1 Main St, Springfield",
		Image:       img,
	}
}

func strPtr(s string) *string { return &s }

func validPlace(creatorID string) *model.Place {
	return &model.Place{ID: "p1", Title: "Cafe", CreatorID: creatorID}
}
