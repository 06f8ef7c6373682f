package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.aimuz.me/comictl/backend"
	"go.aimuz.me/comictl/config"
	"go.aimuz.me/comictl/internal/types"
	"go.aimuz.me/comictl/media"
)

// memSettings is an in-memory SettingsWriter.
type memSettings struct {
	mu      sync.Mutex
	s       types.Settings
	updates int
}

func (m *memSettings) Load() (types.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memSettings) Update(fn func(*types.Settings) error) (types.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.s
	if err := fn(&next); err != nil {
		return types.Settings{}, err
	}
	m.s = next
	m.updates++
	return next, nil
}

func (m *memSettings) Save(s types.Settings) error {
	if err := config.Validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}

// memCache is an in-memory ResultCache that records invalidations.
type memCache struct {
	mu          sync.Mutex
	m           map[string]types.Result
	gets        int
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{m: make(map[string]types.Result)}
}

func (c *memCache) Get(_ context.Context, key string) (types.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.m[key]
	return r, ok
}

func (c *memCache) Put(_ context.Context, key string, r types.Result) {
	if !r.Cacheable() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
}

func (c *memCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, key)
	delete(c.m, key)
}

func (c *memCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.m)
	return nil
}

func (c *memCache) Len(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m), nil
}

func (c *memCache) lookup(key string) (types.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.m[key]
	return r, ok
}

// fakeBackend serves each locator's bytes as the locator itself so request
// handlers can tell images apart.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string
	sizes []int

	fetchFn func(ctx context.Context, url string) (backend.Image, error)
	imageFn func(ctx context.Context, req backend.Request) (backend.Image, error)
	jsonFn  func(ctx context.Context, req backend.Request) (backend.JSONResult, error)
}

func (b *fakeBackend) record(call string, size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, call)
	if size > 0 {
		b.sizes = append(b.sizes, size)
	}
}

func (b *fakeBackend) FetchImage(ctx context.Context, url string) (backend.Image, error) {
	b.record("fetch "+url, 0)
	if b.fetchFn != nil {
		return b.fetchFn(ctx, url)
	}
	return backend.Image{Data: []byte(url), ContentType: "image/png"}, nil
}

func (b *fakeBackend) RequestImage(ctx context.Context, req backend.Request) (backend.Image, error) {
	b.record("image "+string(req.Image), req.Config.Inpainter.InpaintingSize)
	if b.imageFn != nil {
		return b.imageFn(ctx, req)
	}
	return backend.Image{Data: []byte("rendered"), ContentType: "image/png"}, nil
}

func (b *fakeBackend) RequestJSON(ctx context.Context, req backend.Request) (backend.JSONResult, error) {
	b.record("json "+string(req.Image), req.Config.Inpainter.InpaintingSize)
	if b.jsonFn != nil {
		return b.jsonFn(ctx, req)
	}
	return backend.JSONResult{Translations: []types.TranslationRecord{helloRecord()}}, nil
}

func (b *fakeBackend) callCount(prefix string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (b *fakeBackend) seenSizes() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.sizes...)
}

// dispatched is one recorded Dispatcher call.
type dispatched struct {
	Op      string
	Target  types.Target
	Handle  string
	Regions []types.TextRegion
	Cleaned string
	Status  types.ProcessStatus
	Err     string
}

// recorder is a Dispatcher and Notifier that remembers every call.
type recorder struct {
	mu      sync.Mutex
	calls   []dispatched
	notices []Notice
	hides   int
	failing bool
}

var errDispatch = errors.New("page went away")

func (r *recorder) add(d dispatched) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	if r.failing {
		return errDispatch
	}
	return nil
}

func (r *recorder) Replace(_ context.Context, target types.Target, handle string) error {
	return r.add(dispatched{Op: "replace", Target: target, Handle: handle})
}

func (r *recorder) Overlay(_ context.Context, target types.Target, regions []types.TextRegion, cleaned string) error {
	return r.add(dispatched{Op: "overlay", Target: target, Regions: regions, Cleaned: cleaned})
}

func (r *recorder) OpenResult(_ context.Context, handle string) error {
	return r.add(dispatched{Op: "open", Handle: handle})
}

func (r *recorder) MarkProcessed(_ context.Context, target types.Target, status types.ProcessStatus, errMsg string) error {
	return r.add(dispatched{Op: "mark", Target: target, Status: status, Err: errMsg})
}

func (r *recorder) Notify(_ context.Context, n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) Hide(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hides++
}

func (r *recorder) ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Op
	}
	return out
}

func (r *recorder) find(op string) (dispatched, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c.Op == op {
			return c, true
		}
	}
	return dispatched{}, false
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.notices))
	for i, n := range r.notices {
		out[i] = n.Text
	}
	return out
}

func (r *recorder) lastNotice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

// harness wires an Orchestrator over in-memory fakes.
type harness struct {
	settings *memSettings
	cache    *memCache
	backend  *fakeBackend
	media    *media.Registry
	rec      *recorder
	orch     *Orchestrator
	pauses   []time.Duration
}

func newHarness(t *testing.T, mutate func(*types.Settings), opts ...Option) *harness {
	t.Helper()

	s := config.Default()
	s.Translator = "sugoi"
	s.TargetLang = "ENG"
	s.OverlayMode = types.OverlayColored
	if mutate != nil {
		mutate(&s)
	}

	h := &harness{
		settings: &memSettings{s: s},
		cache:    newMemCache(),
		backend:  &fakeBackend{},
		media:    media.NewRegistry(),
		rec:      &recorder{},
	}

	var pmu sync.Mutex
	base := []Option{
		WithSleep(func(ctx context.Context, d time.Duration) error {
			pmu.Lock()
			h.pauses = append(h.pauses, d)
			pmu.Unlock()
			return ctx.Err()
		}),
	}
	h.orch = NewOrchestrator(Deps{
		Settings:   h.settings,
		Cache:      h.cache,
		Backend:    h.backend,
		Media:      h.media,
		Dispatcher: h.rec,
		Notifier:   h.rec,
	}, append(base, opts...)...)
	return h
}

func (h *harness) retry() *RetryController {
	return NewRetryController(h.orch, WithRetrySleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
}

func helloRecord() types.TranslationRecord {
	return types.TranslationRecord{
		MinX: 10, MinY: 10, MaxX: 110, MaxY: 60,
		Text: types.NewLangText("ENG", "Hello"),
		Prob: 0.9,
	}
}

func oomError() error {
	return &backend.StatusError{Op: "translate json", StatusCode: 500, Body: "CUDA out of memory"}
}
