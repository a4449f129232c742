// Package gpu owns the pooled texture handle table the engine uses for
// GPU-resident intermediate results. Every handle issued by CreateTexture
// must be checked back in exactly once via Release; the engine's cache,
// preview-download, and disposal paths are the only callers that remove
// handles, and each is responsible for the release of whatever it removed.
//
// The backing store is host memory standing in for a device: the texture
// contract (bounded pool, explicit acquire/release, download round-trip)
// is what the engine depends on, not the silicon behind it.
package gpu

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/vk/pixelgraph/internal/ctxlog"
)

// TextureID identifies a live texture in a Context. The zero value is
// never issued.
type TextureID uint64

// Pool errors.
var (
	ErrPoolExhausted  = errors.New("gpu: texture pool exhausted")
	ErrUnknownTexture = errors.New("gpu: unknown or already released texture")
	ErrDisposed       = errors.New("gpu: context disposed")
)

// DefaultCapacity bounds the pool when the caller does not configure one.
const DefaultCapacity = 64

type texture struct {
	pix  *image.RGBA
	w, h int
}

// Context is the texture handle table. All methods are safe for use from
// the engine's single execution goroutine; the mutex exists so observers
// polling Live from another goroutine see consistent counts.
type Context struct {
	mu       sync.Mutex
	capacity int
	next     TextureID
	textures map[TextureID]*texture
	disposed bool

	// onLive, when set, is called with the live-texture count after every
	// create/release. Used to drive the metrics gauge.
	onLive func(int)
}

// New creates a texture context with the given pool capacity. A
// non-positive capacity selects DefaultCapacity.
func New(capacity int) *Context {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Context{
		capacity: capacity,
		textures: make(map[TextureID]*texture),
	}
}

// Detect probes for GPU support and returns a ready context, or nil when
// acceleration is unavailable. Unavailability is a logged degradation,
// never an error: the engine falls back to the CPU path.
func Detect(ctx context.Context, capacity int) *Context {
	logger := ctxlog.FromContext(ctx)
	// The host-memory backend is always available. A real device backend
	// would probe here and return nil on failure.
	c := New(capacity)
	logger.Debug("GPU context initialized.", "capacity", c.capacity)
	return c
}

// SetLiveCallback registers a callback invoked with the live-texture
// count after every create and release.
func (c *Context) SetLiveCallback(fn func(int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLive = fn
}

// CreateTexture uploads pix and returns a handle for it. Returns
// ErrPoolExhausted when the pool is at capacity.
func (c *Context) CreateTexture(pix *image.RGBA) (TextureID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return 0, ErrDisposed
	}
	if len(c.textures) >= c.capacity {
		return 0, fmt.Errorf("%w (capacity %d)", ErrPoolExhausted, c.capacity)
	}

	b := pix.Bounds()
	cp := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	copy(cp.Pix, pix.Pix)

	c.next++
	id := c.next
	c.textures[id] = &texture{pix: cp, w: b.Dx(), h: b.Dy()}
	c.notifyLive()
	return id, nil
}

// Download copies a texture back into a plain pixel buffer. The handle
// stays live; releasing it remains the caller's responsibility.
func (c *Context) Download(id TextureID) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, ErrDisposed
	}
	t, ok := c.textures[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	out := image.NewRGBA(image.Rect(0, 0, t.w, t.h))
	copy(out.Pix, t.pix.Pix)
	return out, nil
}

// Size returns the dimensions of a live texture.
func (c *Context) Size(id TextureID) (int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.textures[id]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	return t.w, t.h, nil
}

// Release checks a handle back into the pool. Releasing an unknown or
// already released handle returns ErrUnknownTexture: the discipline is
// exactly-once, and a double release indicates a bookkeeping bug.
func (c *Context) Release(id TextureID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.textures[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTexture, id)
	}
	delete(c.textures, id)
	c.notifyLive()
	return nil
}

// Live returns the number of currently held textures.
func (c *Context) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.textures)
}

// Dispose releases every live texture and renders the context unusable.
// Idempotent.
func (c *Context) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return
	}
	c.textures = make(map[TextureID]*texture)
	c.disposed = true
	c.notifyLive()
}

func (c *Context) notifyLive() {
	if c.onLive != nil {
		c.onLive(len(c.textures))
	}
}
