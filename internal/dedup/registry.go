package dedup

import (
	"context"
	"fmt"
	"sync"
)

// TextureHandle is a host-assigned reference to a bound texture.
type TextureHandle int

// TextureBinder binds a texture into the destination scene. Hosts implement
// it; the registry calls it once per distinct key.
type TextureBinder interface {
	BindTexture(ctx context.Context, src TextureSource) (TextureHandle, error)
}

// MaterialInstance is one realized material in the destination scene. It owns
// exactly one texture binding and is shared by every tile that references
// the same key.
type MaterialInstance struct {
	Key     MaterialKey
	Name    string
	Texture TextureHandle
	Source  TextureSource
	// Refs counts resolutions, including the one that created it.
	Refs int
}

// Stats counts registry activity since creation.
type Stats struct {
	Created int
	Reused  int
	Seeded  int
}

// Registry memoizes MaterialInstances per key for one destination scene.
type Registry struct {
	mu     sync.Mutex
	binder TextureBinder
	byKey  map[MaterialKey]*MaterialInstance
	order  []*MaterialInstance
	stats  Stats
}

// NewRegistry returns an empty registry binding through binder.
func NewRegistry(binder TextureBinder) *Registry {
	return &Registry{binder: binder, byKey: make(map[MaterialKey]*MaterialInstance)}
}

// Resolve returns the instance for key, creating it on first use by probing
// the texture and binding it through the host. created reports whether this
// call realized a new instance.
func (r *Registry) Resolve(ctx context.Context, key MaterialKey, name string) (inst *MaterialInstance, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byKey[key]; ok {
		existing.Refs++
		r.stats.Reused++
		return existing, false, nil
	}
	if r.binder == nil {
		return nil, false, fmt.Errorf("resolve %s: registry has no texture binder", key.Path)
	}
	src, err := Probe(key.Path)
	if err != nil {
		return nil, false, err
	}
	src.Key = key
	src.Name = name
	handle, err := r.binder.BindTexture(ctx, src)
	if err != nil {
		return nil, false, err
	}
	inst = &MaterialInstance{Key: key, Name: name, Texture: handle, Source: src, Refs: 1}
	r.byKey[key] = inst
	r.order = append(r.order, inst)
	r.stats.Created++
	return inst, true, nil
}

// Lookup returns the instance for key without creating one.
func (r *Registry) Lookup(key MaterialKey) (*MaterialInstance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.byKey[key]
	return inst, ok
}

// Seed registers an instance that already exists in the scene, such as one
// loaded from a previous run's output. Seeding a known key is an error.
func (r *Registry) Seed(inst MaterialInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[inst.Key]; ok {
		return fmt.Errorf("seed %s: key already registered", inst.Key.Path)
	}
	seeded := inst
	r.byKey[inst.Key] = &seeded
	r.order = append(r.order, &seeded)
	r.stats.Seeded++
	return nil
}

// Len returns the number of distinct instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Instances returns copies of every instance in creation order.
func (r *Registry) Instances() []MaterialInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MaterialInstance, len(r.order))
	for i, inst := range r.order {
		out[i] = *inst
	}
	return out
}

// Stats returns a snapshot of the activity counters.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
