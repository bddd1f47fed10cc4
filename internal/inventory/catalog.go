// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package inventory resolves reward items and grants copies to actors.
//
// The catalog is a YAML file listing items and actors. Grants are appended
// to the owning actor and written back on Save.
package inventory

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/questkeeper/internal/core"
)

// Sentinel errors.
var (
	ErrItemNotFound  = errors.New("item not found")
	ErrActorNotFound = errors.New("actor not found")
)

// Item is a catalog entry that can be granted.
type Item struct {
	Ref   string `yaml:"ref"`
	Name  string `yaml:"name"`
	Image string `yaml:"image,omitempty"`
	Type  string `yaml:"type,omitempty"`
}

// Grant is one copy of an item owned by an actor.
type Grant struct {
	ID        string    `yaml:"id"`
	ItemRef   string    `yaml:"item"`
	Name      string    `yaml:"name"`
	Quantity  int       `yaml:"quantity"`
	GrantedAt time.Time `yaml:"grantedAt"`
}

// Actor is a character that can receive items.
type Actor struct {
	Ref   string  `yaml:"ref"`
	Name  string  `yaml:"name"`
	Items []Grant `yaml:"items,omitempty"`
}

type catalogFile struct {
	Items  []Item  `yaml:"items"`
	Actors []Actor `yaml:"actors"`
}

// Catalog is an in-memory item and actor registry. It is safe for
// concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	path   string
	clock  core.Clock
	items  map[string]Item
	actors map[string]*Actor
	order  []string
}

// NewCatalog returns an empty catalog that is not backed by a file.
func NewCatalog(clock core.Clock) *Catalog {
	if clock == nil {
		clock = core.SystemClock{}
	}
	return &Catalog{
		clock:  clock,
		items:  make(map[string]Item),
		actors: make(map[string]*Actor),
	}
}

// Load reads a catalog from path. A missing file yields an empty catalog
// that Save will create.
func Load(path string, clock core.Clock) (*Catalog, error) {
	c := NewCatalog(clock)
	c.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, oops.In("inventory").Code("CATALOG_READ_FAILED").With("path", path).Wrap(err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, oops.In("inventory").Code("CATALOG_INVALID").With("path", path).Wrap(err)
	}
	for _, it := range f.Items {
		if err := c.AddItem(it); err != nil {
			return nil, oops.In("inventory").With("path", path).Wrap(err)
		}
	}
	for _, a := range f.Actors {
		if err := c.AddActor(a); err != nil {
			return nil, oops.In("inventory").With("path", path).Wrap(err)
		}
	}
	return c, nil
}

// Save writes the catalog back to the file it was loaded from.
func (c *Catalog) Save() error {
	if c.path == "" {
		return nil
	}
	c.mu.RLock()
	f := catalogFile{Items: make([]Item, 0, len(c.items))}
	for _, ref := range slices.Sorted(maps.Keys(c.items)) {
		f.Items = append(f.Items, c.items[ref])
	}
	for _, ref := range c.order {
		a := *c.actors[ref]
		a.Items = slices.Clone(a.Items)
		f.Actors = append(f.Actors, a)
	}
	c.mu.RUnlock()

	data, err := yaml.Marshal(f)
	if err != nil {
		return oops.In("inventory").Code("CATALOG_ENCODE_FAILED").Wrap(err)
	}
	if err := atomic.WriteFile(c.path, bytes.NewReader(data)); err != nil {
		return oops.In("inventory").Code("CATALOG_WRITE_FAILED").With("path", c.path).Wrap(err)
	}
	return nil
}

// AddItem registers an item. The ref is required.
func (c *Catalog) AddItem(it Item) error {
	if it.Ref == "" {
		return oops.In("inventory").Code("INVALID_ITEM").Errorf("item ref is required")
	}
	c.mu.Lock()
	c.items[it.Ref] = it
	c.mu.Unlock()
	return nil
}

// AddActor registers an actor. The ref is required.
func (c *Catalog) AddActor(a Actor) error {
	if a.Ref == "" {
		return oops.In("inventory").Code("INVALID_ACTOR").Errorf("actor ref is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.actors[a.Ref]; !ok {
		c.order = append(c.order, a.Ref)
	}
	a.Items = slices.Clone(a.Items)
	c.actors[a.Ref] = &a
	return nil
}

// ResolveItem looks up an item by ref.
func (c *Catalog) ResolveItem(_ context.Context, ref string) (*Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[ref]
	if !ok {
		return nil, oops.In("inventory").Code("ITEM_NOT_FOUND").With("item", ref).Wrap(ErrItemNotFound)
	}
	return &it, nil
}

// Actor returns a copy of the actor with ref.
func (c *Catalog) Actor(ref string) (Actor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.actors[ref]
	if !ok {
		return Actor{}, false
	}
	out := *a
	out.Items = slices.Clone(a.Items)
	return out, true
}

// GrantItemCopy gives actorRef qty copies of item.
func (c *Catalog) GrantItemCopy(ctx context.Context, actorRef string, item *Item, qty int) (*Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item == nil {
		return nil, oops.In("inventory").Code("INVALID_ITEM").Errorf("item is required")
	}
	if qty < 1 {
		qty = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.actors[actorRef]
	if !ok {
		return nil, oops.In("inventory").Code("ACTOR_NOT_FOUND").With("actor", actorRef).Wrap(ErrActorNotFound)
	}
	now := c.clock.Now()
	g := Grant{
		ID:        core.NewID(now),
		ItemRef:   item.Ref,
		Name:      item.Name,
		Quantity:  qty,
		GrantedAt: now,
	}
	a.Items = append(a.Items, g)
	return &g, nil
}
