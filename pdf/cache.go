// seehuhn.de/go/annotate - persistent annotations for PDF documents
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package pdf

import (
	"github.com/dgraph-io/ristretto/v2"
)

// defaultCacheCost is the default budget for cached objects, measured in
// approximate bytes.
const defaultCacheCost = 16 << 20

// objectCache keeps recently used objects in memory.  Keys are object
// references or, for decoded object streams, object numbers.
type objectCache[V any] struct {
	c *ristretto.Cache[uint64, V]
}

func newObjectCache[V any](maxCost int64) (*objectCache[V], error) {
	if maxCost <= 0 {
		maxCost = defaultCacheCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, V]{
		NumCounters: max(maxCost/64, 1000),
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &objectCache[V]{c: c}, nil
}

// Put adds an object to the cache.  The cache may drop the object at
// any time.
func (oc *objectCache[V]) Put(key uint64, val V, cost int64) {
	oc.c.Set(key, val, max(cost, 1))
}

// Get returns an object from the cache.
func (oc *objectCache[V]) Get(key uint64) (V, bool) {
	return oc.c.Get(key)
}

// Clear removes all objects from the cache.
func (oc *objectCache[V]) Clear() {
	oc.c.Clear()
}

func (oc *objectCache[V]) Close() {
	oc.c.Close()
}

// objectCost estimates the memory used by an object.
func objectCost(obj Object) int64 {
	switch x := obj.(type) {
	case String:
		return int64(len(x)) + 24
	case Name:
		return int64(len(x)) + 16
	case Array:
		cost := int64(24)
		for _, elem := range x {
			cost += objectCost(elem)
		}
		return cost
	case Dict:
		cost := int64(48)
		for key, val := range x {
			cost += int64(len(key)) + 16 + objectCost(val)
		}
		return cost
	case *Stream:
		return objectCost(x.Dict) + 64
	}
	return 16
}
