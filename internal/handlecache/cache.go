// Package handlecache keeps two keyed pools (read, write) of open file
// handles per (topic, role), evicting and reopening on a path/mode
// mismatch. Handles are owned by the cache and flow downward only, never
// back up to a caller-held reference that could outlive an eviction.
package handlecache

import (
	"fmt"
	"os"
	"sync"
)

// Role identifies which file within a topic directory a handle addresses.
type Role string

const (
	RoleDat            Role = "dat"
	RoleIndex          Role = "index"
	RoleCurrent        Role = "current"
	RoleDelayMessage   Role = "delayMessage"
	RolePartitionIndex Role = "partitionIndex"
)

// Pool selects which of the two logical pools (read or write) to use. No
// handle is ever shared between the two: the write path always opens a
// distinct descriptor so advisory-locking semantics stay unambiguous.
type Pool int

const (
	Read Pool = iota
	Write
)

type fingerprint struct {
	path string
	mode int
}

type entry struct {
	fp     fingerprint
	handle *os.File
}

type key struct {
	topic string
	role  Role
}

// Cache is a leaf resource owned by a topic façade. It has no knowledge of
// topics, segments, or the wire format — only of open file descriptors.
type Cache struct {
	mu    sync.Mutex
	read  map[key]*entry
	write map[key]*entry
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		read:  make(map[key]*entry),
		write: make(map[key]*entry),
	}
}

// Get returns the cached handle for (topic, role) in the given pool if its
// fingerprint (path, mode) matches and it is still open; otherwise it closes
// the stale handle (if any), opens path with mode/perm, caches it, and
// returns the fresh handle. A cached handle closed elsewhere (releasing a
// lockfile.Lock closes the descriptor it locked) counts as stale.
func (c *Cache) Get(pool Pool, topic string, role Role, path string, mode int, perm os.FileMode) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.poolMap(pool)
	k := key{topic: topic, role: role}
	want := fingerprint{path: path, mode: mode}

	if e, ok := m[k]; ok {
		if e.fp == want {
			if _, err := e.handle.Stat(); err == nil {
				return e.handle, nil
			}
		}
		e.handle.Close()
		delete(m, k)
	}

	f, err := os.OpenFile(path, mode, perm)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	m[k] = &entry{fp: want, handle: f}
	return f, nil
}

// Evict drops the cached handle for (topic, role) in pool, if present,
// closing it first. Used before an operation that needs exclusive control
// of the descriptor's lock window (e.g. delaylog.Write's barrier wait).
func (c *Cache) Evict(pool Pool, topic string, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.poolMap(pool)
	k := key{topic: topic, role: role}
	if e, ok := m[k]; ok {
		e.handle.Close()
		delete(m, k)
	}
}

// Close closes the selected subset: topic == "" closes every topic, role ==
// "" closes every role. A no-op if nothing matches.
func (c *Cache) Close(topic string, role Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeMatching(c.read, topic, role)
	c.closeMatching(c.write, topic, role)
}

func (c *Cache) closeMatching(m map[key]*entry, topic string, role Role) {
	for k, e := range m {
		if topic != "" && k.topic != topic {
			continue
		}
		if role != "" && k.role != role {
			continue
		}
		e.handle.Close()
		delete(m, k)
	}
}

// CloseAll releases every handle in both pools.
func (c *Cache) CloseAll() {
	c.Close("", "")
}

func (c *Cache) poolMap(pool Pool) map[key]*entry {
	if pool == Write {
		return c.write
	}
	return c.read
}
