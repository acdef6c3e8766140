package index

import (
	"container/list"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Names of the indexes the query path knows about. They are part of the
// on-disk layout (directory and file names) and must not change.
const (
	IndexLocation = "loc_id"
	IndexType     = "type_id"
	IndexDate     = "date_int"
	IndexCompany  = "comp_code"
)

// Ext is the file extension of shard and monolithic index files.
const Ext = ".json"

// Source says where a postings list was resolved from.
type Source string

const (
	SourceShard      Source = "shard"
	SourceMonolithic Source = "monolithic"
	SourceAbsent     Source = "absent"
)

// ShardPath returns the shard file for one key. Two-level layout fans out by
// the low byte of the key in hex (00..ff); single-level puts every key file
// directly under the index directory.
func ShardPath(shardsRoot, name string, key int64, twoLevel bool) string {
	if twoLevel {
		sub := fmt.Sprintf("%02x", uint8(key&0xff))
		return filepath.Join(shardsRoot, name, sub, strconv.FormatInt(key, 10)+Ext)
	}
	return filepath.Join(shardsRoot, name, strconv.FormatInt(key, 10)+Ext)
}

// MonolithicPath returns the single-file index for name.
func MonolithicPath(indexRoot, name string) string {
	return filepath.Join(indexRoot, name+Ext)
}

// Store resolves (index name, key) pairs to postings lists. It prefers
// per-key shard files and falls back to cached monolithic key->postings
// maps. Missing artifacts mean "no postings", never an error; unreadable or
// unparsable artifacts are explicit errors, never partial results.
type Store struct {
	shardsRoot string
	indexRoot  string

	mu   sync.Mutex
	mono *monoCache
}

// NewStore creates a Store. monoCacheSize bounds how many parsed monolithic
// index files stay in memory at once.
func NewStore(shardsRoot, indexRoot string, monoCacheSize int) *Store {
	if monoCacheSize <= 0 {
		monoCacheSize = 8
	}
	return &Store{
		shardsRoot: shardsRoot,
		indexRoot:  indexRoot,
		mono:       newMonoCache(monoCacheSize),
	}
}

// Postings returns the postings list for key in the named index, or an empty
// list when no artifact covers it.
func (s *Store) Postings(name string, key int64) (Postings, error) {
	p, _, err := s.Lookup(name, key)
	return p, err
}

// Lookup is Postings plus the source the list came from, for metrics.
// Resolution order: two-level shard, single-level shard, monolithic map.
func (s *Store) Lookup(name string, key int64) (Postings, Source, error) {
	for _, twoLevel := range []bool{true, false} {
		p, ok, err := readShard(ShardPath(s.shardsRoot, name, key, twoLevel))
		if err != nil {
			return nil, SourceShard, err
		}
		if ok {
			return p, SourceShard, nil
		}
	}

	mono, err := s.monolithic(name)
	if err != nil {
		return nil, SourceMonolithic, err
	}
	if p, ok := mono[strconv.FormatInt(key, 10)]; ok {
		return p, SourceMonolithic, nil
	}
	return Postings{}, SourceAbsent, nil
}

// readShard parses one shard file. ok is false when the file does not exist.
func readShard(path string) (Postings, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading shard %s: %w", path, err)
	}
	var p Postings
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("parsing shard %s: %w", path, err)
	}
	return p, true, nil
}

// monolithic returns the parsed key->postings map for name, loading and
// caching it on first use. A missing file is an empty map so the same Store
// serves sharded-only, monolithic-only, and mixed layouts.
func (s *Store) monolithic(name string) (map[string]Postings, error) {
	s.mu.Lock()
	if m, ok := s.mono.get(name); ok {
		s.mu.Unlock()
		return m, nil
	}
	s.mu.Unlock()

	path := MonolithicPath(s.indexRoot, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			m := map[string]Postings{}
			s.mu.Lock()
			s.mono.add(name, m)
			s.mu.Unlock()
			return m, nil
		}
		return nil, fmt.Errorf("reading index %s: %w", path, err)
	}
	var m map[string]Postings
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing index %s: %w", path, err)
	}

	s.mu.Lock()
	s.mono.add(name, m)
	s.mu.Unlock()
	return m, nil
}

// monoCache is a small LRU of parsed monolithic index files, keyed by index
// name. Entries are immutable once cached; a new process picks up rebuilt
// files.
type monoCache struct {
	max   int
	ll    *list.List
	items map[string]*list.Element
}

type monoEntry struct {
	name string
	m    map[string]Postings
}

func newMonoCache(max int) *monoCache {
	return &monoCache{
		max:   max,
		ll:    list.New(),
		items: make(map[string]*list.Element, max),
	}
}

func (c *monoCache) get(name string) (map[string]Postings, bool) {
	if el, ok := c.items[name]; ok {
		c.ll.MoveToFront(el)
		return el.Value.(*monoEntry).m, true
	}
	return nil, false
}

func (c *monoCache) add(name string, m map[string]Postings) {
	if el, ok := c.items[name]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*monoEntry).m = m
		return
	}
	el := c.ll.PushFront(&monoEntry{name: name, m: m})
	c.items[name] = el
	if c.ll.Len() > c.max {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*monoEntry).name)
	}
}
