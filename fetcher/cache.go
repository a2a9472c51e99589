package fetcher

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/akrylysov/pogreb"
	"github.com/akrylysov/pogreb/fs"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/rs/zerolog"
)

const (
	objectsDir = "objects"
	tmpDir     = "tmp"

	// IndexName is the default name of the entry index under the cache root.
	IndexName = "index.db"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("fetcher: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("fetcher: cbor decoder: " + err.Error())
	}
}

// Entry records one object stored in the cache.
type Entry struct {
	Hash     string `cbor:"hash"`
	Path     string `cbor:"path"`
	Size     int64  `cbor:"size"`
	Verified bool   `cbor:"verified"`
	// Refs lists the destinations known to use the object, sorted.
	Refs       []string  `cbor:"refs,omitempty"`
	Sums       Sums      `cbor:"sums"`
	VerifiedAt time.Time `cbor:"verified_at"`
}

func (e *Entry) RefCount() int {
	return len(e.Refs)
}

type Stats struct {
	Entries  int
	Verified int
	Size     int64
	Refs     int
}

// Cache is a content-addressed object store. Objects live at
// objects/<hh>/<hash> and are written through tmp/ and renamed into place,
// so an object path never holds partial content.
type Cache struct {
	files billy.Filesystem
	db    *pogreb.DB

	// fsMu serializes namespace changes on files.
	fsMu sync.Mutex
	// locks guard read-modify-write of index entries, striped by hash.
	locks [64]sync.Mutex

	now func() time.Time
}

// New returns a cache over files using db as the entry index. The cache
// owns db and closes it on Close.
func New(files billy.Filesystem, db *pogreb.DB) (*Cache, error) {
	c := &Cache{files: files, db: db, now: time.Now}
	for _, dir := range []string{objectsDir, tmpDir} {
		if err := files.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Open opens the cache rooted at files with the index at dbPath on the
// host filesystem.
func Open(files billy.Filesystem, dbPath string) (*Cache, error) {
	db, err := pogreb.Open(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	c, err := New(files, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// OpenMemory returns a cache that lives only in memory.
func OpenMemory() (*Cache, error) {
	// pogreb creates the index directory on the host filesystem even
	// when FileSystem is fs.Mem.
	db, err := pogreb.Open(".", &pogreb.Options{FileSystem: fs.Mem})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return New(memfs.New(), db)
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// ObjectPath returns the path of the object with the given hash relative
// to the cache root.
func (c *Cache) ObjectPath(hash string) string {
	return c.files.Join(objectsDir, hash[:2], hash)
}

func (c *Cache) lock(hash string) *sync.Mutex {
	return &c.locks[int(hash[len(hash)-1])%len(c.locks)]
}

func (c *Cache) get(hash string) (*Entry, error) {
	data, err := c.db.Get([]byte(hash))
	if err != nil || data == nil {
		return nil, err
	}
	var e Entry
	if err := decMode.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", hash, err)
	}
	return &e, nil
}

func (c *Cache) put(e *Entry) error {
	data, err := encMode.Marshal(e)
	if err != nil {
		return err
	}
	return c.db.Put([]byte(e.Hash), data)
}

// Lookup returns the verified entry for hash. An entry whose object file
// has gone missing is dropped from the index and reported as absent.
func (c *Cache) Lookup(hash string) (*Entry, bool, error) {
	e, err := c.get(hash)
	if err != nil || e == nil || !e.Verified {
		return nil, false, err
	}
	c.fsMu.Lock()
	_, err = c.files.Stat(e.Path)
	c.fsMu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		mu := c.lock(hash)
		mu.Lock()
		defer mu.Unlock()
		return nil, false, c.db.Delete([]byte(hash))
	}
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// Retain records dest as a user of the object.
func (c *Cache) Retain(hash, dest string) error {
	mu := c.lock(hash)
	mu.Lock()
	defer mu.Unlock()
	e, err := c.get(hash)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("%s: %w", hash, ErrNotCached)
	}
	i, found := slices.BinarySearch(e.Refs, dest)
	if found {
		return nil
	}
	e.Refs = slices.Insert(e.Refs, i, dest)
	return c.put(e)
}

// Open opens the object with the given hash for reading.
func (c *Cache) Open(hash string) (billy.File, error) {
	e, ok, err := c.Lookup(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotCached)
	}
	c.fsMu.Lock()
	defer c.fsMu.Unlock()
	return c.files.Open(e.Path)
}

// Verify rehashes the object. A missing or corrupt object is deleted
// along with its entry and ErrIntegrity is returned.
func (c *Cache) Verify(hash string) (*Entry, error) {
	e, err := c.get(hash)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotCached)
	}
	sums, n, err := c.sumFile(e.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, c.discard(hash, fmt.Errorf("%s: %w: object missing", hash, ErrIntegrity))
	case err != nil:
		return nil, err
	case sums.SHA1 != hash || n != e.Size:
		return nil, c.discard(hash, fmt.Errorf("%s: %w: got sha1 %s size %d", hash, ErrIntegrity, sums.SHA1, n))
	}

	mu := c.lock(hash)
	mu.Lock()
	defer mu.Unlock()
	if cur, err := c.get(hash); err == nil && cur != nil {
		e.Refs = cur.Refs
	}
	e.Verified = true
	e.Sums = sums
	e.VerifiedAt = c.now().UTC()
	return e, c.put(e)
}

func (c *Cache) discard(hash string, cause error) error {
	if err := c.Remove(hash); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// Remove deletes the object and its entry. Removing an absent object is
// not an error.
func (c *Cache) Remove(hash string) error {
	mu := c.lock(hash)
	mu.Lock()
	defer mu.Unlock()
	c.fsMu.Lock()
	err := c.files.Remove(c.ObjectPath(hash))
	c.fsMu.Unlock()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return c.db.Delete([]byte(hash))
}

// Walk calls fn for every entry in the index in unspecified order.
func (c *Cache) Walk(fn func(*Entry) error) error {
	it := c.db.Items()
	for {
		_, data, err := it.Next()
		if errors.Is(err, pogreb.ErrIterationDone) {
			return nil
		}
		if err != nil {
			return err
		}
		var e Entry
		if err := decMode.Unmarshal(data, &e); err != nil {
			return err
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
}

func (c *Cache) Stats() (Stats, error) {
	var s Stats
	err := c.Walk(func(e *Entry) error {
		s.Entries++
		if e.Verified {
			s.Verified++
		}
		s.Size += e.Size
		s.Refs += e.RefCount()
		return nil
	})
	return s, err
}

func (c *Cache) sumFile(name string) (Sums, int64, error) {
	c.fsMu.Lock()
	f, err := c.files.Open(name)
	c.fsMu.Unlock()
	if err != nil {
		return Sums{}, 0, err
	}
	defer f.Close()
	return sumReader(f)
}

// createTemp opens a scratch file under tmp/.
func (c *Cache) createTemp(hash string) (billy.File, error) {
	c.fsMu.Lock()
	defer c.fsMu.Unlock()
	return c.files.TempFile(tmpDir, hash+"-")
}

func (c *Cache) removeTemp(ctx context.Context, name string) {
	c.fsMu.Lock()
	defer c.fsMu.Unlock()
	if err := c.files.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		zerolog.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("remove temp file")
	}
}

// commit moves a fully written and checked scratch file into place and
// records it as verified.
func (c *Cache) commit(ctx context.Context, tmpName, hash string, size int64, sums Sums, dest string) (*Entry, error) {
	dst := c.ObjectPath(hash)
	c.fsMu.Lock()
	err := c.files.MkdirAll(c.files.Join(objectsDir, hash[:2]), 0o755)
	if err == nil {
		// A file already at dst is unverified here and may be stale, so the
		// checked scratch file always replaces it.
		err = c.files.Rename(tmpName, dst)
	}
	c.fsMu.Unlock()
	if err != nil {
		c.removeTemp(ctx, tmpName)
		return nil, err
	}

	mu := c.lock(hash)
	mu.Lock()
	defer mu.Unlock()
	e := &Entry{Hash: hash, Path: dst, Size: size}
	if old, err := c.get(hash); err == nil && old != nil {
		e.Refs = old.Refs
	}
	if dest != "" {
		if i, found := slices.BinarySearch(e.Refs, dest); !found {
			e.Refs = slices.Insert(e.Refs, i, dest)
		}
	}
	e.Verified = true
	e.Sums = sums
	e.VerifiedAt = c.now().UTC()
	return e, c.put(e)
}

type RebuildStats struct {
	Entries int
	Removed int
}

// Rebuild recreates the index from the objects directory. Every object is
// rehashed; files that are not named by their own sha1 are removed along
// with leftover scratch files. Refs are lost. Rebuild must not run
// alongside other use of the cache.
func (c *Cache) Rebuild(ctx context.Context) (RebuildStats, error) {
	var s RebuildStats
	log := zerolog.Ctx(ctx)

	var keys [][]byte
	it := c.db.Items()
	for {
		k, _, err := it.Next()
		if errors.Is(err, pogreb.ErrIterationDone) {
			break
		}
		if err != nil {
			return s, err
		}
		keys = append(keys, k)
	}
	for _, k := range keys {
		if err := c.db.Delete(k); err != nil {
			return s, err
		}
	}

	if err := c.clearDir(tmpDir, &s); err != nil {
		return s, err
	}

	shards, err := c.files.ReadDir(objectsDir)
	if err != nil {
		return s, err
	}
	for _, shard := range shards {
		dir := c.files.Join(objectsDir, shard.Name())
		if !shard.IsDir() {
			log.Warn().Str("file", dir).Msg("removing stray file")
			if err := c.files.Remove(dir); err != nil {
				return s, err
			}
			s.Removed++
			continue
		}
		objects, err := c.files.ReadDir(dir)
		if err != nil {
			return s, err
		}
		for _, fi := range objects {
			if err := ctx.Err(); err != nil {
				return s, err
			}
			name := c.files.Join(dir, fi.Name())
			hash := fi.Name()
			ok := !fi.IsDir() && validHash(hash) && hash[:2] == shard.Name()
			var sums Sums
			var n int64
			if ok {
				sums, n, err = c.sumFile(name)
				if err != nil {
					return s, err
				}
				ok = sums.SHA1 == hash
			}
			if !ok {
				log.Warn().Str("file", name).Msg("removing stray object")
				if err := util.RemoveAll(c.files, name); err != nil {
					return s, err
				}
				s.Removed++
				continue
			}
			e := &Entry{
				Hash:       hash,
				Path:       name,
				Size:       n,
				Verified:   true,
				Sums:       sums,
				VerifiedAt: c.now().UTC(),
			}
			if err := c.put(e); err != nil {
				return s, err
			}
			s.Entries++
		}
	}
	log.Info().Int("entries", s.Entries).Int("removed", s.Removed).Msg("rebuilt cache index")
	return s, c.db.Sync()
}

func (c *Cache) clearDir(dir string, s *RebuildStats) error {
	files, err := c.files.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, fi := range files {
		if err := util.RemoveAll(c.files, c.files.Join(dir, fi.Name())); err != nil {
			return err
		}
		s.Removed++
	}
	return nil
}

func validHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
