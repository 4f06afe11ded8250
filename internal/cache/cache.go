// Package cache stores contract code addressed by its checksum: persisted to
// disk, compiled on demand, and held in a bounded in-memory LRU of compiled
// modules.
package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/cosmwasgo/wasmvm/internal/runtime"
	"github.com/cosmwasgo/wasmvm/types"
)

// analyze resolves the entry point set of a compiled module once, at the
// time it enters the cache.
func analyze(compiled wazero.CompiledModule) types.AnalysisReport {
	return runtime.AnalyzeModule(compiled)
}

const (
	wasmDirName  = "wasm"
	wasmFileExt  = ".wasm"
	lockFileName = "exclusive.lock"
)

// Compiler turns Wasm bytecode into executable modules. Compile applies the
// static contract checks, CompileUnchecked skips them for code that already
// passed at store time.
type Compiler interface {
	Compile(ctx context.Context, wasm []byte) (wazero.CompiledModule, error)
	CompileUnchecked(ctx context.Context, wasm []byte) (wazero.CompiledModule, error)
}

// Module is a compiled contract together with its store-time analysis.
type Module struct {
	Compiled wazero.CompiledModule
	Analysis types.AnalysisReport
	// Size is the size of the original Wasm blob in bytes, used for the
	// memory cache bound.
	Size uint64
}

type cachedModule struct {
	module Module
	// hits is atomic: pinned entries are counted on the lock-free load path
	hits atomic.Uint32
}

// Cache is the content-addressed store for contract code.
//
// Code is persisted under <base>/wasm/<hex-checksum>.wasm and survives
// restarts; compiled modules live in a bounded LRU keyed by checksum. Pinned
// modules sit in a separate map and are never evicted.
//
// Loads may run concurrently; stores are serialized. The base directory is
// claimed with an exclusive file lock so two processes cannot share it.
type Cache struct {
	baseDir  string
	wasmDir  string
	lockFile *os.File
	compiler Compiler
	logger   *zap.Logger

	mu sync.RWMutex
	// lru holds unpinned compiled modules, oldest first. Its cumulative
	// Size is kept within memoryLimit by evicting from the oldest end.
	lru         *orderedmap.OrderedMap[types.Checksum, *cachedModule]
	lruSize     uint64
	memoryLimit uint64
	pinned      map[types.Checksum]*cachedModule
	pinnedSize  uint64

	// pinnedHits is counted outside mu so pinned loads stay concurrent.
	pinnedHits atomic.Uint32
	metrics    types.Metrics
}

func New(opts types.CacheOptions, compiler Compiler, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	wasmDir := filepath.Join(opts.BaseDir, wasmDirName)
	if err := os.MkdirAll(wasmDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create cache directory: %w", err)
	}

	lockFile, err := os.OpenFile(filepath.Join(opts.BaseDir, lockFileName), os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("cannot open exclusive.lock: %w", err)
	}
	if err := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("cannot obtain exclusive lock on %s, is another VM running? %w", opts.BaseDir, err)
	}

	return &Cache{
		baseDir:     opts.BaseDir,
		wasmDir:     wasmDir,
		lockFile:    lockFile,
		compiler:    compiler,
		logger:      logger,
		lru:         orderedmap.New[types.Checksum, *cachedModule](),
		memoryLimit: opts.MemoryCacheSize.Bytes(),
		pinned:      make(map[types.Checksum]*cachedModule),
	}, nil
}

// Close releases the directory lock and every compiled module.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pair := c.lru.Oldest(); pair != nil; pair = pair.Next() {
		_ = pair.Value.module.Compiled.Close(ctx)
	}
	c.lru = orderedmap.New[types.Checksum, *cachedModule]()
	c.lruSize = 0
	for _, entry := range c.pinned {
		_ = entry.module.Compiled.Close(ctx)
	}
	c.pinned = make(map[types.Checksum]*cachedModule)
	c.pinnedSize = 0

	_ = unix.Flock(int(c.lockFile.Fd()), unix.LOCK_UN)
	return c.lockFile.Close()
}

func (c *Cache) codePath(checksum types.Checksum) string {
	return filepath.Join(c.wasmDir, checksum.String()+wasmFileExt)
}

// StoreCode validates, compiles and persists the given code. Storing the
// same code twice is a cheap no-op returning the same checksum.
func (c *Cache) StoreCode(ctx context.Context, wasm []byte) (types.Checksum, error) {
	return c.storeCode(ctx, wasm, true)
}

// StoreCodeUnchecked persists the code without the static contract checks.
// Meant for re-import paths (e.g. state sync) where the code was validated
// when it was first stored on chain.
func (c *Cache) StoreCodeUnchecked(ctx context.Context, wasm []byte) (types.Checksum, error) {
	return c.storeCode(ctx, wasm, false)
}

func (c *Cache) storeCode(ctx context.Context, wasm []byte, checked bool) (types.Checksum, error) {
	if len(wasm) == 0 {
		return types.Checksum{}, types.ValidationError{Msg: "wasm code is empty"}
	}
	checksum := types.CalculateChecksum(wasm)

	c.mu.Lock()
	defer c.mu.Unlock()

	// Already compiled and cached, nothing to do.
	if _, ok := c.pinned[checksum]; ok {
		return checksum, nil
	}
	if _, ok := c.lru.Get(checksum); ok {
		return checksum, nil
	}

	var compiled wazero.CompiledModule
	var err error
	if checked {
		compiled, err = c.compiler.Compile(ctx, wasm)
	} else {
		compiled, err = c.compiler.CompileUnchecked(ctx, wasm)
	}
	if err != nil {
		return types.Checksum{}, err
	}

	if err := c.persist(checksum, wasm); err != nil {
		_ = compiled.Close(ctx)
		return types.Checksum{}, err
	}

	c.addToLRU(ctx, checksum, &cachedModule{
		module: Module{
			Compiled: compiled,
			Analysis: analyze(compiled),
			Size:     uint64(len(wasm)),
		},
	})
	return checksum, nil
}

// persist writes the code file if it is not already on disk.
func (c *Cache) persist(checksum types.Checksum, wasm []byte) error {
	path := c.codePath(checksum)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	tmp, err := os.CreateTemp(c.wasmDir, "tmp-"+hex.EncodeToString(checksum[:4])+"-*")
	if err != nil {
		return fmt.Errorf("cannot create code file: %w", err)
	}
	if _, err := tmp.Write(wasm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cannot write code file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cannot close code file: %w", err)
	}
	// rename keeps concurrent readers from ever seeing a partial file
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("cannot move code file into place: %w", err)
	}
	return nil
}

// GetCode returns the original Wasm bytes for the checksum, verifying them
// against the checksum before returning.
func (c *Cache) GetCode(checksum types.Checksum) ([]byte, error) {
	wasm, err := os.ReadFile(c.codePath(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NotFoundError{Kind: "code " + checksum.String()}
		}
		return nil, fmt.Errorf("cannot read code file: %w", err)
	}
	if types.CalculateChecksum(wasm) != checksum {
		return nil, types.IntegrityError{}
	}
	return wasm, nil
}

// RemoveCode drops the code from disk and from the memory cache. Pinned code
// cannot be removed.
func (c *Cache) RemoveCode(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[checksum]; ok {
		return fmt.Errorf("cannot remove pinned code %s", checksum)
	}
	if entry, ok := c.lru.Get(checksum); ok {
		_ = entry.module.Compiled.Close(ctx)
		c.lruSize -= entry.module.Size
		_, _ = c.lru.Delete(checksum)
	}
	if err := os.Remove(c.codePath(checksum)); err != nil {
		if os.IsNotExist(err) {
			return types.NotFoundError{Kind: "code " + checksum.String()}
		}
		return fmt.Errorf("cannot remove code file: %w", err)
	}
	return nil
}

// Load returns the compiled module for the checksum, pulling it through the
// pinned map, the LRU and finally the disk store.
//
// Pinned hits take only the read lock and run concurrently; the LRU and
// disk paths mutate recency state and serialize on the write lock.
func (c *Cache) Load(ctx context.Context, checksum types.Checksum) (Module, error) {
	c.mu.RLock()
	entry, ok := c.pinned[checksum]
	c.mu.RUnlock()
	if ok {
		entry.hits.Add(1)
		c.pinnedHits.Add(1)
		return entry.module, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(ctx, checksum)
}

func (c *Cache) loadLocked(ctx context.Context, checksum types.Checksum) (Module, error) {
	if entry, ok := c.pinned[checksum]; ok {
		entry.hits.Add(1)
		c.pinnedHits.Add(1)
		return entry.module, nil
	}
	if entry, ok := c.lru.Get(checksum); ok {
		entry.hits.Add(1)
		c.metrics.HitsMemoryCache++
		_ = c.lru.MoveToBack(checksum)
		return entry.module, nil
	}

	module, err := c.loadFromDisk(ctx, checksum)
	if err != nil {
		if _, ok := err.(types.NotFoundError); ok {
			c.metrics.Misses++
		}
		return Module{}, err
	}
	c.metrics.HitsFsCache++
	entry := &cachedModule{module: module}
	c.addToLRU(ctx, checksum, entry)
	return entry.module, nil
}

func (c *Cache) loadFromDisk(ctx context.Context, checksum types.Checksum) (Module, error) {
	wasm, err := c.GetCode(checksum)
	if err != nil {
		return Module{}, err
	}
	compiled, err := c.compiler.CompileUnchecked(ctx, wasm)
	if err != nil {
		return Module{}, err
	}
	return Module{
		Compiled: compiled,
		Analysis: analyze(compiled),
		Size:     uint64(len(wasm)),
	}, nil
}

// addToLRU inserts the entry and evicts from the oldest end until the bound
// holds again. A single module larger than the whole bound is kept anyway;
// it just evicts everything else.
func (c *Cache) addToLRU(ctx context.Context, checksum types.Checksum, entry *cachedModule) {
	c.lru.Set(checksum, entry)
	c.lruSize += entry.module.Size
	for c.memoryLimit > 0 && c.lruSize > c.memoryLimit && c.lru.Len() > 1 {
		oldest := c.lru.Oldest()
		c.logger.Debug("evicting compiled module",
			zap.String("checksum", oldest.Key.String()),
			zap.Uint64("size", oldest.Value.module.Size))
		_ = oldest.Value.module.Compiled.Close(ctx)
		c.lruSize -= oldest.Value.module.Size
		_, _ = c.lru.Delete(oldest.Key)
	}
}

// Pin moves the module for the checksum into the pinned map, loading it
// first if needed. Pinned modules are never evicted. Pinning twice is a
// no-op.
func (c *Cache) Pin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.pinned[checksum]; ok {
		return nil
	}
	var entry *cachedModule
	if e, ok := c.lru.Get(checksum); ok {
		entry = e
		c.lruSize -= e.module.Size
		_, _ = c.lru.Delete(checksum)
	} else {
		module, err := c.loadFromDisk(ctx, checksum)
		if err != nil {
			return err
		}
		c.metrics.HitsFsCache++
		entry = &cachedModule{module: module}
	}
	c.pinned[checksum] = entry
	c.pinnedSize += entry.module.Size
	return nil
}

// Unpin moves the module back into the LRU. Unpinning a checksum that is not
// pinned is a no-op.
func (c *Cache) Unpin(ctx context.Context, checksum types.Checksum) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.pinned[checksum]
	if !ok {
		return nil
	}
	delete(c.pinned, checksum)
	c.pinnedSize -= entry.module.Size
	c.addToLRU(ctx, checksum, entry)
	return nil
}

// Metrics returns a snapshot of the cache counters.
func (c *Cache) Metrics() types.Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m := c.metrics
	m.HitsPinnedMemoryCache = c.pinnedHits.Load()
	m.ElementsPinnedMemoryCache = uint64(len(c.pinned))
	m.ElementsMemoryCache = uint64(c.lru.Len())
	m.SizePinnedMemoryCache = c.pinnedSize
	m.SizeMemoryCache = c.lruSize
	return m
}

// PinnedMetrics returns per-module counters for the pinned modules.
func (c *Cache) PinnedMetrics() types.PinnedMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	perModule := make([]types.PerModuleEntry, 0, len(c.pinned))
	for checksum, entry := range c.pinned {
		perModule = append(perModule, types.PerModuleEntry{
			Checksum: checksum,
			Metrics: types.PerModuleMetrics{
				Hits: entry.hits.Load(),
				Size: entry.module.Size,
			},
		})
	}
	return types.PinnedMetrics{PerModule: perModule}
}
