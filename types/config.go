package types

import (
	"encoding/json"
)

// VMConfig defines the configuration for the VM.
type VMConfig struct {
	Cache CacheOptions `json:"cache"`
}

type CacheOptions struct {
	// BaseDir is the directory the cache persists code to. It is created if
	// missing and must not be shared between two live VM processes.
	BaseDir string `json:"base_dir"`
	// AvailableCapabilities are chain features contracts may require.
	AvailableCapabilities []string `json:"available_capabilities"`
	// MemoryCacheSize bounds the in-memory cache of compiled modules.
	// Pinned modules do not count against this bound.
	MemoryCacheSize Size `json:"memory_cache_size"`
	// InstanceMemoryLimit caps the linear memory a single instance may grow to.
	InstanceMemoryLimit Size `json:"instance_memory_limit"`
}

type Size struct{ uint32 }

func (s Size) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.uint32)
}

func (s *Size) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &s.uint32)
}

// Bytes returns the size as a plain number of bytes.
func (s Size) Bytes() uint64 {
	return uint64(s.uint32)
}

func NewSize(v uint32) Size {
	return Size{v}
}

func NewSizeKilo(v uint32) Size {
	return Size{v * 1000}
}

func NewSizeKibi(v uint32) Size {
	return Size{v * 1024}
}

func NewSizeMega(v uint32) Size {
	return Size{v * 1000 * 1000}
}

func NewSizeMebi(v uint32) Size {
	return Size{v * 1024 * 1024}
}

func NewSizeGiga(v uint32) Size {
	return Size{v * 1000 * 1000 * 1000}
}

func NewSizeGibi(v uint32) Size {
	return Size{v * 1024 * 1024 * 1024}
}
