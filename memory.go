package cann

import (
	"sort"
	"sync"
)

// memAlignment is the byte alignment of device memory blocks
const memAlignment = 64

// Buffer is a block of device memory owned by an NpuMat
type Buffer struct {
	// data is the usable region of the block
	data []byte
	// block is the full aligned allocation data is sliced from
	block []byte
	// freed is set once the buffer has been returned to its allocator
	freed bool
}

// Bytes returns the device memory of the buffer
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the usable size of the buffer in bytes
func (b *Buffer) Len() int {
	return len(b.data)
}

// Allocator provides device memory to arrays.  A custom Allocator can be
// set with Config.Allocator, otherwise each device uses its own MemoryPool.
type Allocator interface {
	// Allocate returns a buffer of at least size bytes
	Allocate(size int) (*Buffer, error)
	// Free returns the buffer to the allocator
	Free(buf *Buffer) error
}

// MemoryStats reports device memory usage in bytes
type MemoryStats struct {
	// InUse is memory held by live buffers
	InUse int64
	// Cached is memory kept on the free list for reuse
	Cached int64
	// Peak is the highest InUse value seen
	Peak int64
	// Limit is the device memory limit, zero when unlimited
	Limit int64
}

// MemoryPool is the default device Allocator.  Freed blocks are kept on a
// free list and reused by later allocations of the same or smaller size.
type MemoryPool struct {
	mu sync.Mutex
	// freeList holds released blocks sorted by ascending size
	freeList [][]byte
	inUse    int64
	cached   int64
	peak     int64
	limit    int64
}

// NewMemoryPool returns a pool limited to limit bytes, zero for no limit
func NewMemoryPool(limit int64) *MemoryPool {
	return &MemoryPool{
		limit: limit,
	}
}

// Allocate returns a buffer of size bytes from the pool
func (mp *MemoryPool) Allocate(size int) (*Buffer, error) {

	if size <= 0 {
		return nil, newError(ErrCodeUnsupported, "Allocate", "size must be positive, got %d", size)
	}

	aligned := (size + memAlignment - 1) &^ (memAlignment - 1)

	mp.mu.Lock()
	defer mp.mu.Unlock()

	// smallest cached block that fits
	idx := sort.Search(len(mp.freeList), func(i int) bool {
		return len(mp.freeList[i]) >= aligned
	})

	if idx < len(mp.freeList) {
		block := mp.freeList[idx]
		mp.freeList = append(mp.freeList[:idx], mp.freeList[idx+1:]...)
		mp.cached -= int64(len(block))
		mp.track(int64(len(block)))

		return &Buffer{data: block[:size], block: block}, nil
	}

	if mp.limit > 0 && mp.inUse+mp.cached+int64(aligned) > mp.limit {
		// drop cached blocks before giving up
		mp.trimLocked()

		if mp.inUse+int64(aligned) > mp.limit {
			return nil, newError(ErrCodeOutOfMemory, "Allocate",
				"requested %d bytes with %d of %d in use", aligned, mp.inUse, mp.limit)
		}
	}

	block := make([]byte, aligned)
	mp.track(int64(aligned))

	return &Buffer{data: block[:size], block: block}, nil
}

// track accounts for a block being handed out
func (mp *MemoryPool) track(n int64) {
	mp.inUse += n

	if mp.inUse > mp.peak {
		mp.peak = mp.inUse
	}
}

// Free returns the buffer's block to the free list
func (mp *MemoryPool) Free(buf *Buffer) error {

	if buf == nil {
		return nil
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if buf.freed {
		return newError(ErrCodeDeviceOperationFailed, "Free", "double free detected")
	}

	buf.freed = true
	n := int64(len(buf.block))
	mp.inUse -= n
	mp.cached += n

	idx := sort.Search(len(mp.freeList), func(i int) bool {
		return len(mp.freeList[i]) >= len(buf.block)
	})

	mp.freeList = append(mp.freeList, nil)
	copy(mp.freeList[idx+1:], mp.freeList[idx:])
	mp.freeList[idx] = buf.block

	buf.data = nil
	buf.block = nil

	return nil
}

// Trim releases all cached blocks
func (mp *MemoryPool) Trim() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.trimLocked()
}

func (mp *MemoryPool) trimLocked() {
	mp.freeList = nil
	mp.cached = 0
}

// Stats returns the pool's memory usage
func (mp *MemoryPool) Stats() MemoryStats {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	return MemoryStats{
		InUse:  mp.inUse,
		Cached: mp.cached,
		Peak:   mp.peak,
		Limit:  mp.limit,
	}
}
