// Package shm implements the single-slot shared-memory frame transport
// between the acquisition process and the compute process.
//
// The region holds exactly one frame at a time:
//
//	version u32 | sequence u64 | payload length u32 | payload
//
// all little endian. The writer overwrites the slot in place; a monotonically
// increasing sequence number lets the reader detect both a stale slot (same
// sequence as last read) and dropped frames (sequence gap). Mutual exclusion
// across processes uses a flock'd lock file, acquired only around the copy in
// or out of the slot, never around parsing or processing.
package shm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// LayoutVersion is the region format marker. Readers reject any other value.
const LayoutVersion = 1

// HeaderBytes is the fixed header size preceding the payload.
const HeaderBytes = 4 + 8 + 4

const shmDir = "/dev/shm"

// Region is a handle on the shared slot. One process side holds one Region;
// the creator is responsible for Unlink at shutdown.
type Region struct {
	mem      *os.File
	lock     *os.File
	data     []byte
	capacity int
	created  bool
	seq      uint64

	memPath  string
	lockPath string
}

func objectPath(name string) string {
	return filepath.Join(shmDir, strings.TrimPrefix(name, "/"))
}

func semPath(name string) string {
	return filepath.Join(shmDir, "sem."+strings.TrimPrefix(name, "/"))
}

// Create creates the shared region and its lock object, or attaches to
// existing ones if another process won the creation race. payloadCapacity is
// the largest frame payload the slot must hold.
func Create(memName, semName string, payloadCapacity int) (*Region, error) {
	if payloadCapacity <= 0 {
		return nil, fmt.Errorf("payload capacity must be positive, got %d", payloadCapacity)
	}
	total := HeaderBytes + payloadCapacity

	memPath := objectPath(memName)
	created := true
	mem, err := os.OpenFile(memPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if errors.Is(err, fs.ErrExist) {
		// Lost the creation race; fall back to attaching.
		created = false
		mem, err = os.OpenFile(memPath, os.O_RDWR, 0o666)
	}
	if err != nil {
		return nil, fmt.Errorf("open shared memory object %s: %w", memPath, err)
	}
	if created {
		if err := mem.Truncate(int64(total)); err != nil {
			mem.Close()
			return nil, fmt.Errorf("size shared memory object %s: %w", memPath, err)
		}
	}

	r, err := mapRegion(mem, semPath(semName), total, created)
	if err != nil {
		return nil, err
	}
	r.memPath = memPath
	if created {
		if err := r.writeSlot(0, nil); err != nil {
			r.Close()
			return nil, err
		}
	} else {
		// Continue the existing sequence so consumers see monotonic values.
		if _, seq, _, err := r.readSlot(nil); err == nil {
			r.seq = seq
		}
	}
	return r, nil
}

// Open attaches to an existing region described by a metadata record. It
// never creates: a missing object means the acquisition process has not
// published yet.
func Open(meta Metadata) (*Region, error) {
	memPath := objectPath(meta.MemName)
	mem, err := os.OpenFile(memPath, os.O_RDWR, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open shared memory object %s: %w", memPath, err)
	}
	r, err := mapRegion(mem, semPath(meta.SemName), meta.Size, false)
	if err != nil {
		return nil, err
	}
	r.memPath = memPath
	return r, nil
}

func mapRegion(mem *os.File, lockPath string, total int, created bool) (*Region, error) {
	if total <= HeaderBytes {
		mem.Close()
		return nil, fmt.Errorf("region size %d too small for header", total)
	}

	lock, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		mem.Close()
		return nil, fmt.Errorf("open region lock %s: %w", lockPath, err)
	}

	data, err := unix.Mmap(int(mem.Fd()), 0, total, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		mem.Close()
		lock.Close()
		return nil, fmt.Errorf("mmap shared memory: %w", err)
	}

	return &Region{
		mem:      mem,
		lock:     lock,
		data:     data,
		capacity: total - HeaderBytes,
		created:  created,
		lockPath: lockPath,
	}, nil
}

// Created reports whether this process created the region (and therefore owns
// unlinking it).
func (r *Region) Created() bool { return r.created }

// Capacity returns the largest payload the slot can hold.
func (r *Region) Capacity() int { return r.capacity }

// withLock runs fn while holding the cross-process lock. Release happens on
// every exit path, including a panic inside fn.
func (r *Region) withLock(fn func() error) error {
	if err := unix.Flock(int(r.lock.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("acquire region lock: %w", err)
	}
	defer unix.Flock(int(r.lock.Fd()), unix.LOCK_UN)
	return fn()
}

// Publish copies one frame payload into the slot and bumps the sequence
// number. The lock is held only for the copy.
func (r *Region) Publish(payload []byte) error {
	if len(payload) > r.capacity {
		return fmt.Errorf("payload %d bytes exceeds region capacity %d", len(payload), r.capacity)
	}
	r.seq++
	return r.writeSlot(r.seq, payload)
}

func (r *Region) writeSlot(seq uint64, payload []byte) error {
	return r.withLock(func() error {
		binary.LittleEndian.PutUint32(r.data[0:4], LayoutVersion)
		binary.LittleEndian.PutUint64(r.data[4:12], seq)
		binary.LittleEndian.PutUint32(r.data[12:16], uint32(len(payload)))
		copy(r.data[HeaderBytes:], payload)
		return nil
	})
}

// readSlot copies the slot out under the lock, then validates the header
// outside it. scratch is reused when large enough.
func (r *Region) readSlot(scratch []byte) (version uint32, seq uint64, payload []byte, err error) {
	total := HeaderBytes + r.capacity
	if cap(scratch) < total {
		scratch = make([]byte, total)
	}
	buf := scratch[:total]

	if err := r.withLock(func() error {
		copy(buf, r.data)
		return nil
	}); err != nil {
		return 0, 0, nil, err
	}

	version = binary.LittleEndian.Uint32(buf[0:4])
	seq = binary.LittleEndian.Uint64(buf[4:12])
	length := int(binary.LittleEndian.Uint32(buf[12:16]))
	if version != LayoutVersion {
		return version, seq, nil, fmt.Errorf("unsupported region layout version %d", version)
	}
	if length > r.capacity {
		return version, seq, nil, fmt.Errorf("corrupt region: payload length %d exceeds capacity %d", length, r.capacity)
	}
	return version, seq, buf[HeaderBytes : HeaderBytes+length], nil
}

// Close unmaps the region and closes the underlying objects.
func (r *Region) Close() error {
	var first error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil && first == nil {
			first = err
		}
		r.data = nil
	}
	if err := r.mem.Close(); err != nil && first == nil {
		first = err
	}
	if err := r.lock.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Unlink removes the shared objects from the filesystem. Only the creator
// should call it, after Close.
func (r *Region) Unlink() error {
	var first error
	if err := os.Remove(r.memPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		first = err
	}
	if err := os.Remove(r.lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) && first == nil {
		first = err
	}
	return first
}

// Consumer reads frames from a region with the stale-frame gate applied:
// a slot whose sequence number matches the previous read yields no frame.
type Consumer struct {
	region  *Region
	lastSeq uint64
	primed  bool
	scratch []byte
}

// NewConsumer wraps a region for gated reading.
func NewConsumer(r *Region) *Consumer {
	return &Consumer{region: r, scratch: make([]byte, HeaderBytes+r.capacity)}
}

// Next returns the current frame payload and its sequence number, or a nil
// payload when the slot has not been refreshed since the previous call. The
// returned slice is only valid until the next call.
func (c *Consumer) Next() ([]byte, uint64, error) {
	_, seq, payload, err := c.region.readSlot(c.scratch)
	if err != nil {
		return nil, 0, err
	}
	if c.primed && seq == c.lastSeq {
		return nil, seq, nil
	}
	// Sequence zero with an empty payload is the freshly created slot, not a
	// frame.
	if seq == 0 && len(payload) == 0 {
		return nil, seq, nil
	}
	c.lastSeq = seq
	c.primed = true
	return payload, seq, nil
}
