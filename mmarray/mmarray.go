// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package mmarray implements a persistent, memory-mapped, fixed-length
// array of POD elements. It is the storage primitive underneath plex's
// breakpoint and payload arrays: Create() writes a []T to a new file and
// keeps the mapping live for reads; Open() memory-maps an existing file
// read-only, trusting a length supplied by the caller's metadata.
//
// This generalizes fusion.kmerIndexShard's unix.Mmap/unix.Madvise use (an
// anonymous, process-private hash table) to a named, file-backed mapping
// shared across processes, following the Create/Open contract of
// illinoisdata/PLEX's mmap_struct.LazyVector.
package mmarray

import (
	"os"
	"path/filepath"
	"unsafe"

	"github.com/grailbio/base/errors"
	"golang.org/x/sys/unix"

	"github.com/grailbio/plex/errkind"
)

// Array is a fixed-length, memory-mapped array of T. The zero value is not
// usable; construct one with Create or Open. Array is read-or-write for
// the lifetime established at Create/Open time: a created Array may be
// re-read through the same instance, but there is no API to mutate an
// Array after Create returns control to the caller, matching the "built
// once, immutable thereafter" lifecycle of the index it backs.
type Array[T any] struct {
	path   string
	file   *os.File
	data   []byte // the raw mmap'd region; nil for a zero-length array
	slice  []T    // data reinterpreted as []T
	closed bool
}

// Create writes source to a new file at path (truncating any existing
// file), memory-maps it read-write, and returns an Array backed by that
// mapping. The parent directory is created if it does not exist. On any
// failure, no file or mapping is left behind from this call.
func Create[T any](path string, source []T) (*Array[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errkind.E(errkind.IO, "mkdir", filepath.Dir(path), errors.E(err))
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errkind.E(errkind.IO, "open", path, errors.E(err))
	}

	var zero T
	elemSize := int64(unsafe.Sizeof(zero))
	size := elemSize * int64(len(source))

	a := &Array[T]{path: path, file: f}
	if size == 0 {
		return a, nil
	}

	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		f.Close() // nolint: errcheck
		os.Remove(path)
		return nil, errkind.E(errkind.IO, "fallocate", path, errors.E(err))
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close() // nolint: errcheck
		os.Remove(path)
		return nil, errkind.E(errkind.IO, "mmap", path, errors.E(err))
	}
	dst := bytesToSlice[T](data)
	copy(dst, source)
	if err := unix.Msync(data, unix.MS_SYNC); err != nil {
		unix.Munmap(data) // nolint: errcheck
		f.Close()         // nolint: errcheck
		os.Remove(path)
		return nil, errkind.E(errkind.IO, "msync", path, errors.E(err))
	}
	a.data = data
	a.slice = dst
	return a, nil
}

// Open memory-maps the existing file at path read-only. n is the trusted
// element count, normally read from a sidecar metadata file: Open fails if
// the file is smaller than n elements, but does not fail if it is larger
// (a metadata-driven shorter view onto a longer file is allowed).
func Open[T any](path string, n int) (*Array[T], error) {
	f, err := os.Open(path)
	if err != nil {
		kind := errkind.IO
		if os.IsNotExist(err) {
			kind = errkind.NotFound
		}
		return nil, errkind.E(kind, "open", path, errors.E(err))
	}

	a := &Array[T]{path: path, file: f}
	if n == 0 {
		return a, nil
	}

	var zero T
	elemSize := int64(unsafe.Sizeof(zero))
	want := elemSize * int64(n)

	fi, err := f.Stat()
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errkind.E(errkind.IO, "fstat", path, errors.E(err))
	}
	if fi.Size() < want {
		f.Close() // nolint: errcheck
		return nil, errkind.E(errkind.Format, "", path,
			errors.E(errors.Errorf("truncated array: file has %d bytes, want at least %d (%d elements of %d bytes)",
				fi.Size(), want, n, elemSize)))
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close() // nolint: errcheck
		return nil, errkind.E(errkind.IO, "mmap", path, errors.E(err))
	}
	a.data = data
	a.slice = bytesToSlice[T](data)[:n:n]
	return a, nil
}

// Len returns the number of elements in the array.
func (a *Array[T]) Len() int { return len(a.slice) }

// Index returns the i'th element. Index panics if i is out of range,
// matching slice indexing semantics.
func (a *Array[T]) Index(i int) T { return a.slice[i] }

// Front returns the first element. Front panics on an empty array.
func (a *Array[T]) Front() T { return a.slice[0] }

// Back returns the last element. Back panics on an empty array.
func (a *Array[T]) Back() T { return a.slice[len(a.slice)-1] }

// Slice returns the backing []T directly. The returned slice is valid only
// for the lifetime of the Array (until Close); callers must not retain it
// past Close.
func (a *Array[T]) Slice() []T { return a.slice }

// Iter calls fn for every element in order, stopping early if fn returns
// false.
func (a *Array[T]) Iter(fn func(i int, v T) bool) {
	for i, v := range a.slice {
		if !fn(i, v) {
			return
		}
	}
}

// Close unmaps and closes the array's file. Close is idempotent: a second
// call is a no-op that returns nil.
func (a *Array[T]) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	var err error
	if a.data != nil {
		if uerr := unix.Munmap(a.data); uerr != nil {
			err = errkind.E(errkind.IO, "munmap", a.path, errors.E(uerr))
		}
		a.data = nil
		a.slice = nil
	}
	if a.file != nil {
		if cerr := a.file.Close(); cerr != nil && err == nil {
			err = errkind.E(errkind.IO, "close", a.path, errors.E(cerr))
		}
		a.file = nil
	}
	return err
}
