// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errkind classifies the errors plex returns into the four kinds
// spec'd for the on-disk format: IO, Format, Contract, and NotFound. It
// sits on top of github.com/grailbio/base/errors, which already supplies
// message composition and wraps syscall errors; errkind adds the
// coarse-grained tag callers need to decide whether a failure is a bug
// (Contract), a corrupt archive (Format), or ordinary I/O trouble.
package errkind

import (
	"errors"
	"fmt"
)

// Kind categorizes a plex error.
type Kind int

const (
	// Other is the zero value: an error that doesn't fit the other kinds.
	Other Kind = iota
	// IO covers directory/file creation, open, stat, fallocate, mmap,
	// read, and write failures. Carries the syscall name and path.
	IO
	// Format covers truncated metadata, a length mismatch between
	// metadata and file size, an unknown file-type tag, or a checksum
	// mismatch.
	Format
	// Contract covers precondition violations: unsorted input keys,
	// building on empty input, a non-power-of-two NumBins, MaxError==0.
	Contract
	// NotFound covers Open calls against a missing directory or a
	// missing required file.
	NotFound
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "io"
	case Format:
		return "format"
	case Contract:
		return "contract"
	case NotFound:
		return "not found"
	default:
		return "other"
	}
}

// Error is a plex error tagged with a Kind, the failing operation (usually
// a syscall name, e.g. "mmap", "fallocate"), and the path it concerns.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error of the given kind, operation, and path, wrapping err.
// op and path may be omitted by passing "".
func E(kind Kind, op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Is reports whether err is a plex error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
