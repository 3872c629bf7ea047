// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mmarray

import (
	"reflect"
	"unsafe"
)

// bytesToSlice casts a []byte to a []T without reallocating or copying.
// The result has len(src)/sizeof(T) elements; trailing bytes that do not
// fill a whole element (possible when Open maps a file longer than its
// trusted length) are not part of it.
//
// This generalizes the per-type generated helpers in the teacher's
// encoding/pam/fieldio/unsafeint32.go (one pair of functions per ELEM via
// code generation) into a single generic pair, now that the language has
// type parameters.
func bytesToSlice[T any](src []byte) []T {
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	if len(src) == 0 {
		return nil
	}
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	var d []T
	dh := (*reflect.SliceHeader)(unsafe.Pointer(&d))
	dh.Data = sh.Data
	dh.Len = sh.Len / elemSize
	dh.Cap = sh.Cap / elemSize
	return d
}

// sliceToBytes casts a []T to a []byte without reallocating or copying.
func sliceToBytes[T any](src []T) []byte {
	if len(src) == 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	sh := (*reflect.SliceHeader)(unsafe.Pointer(&src))
	var d []byte
	dh := (*reflect.SliceHeader)(unsafe.Pointer(&d))
	dh.Data = sh.Data
	dh.Len = sh.Len * elemSize
	dh.Cap = sh.Cap * elemSize
	return d
}
