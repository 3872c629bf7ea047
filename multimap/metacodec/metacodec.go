// Package metacodec reads and writes a MultiMap's "meta" file: a
// self-describing binary stream of fixed-order, fixed-width scalars plus one
// length-prefixed vector (the CHT table). Field order and widths are a
// cross-instance compatibility contract and must never change:
//
//	n                 uint64
//	minKey, maxKey    K
//	numKeys           uint64
//	splineMaxError    uint64
//	singleLayer       bool (1 byte)
//	chtMinKey,chtMaxKey K
//	chtNumKeys        uint64
//	numBins           uint64
//	logNumBins        uint64
//	chtMaxError       uint64
//	shift             uint64
//	len(table)        uint64
//	table             []uint32 (len(table) elements)
//	m                 uint64 (number of breakpoints)
//
// This uses encoding/binary directly rather than a self-describing framing
// library (recordio, protobuf): both would add their own header or tag
// bytes, which would break the fixed-layout, no-header contract this format
// requires.
package metacodec

import (
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/cht"
	"github.com/grailbio/plex/errkind"
)

// Meta is the plain-data contents of a MultiMap's meta file.
type Meta[K plex.Key] struct {
	NumPayloads    uint64
	MinKey         K
	MaxKey         K
	NumKeys        uint64
	SplineMaxError uint64
	Cht            cht.Fields
	NumBreakpoints uint64
}

// Write atomically replaces the meta file at path with the encoding of m:
// it writes to a temporary sibling file and renames it into place, so a
// reader never observes a partially-written meta file.
func Write[K plex.Key](ctx context.Context, path string, m Meta[K]) (err error) {
	tmpPath := path + ".tmp"
	out, err := file.Create(ctx, tmpPath)
	if err != nil {
		return errkind.E(errkind.IO, "create", tmpPath, errors.E(err))
	}
	w := out.Writer(ctx)
	if encErr := encode(w, m); encErr != nil {
		file.CloseAndReport(ctx, out, &err) // nolint: errcheck
		os.Remove(tmpPath)                  // nolint: errcheck
		return errkind.E(errkind.IO, "write", tmpPath, errors.E(encErr))
	}
	if cerr := out.Close(ctx); cerr != nil {
		os.Remove(tmpPath) // nolint: errcheck
		return errkind.E(errkind.IO, "close", tmpPath, errors.E(cerr))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errkind.E(errkind.IO, "rename", path, errors.E(err))
	}
	return nil
}

// Read decodes the meta file at path.
func Read[K plex.Key](ctx context.Context, path string) (m Meta[K], err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		kind := errkind.IO
		if os.IsNotExist(err) {
			kind = errkind.NotFound
		}
		return m, errkind.E(kind, "open", path, errors.E(err))
	}
	defer file.CloseAndReport(ctx, in, &err)
	m, derr := decode[K](in.Reader(ctx))
	if derr != nil {
		return m, errkind.E(errkind.Format, "decode", path, errors.E(derr))
	}
	return m, nil
}

func encode[K plex.Key](w io.Writer, m Meta[K]) error {
	fields := []interface{}{
		m.NumPayloads,
		m.MinKey,
		m.MaxKey,
		m.NumKeys,
		m.SplineMaxError,
		m.Cht.SingleLayer,
		m.MinKey,
		m.MaxKey,
		m.Cht.NumKeys,
		m.Cht.NumBins,
		m.Cht.LogNumBins,
		m.Cht.MaxError,
		m.Cht.Shift,
		uint64(len(m.Cht.Table)),
	}
	for _, f := range fields {
		if err := binary.Write(w, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	if len(m.Cht.Table) > 0 {
		if err := binary.Write(w, binary.LittleEndian, m.Cht.Table); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, m.NumBreakpoints)
}

func decode[K plex.Key](r io.Reader) (Meta[K], error) {
	var m Meta[K]
	var singleLayer bool
	var chtMinKey, chtMaxKey K
	var tableLen uint64

	scalars := []interface{}{
		&m.NumPayloads,
		&m.MinKey,
		&m.MaxKey,
		&m.NumKeys,
		&m.SplineMaxError,
		&singleLayer,
		&chtMinKey,
		&chtMaxKey,
		&m.Cht.NumKeys,
		&m.Cht.NumBins,
		&m.Cht.LogNumBins,
		&m.Cht.MaxError,
		&m.Cht.Shift,
		&tableLen,
	}
	for _, f := range scalars {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return m, err
		}
	}
	m.Cht.SingleLayer = singleLayer
	if tableLen > 0 {
		m.Cht.Table = make([]uint32, tableLen)
		if err := binary.Read(r, binary.LittleEndian, m.Cht.Table); err != nil {
			return m, err
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &m.NumBreakpoints); err != nil {
		return m, err
	}
	return m, nil
}
