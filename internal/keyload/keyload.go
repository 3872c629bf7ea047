// Package keyload reads raw sorted-key files in the formats used by the
// PLEX benchmark harness (original_source/bench_utils.h's
// load_binary_data/load_text_data/load_sosd_data), for cmd/plex-build's
// --keys-file-type flag. This is intentionally outside the core: the core
// only ever sees a []K sequence, never a file format.
package keyload

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/klauspost/compress/gzip"

	"github.com/grailbio/plex"
	"github.com/grailbio/plex/errkind"
)

// FileType selects the on-disk representation of a raw key file.
type FileType int

const (
	// Binary is length-implicit: n little-endian K values back to back.
	Binary FileType = iota
	// Text is one decimal key per line.
	Text
	// SOSD is the SOSD benchmark dataset format: an 8-byte little-endian
	// key count followed by n little-endian K values.
	SOSD
)

// ParseFileType maps a --keys-file-type flag value to a FileType. The
// "gzip" suffix (e.g. "sosd-gzip") selects gzip decompression of the
// underlying format.
func ParseFileType(s string) (FileType, bool, error) {
	gzipped := false
	base := s
	if len(s) > 5 && s[len(s)-5:] == "-gzip" {
		gzipped = true
		base = s[:len(s)-5]
	}
	switch base {
	case "binary":
		return Binary, gzipped, nil
	case "text":
		return Text, gzipped, nil
	case "sosd":
		return SOSD, gzipped, nil
	default:
		return 0, false, errkind.E(errkind.Format, "", "", errors.E(errors.Errorf("keyload: unknown key file type %q", s)))
	}
}

// Load reads n keys of type ft from path, decompressing with gzip first if
// gzipped is set.
func Load[K plex.Key](path string, n int, ft FileType, gzipped bool) ([]K, error) {
	f, err := os.Open(path)
	if err != nil {
		kind := errkind.IO
		if os.IsNotExist(err) {
			kind = errkind.NotFound
		}
		return nil, errkind.E(kind, "open", path, errors.E(err))
	}
	defer f.Close() // nolint: errcheck

	var r io.Reader = f
	if gzipped {
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, errkind.E(errkind.Format, "gzip", path, errors.E(err))
		}
		defer gr.Close() // nolint: errcheck
		r = gr
	}

	switch ft {
	case Binary:
		return loadBinary[K](r, n, path)
	case SOSD:
		var discard [8]byte
		if _, err := io.ReadFull(r, discard[:]); err != nil {
			return nil, errkind.E(errkind.Format, "sosd header", path, errors.E(err))
		}
		return loadBinary[K](r, n, path)
	case Text:
		return loadText[K](r, n, path)
	default:
		return nil, errkind.E(errkind.Contract, "", "", errors.E(errors.Errorf("keyload: unknown FileType %d", ft)))
	}
}

func loadBinary[K plex.Key](r io.Reader, n int, path string) ([]K, error) {
	keys := make([]K, n)
	if err := binary.Read(r, binary.LittleEndian, keys); err != nil {
		return nil, errkind.E(errkind.Format, "read", path, errors.E(err))
	}
	return keys, nil
}

func loadText[K plex.Key](r io.Reader, n int, path string) ([]K, error) {
	keys := make([]K, 0, n)
	scanner := bufio.NewScanner(r)
	for i := 0; i < n && scanner.Scan(); i++ {
		v, err := strconv.ParseUint(scanner.Text(), 10, 64)
		if err != nil {
			return nil, errkind.E(errkind.Format, "parse", path, errors.E(err))
		}
		keys = append(keys, K(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.E(errkind.IO, "scan", path, errors.E(err))
	}
	if len(keys) < n {
		return nil, errkind.E(errkind.Format, "", path,
			errors.E(errors.Errorf("keyload: file has %d keys, want %d", len(keys), n)))
	}
	return keys, nil
}
