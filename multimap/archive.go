package multimap

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"

	"github.com/grailbio/plex/errkind"
)

// archiveMembers are the files exported/imported, in the order they are
// written to the archive. checksum is optional: older indexes built before
// the checksum sidecar existed can still be archived.
var archiveMembers = []string{dataFileName, splineFileName, metaFileName}

// ExportArchive tars up data, spline_points, meta (and checksum, if
// present) from rootPath and writes them, Snappy-block-compressed, to w.
// The archive is a distribution format only: the query path never reads
// compressed bytes, it always operates on the raw files a prior
// Build/ImportArchive produced.
func ExportArchive(ctx context.Context, rootPath string, w io.Writer) error {
	sw := snappy.NewBufferedWriter(w)
	tw := tar.NewWriter(sw)

	members := archiveMembers
	if _, err := os.Stat(filepath.Join(rootPath, checksumFileName)); err == nil {
		members = append(append([]string{}, archiveMembers...), checksumFileName)
	}

	for _, name := range members {
		path := filepath.Join(rootPath, name)
		if err := addArchiveMember(tw, path, name); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return errkind.E(errkind.IO, "tar close", rootPath, errors.E(err))
	}
	if err := sw.Close(); err != nil {
		return errkind.E(errkind.IO, "snappy close", rootPath, errors.E(err))
	}
	return nil
}

func addArchiveMember(tw *tar.Writer, path, name string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return errkind.E(errkind.IO, "stat", path, errors.E(err))
	}
	if err := tw.WriteHeader(&tar.Header{Name: name, Size: fi.Size(), Mode: 0644}); err != nil {
		return errkind.E(errkind.IO, "tar header", path, errors.E(err))
	}
	f, err := os.Open(path)
	if err != nil {
		return errkind.E(errkind.IO, "open", path, errors.E(err))
	}
	defer f.Close() // nolint: errcheck
	if _, err := io.Copy(tw, f); err != nil {
		return errkind.E(errkind.IO, "copy", path, errors.E(err))
	}
	return nil
}

// ImportArchive reads a stream produced by ExportArchive and writes its
// members into rootPath (created if necessary), ready to be opened with
// Open.
func ImportArchive(ctx context.Context, r io.Reader, rootPath string) error {
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return errkind.E(errkind.IO, "mkdir", rootPath, errors.E(err))
	}
	sr := snappy.NewReader(r)
	tr := tar.NewReader(sr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errkind.E(errkind.Format, "tar read", rootPath, errors.E(err))
		}
		path := filepath.Join(rootPath, hdr.Name)
		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return errkind.E(errkind.IO, "create", path, errors.E(err))
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close() // nolint: errcheck
			return errkind.E(errkind.IO, "write", path, errors.E(err))
		}
		if err := out.Close(); err != nil {
			return errkind.E(errkind.IO, "close", path, errors.E(err))
		}
	}
}
