package multimap

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/minio/highwayhash"

	"github.com/grailbio/plex/errkind"
)

const checksumFileName = "checksum"

// checksumKey is a fixed key for the highwayhash digest: this sidecar
// guards against truncated or corrupted on-disk state, not against a
// malicious writer, so there is no secret to protect.
var checksumKey = [32]byte{
	0x70, 0x6c, 0x65, 0x78, 0x2d, 0x63, 0x68, 0x65,
	0x63, 0x6b, 0x73, 0x75, 0x6d, 0x2d, 0x73, 0x69,
	0x64, 0x65, 0x63, 0x61, 0x72, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// writeChecksum hashes dataPath, splinePath, and metaPath (in that order)
// and writes the digest to rootPath/checksum.
func writeChecksum(ctx context.Context, rootPath, dataPath, splinePath, metaPath string) (err error) {
	h, err := highwayhash.New256(checksumKey[:])
	if err != nil {
		return errkind.E(errkind.IO, "highwayhash.New256", rootPath, errors.E(err))
	}
	for _, p := range []string{dataPath, splinePath, metaPath} {
		if err := hashFile(h, p); err != nil {
			return err
		}
	}
	sum := h.Sum(nil)

	checksumPath := filepath.Join(rootPath, checksumFileName)
	out, err := file.Create(ctx, checksumPath)
	if err != nil {
		return errkind.E(errkind.IO, "create", checksumPath, errors.E(err))
	}
	if _, err := out.Writer(ctx).Write(sum); err != nil {
		file.CloseAndReport(ctx, out, &err) // nolint: errcheck
		return errkind.E(errkind.IO, "write", checksumPath, errors.E(err))
	}
	return out.Close(ctx)
}

// verifyChecksum recomputes the digest over dataPath, splinePath, metaPath
// and compares it against rootPath/checksum, returning a FormatError on
// mismatch.
func verifyChecksum(ctx context.Context, rootPath, dataPath, splinePath, metaPath string) (err error) {
	checksumPath := filepath.Join(rootPath, checksumFileName)
	in, err := file.Open(ctx, checksumPath)
	if err != nil {
		kind := errkind.IO
		if os.IsNotExist(err) {
			kind = errkind.NotFound
		}
		return errkind.E(kind, "open", checksumPath, errors.E(err))
	}
	defer file.CloseAndReport(ctx, in, &err)
	want := make([]byte, 32)
	if _, err := io.ReadFull(in.Reader(ctx), want); err != nil {
		return errkind.E(errkind.Format, "read", checksumPath, errors.E(err))
	}

	h, err := highwayhash.New256(checksumKey[:])
	if err != nil {
		return errkind.E(errkind.IO, "highwayhash.New256", rootPath, errors.E(err))
	}
	for _, p := range []string{dataPath, splinePath, metaPath} {
		if err := hashFile(h, p); err != nil {
			return err
		}
	}
	got := h.Sum(nil)

	for i := range got {
		if got[i] != want[i] {
			return errkind.E(errkind.Format, "", rootPath,
				errors.E(errors.Errorf("checksum mismatch: index may be corrupted or truncated")))
		}
	}
	return nil
}

func hashFile(h io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errkind.E(errkind.IO, "open", path, errors.E(err))
	}
	defer f.Close() // nolint: errcheck
	if _, err := io.Copy(h, f); err != nil {
		return errkind.E(errkind.IO, "read", path, errors.E(err))
	}
	return nil
}
