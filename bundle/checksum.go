// SPDX-License-Identifier: LGPL-3.0-or-later

package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"sbatchman/sbmerr"
)

// checksumSuffix names the sidecar file written alongside a bundle archive,
// holding the hex sha256 digest of the archive itself.
const checksumSuffix = ".sha256"

// writeChecksum hashes path and writes the digest to path+checksumSuffix.
func writeChecksum(path string) error {
	sum, err := hashFile(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path+checksumSuffix, []byte(sum+"\n"), 0o644)
}

// verifyChecksum compares path's digest against its sidecar file, if one
// exists. A missing sidecar is tolerated (bundles predating this feature, or
// ones moved without their sidecar); a present but mismatched one is a
// BundleFormat error, since the archive was altered or corrupted in transit.
func verifyChecksum(path string) error {
	want, err := os.ReadFile(path + checksumSuffix)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sbmerr.Wrap(sbmerr.ConfigIO, err, "read checksum sidecar for %s", path)
	}
	got, err := hashFile(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(want)) != got {
		return sbmerr.New(sbmerr.BundleFormat, "bundle %s fails checksum verification", path)
	}
	return nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", sbmerr.Wrap(sbmerr.ConfigIO, err, "open %s for checksum", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", sbmerr.Wrap(sbmerr.ConfigIO, err, "hash %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
