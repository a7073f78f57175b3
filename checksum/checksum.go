// Package checksum implements the block checksum algorithms a scrub
// verifies data against. The pool's default is a fast non-cryptographic
// hash (xxhash, standing in for ZFS's fletcher4); a stronger cryptographic
// option (blake2b) is selectable per scan for verify-mode scrubs, mirroring
// ZFS's sha256/skein checksum properties.
package checksum

import (
	"bytes"

	"github.com/OneOfOne/xxhash"
	"golang.org/x/crypto/blake2b"

	"github.com/coldtrove/poolscan/internal/cos"
)

// Algorithm identifies a checksum function, persisted alongside each block
// pointer the way ZFS stores a checksum type in the blkptr's zio_cksum
// field.
type Algorithm uint8

const (
	// Off means the block carries no checksum and cannot be scrubbed for
	// corruption, only examined for existence (matches ZFS_CHECKSUM_OFF).
	Off Algorithm = iota
	// XXHash is the default: fast, non-cryptographic, adequate for
	// corruption detection during routine scrubs.
	XXHash
	// Blake2b256 is the strong option for verify-mode scrubs.
	Blake2b256
)

func (a Algorithm) String() string {
	switch a {
	case Off:
		return "off"
	case XXHash:
		return "xxhash"
	case Blake2b256:
		return "blake2b256"
	default:
		return "unknown"
	}
}

// Digest is a fixed-size checksum value. Only the algorithm-relevant
// leading bytes are meaningful; the rest are zero-padded so every
// algorithm's output fits one comparable type (zio_cksum's four-uint64
// layout plays the same role in the original).
type Digest [32]byte

// Compute hashes data under algorithm a.
func Compute(a Algorithm, data []byte) (Digest, error) {
	var d Digest
	switch a {
	case Off:
		return d, nil
	case XXHash:
		h := xxhash.Checksum64(data)
		putUint64(&d, h)
		return d, nil
	case Blake2b256:
		sum := blake2b.Sum256(data)
		copy(d[:], sum[:])
		return d, nil
	default:
		return d, cos.IOErrorf("checksum: unknown algorithm %d", a)
	}
}

// Verify reports whether data matches want under algorithm a.
func Verify(a Algorithm, data []byte, want Digest) (bool, error) {
	if a == Off {
		return true, nil
	}
	got, err := Compute(a, data)
	if err != nil {
		return false, err
	}
	return bytes.Equal(got[:], want[:]), nil
}

func putUint64(d *Digest, v uint64) {
	for i := 0; i < 8; i++ {
		d[i] = byte(v >> (8 * uint(i)))
	}
}
