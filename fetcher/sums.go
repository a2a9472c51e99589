package fetcher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"
)

// Sums holds the digests recorded while an object was written, hex
// encoded.
type Sums struct {
	MD5       string `cbor:"md5" yaml:"md5"`
	SHA1      string `cbor:"sha1" yaml:"sha1"`
	SHA256    string `cbor:"sha256" yaml:"sha256"`
	Keccak256 string `cbor:"keccak256" yaml:"keccak256"`
	BLAKE3    string `cbor:"blake3" yaml:"blake3"`
}

// List returns the sums as name:hex strings.
func (s Sums) List() []string {
	return []string{
		"md5:" + s.MD5,
		"sha1:" + s.SHA1,
		"sha256:" + s.SHA256,
		"keccak256:" + s.Keccak256,
		"blake3:" + s.BLAKE3,
	}
}

type hasher struct {
	io.Writer

	md5, sha1, sha256, keccak256, blake3 hash.Hash

	n int64
}

func newHasher() *hasher {
	h := &hasher{
		md5:       md5.New(),
		sha1:      sha1.New(),
		sha256:    sha256.New(),
		keccak256: sha3.NewLegacyKeccak256(),
		blake3:    blake3.New(),
	}
	h.Writer = io.MultiWriter(h.md5, h.sha1, h.sha256, h.keccak256, h.blake3)
	return h
}

func (h *hasher) Write(p []byte) (int, error) {
	n, err := h.Writer.Write(p)
	h.n += int64(n)
	return n, err
}

func (h *hasher) Sums() Sums {
	return Sums{
		MD5:       fmt.Sprintf("%x", h.md5.Sum(nil)),
		SHA1:      fmt.Sprintf("%x", h.sha1.Sum(nil)),
		SHA256:    fmt.Sprintf("%x", h.sha256.Sum(nil)),
		Keccak256: fmt.Sprintf("%x", h.keccak256.Sum(nil)),
		BLAKE3:    fmt.Sprintf("%x", h.blake3.Sum(nil)),
	}
}

func sumReader(r io.Reader) (Sums, int64, error) {
	h := newHasher()
	if _, err := io.Copy(h, r); err != nil {
		return Sums{}, 0, err
	}
	return h.Sums(), h.n, nil
}
