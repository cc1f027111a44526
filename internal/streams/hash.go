package streams

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
)

// Supported digest algorithm names, always lowercase.
const (
	AlgoMD5    = "md5"
	AlgoSHA1   = "sha1"
	AlgoSHA256 = "sha256"
	AlgoSHA512 = "sha512"
)

func newDigest(algo string) (hash.Hash, error) {
	switch algo {
	case AlgoMD5:
		return md5.New(), nil
	case AlgoSHA1:
		return sha1.New(), nil
	case AlgoSHA256:
		return sha256.New(), nil
	case AlgoSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", algo)
	}
}

// HashStream tees every consumed byte through one or more digest functions.
// The digests become available once the underlying stream is exhausted.
type HashStream struct {
	src     Stream
	digests map[string]hash.Hash
	done    bool
}

// NewHash wraps a stream with running digests for the given algorithms.
// Unknown algorithm names are rejected.
func NewHash(src Stream, algos ...string) (*HashStream, error) {
	if len(algos) == 0 {
		algos = []string{AlgoSHA256}
	}
	digests := make(map[string]hash.Hash, len(algos))
	for _, algo := range algos {
		h, err := newDigest(algo)
		if err != nil {
			return nil, err
		}
		digests[algo] = h
	}
	return &HashStream{src: src, digests: digests}, nil
}

func (h *HashStream) Read(p []byte) (int, error) {
	n, err := h.src.Read(p)
	if n > 0 {
		for _, d := range h.digests {
			// hash.Hash writes never fail.
			_, _ = d.Write(p[:n])
		}
	}
	if err == io.EOF {
		h.done = true
	}
	return n, err
}

func (h *HashStream) Close() error { return h.src.Close() }
func (h *HashStream) Size() int64  { return h.src.Size() }

// Exhausted reports whether the underlying stream reached EOF, which is when
// the digests are final.
func (h *HashStream) Exhausted() bool { return h.done }

// Digests returns the final lowercase hex digests keyed by algorithm name.
// Calling it before the stream is exhausted returns digests of the bytes
// consumed so far.
func (h *HashStream) Digests() map[string]string {
	out := make(map[string]string, len(h.digests))
	for algo, d := range h.digests {
		out[algo] = hex.EncodeToString(d.Sum(nil))
	}
	return out
}

// Algorithms returns the digest algorithm names in sorted order.
func (h *HashStream) Algorithms() []string {
	algos := make([]string, 0, len(h.digests))
	for algo := range h.digests {
		algos = append(algos, algo)
	}
	sort.Strings(algos)
	return algos
}
