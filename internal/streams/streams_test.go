package streams

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStream(data string) Stream {
	return NewReader(io.NopCloser(strings.NewReader(data)), int64(len(data)))
}

func TestHashStream(t *testing.T) {
	t.Run("computes sha256 of consumed bytes", func(t *testing.T) {
		hs, err := NewHash(newTestStream("hello"), AlgoSHA256)
		require.NoError(t, err)

		data, err := io.ReadAll(hs)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		assert.True(t, hs.Exhausted())

		want := sha256.Sum256([]byte("hello"))
		assert.Equal(t, hex.EncodeToString(want[:]), hs.Digests()[AlgoSHA256])
	})

	t.Run("multiple digests", func(t *testing.T) {
		hs, err := NewHash(newTestStream("hello"), AlgoMD5, AlgoSHA256)
		require.NoError(t, err)

		_, err = io.ReadAll(hs)
		require.NoError(t, err)

		digests := hs.Digests()
		assert.Len(t, digests, 2)
		assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", digests[AlgoMD5])
		assert.Equal(t, []string{AlgoMD5, AlgoSHA256}, hs.Algorithms())
	})

	t.Run("digests are lowercase hex", func(t *testing.T) {
		hs, err := NewHash(newTestStream("x"), AlgoSHA256)
		require.NoError(t, err)
		_, err = io.ReadAll(hs)
		require.NoError(t, err)

		digest := hs.Digests()[AlgoSHA256]
		assert.Equal(t, strings.ToLower(digest), digest)
		assert.Len(t, digest, 64)
	})

	t.Run("rejects unknown algorithm", func(t *testing.T) {
		_, err := NewHash(newTestStream("x"), "crc32")
		require.Error(t, err)
	})

	t.Run("default is sha256", func(t *testing.T) {
		hs, err := NewHash(newTestStream("x"))
		require.NoError(t, err)
		assert.Equal(t, []string{AlgoSHA256}, hs.Algorithms())
	})
}

func TestCutoffStream(t *testing.T) {
	t.Run("caps consumption", func(t *testing.T) {
		c := NewCutoff(newTestStream("hello world"), 5)

		data, err := io.ReadAll(c)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))
		assert.Equal(t, int64(5), c.Size())
	})

	t.Run("fails when upstream ends early", func(t *testing.T) {
		c := NewCutoff(newTestStream("hi"), 5)

		_, err := io.ReadAll(c)
		assert.ErrorIs(t, err, ErrTruncated)
	})
}

func TestFileStream(t *testing.T) {
	t.Run("spool yields known size and restart", func(t *testing.T) {
		dir := t.TempDir()
		src := NewReader(io.NopCloser(strings.NewReader("payload")), SizeUnknown)

		fs, err := Spool(src, dir)
		require.NoError(t, err)
		assert.Equal(t, int64(7), fs.Size())

		first, err := io.ReadAll(fs)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(first))

		require.NoError(t, fs.Restart())
		second, err := io.ReadAll(fs)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(second))
	})

	t.Run("spool file removed on close", func(t *testing.T) {
		dir := t.TempDir()
		fs, err := Spool(newTestStream("x"), dir)
		require.NoError(t, err)
		name := fs.Name()

		require.NoError(t, fs.Close())
		_, statErr := os.Stat(filepath.Clean(name))
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestResponseStream(t *testing.T) {
	resp := &http.Response{
		ContentLength: 4,
		Body:          io.NopCloser(strings.NewReader("body")),
	}
	s := NewResponse(resp)
	assert.Equal(t, int64(4), s.Size())

	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "body", string(data))
}

func TestZipStream(t *testing.T) {
	entry := func(name, content string) ZipEntry {
		return ZipEntry{
			Name: name,
			Open: func(ctx context.Context) (Stream, error) {
				return newTestStream(content), nil
			},
		}
	}

	t.Run("archives entries in lexical order", func(t *testing.T) {
		z := NewZip(context.Background(), []ZipEntry{
			entry("sub/b.txt", "y"),
			entry("a.txt", "x"),
		})
		assert.Equal(t, SizeUnknown, z.Size())

		raw, err := io.ReadAll(z)
		require.NoError(t, err)
		require.NoError(t, z.Close())

		zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
		require.NoError(t, err)
		require.Len(t, zr.File, 2)
		assert.Equal(t, "a.txt", zr.File[0].Name)
		assert.Equal(t, "sub/b.txt", zr.File[1].Name)

		for i, want := range []string{"x", "y"} {
			rc, err := zr.File[i].Open()
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			rc.Close()
			assert.Equal(t, want, string(got))
		}
	})

	t.Run("cancelled context aborts the archive", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		z := NewZip(ctx, []ZipEntry{entry("a.txt", "x")})
		_, err := io.ReadAll(z)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("folder entries carry trailing slash", func(t *testing.T) {
		z := NewZip(context.Background(), []ZipEntry{
			{Name: "empty"},
			entry("file.txt", "data"),
		})

		raw, err := io.ReadAll(z)
		require.NoError(t, err)

		zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
		require.NoError(t, err)
		require.Len(t, zr.File, 2)
		assert.Equal(t, "empty/", zr.File[0].Name)
	})
}
