package streams

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
)

// ZipEntry names one archive member and defers opening its bytes until the
// archive writer reaches it, so at most one child stream is open at a time.
type ZipEntry struct {
	// Name is the posix-normalised path of the entry relative to the
	// archived folder. Folder entries end with a slash and carry no Open.
	Name string

	// Open produces the entry's byte stream. Nil for folder entries.
	Open func(ctx context.Context) (Stream, error)
}

type zipStream struct {
	pr *io.PipeReader
}

// NewZip produces a ZIP archive of the given entries as a single-pass,
// non-seekable stream of unknown size. Entries are written in lexical order;
// bytes are pulled from each child stream only as fast as the consumer reads
// the archive.
func NewZip(ctx context.Context, entries []ZipEntry) Stream {
	sorted := make([]ZipEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeZip(ctx, pw, sorted))
	}()
	return &zipStream{pr: pr}
}

func writeZip(ctx context.Context, w io.Writer, entries []ZipEntry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := strings.TrimPrefix(entry.Name, "/")
		if entry.Open == nil {
			if !strings.HasSuffix(name, "/") {
				name += "/"
			}
			if _, err := zw.Create(name); err != nil {
				return fmt.Errorf("zip folder entry %q: %w", name, err)
			}
			continue
		}

		ew, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("zip entry %q: %w", name, err)
		}
		src, err := entry.Open(ctx)
		if err != nil {
			return fmt.Errorf("open zip entry %q: %w", name, err)
		}
		_, err = io.Copy(ew, src)
		src.Close()
		if err != nil {
			return fmt.Errorf("write zip entry %q: %w", name, err)
		}
	}
	return zw.Close()
}

func (z *zipStream) Read(p []byte) (int, error) { return z.pr.Read(p) }
func (z *zipStream) Close() error               { return z.pr.Close() }
func (z *zipStream) Size() int64                { return SizeUnknown }
