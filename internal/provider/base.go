package provider

import (
	"context"
	"fmt"
	"strings"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/streams"
)

// maxConflictAttempts caps the linear " (n)" suffix search when resolving
// name conflicts with the keep policy.
const maxConflictAttempts = 1000

// Exists resolves path to its metadata, translating NotFound into a false
// flag instead of an error.
func Exists(ctx context.Context, p Provider, path fspath.Path) (metadata.Item, bool, error) {
	item, err := p.Metadata(ctx, path, "")
	if err != nil {
		if gerrors.IsKind(err, gerrors.KindNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return item, true, nil
}

// suffixName appends " (n)" before the file extension, or at the end for
// folders.
func suffixName(name string, n int, folder bool) string {
	if folder {
		return fmt.Sprintf("%s (%d)", name, n)
	}
	ext := ""
	if i := strings.LastIndex(name, "."); i > 0 {
		name, ext = name[:i], name[i:]
	}
	return fmt.Sprintf("%s (%d)%s", name, n, ext)
}

// ResolveName applies the conflict policy to a candidate destination path.
// It returns the path to write to and whether an existing entity at that path
// will be replaced. With keep, the suffix counter increments from 1 until a
// free name is found; the search is capped and fails with NamingConflict past
// the cap.
func ResolveName(ctx context.Context, p Provider, path fspath.Path, conflict Conflict) (fspath.Path, bool, error) {
	_, exists, err := Exists(ctx, p, path)
	if err != nil {
		return fspath.Path{}, false, err
	}
	if !exists {
		return path, false, nil
	}

	switch conflict {
	case ConflictReplace:
		return path, true, nil
	case ConflictKeep:
		base := path.Name()
		for n := 1; n <= maxConflictAttempts; n++ {
			candidate := path.Rename(suffixName(base, n, path.IsFolder()))
			_, taken, err := Exists(ctx, p, candidate)
			if err != nil {
				return fspath.Path{}, false, err
			}
			if !taken {
				return candidate, false, nil
			}
		}
		return fspath.Path{}, false, gerrors.Newf(gerrors.KindNamingConflict,
			"no free name for %q after %d attempts", base, maxConflictAttempts).
			WithData("name", base)
	default:
		return fspath.Path{}, false, gerrors.Newf(gerrors.KindNamingConflict,
			"%q already exists", path.Name()).
			WithData("name", path.Name())
	}
}

// RevalidatePath extends a validated folder path by one child name and
// confirms the child against the backend, returning the child path tagged
// with whether it currently exists.
func RevalidatePath(ctx context.Context, p Provider, base fspath.Path, name string, folder bool) (fspath.Path, bool, error) {
	child, err := base.Child(name, folder)
	if err != nil {
		return fspath.Path{}, false, err
	}
	_, exists, err := Exists(ctx, p, child)
	if err != nil {
		return fspath.Path{}, false, err
	}
	return child, exists, nil
}

// PathFromMetadata rebuilds a child path from a listing entry, carrying the
// backend identifier when the entry exposes one under the "id" extra field.
func PathFromMetadata(parent fspath.Path, item metadata.Item) (fspath.Path, error) {
	id := ""
	if extra := item.ExtraFields(); extra != nil {
		if v, ok := extra["id"].(string); ok {
			id = v
		}
	}
	return parent.ChildWithID(item.ItemName(), id, !item.IsFile())
}

// BuildZip produces a single-pass zip archive of a folder by recursing with
// Metadata and Download. Entry names are posix paths relative to the zipped
// folder; each child stream is opened lazily when the archive writer reaches
// it.
func BuildZip(ctx context.Context, p Provider, path fspath.Path) (streams.Stream, error) {
	entries, err := collectZipEntries(ctx, p, path, "")
	if err != nil {
		return nil, err
	}
	return streams.NewZip(ctx, entries), nil
}

func collectZipEntries(ctx context.Context, p Provider, folder fspath.Path, prefix string) ([]streams.ZipEntry, error) {
	children, err := p.List(ctx, folder)
	if err != nil {
		return nil, err
	}

	var entries []streams.ZipEntry
	if len(children) == 0 && prefix != "" {
		entries = append(entries, streams.ZipEntry{Name: prefix})
		return entries, nil
	}

	for _, child := range children {
		childPath, err := PathFromMetadata(folder, child)
		if err != nil {
			return nil, err
		}
		name := prefix + child.ItemName()
		if child.IsFile() {
			cp := childPath
			entries = append(entries, streams.ZipEntry{
				Name: name,
				Open: func(ctx context.Context) (streams.Stream, error) {
					dl, err := p.Download(ctx, cp, DownloadOptions{Direct: true})
					if err != nil {
						return nil, err
					}
					return dl.Stream, nil
				},
			})
			continue
		}
		sub, err := collectZipEntries(ctx, p, childPath, name+"/")
		if err != nil {
			return nil, err
		}
		entries = append(entries, sub...)
	}
	return entries, nil
}
