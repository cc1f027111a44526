// Package localfs implements the provider contract over a rooted afero
// filesystem. It backs single-host installs and is the reference provider
// the gateway's own tests run against, using an in-memory filesystem.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/streams"
	"github.com/spf13/afero"
)

// ProviderName is the kind name the registry knows this adapter by.
const ProviderName = "localfs"

// latestVersion is the only revision identifier the filesystem keeps.
const latestVersion = "latest"

// Provider serves a single storage root on an afero filesystem.
type Provider struct {
	fs      afero.Fs
	rootKey string
}

// New creates a provider over fs. rootKey identifies the storage root: two
// providers share a root iff their keys are equal.
func New(fs afero.Fs, rootKey string) *Provider {
	return &Provider{fs: fs, rootKey: rootKey}
}

// NewFactory returns a registry factory mounting subtrees of base. The
// settings bundle must carry the subtree under "root".
func NewFactory(base afero.Fs) provider.Factory {
	return func(ctx context.Context, credentials, settings map[string]any) (provider.Provider, error) {
		root, _ := settings["root"].(string)
		if root == "" {
			return nil, gerrors.New(gerrors.KindInvalidArgument, "localfs settings missing root")
		}
		return New(afero.NewBasePathFs(base, root), fmt.Sprintf("%p:%s", base, root)), nil
	}
}

func (p *Provider) Name() string { return ProviderName }

// fsPath converts a gateway path to the filesystem form.
func fsPath(fp fspath.Path) string {
	if fp.IsRoot() {
		return "/"
	}
	return strings.TrimSuffix(fp.String(), "/")
}

func (p *Provider) ValidateV1Path(ctx context.Context, raw string) (fspath.Path, error) {
	fp, err := fspath.New(raw)
	if err != nil {
		return fspath.Path{}, err
	}
	if fp.IsRoot() {
		return fp, nil
	}
	info, err := p.fs.Stat(fsPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return fspath.Path{}, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return fspath.Path{}, gerrors.Wrap(gerrors.KindProviderError, "stat failed", err)
	}
	if info.IsDir() != fp.IsFolder() {
		return fspath.Path{}, gerrors.Newf(gerrors.KindNotFound, "%q exists but is not a %s", fp.String(), kindWord(fp))
	}
	return fp, nil
}

func kindWord(fp fspath.Path) string {
	if fp.IsFolder() {
		return "folder"
	}
	return "file"
}

func (p *Provider) ValidatePath(ctx context.Context, raw string) (fspath.Path, error) {
	return fspath.New(raw)
}

func (p *Provider) Metadata(ctx context.Context, fp fspath.Path, version string) (metadata.Item, error) {
	if !fp.IsFolder() && version != "" && version != latestVersion {
		return nil, gerrors.Newf(gerrors.KindNotFound, "unknown version %q", version)
	}
	info, err := p.fs.Stat(fsPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return nil, gerrors.Wrap(gerrors.KindProviderError, "stat failed", err)
	}
	if info.IsDir() != fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindNotFound, "%q exists but is not a %s", fp.String(), kindWord(fp))
	}
	if fp.IsFolder() {
		return p.folderMetadata(fp), nil
	}
	return p.fileMetadata(fp, info)
}

func (p *Provider) folderMetadata(fp fspath.Path) *metadata.Folder {
	return &metadata.Folder{
		Name:     fp.Name(),
		Path:     fp.String(),
		Provider: ProviderName,
	}
}

func (p *Provider) fileMetadata(fp fspath.Path, info os.FileInfo) (*metadata.File, error) {
	hashes, err := p.hashFile(fsPath(fp))
	if err != nil {
		return nil, err
	}
	modified := info.ModTime().UTC().Format(time.RFC3339)
	etagSum := sha256.Sum256([]byte(fp.String() + "::" + modified))
	return &metadata.File{
		Name:        fp.Name(),
		Path:        fp.String(),
		Size:        info.Size(),
		ContentType: contentType(fp.Name()),
		Modified:    modified,
		ETag:        hex.EncodeToString(etagSum[:]),
		Hashes:      hashes,
		Provider:    ProviderName,
	}, nil
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (p *Provider) hashFile(name string) (map[string]string, error) {
	f, err := p.fs.Open(name)
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindProviderError, "open for hashing failed", err)
	}
	defer f.Close()

	hs, err := streams.NewHash(streams.NewReader(f, streams.SizeUnknown), streams.AlgoMD5, streams.AlgoSHA256)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(io.Discard, hs); err != nil {
		return nil, gerrors.Wrap(gerrors.KindProviderError, "hashing failed", err)
	}
	return hs.Digests(), nil
}

func (p *Provider) List(ctx context.Context, fp fspath.Path) ([]metadata.Item, error) {
	if !fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "%q is not a folder", fp.String())
	}
	infos, err := afero.ReadDir(p.fs, fsPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return nil, gerrors.Wrap(gerrors.KindProviderError, "list failed", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	items := make([]metadata.Item, 0, len(infos))
	for _, info := range infos {
		child, err := fp.Child(info.Name(), info.IsDir())
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			items = append(items, p.folderMetadata(child))
			continue
		}
		item, err := p.fileMetadata(child, info)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (p *Provider) Download(ctx context.Context, fp fspath.Path, opts provider.DownloadOptions) (*provider.Download, error) {
	if fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "cannot download folder %q", fp.String())
	}
	if opts.Version != "" && opts.Version != latestVersion {
		return nil, gerrors.Newf(gerrors.KindNotFound, "unknown version %q", opts.Version)
	}
	f, err := p.fs.Open(fsPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return nil, gerrors.Wrap(gerrors.KindProviderError, "open failed", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, gerrors.Wrap(gerrors.KindProviderError, "stat failed", err)
	}

	size := info.Size()
	if opts.Range == nil {
		return &provider.Download{Stream: streams.NewReader(f, size)}, nil
	}

	start, end := opts.Range.Start, opts.Range.End
	if end < 0 || end >= size {
		end = size - 1
	}
	if start < 0 || start > end {
		f.Close()
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "invalid byte range %d-%d", opts.Range.Start, opts.Range.End)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, gerrors.Wrap(gerrors.KindProviderError, "seek failed", err)
	}
	return &provider.Download{Stream: streams.NewCutoff(streams.NewReader(f, end-start+1), end-start+1)}, nil
}

func (p *Provider) Upload(ctx context.Context, src streams.Stream, fp fspath.Path, conflict provider.Conflict) (*metadata.File, bool, error) {
	if !fp.IsFile() {
		return nil, false, gerrors.Newf(gerrors.KindInvalidPath, "upload target %q is not a file path", fp.String())
	}
	target, replacing, err := provider.ResolveName(ctx, p, fp, conflict)
	if err != nil {
		return nil, false, err
	}

	hs, err := streams.NewHash(src, streams.AlgoMD5, streams.AlgoSHA256)
	if err != nil {
		return nil, false, err
	}

	name := fsPath(target)
	if err := p.fs.MkdirAll(path.Dir(name), 0o755); err != nil {
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "create parent folders failed", err)
	}
	f, err := p.fs.Create(name)
	if err != nil {
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "create failed", err)
	}
	written, err := io.Copy(f, hs)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		p.fs.Remove(name)
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "write failed", err)
	}
	if declared := src.Size(); declared != streams.SizeUnknown && declared != written {
		p.fs.Remove(name)
		return nil, false, gerrors.Newf(gerrors.KindUploadIncomplete,
			"expected %d bytes, received %d", declared, written)
	}

	info, err := p.fs.Stat(name)
	if err != nil {
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "stat after upload failed", err)
	}
	modified := info.ModTime().UTC().Format(time.RFC3339)
	etagSum := sha256.Sum256([]byte(target.String() + "::" + modified))
	return &metadata.File{
		Name:        target.Name(),
		Path:        target.String(),
		Size:        written,
		ContentType: contentType(target.Name()),
		Modified:    modified,
		ETag:        hex.EncodeToString(etagSum[:]),
		Hashes:      hs.Digests(),
		Provider:    ProviderName,
	}, !replacing, nil
}

func (p *Provider) Delete(ctx context.Context, fp fspath.Path, confirm bool) error {
	if fp.IsRoot() {
		if !confirm {
			return gerrors.New(gerrors.KindInvalidArgument, "root deletion requires confirmation")
		}
		infos, err := afero.ReadDir(p.fs, "/")
		if err != nil {
			return gerrors.Wrap(gerrors.KindProviderError, "list root failed", err)
		}
		for _, info := range infos {
			if err := p.fs.RemoveAll("/" + info.Name()); err != nil {
				return gerrors.Wrap(gerrors.KindProviderError, "clear root failed", err)
			}
		}
		return nil
	}

	name := fsPath(fp)
	info, err := p.fs.Stat(name)
	if err != nil {
		if os.IsNotExist(err) {
			return gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return gerrors.Wrap(gerrors.KindProviderError, "stat failed", err)
	}
	if info.IsDir() != fp.IsFolder() {
		return gerrors.Newf(gerrors.KindNotFound, "%q exists but is not a %s", fp.String(), kindWord(fp))
	}
	if err := p.fs.RemoveAll(name); err != nil {
		return gerrors.Wrap(gerrors.KindProviderError, "delete failed", err)
	}
	return nil
}

func (p *Provider) CreateFolder(ctx context.Context, fp fspath.Path) (*metadata.Folder, error) {
	if !fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "%q is not a folder path", fp.String())
	}
	name := fsPath(fp)
	if _, err := p.fs.Stat(name); err == nil {
		return nil, gerrors.Newf(gerrors.KindNamingConflict, "%q already exists", fp.Name()).
			WithData("name", fp.Name())
	}
	if err := p.fs.MkdirAll(name, 0o755); err != nil {
		return nil, gerrors.Wrap(gerrors.KindProviderError, "create folder failed", err)
	}
	return p.folderMetadata(fp), nil
}

func (p *Provider) Revisions(ctx context.Context, fp fspath.Path) ([]*metadata.Revision, error) {
	info, err := p.fs.Stat(fsPath(fp))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return nil, gerrors.Wrap(gerrors.KindProviderError, "stat failed", err)
	}
	return []*metadata.Revision{{
		Version:  latestVersion,
		Modified: info.ModTime().UTC().Format(time.RFC3339),
	}}, nil
}

func (p *Provider) CanIntraCopy(other provider.Provider, fp fspath.Path) bool {
	return p.SharesStorageRoot(other)
}

func (p *Provider) CanIntraMove(other provider.Provider, fp fspath.Path) bool {
	return p.SharesStorageRoot(other)
}

func (p *Provider) IntraCopy(ctx context.Context, other provider.Provider, src, dst fspath.Path) (metadata.Item, bool, error) {
	_, existed, err := provider.Exists(ctx, p, dst)
	if err != nil {
		return nil, false, err
	}
	if err := p.copyTree(fsPath(src), fsPath(dst), src.IsFolder()); err != nil {
		return nil, false, err
	}
	item, err := p.Metadata(ctx, dst, "")
	if err != nil {
		return nil, false, err
	}
	return item, !existed, nil
}

func (p *Provider) IntraMove(ctx context.Context, other provider.Provider, src, dst fspath.Path) (metadata.Item, bool, error) {
	_, existed, err := provider.Exists(ctx, p, dst)
	if err != nil {
		return nil, false, err
	}
	if existed {
		if err := p.fs.RemoveAll(fsPath(dst)); err != nil {
			return nil, false, gerrors.Wrap(gerrors.KindProviderError, "replace failed", err)
		}
	}
	if err := p.fs.MkdirAll(path.Dir(fsPath(dst)), 0o755); err != nil {
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "create parent folders failed", err)
	}
	if err := p.fs.Rename(fsPath(src), fsPath(dst)); err != nil {
		return nil, false, gerrors.Wrap(gerrors.KindProviderError, "rename failed", err)
	}
	item, err := p.Metadata(ctx, dst, "")
	if err != nil {
		return nil, false, err
	}
	return item, !existed, nil
}

func (p *Provider) copyTree(src, dst string, folder bool) error {
	if folder {
		if err := p.fs.MkdirAll(dst, 0o755); err != nil {
			return gerrors.Wrap(gerrors.KindProviderError, "create folder failed", err)
		}
		infos, err := afero.ReadDir(p.fs, src)
		if err != nil {
			return gerrors.Wrap(gerrors.KindProviderError, "list failed", err)
		}
		for _, info := range infos {
			if err := p.copyTree(path.Join(src, info.Name()), path.Join(dst, info.Name()), info.IsDir()); err != nil {
				return err
			}
		}
		return nil
	}

	in, err := p.fs.Open(src)
	if err != nil {
		return gerrors.Wrap(gerrors.KindProviderError, "open failed", err)
	}
	defer in.Close()
	if err := p.fs.MkdirAll(path.Dir(dst), 0o755); err != nil {
		return gerrors.Wrap(gerrors.KindProviderError, "create parent folders failed", err)
	}
	out, err := p.fs.Create(dst)
	if err != nil {
		return gerrors.Wrap(gerrors.KindProviderError, "create failed", err)
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return gerrors.Wrap(gerrors.KindProviderError, "copy failed", err)
	}
	return nil
}

func (p *Provider) CanDuplicateNames() bool { return false }

func (p *Provider) SharesStorageRoot(other provider.Provider) bool {
	o, ok := other.(*Provider)
	return ok && o.rootKey == p.rootKey
}
