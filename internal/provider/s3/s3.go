// Package s3 implements the provider contract against any S3-compatible
// object store via the MinIO client. Folders are modelled as zero-byte keys
// with a trailing slash; signed direct downloads drive the gateway's 302
// redirect path.
package s3

import (
	"context"
	"net/url"
	"strings"
	"time"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/streams"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ProviderName is the kind name the registry knows this adapter by.
const ProviderName = "s3"

// presignExpiry bounds the validity of signed direct-download URLs.
const presignExpiry = 15 * time.Minute

// Provider serves one bucket (optionally a key prefix within it) on an
// S3-compatible endpoint.
type Provider struct {
	client   *minio.Client
	endpoint string
	bucket   string
	prefix   string
}

// Settings carries the provider settings bundle fields.
type Settings struct {
	Endpoint string
	Bucket   string
	Prefix   string
	Region   string
	Secure   bool
}

// New constructs a provider from explicit settings and static credentials.
func New(settings Settings, accessKey, secretKey, sessionToken string) (*Provider, error) {
	if settings.Endpoint == "" || settings.Bucket == "" {
		return nil, gerrors.New(gerrors.KindInvalidArgument, "s3 settings missing endpoint or bucket")
	}
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, sessionToken),
		Secure: settings.Secure,
		Region: settings.Region,
	})
	if err != nil {
		return nil, gerrors.Wrap(gerrors.KindProviderError, "s3 client construction failed", err)
	}
	prefix := strings.TrimPrefix(settings.Prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Provider{
		client:   client,
		endpoint: settings.Endpoint,
		bucket:   settings.Bucket,
		prefix:   prefix,
	}, nil
}

// NewFactory returns the registry factory reading the grant bundles.
func NewFactory() provider.Factory {
	return func(ctx context.Context, creds, settings map[string]any) (provider.Provider, error) {
		str := func(m map[string]any, key string) string {
			v, _ := m[key].(string)
			return v
		}
		secure, _ := settings["secure"].(bool)
		return New(Settings{
			Endpoint: str(settings, "endpoint"),
			Bucket:   str(settings, "bucket"),
			Prefix:   str(settings, "prefix"),
			Region:   str(settings, "region"),
			Secure:   secure,
		}, str(creds, "access_key"), str(creds, "secret_key"), str(creds, "session_token"))
	}
}

func (p *Provider) Name() string { return ProviderName }

// key maps a gateway path onto an object key, trailing slash included for
// folders. The root maps to the bare prefix.
func (p *Provider) key(fp fspath.Path) string {
	if fp.IsRoot() {
		return p.prefix
	}
	return p.prefix + strings.TrimPrefix(fp.String(), "/")
}

func classify(err error, path string) error {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return gerrors.Newf(gerrors.KindNotFound, "%q not found", path)
	case "AccessDenied":
		return gerrors.Wrap(gerrors.KindForbidden, "access denied by backend", err)
	case "SlowDown":
		return gerrors.Wrap(gerrors.KindServiceUnavailable, "backend throttled the request", err)
	}
	return gerrors.Wrap(gerrors.KindProviderError, "backend request failed", err)
}

func (p *Provider) ValidateV1Path(ctx context.Context, raw string) (fspath.Path, error) {
	fp, err := fspath.New(raw)
	if err != nil {
		return fspath.Path{}, err
	}
	if fp.IsRoot() {
		return fp, nil
	}
	if _, exists, err := provider.Exists(ctx, p, fp); err != nil {
		return fspath.Path{}, err
	} else if !exists {
		return fspath.Path{}, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
	}
	return fp, nil
}

func (p *Provider) ValidatePath(ctx context.Context, raw string) (fspath.Path, error) {
	return fspath.New(raw)
}

func (p *Provider) Metadata(ctx context.Context, fp fspath.Path, version string) (metadata.Item, error) {
	if fp.IsFolder() {
		if fp.IsRoot() {
			return p.folderMetadata(fp), nil
		}
		exists, err := p.folderExists(ctx, fp)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return p.folderMetadata(fp), nil
	}

	info, err := p.client.StatObject(ctx, p.bucket, p.key(fp), minio.StatObjectOptions{VersionID: version})
	if err != nil {
		return nil, classify(err, fp.String())
	}
	return p.fileMetadata(fp, info), nil
}

// folderExists checks for the folder marker or any descendant key.
func (p *Provider) folderExists(ctx context.Context, fp fspath.Path) (bool, error) {
	prefix := p.key(fp)
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	for obj := range p.client.ListObjects(listCtx, p.bucket, minio.ListObjectsOptions{Prefix: prefix, MaxKeys: 1}) {
		if obj.Err != nil {
			return false, classify(obj.Err, fp.String())
		}
		return true, nil
	}
	return false, nil
}

func (p *Provider) folderMetadata(fp fspath.Path) *metadata.Folder {
	return &metadata.Folder{
		Name:     fp.Name(),
		Path:     fp.String(),
		Provider: ProviderName,
	}
}

func (p *Provider) fileMetadata(fp fspath.Path, info minio.ObjectInfo) *metadata.File {
	hashes := map[string]string{}
	etag := strings.Trim(info.ETag, `"`)
	// A multipart ETag is not a content digest.
	if etag != "" && !strings.Contains(etag, "-") {
		hashes[streams.AlgoMD5] = strings.ToLower(etag)
	}
	extra := map[string]any{}
	if info.VersionID != "" {
		extra["version_id"] = info.VersionID
	}
	return &metadata.File{
		Name:        fp.Name(),
		Path:        fp.String(),
		Size:        info.Size,
		ContentType: info.ContentType,
		Modified:    info.LastModified.UTC().Format(time.RFC3339),
		ETag:        etag,
		Hashes:      hashes,
		Provider:    ProviderName,
		Extra:       extra,
	}
}

func (p *Provider) List(ctx context.Context, fp fspath.Path) ([]metadata.Item, error) {
	if !fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "%q is not a folder", fp.String())
	}
	prefix := p.key(fp)
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var items []metadata.Item
	for obj := range p.client.ListObjects(listCtx, p.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, classify(obj.Err, fp.String())
		}
		rel := strings.TrimPrefix(obj.Key, prefix)
		if rel == "" {
			continue // the folder's own marker
		}
		if strings.HasSuffix(rel, "/") {
			child, err := fp.Child(strings.TrimSuffix(rel, "/"), true)
			if err != nil {
				return nil, err
			}
			items = append(items, p.folderMetadata(child))
			continue
		}
		child, err := fp.Child(rel, false)
		if err != nil {
			return nil, err
		}
		items = append(items, p.fileMetadata(child, obj))
	}
	return items, nil
}

func (p *Provider) Download(ctx context.Context, fp fspath.Path, opts provider.DownloadOptions) (*provider.Download, error) {
	if fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "cannot download folder %q", fp.String())
	}

	if !opts.Direct && opts.Range == nil {
		params := url.Values{}
		signed, err := p.client.PresignedGetObject(ctx, p.bucket, p.key(fp), presignExpiry, params)
		if err == nil {
			return &provider.Download{RedirectURL: signed.String()}, nil
		}
		// Fall through to proxying when signing is unavailable.
	}

	getOpts := minio.GetObjectOptions{VersionID: opts.Version}
	if opts.Range != nil {
		if err := getOpts.SetRange(opts.Range.Start, opts.Range.End); err != nil {
			return nil, gerrors.Wrap(gerrors.KindInvalidArgument, "invalid byte range", err)
		}
	}
	obj, err := p.client.GetObject(ctx, p.bucket, p.key(fp), getOpts)
	if err != nil {
		return nil, classify(err, fp.String())
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, classify(err, fp.String())
	}
	size := info.Size
	if opts.Range != nil {
		end := opts.Range.End
		if end < 0 || end >= info.Size {
			end = info.Size - 1
		}
		size = end - opts.Range.Start + 1
	}
	return &provider.Download{Stream: streams.NewReader(obj, size)}, nil
}

func (p *Provider) Upload(ctx context.Context, src streams.Stream, fp fspath.Path, conflict provider.Conflict) (*metadata.File, bool, error) {
	if !fp.IsFile() {
		return nil, false, gerrors.Newf(gerrors.KindInvalidPath, "upload target %q is not a file path", fp.String())
	}
	target, replacing, err := provider.ResolveName(ctx, p, fp, conflict)
	if err != nil {
		return nil, false, err
	}

	hs, err := streams.NewHash(src, streams.AlgoSHA256)
	if err != nil {
		return nil, false, err
	}
	info, err := p.client.PutObject(ctx, p.bucket, p.key(target), hs, src.Size(), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return nil, false, classify(err, target.String())
	}
	if declared := src.Size(); declared != streams.SizeUnknown && info.Size != declared {
		return nil, false, gerrors.Newf(gerrors.KindUploadIncomplete,
			"expected %d bytes, stored %d", declared, info.Size)
	}

	stat, err := p.client.StatObject(ctx, p.bucket, p.key(target), minio.StatObjectOptions{})
	if err != nil {
		return nil, false, classify(err, target.String())
	}
	file := p.fileMetadata(target, stat)
	file.Hashes[streams.AlgoSHA256] = hs.Digests()[streams.AlgoSHA256]
	return file, !replacing, nil
}

func (p *Provider) Delete(ctx context.Context, fp fspath.Path, confirm bool) error {
	if fp.IsRoot() {
		if !confirm {
			return gerrors.New(gerrors.KindInvalidArgument, "root deletion requires confirmation")
		}
		return p.removePrefix(ctx, p.prefix, true)
	}
	if fp.IsFolder() {
		exists, err := p.folderExists(ctx, fp)
		if err != nil {
			return err
		}
		if !exists {
			return gerrors.Newf(gerrors.KindNotFound, "%q not found", fp.String())
		}
		return p.removePrefix(ctx, p.key(fp), false)
	}

	if _, err := p.client.StatObject(ctx, p.bucket, p.key(fp), minio.StatObjectOptions{}); err != nil {
		return classify(err, fp.String())
	}
	if err := p.client.RemoveObject(ctx, p.bucket, p.key(fp), minio.RemoveObjectOptions{}); err != nil {
		return classify(err, fp.String())
	}
	return nil
}

// removePrefix deletes every key under prefix; keepMarker retains the prefix
// key itself so a cleared root keeps existing.
func (p *Provider) removePrefix(ctx context.Context, prefix string, keepMarker bool) error {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := make(chan minio.ObjectInfo)
	errCh := make(chan error, 1)
	go func() {
		defer close(objects)
		for obj := range p.client.ListObjects(listCtx, p.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err != nil {
				errCh <- classify(obj.Err, prefix)
				return
			}
			if keepMarker && obj.Key == prefix {
				continue
			}
			select {
			case objects <- obj:
			case <-listCtx.Done():
				return
			}
		}
	}()

	for result := range p.client.RemoveObjects(ctx, p.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			return classify(result.Err, result.ObjectName)
		}
	}
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (p *Provider) CreateFolder(ctx context.Context, fp fspath.Path) (*metadata.Folder, error) {
	if !fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "%q is not a folder path", fp.String())
	}
	exists, err := p.folderExists(ctx, fp)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, gerrors.Newf(gerrors.KindNamingConflict, "%q already exists", fp.Name()).
			WithData("name", fp.Name())
	}
	if _, err := p.client.PutObject(ctx, p.bucket, p.key(fp), strings.NewReader(""), 0, minio.PutObjectOptions{}); err != nil {
		return nil, classify(err, fp.String())
	}
	return p.folderMetadata(fp), nil
}

func (p *Provider) Revisions(ctx context.Context, fp fspath.Path) ([]*metadata.Revision, error) {
	if fp.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "folders have no revisions")
	}
	key := p.key(fp)
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var revisions []*metadata.Revision
	for obj := range p.client.ListObjects(listCtx, p.bucket, minio.ListObjectsOptions{Prefix: key, WithVersions: true, Recursive: true}) {
		if obj.Err != nil {
			return nil, classify(obj.Err, fp.String())
		}
		if obj.Key != key {
			continue
		}
		revisions = append(revisions, &metadata.Revision{
			Version:  obj.VersionID,
			Modified: obj.LastModified.UTC().Format(time.RFC3339),
		})
	}
	if len(revisions) == 0 {
		info, err := p.client.StatObject(ctx, p.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			return nil, classify(err, fp.String())
		}
		revisions = append(revisions, &metadata.Revision{
			Version:  "latest",
			Modified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	return revisions, nil
}

func (p *Provider) CanIntraCopy(other provider.Provider, fp fspath.Path) bool {
	o, ok := other.(*Provider)
	return ok && o.endpoint == p.endpoint && fp.IsFile()
}

func (p *Provider) CanIntraMove(other provider.Provider, fp fspath.Path) bool {
	return p.CanIntraCopy(other, fp)
}

func (p *Provider) IntraCopy(ctx context.Context, other provider.Provider, src, dst fspath.Path) (metadata.Item, bool, error) {
	o, ok := other.(*Provider)
	if !ok {
		return nil, false, gerrors.New(gerrors.KindNotImplemented, "native copy requires an s3 destination")
	}
	_, existed, err := provider.Exists(ctx, o, dst)
	if err != nil {
		return nil, false, err
	}
	_, err = o.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: o.bucket, Object: o.key(dst)},
		minio.CopySrcOptions{Bucket: p.bucket, Object: p.key(src)},
	)
	if err != nil {
		return nil, false, classify(err, src.String())
	}
	item, err := o.Metadata(ctx, dst, "")
	if err != nil {
		return nil, false, err
	}
	return item, !existed, nil
}

func (p *Provider) IntraMove(ctx context.Context, other provider.Provider, src, dst fspath.Path) (metadata.Item, bool, error) {
	item, created, err := p.IntraCopy(ctx, other, src, dst)
	if err != nil {
		return nil, false, err
	}
	if err := p.client.RemoveObject(ctx, p.bucket, p.key(src), minio.RemoveObjectOptions{}); err != nil {
		return nil, false, classify(err, src.String())
	}
	return item, created, nil
}

// CanDuplicateNames is true: "name" and "name/" are distinct keys.
func (p *Provider) CanDuplicateNames() bool { return true }

func (p *Provider) SharesStorageRoot(other provider.Provider) bool {
	o, ok := other.(*Provider)
	return ok && o.endpoint == p.endpoint && o.bucket == p.bucket && o.prefix == p.prefix
}
