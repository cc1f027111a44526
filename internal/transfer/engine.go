// Package transfer implements the copy/move engine: intra-provider fast
// paths, inter-provider streaming with hashing on the wire, folder-tree
// recursion and name-conflict resolution. It is the default implementation of
// move and copy for every provider.
package transfer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/streams"
)

// DefaultInactivityTimeout aborts a transfer when no bytes move for this
// long. Transfers are bounded by inactivity rather than total duration.
const DefaultInactivityTimeout = 10 * time.Minute

// RequiresKnownSize is an optional provider capability: destinations that
// cannot accept a stream of unknown length implement it to request spooling.
type RequiresKnownSize interface {
	RequiresKnownSize() bool
}

// Request describes one copy or move.
type Request struct {
	Source     provider.Provider
	SourcePath fspath.Path

	Dest provider.Provider
	// DestFolder is the destination folder the (possibly renamed) leaf is
	// placed into.
	DestFolder fspath.Path

	// Rename optionally replaces the leaf name at the destination.
	Rename string

	// Conflict resolves an occupied destination name; defaults to warn.
	Conflict provider.Conflict

	// Move deletes the source after the destination is verified.
	Move bool
}

// Result carries the outcome of a transfer.
type Result struct {
	Item    metadata.Item
	Created bool

	// Children holds the immediate children of a transferred folder.
	Children []metadata.Item

	// Warning is set when a move's source cleanup failed after a verified
	// copy (partial move). The transfer itself succeeded.
	Warning string
}

// Engine executes transfers. The zero value is usable; SpoolDir and timeouts
// default sensibly.
type Engine struct {
	SpoolDir          string
	InactivityTimeout time.Duration
	Logger            *slog.Logger

	// OnBytes, when set, observes every chunk streamed between providers.
	OnBytes func(n int64)
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Engine) inactivity() time.Duration {
	if e.InactivityTimeout > 0 {
		return e.InactivityTimeout
	}
	return DefaultInactivityTimeout
}

// Run performs the transfer described by req.
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if !req.DestFolder.IsFolder() {
		return nil, gerrors.Newf(gerrors.KindInvalidPath, "destination %q is not a folder", req.DestFolder.String())
	}
	if req.SourcePath.IsRoot() {
		return nil, gerrors.New(gerrors.KindInvalidArgument, "cannot move or copy the provider root")
	}
	if req.Conflict == "" {
		req.Conflict = provider.ConflictWarn
	}

	name := req.SourcePath.Name()
	if req.Rename != "" {
		name = req.Rename
	}
	target, err := req.DestFolder.Child(name, req.SourcePath.IsFolder())
	if err != nil {
		return nil, err
	}

	// A move onto itself within one storage root is a no-op; resolving the
	// conflict first would destroy the source under the replace policy.
	if req.Move && req.Source.SharesStorageRoot(req.Dest) && req.SourcePath.String() == target.String() {
		item, err := req.Source.Metadata(ctx, req.SourcePath, "")
		if err != nil {
			return nil, err
		}
		return &Result{Item: item, Created: false}, nil
	}

	if req.SourcePath.IsFolder() && req.Source.SharesStorageRoot(req.Dest) &&
		strings.HasPrefix(target.String(), req.SourcePath.String()) {
		return nil, gerrors.Newf(gerrors.KindInvalidArgument,
			"cannot place %q inside itself", req.SourcePath.String())
	}

	target, replacing, err := provider.ResolveName(ctx, req.Dest, target, req.Conflict)
	if err != nil {
		return nil, err
	}

	if req.Move && req.Source.CanIntraMove(req.Dest, req.SourcePath) {
		item, created, err := req.Source.IntraMove(ctx, req.Dest, req.SourcePath, target)
		if err != nil {
			return nil, err
		}
		return e.withChildren(ctx, req.Dest, target, &Result{Item: item, Created: created})
	}
	if !req.Move && req.Source.CanIntraCopy(req.Dest, req.SourcePath) {
		item, created, err := req.Source.IntraCopy(ctx, req.Dest, req.SourcePath, target)
		if err != nil {
			return nil, err
		}
		return e.withChildren(ctx, req.Dest, target, &Result{Item: item, Created: created})
	}

	var result *Result
	if req.SourcePath.IsFolder() {
		result, err = e.copyFolder(ctx, req.Source, req.SourcePath, req.Dest, target, replacing)
	} else {
		var item metadata.Item
		item, err = e.streamFile(ctx, req.Source, req.SourcePath, req.Dest, target)
		if err == nil {
			result = &Result{Item: item, Created: !replacing}
		}
	}
	if err != nil {
		return nil, err
	}

	if req.Move {
		if err := req.Source.Delete(ctx, req.SourcePath, false); err != nil {
			// The copy is verified; surface the stranded source instead
			// of failing the operation.
			e.logger().WarnContext(ctx, "partial move: source cleanup failed",
				"path", req.SourcePath.String(),
				"provider", req.Source.Name(),
				"err", err)
			result.Warning = "source could not be removed after copy: " + req.SourcePath.String()
		}
	}
	return result, nil
}

// withChildren attaches a folder's immediate children to the result.
func (e *Engine) withChildren(ctx context.Context, dst provider.Provider, target fspath.Path, result *Result) (*Result, error) {
	if !target.IsFolder() {
		return result, nil
	}
	children, err := dst.List(ctx, target)
	if err != nil {
		return nil, err
	}
	result.Children = children
	return result, nil
}

// copyFolder recursively copies a folder tree. Conflict resolution applied at
// the top level only; children inherit replace semantics. Children are
// processed in the source's natural order, and already-copied children are
// not rolled back on a mid-recursion failure: the error names the failing
// child.
func (e *Engine) copyFolder(ctx context.Context, src provider.Provider, srcPath fspath.Path, dst provider.Provider, target fspath.Path, replacing bool) (*Result, error) {
	if _, err := dst.CreateFolder(ctx, target); err != nil {
		// An occupied destination folder is expected when replacing.
		if !(replacing && gerrors.IsKind(err, gerrors.KindNamingConflict)) {
			return nil, err
		}
	}

	children, err := src.List(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		childSrc, err := provider.PathFromMetadata(srcPath, child)
		if err != nil {
			return nil, err
		}
		childDst, err := target.Child(child.ItemName(), !child.IsFile())
		if err != nil {
			return nil, err
		}
		if child.IsFile() {
			if _, err := e.streamFile(ctx, src, childSrc, dst, childDst); err != nil {
				return nil, gerrors.Wrap(gerrors.KindOf(err), "copying "+childSrc.String()+" failed", err)
			}
			continue
		}
		if _, err := e.copyFolder(ctx, src, childSrc, dst, childDst, true); err != nil {
			return nil, err
		}
	}

	item, err := dst.Metadata(ctx, target, "")
	if err != nil {
		return nil, err
	}
	result := &Result{Item: item, Created: !replacing, Children: nil}
	return e.withChildren(ctx, dst, target, result)
}

// streamFile copies one file between providers: the source is opened with
// direct semantics, hashed on the wire, fed to the destination with the
// conflict pre-resolved, and the result verified by verify (hash against
// hash, or size against size when the destination reports no digest).
func (e *Engine) streamFile(ctx context.Context, src provider.Provider, srcPath fspath.Path, dst provider.Provider, target fspath.Path) (metadata.Item, error) {
	transferCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dl, err := src.Download(transferCtx, srcPath, provider.DownloadOptions{Direct: true})
	if err != nil {
		return nil, err
	}
	if dl.Stream == nil {
		return nil, gerrors.New(gerrors.KindProviderError, "source produced no stream for direct download")
	}

	watched := newWatchdog(dl.Stream, e.inactivity(), cancel, e.OnBytes)
	hs, err := streams.NewHash(watched, streams.AlgoSHA256)
	if err != nil {
		watched.Close()
		return nil, err
	}
	defer hs.Close()

	var upstream streams.Stream = hs
	if needsKnownSize(dst) && hs.Size() == streams.SizeUnknown {
		spooled, err := streams.Spool(hs, e.SpoolDir)
		if err != nil {
			return nil, gerrors.Wrap(gerrors.KindProviderError, "spooling stream failed", err)
		}
		defer spooled.Close()
		upstream = spooled
	}

	uploaded, _, err := dst.Upload(transferCtx, upstream, target, provider.ConflictReplace)
	if err != nil {
		return nil, err
	}

	if err := verify(hs, dl.Stream.Size(), uploaded); err != nil {
		return nil, err
	}
	return uploaded, nil
}

func needsKnownSize(p provider.Provider) bool {
	c, ok := p.(RequiresKnownSize)
	return ok && c.RequiresKnownSize()
}

// verify cross-checks the wire digest against the destination's reported
// hashes. When the destination reports a wire algorithm the digests must
// match; a destination digest in another algorithm is trusted; when the
// destination reports no digest, sizes must agree when known.
func verify(wire *streams.HashStream, srcSize int64, uploaded *metadata.File) error {
	wireDigests := wire.Digests()
	shared := false
	for algo, want := range wireDigests {
		got, ok := uploaded.Hashes[algo]
		if !ok {
			continue
		}
		shared = true
		if got != want {
			return gerrors.Newf(gerrors.KindHashMismatch,
				"%s digest mismatch: source %s, destination %s", algo, want, got).
				WithData("algorithm", algo)
		}
	}
	if shared {
		return nil
	}
	if len(uploaded.Hashes) > 0 {
		return nil // destination's own digest is trusted
	}
	if srcSize != streams.SizeUnknown && uploaded.Size != metadata.SizeUnknown && srcSize != uploaded.Size {
		return gerrors.Newf(gerrors.KindHashMismatch,
			"size mismatch: source %d bytes, destination %d bytes", srcSize, uploaded.Size)
	}
	return nil
}
