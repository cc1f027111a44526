// Package provider defines the contract every storage backend adapter
// implements, plus the default behaviours that can be expressed in terms of
// the contract itself: existence checks, name-conflict resolution, zip
// archiving and path reconstruction from metadata.
//
// Providers are per-request values: a factory materialises one from the
// credentials and settings bundle the auth handler grants, it serves exactly
// one request, and it holds no cross-request state beyond an owned HTTP
// client.
package provider

import (
	"context"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/streams"
)

// Conflict selects how a write to an occupied name is resolved.
type Conflict string

const (
	// ConflictWarn fails the operation with a naming conflict.
	ConflictWarn Conflict = "warn"
	// ConflictReplace overwrites the existing entity.
	ConflictReplace Conflict = "replace"
	// ConflictKeep disambiguates by appending " (n)" to the name.
	ConflictKeep Conflict = "keep"
)

// ParseConflict validates a conflict policy string. The empty string selects
// the default policy, warn.
func ParseConflict(raw string) (Conflict, error) {
	switch Conflict(raw) {
	case "":
		return ConflictWarn, nil
	case ConflictWarn, ConflictReplace, ConflictKeep:
		return Conflict(raw), nil
	default:
		return "", gerrors.Newf(gerrors.KindInvalidArgument, "unknown conflict policy %q", raw)
	}
}

// Range is an inclusive byte range; End < 0 leaves the range open-ended.
type Range struct {
	Start int64
	End   int64
}

// DownloadOptions carry the optional download modifiers.
type DownloadOptions struct {
	// Version selects a stored revision; empty means the latest.
	Version string

	// Range restricts the returned bytes.
	Range *Range

	// Direct forces the provider to produce a byte stream even when it
	// could answer with a signed redirect URL.
	Direct bool
}

// Download is either a byte stream or a redirect to a signed backend URL,
// never both.
type Download struct {
	Stream      streams.Stream
	RedirectURL string
}

// Provider is the uniform interface over heterogeneous storage backends.
type Provider interface {
	// Name returns the provider kind, e.g. "localfs" or "s3".
	Name() string

	// ValidateV1Path parses raw and confirms both existence and kind:
	// a path whose trailing slash disagrees with the stored entity kind
	// fails with NotFound.
	ValidateV1Path(ctx context.Context, raw string) (fspath.Path, error)

	// ValidatePath parses raw without requiring existence. Used for the
	// destinations of create, move and copy.
	ValidatePath(ctx context.Context, raw string) (fspath.Path, error)

	// Metadata returns the entry's own metadata. Version selects a
	// revision for files; it is ignored for folders.
	Metadata(ctx context.Context, path fspath.Path, version string) (metadata.Item, error)

	// List returns a folder's immediate children in the provider's
	// natural order.
	List(ctx context.Context, path fspath.Path) ([]metadata.Item, error)

	// Download produces the file's bytes or a signed redirect URL.
	Download(ctx context.Context, path fspath.Path, opts DownloadOptions) (*Download, error)

	// Upload stores src at path, resolving occupied names per conflict.
	// The returned flag is true when a new object was created, false when
	// an existing one was replaced. At least one content hash is computed
	// during the transfer and stored in the returned metadata.
	Upload(ctx context.Context, src streams.Stream, path fspath.Path, conflict Conflict) (*metadata.File, bool, error)

	// Delete removes the entity. Deleting the root requires confirm and
	// clears all children while leaving the root itself.
	Delete(ctx context.Context, path fspath.Path, confirm bool) error

	// CreateFolder creates a folder, failing with NotSupported on
	// backends without folder semantics.
	CreateFolder(ctx context.Context, path fspath.Path) (*metadata.Folder, error)

	// Revisions lists stored versions of a file, newest first.
	Revisions(ctx context.Context, path fspath.Path) ([]*metadata.Revision, error)

	// CanIntraCopy reports whether a native server-side copy to other is
	// possible for path.
	CanIntraCopy(other Provider, path fspath.Path) bool

	// CanIntraMove reports whether a native server-side move to other is
	// possible for path.
	CanIntraMove(other Provider, path fspath.Path) bool

	// IntraCopy performs a native copy. Called only when CanIntraCopy
	// returned true.
	IntraCopy(ctx context.Context, other Provider, src, dst fspath.Path) (metadata.Item, bool, error)

	// IntraMove performs a native move. Called only when CanIntraMove
	// returned true.
	IntraMove(ctx context.Context, other Provider, src, dst fspath.Path) (metadata.Item, bool, error)

	// CanDuplicateNames reports whether the backend permits a file and a
	// folder with the same name as siblings.
	CanDuplicateNames() bool

	// SharesStorageRoot reports whether both providers index the same
	// bytes, in which case a move within one store must not copy
	// destructively.
	SharesStorageRoot(other Provider) bool
}
