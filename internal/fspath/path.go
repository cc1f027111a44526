// Package fspath implements the gateway path model: an immutable ordered
// sequence of named parts, each tagged as file or folder and optionally
// carrying an opaque backend identifier. The trailing slash of the raw form is
// load-bearing: it distinguishes folder identity from file identity and every
// serialisation preserves it.
package fspath

import (
	"strings"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"golang.org/x/text/unicode/norm"
)

// Part is one named component of a path. The root part is an unnamed part
// tagged as a folder.
type Part struct {
	name   string
	id     string
	folder bool
}

// NewPart builds a part with an optional backend identifier.
func NewPart(name, id string, folder bool) Part {
	return Part{name: norm.NFC.String(name), id: id, folder: folder}
}

// Name returns the human name of the part. The root's name is empty.
func (p Part) Name() string { return p.name }

// ID returns the opaque backend identifier, empty when the backend is
// purely name-addressed.
func (p Part) ID() string { return p.id }

// IsFolder reports whether the part is tagged as a folder.
func (p Part) IsFolder() bool { return p.folder }

// Path is an immutable sequence of parts. The first part is always the
// provider root: an unnamed folder.
type Path struct {
	parts []Part
}

// Root returns the provider root path.
func Root() Path {
	return Path{parts: []Part{{folder: true}}}
}

// Parse converts a raw slash-separated path into a Path, enforcing that the
// trailing-slash convention agrees with the requested kind. A missing leading
// slash is tolerated; empty interior segments and dot segments are not.
func Parse(raw string, folder bool) (Path, error) {
	if strings.HasSuffix(raw, "/") != folder && raw != "" {
		if folder {
			return Path{}, gerrors.Newf(gerrors.KindInvalidPath, "folder path %q must end with a slash", raw)
		}
		return Path{}, gerrors.Newf(gerrors.KindInvalidPath, "file path %q must not end with a slash", raw)
	}
	return New(raw)
}

// New converts a raw slash-separated path into a Path, inferring kind from
// the trailing slash. The empty string and "/" both denote the root folder.
func New(raw string) (Path, error) {
	trimmed := strings.TrimPrefix(raw, "/")
	if trimmed == "" {
		return Root(), nil
	}

	folder := strings.HasSuffix(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")

	segments := strings.Split(trimmed, "/")
	parts := make([]Part, 0, len(segments)+1)
	parts = append(parts, Part{folder: true})
	for i, seg := range segments {
		if seg == "" {
			return Path{}, gerrors.Newf(gerrors.KindInvalidPath, "path %q contains an empty segment", raw)
		}
		if seg == "." || seg == ".." {
			return Path{}, gerrors.Newf(gerrors.KindInvalidPath, "path %q contains a relative segment", raw)
		}
		isLast := i == len(segments)-1
		parts = append(parts, NewPart(seg, "", !isLast || folder))
	}
	return Path{parts: parts}, nil
}

// FromParts assembles a path from explicit non-root parts. The root part is
// always prepended so every Path contains it.
func FromParts(parts ...Part) Path {
	all := make([]Part, 0, len(parts)+1)
	all = append(all, Part{folder: true})
	all = append(all, parts...)
	return Path{parts: all}
}

// IsRoot reports whether the path is the provider root.
func (p Path) IsRoot() bool {
	return len(p.parts) <= 1
}

// IsFolder reports whether the path identifies a folder.
func (p Path) IsFolder() bool {
	if p.IsRoot() {
		return true
	}
	return p.parts[len(p.parts)-1].folder
}

// IsFile reports whether the path identifies a file.
func (p Path) IsFile() bool {
	return !p.IsFolder()
}

// Name returns the name of the last part. The root's name is the empty
// string.
func (p Path) Name() string {
	if p.IsRoot() {
		return ""
	}
	return p.parts[len(p.parts)-1].name
}

// ID returns the backend identifier of the last part, if any.
func (p Path) ID() string {
	if p.IsRoot() {
		return ""
	}
	return p.parts[len(p.parts)-1].id
}

// Ext returns the extension of the last part, including the dot, or "".
func (p Path) Ext() string {
	name := p.Name()
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[i:]
	}
	return ""
}

// Parts returns the non-root parts in order.
func (p Path) Parts() []Part {
	if p.IsRoot() {
		return nil
	}
	return p.parts[1:]
}

// String serialises the path. The root is "/"; folder paths keep their
// trailing slash.
func (p Path) String() string {
	if p.IsRoot() {
		return "/"
	}
	var b strings.Builder
	for _, part := range p.parts[1:] {
		b.WriteByte('/')
		b.WriteString(part.name)
	}
	if p.IsFolder() {
		b.WriteByte('/')
	}
	return b.String()
}

// Child appends a new last part. Only folders may have children.
func (p Path) Child(name string, folder bool) (Path, error) {
	return p.ChildWithID(name, "", folder)
}

// ChildWithID appends a new last part carrying a backend identifier.
func (p Path) ChildWithID(name, id string, folder bool) (Path, error) {
	if !p.IsFolder() {
		return Path{}, gerrors.Newf(gerrors.KindInvalidPath, "cannot extend file path %q", p.String())
	}
	parts := make([]Part, len(p.parts), len(p.parts)+1)
	copy(parts, p.parts)
	parts = append(parts, NewPart(name, id, folder))
	return Path{parts: parts}, nil
}

// Parent returns the containing folder. The root's parent is the root.
func (p Path) Parent() Path {
	if p.IsRoot() {
		return p
	}
	parts := make([]Part, len(p.parts)-1)
	copy(parts, p.parts[:len(p.parts)-1])
	return Path{parts: parts}
}

// Rename replaces the name of the last part while keeping its identifier and
// kind tag, preserving all ancestor identifiers. Renaming the root is a no-op.
func (p Path) Rename(name string) Path {
	if p.IsRoot() {
		return p
	}
	parts := make([]Part, len(p.parts))
	copy(parts, p.parts)
	last := parts[len(parts)-1]
	parts[len(parts)-1] = NewPart(name, last.id, last.folder)
	return Path{parts: parts}
}

// WithID replaces the backend identifier of the last part.
func (p Path) WithID(id string) Path {
	if p.IsRoot() {
		return p
	}
	parts := make([]Part, len(p.parts))
	copy(parts, p.parts)
	last := parts[len(parts)-1]
	parts[len(parts)-1] = Part{name: last.name, id: id, folder: last.folder}
	return Path{parts: parts}
}

// Equal reports whether two paths have identical part sequences, comparing
// name, identifier and kind tag of every part. Two sibling entries with the
// same name but different tags are distinct paths.
func (p Path) Equal(other Path) bool {
	if len(p.parts) != len(other.parts) {
		return false
	}
	for i := range p.parts {
		if p.parts[i] != other.parts[i] {
			return false
		}
	}
	return true
}
