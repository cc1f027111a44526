package api

import (
	"io"
	"strings"
	"time"

	"github.com/floodgatehq/floodgate/internal/auth"
	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/notify"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/streams"
	"github.com/gofiber/fiber/v2"
)

// handleWrite serves PUT: folder creation and file uploads/updates.
func (s *Server) handleWrite(c *fiber.Ctx) error {
	resource := c.Params("resource")
	providerName := c.Params("provider")

	raw, err := rawEntityPath(c)
	if err != nil {
		return err
	}

	grant, prov, err := s.grantProvider(c, resource, providerName, auth.ActionWrite)
	if err != nil {
		return err
	}

	if strings.HasSuffix(raw, "/") {
		return s.createInFolder(c, resource, providerName, grant, prov, raw)
	}
	return s.updateFile(c, resource, providerName, grant, prov, raw)
}

// createInFolder handles PUT on a folder URL: ?kind=folder creates a child
// folder, ?kind=file uploads a new child file. Both require the name
// parameter.
func (s *Server) createInFolder(c *fiber.Ctx, resource, providerName string, grant *auth.Grant, prov provider.Provider, raw string) error {
	name := c.Query("name")
	if name == "" {
		return gerrors.New(gerrors.KindInvalidArgument, "the name parameter is required")
	}
	if strings.Contains(name, "/") {
		return gerrors.New(gerrors.KindInvalidPath, "the name parameter cannot contain a slash")
	}
	kind := c.Query("kind", "file")

	parent, err := prov.ValidateV1Path(c.UserContext(), raw)
	if err != nil {
		return err
	}

	switch kind {
	case "folder":
		target, err := parent.Child(name, true)
		if err != nil {
			return err
		}
		item, err := prov.CreateFolder(c.UserContext(), target)
		if err != nil {
			return err
		}
		s.notifyMutation(c, "create_folder", resource, providerName, target.String(), item, grant)
		return RespondEntity(c, fiber.StatusCreated, resource, providerName, item)

	case "file":
		target, err := parent.Child(name, false)
		if err != nil {
			return err
		}
		conflict, err := provider.ParseConflict(c.Query("conflict"))
		if err != nil {
			return err
		}
		item, created, err := prov.Upload(c.UserContext(), requestStream(c), target, conflict)
		if err != nil {
			return err
		}
		s.notifyMutation(c, "upload", resource, providerName, item.Path, item, grant)
		status := fiber.StatusOK
		if created {
			status = fiber.StatusCreated
		}
		return RespondEntity(c, status, resource, providerName, item)

	default:
		return gerrors.Newf(gerrors.KindInvalidArgument, "unknown kind %q", kind)
	}
}

// updateFile handles PUT on an existing file URL: the body replaces the
// content.
func (s *Server) updateFile(c *fiber.Ctx, resource, providerName string, grant *auth.Grant, prov provider.Provider, raw string) error {
	fp, err := prov.ValidateV1Path(c.UserContext(), raw)
	if err != nil {
		return err
	}

	item, _, err := prov.Upload(c.UserContext(), requestStream(c), fp, provider.ConflictReplace)
	if err != nil {
		return err
	}
	s.notifyMutation(c, "update", resource, providerName, item.Path, item, grant)
	return RespondEntity(c, fiber.StatusOK, resource, providerName, item)
}

// requestStream adapts the raw request body into a Stream, declaring the
// Content-Length when the client sent one.
func requestStream(c *fiber.Ctx) streams.Stream {
	size := int64(c.Context().Request.Header.ContentLength())
	if size < 0 {
		size = streams.SizeUnknown
	}
	var body io.Reader = c.Context().RequestBodyStream()
	if body == nil {
		body = strings.NewReader("")
	}
	return streams.NewReader(io.NopCloser(body), size)
}

// notifyMutation fires the post-mutation hook; its failure never reaches the
// caller.
func (s *Server) notifyMutation(c *fiber.Ctx, action, resource, providerName, path string, item any, grant *auth.Grant) {
	s.notifier.Notify(c.UserContext(), notify.Event{
		Action:   action,
		Resource: resource,
		Provider: providerName,
		Path:     path,
		Metadata: item,
		Identity: grant.Identity,
		Time:     time.Now().UTC(),
	})
}
