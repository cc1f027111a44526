package api

import (
	"github.com/floodgatehq/floodgate/internal/auth"
	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/floodgatehq/floodgate/internal/transfer"
	"github.com/gofiber/fiber/v2"
)

// handleAction serves POST: rename, move and copy.
func (s *Server) handleAction(c *fiber.Ctx) error {
	resource := c.Params("resource")
	providerName := c.Params("provider")

	raw, err := rawEntityPath(c)
	if err != nil {
		return err
	}
	body, err := parseActionBody(c)
	if err != nil {
		return err
	}
	conflict, err := provider.ParseConflict(body.Conflict)
	if err != nil {
		return err
	}

	srcAction := auth.ActionWrite
	if body.Action == "copy" {
		srcAction = auth.ActionCopyFrom
	}
	grant, src, err := s.grantProvider(c, resource, providerName, srcAction)
	if err != nil {
		return err
	}
	srcPath, err := src.ValidateV1Path(c.UserContext(), raw)
	if err != nil {
		return err
	}

	if body.Action == "rename" {
		result, err := s.engine.Run(c.UserContext(), transfer.Request{
			Source:     src,
			SourcePath: srcPath,
			Dest:       src,
			DestFolder: srcPath.Parent(),
			Rename:     body.Rename,
			Conflict:   conflict,
			Move:       true,
		})
		if err != nil {
			return err
		}
		s.notifyMutation(c, "rename", resource, providerName, result.Item.ItemPath(), result.Item, grant)
		return RespondEntityWithWarning(c, fiber.StatusOK, resource, providerName, result.Item, result.Warning)
	}

	destResource := resource
	if body.Resource != "" {
		destResource = body.Resource
	}
	destProviderName := providerName
	if body.Provider != "" {
		destProviderName = body.Provider
	}
	destGrant, dest, err := s.grantProvider(c, destResource, destProviderName, auth.ActionCopyTo)
	if err != nil {
		return err
	}

	destFolder, err := dest.ValidatePath(c.UserContext(), body.Path)
	if err != nil {
		return err
	}
	if !destFolder.IsFolder() {
		return gerrors.Newf(gerrors.KindInvalidPath, "destination %q is not a folder path", body.Path)
	}

	result, err := s.engine.Run(c.UserContext(), transfer.Request{
		Source:     src,
		SourcePath: srcPath,
		Dest:       dest,
		DestFolder: destFolder,
		Rename:     body.Rename,
		Conflict:   conflict,
		Move:       body.Action == "move",
	})
	if err != nil {
		return err
	}

	s.notifyMutation(c, body.Action, destResource, destProviderName, result.Item.ItemPath(), result.Item, destGrant)
	if body.Action == "move" {
		s.notifyMutation(c, "delete", resource, providerName, srcPath.String(), nil, grant)
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return RespondEntityWithWarning(c, status, destResource, destProviderName, result.Item, result.Warning)
}

// handleDelete serves DELETE. Root deletion requires confirm_delete=1 and
// empties the root without removing it.
func (s *Server) handleDelete(c *fiber.Ctx) error {
	resource := c.Params("resource")
	providerName := c.Params("provider")

	raw, err := rawEntityPath(c)
	if err != nil {
		return err
	}

	grant, prov, err := s.grantProvider(c, resource, providerName, auth.ActionDelete)
	if err != nil {
		return err
	}
	fp, err := prov.ValidateV1Path(c.UserContext(), raw)
	if err != nil {
		return err
	}

	if err := prov.Delete(c.UserContext(), fp, c.Query("confirm_delete") == "1"); err != nil {
		return err
	}
	s.notifyMutation(c, "delete", resource, providerName, fp.String(), nil, grant)
	return c.SendStatus(fiber.StatusNoContent)
}
