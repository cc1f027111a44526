package api

import (
	"mime"
	"path"
	"strconv"

	"github.com/floodgatehq/floodgate/internal/auth"
	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/fspath"
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/gofiber/fiber/v2"
)

func gerrorsNotSupported(method string) error {
	return gerrors.Newf(gerrors.KindNotSupported, "method %s is not supported", method)
}

// handleRead serves GET and HEAD: downloads, metadata, revision listings,
// folder listings and zip archives.
func (s *Server) handleRead(c *fiber.Ctx) error {
	resource := c.Params("resource")
	providerName := c.Params("provider")

	raw, err := rawEntityPath(c)
	if err != nil {
		return err
	}
	flags := parseQueryFlags(c)

	_, prov, err := s.grantProvider(c, resource, providerName, auth.ActionRead)
	if err != nil {
		return err
	}
	fp, err := prov.ValidateV1Path(c.UserContext(), raw)
	if err != nil {
		return err
	}

	if fp.IsFolder() {
		if flags.Zip {
			return s.serveZip(c, prov, fp)
		}
		items, err := prov.List(c.UserContext(), fp)
		if err != nil {
			return err
		}
		return RespondListing(c, resource, providerName, items)
	}

	if flags.Meta {
		item, err := prov.Metadata(c.UserContext(), fp, flags.Version)
		if err != nil {
			return err
		}
		return RespondEntity(c, fiber.StatusOK, resource, providerName, item)
	}
	if flags.Revisions {
		revisions, err := prov.Revisions(c.UserContext(), fp)
		if err != nil {
			return err
		}
		return RespondRevisions(c, revisions)
	}
	if c.Method() == fiber.MethodHead {
		return s.serveHead(c, prov, fp, flags)
	}
	return s.serveDownload(c, prov, fp, flags)
}

func (s *Server) serveDownload(c *fiber.Ctx, prov provider.Provider, fp fspath.Path, flags queryFlags) error {
	rng, err := parseRange(c.Get(fiber.HeaderRange))
	if err != nil {
		return err
	}

	dl, err := prov.Download(c.UserContext(), fp, provider.DownloadOptions{
		Version: flags.Version,
		Range:   rng,
		Direct:  flags.Direct,
	})
	if err != nil {
		return err
	}
	if dl.RedirectURL != "" {
		return c.Redirect(dl.RedirectURL, fiber.StatusFound)
	}
	if dl.Stream == nil {
		return gerrors.New(gerrors.KindProviderError, "provider produced neither stream nor redirect")
	}

	name := fp.Name()
	if flags.DisplayName != "" {
		name = flags.DisplayName
	}
	setDownloadHeaders(c, name)

	status := fiber.StatusOK
	if rng != nil {
		status = fiber.StatusPartialContent
	}
	c.Status(status)
	if size := dl.Stream.Size(); size >= 0 {
		return c.SendStream(dl.Stream, int(size))
	}
	return c.SendStream(dl.Stream, -1)
}

func (s *Server) serveHead(c *fiber.Ctx, prov provider.Provider, fp fspath.Path, flags queryFlags) error {
	item, err := prov.Metadata(c.UserContext(), fp, flags.Version)
	if err != nil {
		return err
	}
	file, ok := item.(*metadata.File)
	if !ok {
		return gerrors.New(gerrors.KindProviderError, "file path produced folder metadata")
	}

	name := fp.Name()
	if flags.DisplayName != "" {
		name = flags.DisplayName
	}
	setDownloadHeaders(c, name)
	if file.Size >= 0 {
		c.Set(fiber.HeaderContentLength, strconv.FormatInt(file.Size, 10))
	}
	if file.ContentType != "" {
		c.Set(fiber.HeaderContentType, file.ContentType)
	}
	if file.ETag != "" {
		c.Set(fiber.HeaderETag, `"`+file.ETag+`"`)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) serveZip(c *fiber.Ctx, prov provider.Provider, fp fspath.Path) error {
	z, err := provider.BuildZip(c.UserContext(), prov, fp)
	if err != nil {
		return err
	}

	name := fp.Name()
	if name == "" {
		name = c.Params("resource")
	}
	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{
		"filename": name + ".zip",
	}))
	return c.SendStream(z, -1)
}

func setDownloadHeaders(c *fiber.Ctx, name string) {
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{
		"filename": name,
	}))
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		c.Set(fiber.HeaderContentType, ct)
	} else {
		c.Set(fiber.HeaderContentType, "application/octet-stream")
	}
	c.Set("Accept-Ranges", "bytes")
}
