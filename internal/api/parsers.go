package api

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/floodgatehq/floodgate/internal/auth"
	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/floodgatehq/floodgate/internal/provider"
	"github.com/gofiber/fiber/v2"
)

// hasQuery reports bare-parameter presence (e.g. "?meta=" or "?zip").
func hasQuery(c *fiber.Ctx, key string) bool {
	return c.Context().QueryArgs().Has(key)
}

// rawEntityPath extracts the id_or_path tail with its load-bearing trailing
// slash intact.
func rawEntityPath(c *fiber.Ctx) (string, error) {
	raw := c.Params("*")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", gerrors.Newf(gerrors.KindInvalidPath, "undecodable path %q", raw)
	}
	return "/" + decoded, nil
}

// queryFlags captures the GET dispatch modifiers with the fixed precedence:
// meta wins over revisions; the singular version selects bytes and wins over
// revision.
type queryFlags struct {
	Meta        bool
	Revisions   bool
	Zip         bool
	Direct      bool
	Version     string
	DisplayName string
}

func parseQueryFlags(c *fiber.Ctx) queryFlags {
	flags := queryFlags{
		Meta:        hasQuery(c, "meta"),
		Zip:         hasQuery(c, "zip"),
		Direct:      hasQuery(c, "direct"),
		DisplayName: c.Query("displayName"),
	}
	flags.Revisions = !flags.Meta && (hasQuery(c, "revisions") || hasQuery(c, "versions"))

	flags.Version = c.Query("version")
	if flags.Version == "" {
		flags.Version = c.Query("revision")
	}
	return flags
}

// parseTokens collects the caller's auth surface. The cookie and view_only
// query parameters are relayed alongside the headers.
func parseTokens(c *fiber.Ctx) auth.Tokens {
	tokens := auth.Tokens{
		Cookie:   c.Get(fiber.HeaderCookie),
		ViewOnly: c.Query("view_only"),
	}
	if qc := c.Query("cookie"); qc != "" {
		tokens.Cookie = qc
	}

	authorization := c.Get(fiber.HeaderAuthorization)
	if v, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		tokens.Bearer = v
	} else if v, ok := strings.CutPrefix(authorization, "Basic "); ok {
		tokens.Basic = v
	}
	return tokens
}

// parseRange understands single-range "bytes=a-b" headers; multi-range
// requests are refused rather than silently mishandled.
func parseRange(header string) (*provider.Range, error) {
	if header == "" {
		return nil, nil
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unsupported range %q", header)
	}
	start, end, ok := strings.Cut(spec, "-")
	if !ok || start == "" {
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unsupported range %q", header)
	}

	from, err := strconv.ParseInt(start, 10, 64)
	if err != nil || from < 0 {
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unsupported range %q", header)
	}
	to := int64(-1)
	if end != "" {
		to, err = strconv.ParseInt(end, 10, 64)
		if err != nil || to < from {
			return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unsupported range %q", header)
		}
	}
	return &provider.Range{Start: from, End: to}, nil
}

// actionBody is the JSON body of POST move/copy/rename requests.
type actionBody struct {
	Action   string `json:"action"`
	Rename   string `json:"rename"`
	Path     string `json:"path"`
	Conflict string `json:"conflict"`
	Resource string `json:"resource"`
	Provider string `json:"provider"`
}

func parseActionBody(c *fiber.Ctx) (*actionBody, error) {
	var body actionBody
	if err := c.BodyParser(&body); err != nil {
		return nil, gerrors.Wrap(gerrors.KindInvalidArgument, "undecodable action body", err)
	}
	switch body.Action {
	case "rename":
		if body.Rename == "" {
			return nil, gerrors.New(gerrors.KindInvalidArgument, "rename requires a rename value")
		}
	case "move", "copy":
		if body.Path == "" {
			return nil, gerrors.New(gerrors.KindInvalidArgument, "move and copy require a destination path")
		}
	default:
		return nil, gerrors.Newf(gerrors.KindInvalidArgument, "unknown action %q", body.Action)
	}
	return &body, nil
}
