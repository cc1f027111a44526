package api

import (
	"errors"
	"log/slog"

	gerrors "github.com/floodgatehq/floodgate/internal/errors"
	"github.com/gofiber/fiber/v2"
)

// RespondError sends the gateway error body for a classified error. Backend
// detail never leaks: unclassified errors surface as a bare UNEXPECTED.
func RespondError(c *fiber.Ctx, err error) error {
	var ge *gerrors.Error
	if !errors.As(err, &ge) {
		slog.ErrorContext(c.UserContext(), "unclassified error reached the handler", "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    gerrors.KindUnexpected.String(),
			"message": "an unexpected error occurred",
		})
	}

	body := fiber.Map{
		"code":    ge.Kind().String(),
		"message": ge.Message(),
	}
	if data := ge.Data(); len(data) > 0 {
		body["data"] = data
	}
	return c.Status(ge.Status()).JSON(body)
}
