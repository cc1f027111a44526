package api

import (
	"github.com/floodgatehq/floodgate/internal/metadata"
	"github.com/gofiber/fiber/v2"
)

// entityURL materialises the canonical URL of an entity.
func entityURL(resource, providerName, path string) string {
	return "/v1/resources/" + resource + "/providers/" + providerName + path
}

// buildEntity shapes one metadata item into the JSON-API-like form with its
// action links.
func buildEntity(resource, providerName string, item metadata.Item) fiber.Map {
	self := entityURL(resource, providerName, item.ItemPath())

	links := fiber.Map{
		"self":   self,
		"move":   self,
		"delete": self,
	}

	attributes := fiber.Map{
		"name":     item.ItemName(),
		"path":     item.ItemPath(),
		"provider": item.ProviderName(),
	}
	if extra := item.ExtraFields(); len(extra) > 0 {
		attributes["extra"] = extra
	}

	entityType := "folders"
	if file, ok := item.(*metadata.File); ok {
		entityType = "files"
		attributes["kind"] = "file"
		attributes["size"] = file.Size
		attributes["content_type"] = file.ContentType
		attributes["modified"] = file.Modified
		if file.Created != "" {
			attributes["created"] = file.Created
		}
		attributes["etag"] = file.ETag
		attributes["hashes"] = file.Hashes
		links["upload"] = self + "?kind=file"
		links["download"] = self
	} else {
		attributes["kind"] = "folder"
		links["new_folder"] = self + "?kind=folder"
		links["upload"] = self + "?kind=file"
	}

	return fiber.Map{
		"id":         providerName + item.ItemPath(),
		"type":       entityType,
		"attributes": attributes,
		"links":      links,
	}
}

// RespondEntity sends a single entity with the given status.
func RespondEntity(c *fiber.Ctx, status int, resource, providerName string, item metadata.Item) error {
	return c.Status(status).JSON(fiber.Map{
		"data": buildEntity(resource, providerName, item),
	})
}

// RespondEntityWithWarning sends a single entity plus a warning note
// (partial-move reporting).
func RespondEntityWithWarning(c *fiber.Ctx, status int, resource, providerName string, item metadata.Item, warning string) error {
	body := fiber.Map{
		"data": buildEntity(resource, providerName, item),
	}
	if warning != "" {
		body["warning"] = warning
	}
	return c.Status(status).JSON(body)
}

// RespondListing sends a folder listing.
func RespondListing(c *fiber.Ctx, resource, providerName string, items []metadata.Item) error {
	entities := make([]fiber.Map, 0, len(items))
	for _, item := range items {
		entities = append(entities, buildEntity(resource, providerName, item))
	}
	return c.JSON(fiber.Map{
		"data": entities,
	})
}

// RespondRevisions sends a file's revision history.
func RespondRevisions(c *fiber.Ctx, revisions []*metadata.Revision) error {
	entities := make([]fiber.Map, 0, len(revisions))
	for _, rev := range revisions {
		attributes := fiber.Map{
			"version":  rev.Version,
			"modified": rev.Modified,
		}
		if rev.Author != "" {
			attributes["author"] = rev.Author
		}
		if len(rev.Extra) > 0 {
			attributes["extra"] = rev.Extra
		}
		entities = append(entities, fiber.Map{
			"id":         rev.Version,
			"type":       "revisions",
			"attributes": attributes,
		})
	}
	return c.JSON(fiber.Map{
		"data": entities,
	})
}
