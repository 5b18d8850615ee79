package audit

import (
	"errors"
	"net/url"

	"github.com/vbrik/cta-data-relay/core/catalog"
	"github.com/vbrik/cta-data-relay/core/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for audits.
type Handler struct {
	service *Service
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the audit routes.
func (h *Handler) RegisterRoutes(app fiber.Router) {
	group := app.Group("/audit")
	group.Get("/objects", h.HandleObjects)
	group.Get("/objects/:key", h.HandleObject)
	group.Get("/diff/archive", h.HandleDiffArchive)
	group.Get("/diff/local", h.HandleDiffLocal)
	group.Get("/plan/upload", h.HandlePlanUpload)
	group.Get("/plan/relay", h.HandlePlanRelay)
	group.Post("/refresh", h.HandleRefresh)
}

// HandleObjects lists the object store with lifecycle states.
func (h *Handler) HandleObjects(c *fiber.Ctx) error {
	objects, err := h.service.Objects(c.Context())
	if err != nil {
		return h.fail(c, "Object listing failed", err)
	}

	type entry struct {
		catalog.InventoryRecord
		State catalog.State `json:"state"`
	}
	out := make([]entry, len(objects))
	staged := 0
	for i, rec := range objects {
		out[i] = entry{InventoryRecord: rec, State: catalog.ObjectState(rec)}
		if out[i].State == catalog.Staged {
			staged++
		}
	}
	return c.JSON(fiber.Map{
		"count":   len(out),
		"staged":  staged,
		"objects": out,
	})
}

// HandleObject shows one object's metadata.
func (h *Handler) HandleObject(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid key"})
	}
	rec, err := h.service.Object(c.Context(), key)
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return h.fail(c, "Stat failed", err)
	}
	return c.JSON(fiber.Map{
		"object": rec,
		"state":  catalog.ObjectState(rec),
	})
}

// HandleDiffArchive compares the object store with the archive.
func (h *Handler) HandleDiffArchive(c *fiber.Ctx) error {
	res, err := h.service.DiffArchive(c.Context())
	if err != nil {
		return h.fail(c, "Archive diff failed", err)
	}
	return c.JSON(fiber.Map{
		"only_objects": res.OnlyA,
		"only_archive": res.OnlyB,
		"mismatched":   res.Mismatched,
		"consistent":   res.Clean(),
	})
}

// HandleDiffLocal compares a local path with the object store.
func (h *Handler) HandleDiffLocal(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}
	res, err := h.service.DiffLocal(c.Context(), path)
	if err != nil {
		return h.fail(c, "Local diff failed", err)
	}
	return c.JSON(fiber.Map{
		"only_local":   res.OnlyA,
		"only_objects": res.OnlyB,
		"mismatched":   res.Mismatched,
		"consistent":   res.Clean(),
	})
}

// HandlePlanUpload returns the work set of an upload.
func (h *Handler) HandlePlanUpload(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path is required"})
	}
	plan, err := h.service.PlanUpload(c.Context(), path)
	if err != nil {
		return h.fail(c, "Upload planning failed", err)
	}
	return c.JSON(plan)
}

// HandlePlanRelay returns the work set of a relay.
func (h *Handler) HandlePlanRelay(c *fiber.Ctx) error {
	plan, err := h.service.PlanRelay(c.Context())
	if err != nil {
		return h.fail(c, "Relay planning failed", err)
	}
	return c.JSON(plan)
}

// HandleRefresh drops cached inventories so the next request lists again.
func (h *Handler) HandleRefresh(c *fiber.Ctx) error {
	var paths []string
	if p := c.Query("path"); p != "" {
		paths = append(paths, p)
	}
	h.service.Refresh(paths...)
	logger.WithRayID(h.service.logger, c).Info("Audit cache refreshed")
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) fail(c *fiber.Ctx, msg string, err error) error {
	logger.WithRayID(h.service.logger, c).Error(msg, zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}
