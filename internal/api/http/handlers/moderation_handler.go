package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/nexus-chat/moderation-service/internal/api/dto"
	"github.com/nexus-chat/moderation-service/internal/audit"
	"github.com/nexus-chat/moderation-service/internal/auth"
	"github.com/nexus-chat/moderation-service/internal/service"
)

// ModerationHandler exposes the owner-only moderation surface.
type ModerationHandler struct {
	chat  *service.ChatService
	audit *audit.Log
}

// NewModerationHandler constructs handler.
func NewModerationHandler(chat *service.ChatService, auditLog *audit.Log) *ModerationHandler {
	return &ModerationHandler{chat: chat, audit: auditLog}
}

// Audit handles GET /moderation/audit?after=<cursor>&limit=<n>.
func (h *ModerationHandler) Audit(c *fiber.Ctx) error {
	entries, err := h.audit.List(c.UserContext(), c.Query("after"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditList(entries)})
}

// Command handles POST /moderation/commands.
func (h *ModerationHandler) Command(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if strings.TrimSpace(req.Command) == "" {
		return fiber.NewError(http.StatusBadRequest, "command required")
	}

	outcome, err := h.chat.ExecuteCommand(c.UserContext(), principal.Session, req.Command)
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome)
}

// Reset handles POST /moderation/users/:username/reset.
func (h *ModerationHandler) Reset(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	username := strings.TrimSpace(c.Params("username"))
	if username == "" || strings.ContainsAny(username, " \t") {
		return fiber.NewError(http.StatusBadRequest, "invalid username")
	}

	outcome, err := h.chat.ResetUser(c.UserContext(), principal.Session, username)
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome)
}
