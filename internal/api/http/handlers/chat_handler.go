package handlers

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nexus-chat/moderation-service/internal/api/dto"
	"github.com/nexus-chat/moderation-service/internal/auth"
	"github.com/nexus-chat/moderation-service/internal/domain"
	"github.com/nexus-chat/moderation-service/internal/service"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const maxImageBytes = 4 << 20

var imageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// ChatHandler exposes message submission and channel history.
type ChatHandler struct {
	chat *service.ChatService
}

// NewChatHandler constructs handler.
func NewChatHandler(chat *service.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// PostMessage handles POST /chat/messages.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.PostMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	outcome, err := h.chat.PostText(c.UserContext(), principal.Session, req.ChannelID, req.Text)
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome)
}

// PostImage handles POST /chat/images as multipart form data with an
// "image" file and a "channel_id" field.
func (h *ChatHandler) PostImage(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "image file required")
	}
	if fh.Size > maxImageBytes {
		return fiber.NewError(http.StatusRequestEntityTooLarge, "image too large")
	}
	contentType := strings.ToLower(fh.Header.Get("Content-Type"))
	if _, ok := imageTypes[contentType]; !ok {
		return fiber.NewError(http.StatusUnsupportedMediaType, "unsupported image type")
	}

	f, err := fh.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer f.Close()
	image, err := io.ReadAll(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	outcome, err := h.chat.PostImage(c.UserContext(), principal.Session, c.FormValue("channel_id"), image, contentType)
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome)
}

// ListMessages handles GET /chat/channels/:id/messages.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.chat.History(c.UserContext(), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewMessageList(msgs)})
}

// SanctionStatus handles GET /me/sanction.
func (h *ChatHandler) SanctionStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	status, user, err := h.chat.SanctionStatus(c.UserContext(), principal.Session.Username)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user":     dto.NewUserResponse(user),
			"sanction": dto.NewSanctionStatusResponse(status, user, time.Now()),
		},
	})
}

// respondOutcome maps a pipeline outcome to a status code. Sanctions are
// 403, or 429 when the user was rate limited.
func respondOutcome(c *fiber.Ctx, outcome domain.Outcome) error {
	status := http.StatusOK
	switch outcome.Kind {
	case domain.OutcomeAccepted:
		status = http.StatusCreated
	case domain.OutcomeRejected:
		status = http.StatusUnprocessableEntity
		if outcome.Code == apperrors.CodeAdminTargetNotFound {
			status = http.StatusNotFound
		}
	case domain.OutcomeSanctioned:
		status = http.StatusForbidden
		if outcome.Code == apperrors.CodeRateExceeded {
			status = http.StatusTooManyRequests
		}
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewOutcomeResponse(outcome, time.Now())})
}
