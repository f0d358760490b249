package server

import (
	"errors"
	"log/slog"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/rbaliyan/gamemail"
	"github.com/rbaliyan/gamemail/auth"
	"github.com/rbaliyan/gamemail/store"
)

type handlers struct {
	mail   gamemail.Service
	auth   *auth.Service
	logger *slog.Logger
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type attachmentPayload struct {
	Type     string         `json:"type"`
	ItemID   *int64         `json:"item_id,omitempty"`
	ItemName string         `json:"item_name,omitempty"`
	Quantity *float64       `json:"quantity,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

type sendPayload struct {
	RecipientID int64               `json:"recipient_id"`
	Subject     string              `json:"subject"`
	Body        string              `json:"body"`
	Attachments []attachmentPayload `json:"attachments,omitempty"`
}

func (h *handlers) register(c *fiber.Ctx) error {
	var req registerPayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	user, err := h.auth.Register(c.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		return h.authError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"user": user})
}

func (h *handlers) login(c *fiber.Ctx) error {
	var req loginPayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	user, token, err := h.auth.Login(c.Context(), req.Username, req.Password)
	if err != nil {
		return h.authError(c, err)
	}
	return c.JSON(fiber.Map{"token": token, "user": user})
}

func (h *handlers) send(c *fiber.Ctx) error {
	var req sendPayload
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	attachments := make([]store.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		// Quantity defaults to 1 when omitted; an explicit zero is kept.
		quantity := 1.0
		if a.Quantity != nil {
			quantity = *a.Quantity
		}
		attachments = append(attachments, store.Attachment{
			Type:     a.Type,
			ItemID:   a.ItemID,
			ItemName: a.ItemName,
			Quantity: quantity,
			Data:     a.Data,
		})
	}

	msg, err := h.mailbox(c).Send(c.Context(), gamemail.SendRequest{
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Body:        req.Body,
		Attachments: attachments,
	})
	if err != nil {
		return h.mailError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": msg})
}

func (h *handlers) inbox(c *fiber.Ctx) error {
	list, err := h.mailbox(c).Inbox(c.Context(), listOptions(c))
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(list)
}

func (h *handlers) sent(c *fiber.Ctx) error {
	list, err := h.mailbox(c).Sent(c.Context(), listOptions(c))
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(list)
}

func (h *handlers) get(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}
	msg, err := h.mailbox(c).Get(c.Context(), id)
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

func (h *handlers) markRead(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}
	msg, err := h.mailbox(c).MarkRead(c.Context(), id)
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

func (h *handlers) delete(c *fiber.Ctx) error {
	id, err := messageID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid message id"})
	}
	if err := h.mailbox(c).Delete(c.Context(), id); err != nil {
		return h.mailError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) unreadCount(c *fiber.Ctx) error {
	count, err := h.mailbox(c).UnreadCount(c.Context())
	if err != nil {
		return h.mailError(c, err)
	}
	return c.JSON(fiber.Map{"unread": count})
}

func (h *handlers) health(c *fiber.Ctx) error {
	if !h.mail.IsConnected() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// mailbox returns the authenticated user's mailbox. requireAuth has
// already stored the user ID in the request locals.
func (h *handlers) mailbox(c *fiber.Ctx) gamemail.Mailbox {
	userID, _ := c.Locals(localUserID).(int64)
	return h.mail.Mailbox(userID)
}

// mailError maps mail service errors to HTTP responses. Rate-limit
// rejections carry a Retry-After header.
func (h *handlers) mailError(c *fiber.Ctx, err error) error {
	status := gamemail.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", c.Locals("request_id"),
			"path", c.Path(),
			"error", err)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	var rateErr *gamemail.RateLimitError
	if errors.As(err, &rateErr) && rateErr.RetryAfter > 0 {
		seconds := int(math.Ceil(rateErr.RetryAfter.Seconds()))
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

// authError maps auth errors to HTTP responses.
func (h *handlers) authError(c *fiber.Ctx, err error) error {
	var status int
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = fiber.StatusUnauthorized
	case errors.Is(err, auth.ErrInactiveUser):
		status = fiber.StatusForbidden
	case errors.Is(err, auth.ErrUserExists):
		status = fiber.StatusConflict
	default:
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func messageID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, store.ErrInvalidID
	}
	return id, nil
}

func listOptions(c *fiber.Ctx) store.ListOptions {
	return store.ListOptions{
		Skip:       c.QueryInt("skip", 0),
		Limit:      c.QueryInt("limit", 0),
		UnreadOnly: c.QueryBool("unread", false),
	}
}
