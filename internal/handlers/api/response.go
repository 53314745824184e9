package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"wikimod/internal/moderation"
)

// jsonSuccess returns a 200 response with data wrapped in the standard envelope.
func jsonSuccess(c fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"data":   data,
	})
}

// jsonError returns an error response with the given HTTP status code.
func jsonError(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"status": "error",
		"error":  message,
	})
}

// jsonModerationError reports a failed moderation action by its message key.
func jsonModerationError(c fiber.Ctx, err error) error {
	return jsonError(c, moderationStatus(err), moderation.MessageKey(err))
}

func moderationStatus(err error) int {
	switch {
	case errors.Is(err, moderation.ErrEntryNotFound),
		errors.Is(err, moderation.ErrNothingToApprove),
		errors.Is(err, moderation.ErrNothingToReject):
		return fiber.StatusNotFound
	case errors.Is(err, moderation.ErrAlreadyMerged),
		errors.Is(err, moderation.ErrRejectedTooLongAgo),
		errors.Is(err, moderation.ErrEditConflict),
		errors.Is(err, moderation.ErrNotConflicted):
		return fiber.StatusConflict
	case errors.Is(err, moderation.ErrMissingStashedUpload):
		return fiber.StatusGone
	}
	return fiber.StatusInternalServerError
}
