package bot

import (
	"errors"

	"taskbot/internal/domain"
)

// UserMessage maps err to the MarkdownV2 reply shown to the user. The
// underlying error text is never included.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrTaskExists):
		return "❌ A task with this name already exists\\. Please choose a different name\\."
	case errors.Is(err, domain.ErrTaskNotFound):
		return "❌ Task not found\\. Use /list to see all available tasks\\."
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "❌ Unable to reach X\\.AI service\\. Please try again later\\."
	case errors.Is(err, domain.ErrInvalidInput):
		return "❌ Invalid parameters provided\\. Please check the command format and try again\\."
	case errors.Is(err, domain.ErrDateParse):
		return "❌ Error processing date information\\. Please try again later\\."
	case errors.Is(err, domain.ErrPermissionDenied):
		return "❌ This command is restricted to the bot owner\\."
	case errors.Is(err, domain.ErrStorage):
		return "❌ Unable to process your request\\. Please try again later\\."
	case errors.Is(err, domain.ErrTransport):
		return "❌ Unable to send message\\. Please try again later\\."
	}
	return "❌ An unexpected error occurred\\. Please try again later\\."
}
