package services

import (
	"fmt"
	"strings"

	"vetchat/domain"
	"vetchat/errors"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("userid", func(fl validator.FieldLevel) bool {
		return domain.ValidUserID(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type SendMessageCommand struct {
	SenderID       string  `validate:"userid"`
	RecipientID    string  `validate:"required,userid,nefield=SenderID"`
	Content        string  `validate:"notblank"`
	ConversationID *string `validate:"omitempty,uuid"`
	// ConnectionID is the handle the message was sent from; it gets no echo.
	ConnectionID string
}

type StartConversationCommand struct {
	UserID        string `validate:"userid"`
	ParticipantID string `validate:"required,userid,nefield=UserID"`
}

type MarkReadCommand struct {
	UserID         string `validate:"userid"`
	ConversationID string `validate:"required,uuid"`
}

type GetMessagesCommand struct {
	UserID         string `validate:"userid"`
	ConversationID string `validate:"required,uuid"`
	Limit          int    `validate:"gte=0"`
	Before         *string
}

func validateSend(cmd SendMessageCommand, maxContentLength int) error {
	if err := validate.Struct(cmd); err != nil {
		return invalid(err)
	}
	// max counts runes for strings
	if err := validate.Var(cmd.Content, fmt.Sprintf("max=%d", maxContentLength)); err != nil {
		return fmt.Errorf("%w: content exceeds %d characters", errors.ErrInvalidArgument, maxContentLength)
	}
	return nil
}

func validateCommand(cmd any) error {
	if err := validate.Struct(cmd); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	messages := lo.Map(fieldErrors, func(fe validator.FieldError, _ int) string {
		return fieldMessage(fe)
	})
	return fmt.Errorf("%w: %s", errors.ErrInvalidArgument, strings.Join(lo.Uniq(messages), ", "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "notblank":
		return "content must not be empty"
	case "nefield":
		return "sender and recipient must be different users"
	case "userid":
		return fe.Field() + " is not a valid user id"
	case "uuid":
		return fe.Field() + " is not a valid conversation id"
	default:
		return fe.Field() + " is invalid"
	}
}
