package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = newValidator()

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type attachmentRequest struct {
	Filename  string  `json:"filename" validate:"required"`
	URL       string  `json:"url" validate:"required"`
	MimeType  string  `json:"mimeType"`
	Size      int64   `json:"size" validate:"gte=0"`
	Thumbnail string  `json:"thumbnail"`
	Width     int     `json:"width" validate:"gte=0"`
	Height    int     `json:"height" validate:"gte=0"`
	Duration  float64 `json:"duration" validate:"gte=0"`
}

type sendRequest struct {
	Content     string              `json:"content"`
	MessageType string              `json:"messageType" validate:"omitempty,oneof=text image video audio file"`
	ReplyTo     string              `json:"replyTo" validate:"omitempty,len=24,hexadecimal"`
	Attachments []attachmentRequest `json:"attachments" validate:"dive"`
}

func (r sendRequest) attachments() []domain.Attachment {
	out := make([]domain.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		out = append(out, domain.Attachment{
			Filename:  a.Filename,
			URL:       a.URL,
			MimeType:  a.MimeType,
			Size:      a.Size,
			Thumbnail: a.Thumbnail,
			Width:     a.Width,
			Height:    a.Height,
			Duration:  a.Duration,
		})
	}
	return out
}

type editRequest struct {
	Content string `json:"content" validate:"required"`
}

type reactRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

type forwardRequest struct {
	ChatID string `json:"chatId" validate:"required,len=24,hexadecimal"`
}

// bind parses the JSON body into v and validates it.
func bind(c *fiber.Ctx, v interface{}) error {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(v); err != nil {
			return domain.Invalidf("invalid request body")
		}
	}
	if err := validate.Struct(v); err != nil {
		return domain.Invalidf("%s", describe(err))
	}
	return nil
}

func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "len", "hexadecimal":
		return fmt.Sprintf("%s is not a valid id", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}
