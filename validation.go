package gamemail

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// validateSendRequest checks a send request against the configured
// message limits. Field errors are returned as *ValidationError.
func validateSendRequest(req *SendRequest, limits MessageLimits) error {
	if req.RecipientID <= 0 {
		return &ValidationError{Field: "recipient_id", Message: "must be positive"}
	}

	if err := validateSubject(req.Subject, limits); err != nil {
		return err
	}
	if err := validateBody(req.Body, limits); err != nil {
		return err
	}
	return validateAttachments(req.Attachments, limits)
}

func validateSubject(subject string, limits MessageLimits) error {
	if strings.TrimSpace(subject) == "" {
		return &ValidationError{Field: "subject", Message: "must not be empty"}
	}
	if n := utf8.RuneCountInString(subject); n > limits.MaxSubjectLength {
		return &ValidationError{
			Field:   "subject",
			Message: fmt.Sprintf("too long: %d characters (max %d)", n, limits.MaxSubjectLength),
		}
	}
	return nil
}

func validateBody(body string, limits MessageLimits) error {
	if strings.TrimSpace(body) == "" {
		return &ValidationError{Field: "body", Message: "must not be empty"}
	}
	if len(body) > limits.MaxBodySize {
		return &ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("too large: %d bytes (max %d)", len(body), limits.MaxBodySize),
		}
	}
	return nil
}

func validateAttachments(attachments []Attachment, limits MessageLimits) error {
	if len(attachments) > limits.MaxAttachmentCount {
		return &ValidationError{
			Field:   "attachments",
			Message: fmt.Sprintf("too many: %d (max %d)", len(attachments), limits.MaxAttachmentCount),
		}
	}
	for i, att := range attachments {
		if strings.TrimSpace(att.Type) == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("attachments[%d].type", i),
				Message: "must not be empty",
			}
		}
		if att.Quantity < 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("attachments[%d].quantity", i),
				Message: "must not be negative",
			}
		}
	}
	return nil
}
