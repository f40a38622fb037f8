package customers

import (
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/apperr"
)

type Customer struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

var ErrDuplicateEmail = apperr.Conflict(apperr.CodeDuplicate, "Email already exists")

type CreateInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (in *CreateInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return apperr.Validation("name is required")
	}
	return validateEmail(in.Email)
}

// UpdateInput is a partial update; nil fields are left unchanged.
type UpdateInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func (in *UpdateInput) Validate() error {
	if in.Name == nil && in.Email == nil && in.Phone == nil {
		return apperr.Validation("nothing to update")
	}
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return apperr.Validation("name must not be empty")
		}
		in.Name = &n
	}
	if in.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*in.Email))
		if err := validateEmail(e); err != nil {
			return err
		}
		in.Email = &e
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return apperr.Validation("email is invalid")
	}
	return nil
}
