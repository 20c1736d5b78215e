package user

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aimedicare/aimedicare/internal/platform/apperror"
	"github.com/aimedicare/aimedicare/internal/platform/auth"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// bcrypt rejects inputs longer than 72 bytes, not characters.
	_ = v.RegisterValidation("bcryptlen", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= auth.MaxPasswordBytes
	})
	return v
}

// fieldMessages maps "field.tag" to the message shown to the client.
var fieldMessages = map[string]string{
	"name.required":            "Please tell us your name!",
	"name.min":                 "Please tell us your name!",
	"name.max":                 "A name must have at most 255 characters",
	"email.required":           "Please provide your email",
	"email.email":              "Please provide a valid email",
	"email.max":                "Please provide a valid email",
	"password.required":        "Please provide a password",
	"password.min":             "A password must have at least 8 characters",
	"password.bcryptlen":       "A password must be at most 72 bytes long",
	"passwordConfirm.required": "Please confirm your password",
	"passwordConfirm.eqfield":  "Passwords are not the same!",
	"passwordCurrent.required": "Please provide your current password",
}

// validateRequest runs struct validation and folds every failure into a
// single ValidationError.
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Unexpected(err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = "Invalid value for " + fe.Field()
		}
		msgs = append(msgs, msg)
	}
	return apperror.Wrap(apperror.KindValidation, "Invalid input data. "+strings.Join(msgs, ". "), err)
}
