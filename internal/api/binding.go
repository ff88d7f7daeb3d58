package api

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/aethra/makazi/internal/errors"
	"github.com/aethra/makazi/internal/validation"
)

var bindingOnce sync.Once

// configureBinding gives gin's validator the json field names and the extra
// rules the services use
func configureBinding() {
	bindingOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			validation.Configure(v)
		}
	})
}

// bindError maps a ShouldBind failure to a response error. Rule failures
// become the 422 field map; anything else is a malformed body.
func bindError(err error) error {
	if fields, ok := validation.FieldErrors(err); ok {
		return apperrors.NewValidationError(fields)
	}
	return apperrors.NewBadRequestError("invalid request body")
}
