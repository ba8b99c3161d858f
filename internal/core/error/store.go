package errx

import (
	"errors"
	"net/http"

	"gorm.io/gorm"
)

// WrapStore maps gorm errors to AppError with appropriate status codes.
func WrapStore(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return New(err, http.StatusNotFound, StoreNotFoundMessage)
	}

	return New(err, http.StatusInternalServerError, StoreErrorMessage)
}
