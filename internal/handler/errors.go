package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/yumyard-cafe/internal/domain/assistant"
	"github.com/xenking/yumyard-cafe/internal/domain/auth"
	"github.com/xenking/yumyard-cafe/internal/domain/cart"
	"github.com/xenking/yumyard-cafe/internal/domain/coupon"
	"github.com/xenking/yumyard-cafe/internal/domain/customer"
	"github.com/xenking/yumyard-cafe/internal/domain/menu"
	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

var (
	badRequest = []error{
		errBadBody,
		order.ErrInvalidMode, order.ErrServiceTypeMode, order.ErrInvalidServiceType,
		order.ErrEmptyItems, order.ErrEmailRequired, order.ErrPhoneRequired,
		order.ErrDeliveryLocation, order.ErrInvalidPaymentMethod, order.ErrInvalidStatus,
		order.ErrInvalidPaymentStatus, order.ErrRiderIncomplete,
		menu.ErrNameRequired, menu.ErrCategoryRequired, menu.ErrNegativePrice,
		customer.ErrEmailRequired,
		assistant.ErrCartEmpty, assistant.ErrEmailMissing, assistant.ErrPhoneMissing,
	}
	notFound = []error{
		menu.ErrNotFound, order.ErrNotFound, customer.ErrNotFound, cart.ErrLineNotFound,
		assistant.ErrUnknownItem,
	}
	unprocessable = []error{
		coupon.ErrInvalidCoupon, order.ErrDuplicateCode,
	}
	unauthorized = []error{
		auth.ErrInvalidCode, auth.ErrCodeUsed, auth.ErrCodeExpired, auth.ErrTokenInvalid,
	}
)

// statusOf maps a domain error to its HTTP status. Zero means unknown.
func statusOf(err error) int {
	var (
		verrs       validator.ValidationErrors
		quantityErr *order.InvalidQuantityError
		unavailable *cart.UnavailableError
	)
	switch {
	case errors.As(err, &verrs), errors.As(err, &quantityErr):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusUnprocessableEntity
	case matchAny(err, badRequest):
		return http.StatusBadRequest
	case matchAny(err, notFound):
		return http.StatusNotFound
	case matchAny(err, unprocessable):
		return http.StatusUnprocessableEntity
	case matchAny(err, unauthorized):
		return http.StatusUnauthorized
	}
	return 0
}

func matchAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// writeError responds with the status of a known domain error and its
// message, or logs the error and responds 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status := statusOf(err); status != 0 {
		writeStatus(w, status, message(err))
		return
	}
	zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	writeStatus(w, http.StatusInternalServerError, "internal error")
}

// message returns the caller-facing text of a known error: the innermost
// domain message, without wrapping context.
func message(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": " + fe.Tag()
	}
	var quantityErr *order.InvalidQuantityError
	if errors.As(err, &quantityErr) {
		return quantityErr.Error()
	}
	var unavailable *cart.UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Error()
	}
	for _, group := range [][]error{badRequest, notFound, unprocessable, unauthorized} {
		for _, t := range group {
			if errors.Is(err, t) {
				return t.Error()
			}
		}
	}
	return err.Error()
}
