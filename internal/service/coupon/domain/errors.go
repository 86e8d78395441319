// internal/service/coupon/domain/errors.go
package domain

import "errors"

var (
	ErrCouponNotFound        = errors.New("coupon not found")
	ErrCouponNotActive       = errors.New("coupon is not active")
	ErrCouponAlreadyUsed     = errors.New("coupon has already been used")
	ErrCouponExpired         = errors.New("coupon has expired")
	ErrCouponNotCancellable  = errors.New("coupon cannot be cancelled")
	ErrCouponNotCancelled    = errors.New("coupon must be cancelled before refund")
	ErrInvalidRefundAmount   = errors.New("invalid refund amount")
	ErrInvalidCouponData     = errors.New("invalid coupon data")
	ErrInvalidExpirationDate = errors.New("invalid expiration date")
	ErrCouponAccessDenied    = errors.New("access denied to this coupon")
	ErrInvalidDateRange      = errors.New("invalid date range")
)
