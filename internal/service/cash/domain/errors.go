// internal/service/cash/domain/errors.go
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 积分域的错误分类。全部是调用方可恢复的确定性错误，
// 核心不做自动重试，由 interfaces 层映射成 HTTP 状态码。
var (
	ErrAccountNotFound         = errors.New("cash account not found")
	ErrInvalidAmount           = errors.New("amount must be positive")
	ErrInsufficientBalance     = errors.New("insufficient cash balance")
	ErrDailyLimitExceeded      = errors.New("daily earn limit exceeded")
	ErrRandomEarnLimitExceeded = errors.New("daily random earn limit exceeded")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrDuplicateSourceID       = errors.New("source id already processed")
	ErrMissingSourceID         = errors.New("source id is required")
	ErrFraudSuspected          = errors.New("fraudulent activity suspected")
	ErrInvalidSource           = errors.New("invalid earn source")
	ErrInvalidPurpose          = errors.New("invalid spend purpose")
	ErrInvalidDateRange        = errors.New("invalid date range")
)

// RateLimitedError 携带建议的重试等待时长。
// errors.Is(err, ErrRateLimited) 对它成立。
type RateLimitedError struct {
	Action     string // EARN / RANDOM_EARN / SPEND
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Action, e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// DuplicateSourceIDError 引用已处理过该 sourceId 的流水。
// errors.Is(err, ErrDuplicateSourceID) 对它成立。
type DuplicateSourceIDError struct {
	SourceID              string
	PreviousTransactionID uuid.UUID
}

func (e *DuplicateSourceIDError) Error() string {
	return fmt.Sprintf("source %s already processed by transaction %s", e.SourceID, e.PreviousTransactionID)
}

func (e *DuplicateSourceIDError) Is(target error) bool {
	return target == ErrDuplicateSourceID
}
