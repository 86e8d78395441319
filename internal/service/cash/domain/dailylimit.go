// internal/service/cash/domain/dailylimit.go
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// 每用户每天的限额与冷却常量。
const (
	MaxDailyEarn       = 1000 // 单日最大发放金额
	MaxDailyEarnCount  = 20   // 单日最大发放次数
	MaxRandomEarnCount = 10   // 单日最大抽奖次数

	EarnRateLimit       = 60 * time.Second
	RandomEarnRateLimit = 60 * time.Second
	SpendRateLimit      = 30 * time.Second
)

// DateKey 是 DailyLimit 的自然键日期部分，本地日期，格式 2006-01-02。
// 按日期分行意味着限额在日期翻转时自然重置，不需要清零任务。
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// DailyLimit 是 (userId, date) 粒度的可变计数器。
// 读取缺行时用 NewDailyLimit 生成零值实例做判断，只有 record* 系列方法才落库。
type DailyLimit struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Date   string

	TodayEarned            int
	TodayEarnedCount       int
	TodayRandomEarnedCount int
	TodaySpent             int

	LastEarnAt       *time.Time
	LastRandomEarnAt *time.Time
	LastSpendAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDailyLimit 创建当日的零值计数器，尚未持久化。
func NewDailyLimit(userID uuid.UUID, date string) *DailyLimit {
	now := time.Now()
	return &DailyLimit{
		ID:        uuid.New(),
		UserID:    userID,
		Date:      date,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CanEarn 检查再发放 amount 是否仍在单日限额内。
func (d *DailyLimit) CanEarn(amount int) bool {
	return d.TodayEarned+amount <= MaxDailyEarn && d.TodayEarnedCount < MaxDailyEarnCount
}

// CanRandomEarn 检查抽奖次数是否仍有余量。
func (d *DailyLimit) CanRandomEarn() bool {
	return d.TodayRandomEarnedCount < MaxRandomEarnCount
}

// IsEarnRateLimited 距上次发放不足冷却窗口时返回 true。
func (d *DailyLimit) IsEarnRateLimited(now time.Time) bool {
	return d.LastEarnAt != nil && now.Sub(*d.LastEarnAt) < EarnRateLimit
}

func (d *DailyLimit) IsRandomEarnRateLimited(now time.Time) bool {
	return d.LastRandomEarnAt != nil && now.Sub(*d.LastRandomEarnAt) < RandomEarnRateLimit
}

func (d *DailyLimit) IsSpendRateLimited(now time.Time) bool {
	return d.LastSpendAt != nil && now.Sub(*d.LastSpendAt) < SpendRateLimit
}

// RecordEarn 记录一次发放。调用方必须先检查 CanEarn，
// 这里的再次断言用于捕获绕过检查的编程错误，不是用户可见错误。
func (d *DailyLimit) RecordEarn(amount int, now time.Time) error {
	if !d.CanEarn(amount) {
		return fmt.Errorf("daily limit invariant violated: earned=%d count=%d amount=%d",
			d.TodayEarned, d.TodayEarnedCount, amount)
	}
	d.TodayEarned += amount
	d.TodayEarnedCount++
	d.LastEarnAt = &now
	d.UpdatedAt = now
	return nil
}

// RecordRandomEarn 记录一次抽奖。未中奖同样计数。
func (d *DailyLimit) RecordRandomEarn(now time.Time) error {
	if !d.CanRandomEarn() {
		return fmt.Errorf("random earn invariant violated: count=%d", d.TodayRandomEarnedCount)
	}
	d.TodayRandomEarnedCount++
	d.LastRandomEarnAt = &now
	d.UpdatedAt = now
	return nil
}

// RecordSpend 记录一次消耗。消耗没有单日上限，只受冷却窗口约束。
func (d *DailyLimit) RecordSpend(amount int, now time.Time) {
	d.TodaySpent += amount
	d.LastSpendAt = &now
	d.UpdatedAt = now
}

func (d *DailyLimit) RemainingEarnLimit() int {
	return max(0, MaxDailyEarn-d.TodayEarned)
}

func (d *DailyLimit) RemainingEarnCount() int {
	return max(0, MaxDailyEarnCount-d.TodayEarnedCount)
}

func (d *DailyLimit) RemainingRandomEarnCount() int {
	return max(0, MaxRandomEarnCount-d.TodayRandomEarnedCount)
}
