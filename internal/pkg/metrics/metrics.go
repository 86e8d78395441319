// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 核心业务指标。promauto 在包加载时完成注册，
// cmd 层只需要挂一个 promhttp.Handler 即可。
var (
	// CashEarnedTotal 按来源统计的累计积分发放量
	CashEarnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cash_earned_amount_total",
		Help: "Total amount of cash credited, labelled by earn source.",
	}, []string{"source"})

	// CashSpentTotal 按用途统计的累计积分消耗量
	CashSpentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cash_spent_amount_total",
		Help: "Total amount of cash debited, labelled by spend purpose.",
	}, []string{"purpose"})

	// RandomEarnAttemptsTotal 随机抽奖次数，result ∈ {win, lose}
	RandomEarnAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cash_random_earn_attempts_total",
		Help: "Random earn attempts, labelled by result (win/lose).",
	}, []string{"source", "result"})

	// CommandRejectedTotal 被风控/限额拒绝的命令数
	CommandRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cash_command_rejected_total",
		Help: "Commands rejected before mutation, labelled by reason.",
	}, []string{"reason"})

	// CouponIssuedTotal 按发放方式统计的优惠券发放数
	CouponIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_issued_total",
		Help: "Coupons issued, labelled by issue type.",
	}, []string{"issue_type"})

	// CouponTransitionTotal 优惠券状态迁移计数
	CouponTransitionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coupon_state_transition_total",
		Help: "Coupon state transitions, labelled by target state.",
	}, []string{"to_state"})

	// CashInSystem 全系统余额快照，由对账任务周期刷新
	CashInSystem = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cash_in_system_balance",
		Help: "Snapshot of the total cash balance across all accounts.",
	})
)
