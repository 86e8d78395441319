// internal/service/cash/domain/reward.go
package domain

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
)

// RewardTier 是中奖后的奖励档位。
type RewardTier string

const (
	TierLegendary RewardTier = "LEGENDARY"
	TierEpic      RewardTier = "EPIC"
	TierRare      RewardTier = "RARE"
	TierUncommon  RewardTier = "UNCOMMON"
	TierCommon    RewardTier = "COMMON"
	TierNone      RewardTier = "NONE"
)

// RandomEarnConfig 是某个来源的抽奖参数。
type RandomEarnConfig struct {
	WinRate         float64
	PossibleAmounts []int
}

// RandomEarnOutcome 是一次抽奖的完整结果。
type RandomEarnOutcome struct {
	IsWinner        bool
	Amount          int
	Tier            RewardTier
	WinRate         float64
	PossibleAmounts []int
}

// RewardEngine 把一次抽奖请求映射为中奖结果。
// 无任何副作用；随机源可注入，默认使用 crypto/rand，
// 种子不可预测，防止客户端通过预测序列刷奖。
type RewardEngine struct {
	randFloat func() float64
}

// NewRewardEngine 创建使用密码学随机源的引擎。
func NewRewardEngine() *RewardEngine {
	return &RewardEngine{randFloat: cryptoFloat64}
}

// NewRewardEngineWithRand 注入自定义随机源，仅用于测试。
func NewRewardEngineWithRand(randFloat func() float64) *RewardEngine {
	return &RewardEngine{randFloat: randFloat}
}

// CalculateRandomEarn 执行一次抽奖：
// 第一次掷骰决定是否中奖，第二次独立掷骰在中奖后选档位。
func (e *RewardEngine) CalculateRandomEarn(source EarnSource) RandomEarnOutcome {
	cfg := ConfigForSource(source)

	if e.randFloat() >= cfg.WinRate {
		return RandomEarnOutcome{
			IsWinner:        false,
			Amount:          0,
			Tier:            TierNone,
			WinRate:         cfg.WinRate,
			PossibleAmounts: cfg.PossibleAmounts,
		}
	}

	tier := e.determineTier()
	return RandomEarnOutcome{
		IsWinner:        true,
		Amount:          selectAmountByTier(tier, cfg.PossibleAmounts),
		Tier:            tier,
		WinRate:         cfg.WinRate,
		PossibleAmounts: cfg.PossibleAmounts,
	}
}

// ConfigForSource 返回来源的抽奖参数。
// 未单独配置的来源使用 0.2 的中奖率和默认金额表。
func ConfigForSource(source EarnSource) RandomEarnConfig {
	switch source {
	case SourceLuckySpin:
		return RandomEarnConfig{WinRate: 0.3, PossibleAmounts: []int{50, 100, 150, 200, 500, 1000}}
	case SourceRandomReward:
		return RandomEarnConfig{WinRate: 0.25, PossibleAmounts: []int{30, 80, 120, 300, 800}}
	case SourceSurpriseBonus:
		return RandomEarnConfig{WinRate: 0.15, PossibleAmounts: []int{100, 200, 500, 1000, 2000}}
	default:
		return RandomEarnConfig{WinRate: 0.2, PossibleAmounts: []int{50, 100, 200}}
	}
}

// determineTier 在已中奖的前提下按累计阈值选档：
// 5% / 10% / 20% / 30% / 35%。
func (e *RewardEngine) determineTier() RewardTier {
	v := e.randFloat()
	switch {
	case v < 0.05:
		return TierLegendary
	case v < 0.15:
		return TierEpic
	case v < 0.35:
		return TierRare
	case v < 0.65:
		return TierUncommon
	default:
		return TierCommon
	}
}

// selectAmountByTier 把档位映射到升序金额表的固定位置，
// 表太短导致越界时退回各档位的保底金额。
func selectAmountByTier(tier RewardTier, possibleAmounts []int) int {
	sorted := make([]int, len(possibleAmounts))
	copy(sorted, possibleAmounts)
	sort.Ints(sorted)
	n := len(sorted)

	at := func(i, fallback int) int {
		if i >= 0 && i < n {
			return sorted[i]
		}
		return fallback
	}

	switch tier {
	case TierLegendary:
		return at(n-1, 100)
	case TierEpic:
		return at(n-2, 80)
	case TierRare:
		return at(n-3, 60)
	case TierUncommon:
		return at(n-4, 40)
	default:
		return at(0, 20)
	}
}

// cryptoFloat64 从 crypto/rand 取 53 个随机位，映射到 [0, 1)。
func cryptoFloat64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand 不可用说明运行环境已不可信，直接终止
		panic("crypto/rand unavailable: " + err.Error())
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / (1 << 53)
}
