// internal/service/coupon/application/service.go
package application

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"cashkeyboard/internal/pkg/logger"
	"cashkeyboard/internal/pkg/metrics"
	cashapp "cashkeyboard/internal/service/cash/application"
	cashdomain "cashkeyboard/internal/service/cash/domain"
	"cashkeyboard/internal/service/coupon/domain"
	productdomain "cashkeyboard/internal/service/product/domain"
)

// CouponService 实现优惠券域的全部业务用例。
// 购买和退款横跨账本、商品、优惠券三个聚合，
// 它们必须落在同一个工作单元里，不允许出现扣了钱没发券的中间态。
type CouponService struct {
	uow    domain.UnitOfWork
	events domain.EventPublisher
	tracer trace.Tracer
}

// NewCouponService 创建优惠券服务实例。
func NewCouponService(uow domain.UnitOfWork, events domain.EventPublisher, tracer trace.Tracer) *CouponService {
	return &CouponService{
		uow:    uow,
		events: events,
		tracer: tracer,
	}
}

// Purchase 用积分购买一张兑换券。
// 事务内依次：锁商品行 → 校验可购 → 账本扣款 → 建券 → 扣库存。
// 库存减到零时商品在同一个事务里自动下架。
func (s *CouponService) Purchase(ctx context.Context, cmd PurchaseCouponCommand) (*PurchaseCouponResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Purchase")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", cmd.UserID.String()),
		attribute.String("product.id", cmd.ProductID.String()),
	)

	now := time.Now()
	var result *PurchaseCouponResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products.FindByIDForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if !product.IsPurchasable() {
			return productNotAvailable(product)
		}

		spendResult, err := cashapp.ExecuteSpend(ctx, repos.Cash, cashapp.SpendCashCommand{
			UserID:   cmd.UserID,
			Amount:   product.Price,
			Purpose:  cashdomain.PurposeProductPurchase,
			TargetID: product.ID.String(),
			Metadata: cmd.Metadata,
		}, now)
		if err != nil {
			return err
		}

		expiresAt := product.Category.CouponExpiry(now)
		coupon := domain.FromPurchase(cmd.UserID, product.ID, product.Price, product.Price, expiresAt, now)
		coupon.Metadata = cmd.Metadata

		if err := product.DecreaseStock(1, now); err != nil {
			return err
		}

		if err := repos.Products.Save(ctx, product); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		result = &PurchaseCouponResult{
			Coupon:        toCouponDTO(coupon),
			TransactionID: spendResult.TransactionID,
			PaidAmount:    spendResult.SpentAmount,
			NewBalance:    spendResult.NewBalance,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publishEvent(ctx, &domain.CouponEvent{
		CouponID: result.Coupon.CouponID,
		UserID:   cmd.UserID,
		Type:     domain.EventCouponIssued,
		Payload: map[string]string{
			"issueType":  string(domain.IssuePurchase),
			"paidAmount": strconv.Itoa(result.PaidAmount),
		},
		OccurredAt: now,
	})
	metrics.CouponIssuedTotal.WithLabelValues(string(domain.IssuePurchase)).Inc()
	metrics.CashSpentTotal.WithLabelValues(string(cashdomain.PurposeProductPurchase)).Add(float64(result.PaidAmount))
	logger.Ctx(ctx).Info().
		Str("user_id", cmd.UserID.String()).
		Str("coupon_id", result.Coupon.CouponID.String()).
		Int("paid_amount", result.PaidAmount).
		Msg("coupon purchased")
	return result, nil
}

// AdminIssue 管理员直接发放一张券。不经过账本，但照常扣库存。
func (s *CouponService) AdminIssue(ctx context.Context, cmd AdminIssueCouponCommand) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.AdminIssue")
	defer span.End()

	if !cmd.IssueType.IsValid() || cmd.IssueType == domain.IssuePurchase {
		return nil, domain.ErrInvalidCouponData
	}
	// 非购买发放必须留痕：审计时要能回答"这张券为什么发出去"
	if cmd.IssueReason == "" {
		return nil, domain.ErrInvalidCouponData
	}

	now := time.Now()
	var dto *CouponDTO

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		product, err := repos.Products.FindByIDForUpdate(ctx, cmd.ProductID)
		if err != nil {
			return err
		}
		if !product.IsPurchasable() {
			return productNotAvailable(product)
		}

		expiresAt := product.Category.CouponExpiry(now)
		coupon := domain.FromAdminIssue(cmd.UserID, product.ID, product.Price, cmd.IssueType, cmd.IssueReason, expiresAt, now)

		if err := product.DecreaseStock(1, now); err != nil {
			return err
		}

		if err := repos.Products.Save(ctx, product); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publishEvent(ctx, &domain.CouponEvent{
		CouponID:   dto.CouponID,
		UserID:     cmd.UserID,
		Type:       domain.EventCouponIssued,
		Payload:    map[string]string{"issueType": string(cmd.IssueType)},
		OccurredAt: now,
	})
	metrics.CouponIssuedTotal.WithLabelValues(string(cmd.IssueType)).Inc()
	logger.Ctx(ctx).Info().
		Str("user_id", cmd.UserID.String()).
		Str("coupon_id", dto.CouponID.String()).
		Str("issue_type", string(cmd.IssueType)).
		Msg("coupon issued by admin")
	return dto, nil
}

// Use 核销一张券。核销时发现已过期的券顺手转为 EXPIRED 并落库。
func (s *CouponService) Use(ctx context.Context, couponID, userID uuid.UUID) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Use")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.id", couponID.String()))

	now := time.Now()
	var dto *CouponDTO
	var expired bool

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByIDForUpdate(ctx, couponID)
		if err != nil {
			return err
		}
		if coupon.UserID != userID {
			return domain.ErrCouponAccessDenied
		}

		// 过期转换要提交而不是回滚，所以在事务内返回 nil，出错留到事务外
		if coupon.MarkExpired(now) {
			expired = true
			return repos.Coupons.Save(ctx, coupon)
		}

		if err := coupon.Use(now); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if expired {
		s.publishEvent(ctx, &domain.CouponEvent{
			CouponID:   couponID,
			UserID:     userID,
			Type:       domain.EventCouponExpired,
			OccurredAt: now,
		})
		metrics.CouponTransitionTotal.WithLabelValues(string(domain.StatusExpired)).Inc()
		return nil, domain.ErrCouponExpired
	}

	s.publishEvent(ctx, &domain.CouponEvent{
		CouponID:   dto.CouponID,
		UserID:     userID,
		Type:       domain.EventCouponUsed,
		OccurredAt: now,
	})
	metrics.CouponTransitionTotal.WithLabelValues(string(domain.StatusUsed)).Inc()
	logger.Ctx(ctx).Info().
		Str("coupon_id", dto.CouponID.String()).
		Msg("coupon used")
	return dto, nil
}

// Cancel 管理员取消一张 ACTIVE 券，只提交 CANCELLED 状态。
// 账本退款在 ProcessRefund 里以独立工作单元完成。
func (s *CouponService) Cancel(ctx context.Context, cmd CancelCouponCommand) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.id", cmd.CouponID.String()))

	now := time.Now()
	var dto *CouponDTO

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByIDForUpdate(ctx, cmd.CouponID)
		if err != nil {
			return err
		}
		if err := coupon.Cancel(cmd.AdminID, cmd.RefundAmount, now); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publishEvent(ctx, &domain.CouponEvent{
		CouponID:   dto.CouponID,
		UserID:     dto.UserID,
		Type:       domain.EventCouponCancelled,
		Payload:    map[string]string{"refundAmount": strconv.Itoa(cmd.RefundAmount)},
		OccurredAt: now,
	})
	metrics.CouponTransitionTotal.WithLabelValues(string(domain.StatusCancelled)).Inc()
	logger.Ctx(ctx).Info().
		Str("coupon_id", dto.CouponID.String()).
		Str("admin_id", cmd.AdminID).
		Int("refund_amount", cmd.RefundAmount).
		Msg("coupon cancelled")
	return dto, nil
}

// ProcessRefund 把已取消的券置为 REFUNDED，并在同一个事务里
// 把退款金额以 EARN 流水记回账本。退款额为零时只做状态迁移。
func (s *CouponService) ProcessRefund(ctx context.Context, couponID uuid.UUID) (*RefundCouponResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ProcessRefund")
	defer span.End()
	span.SetAttributes(attribute.String("coupon.id", couponID.String()))

	now := time.Now()
	var result *RefundCouponResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByIDForUpdate(ctx, couponID)
		if err != nil {
			return err
		}

		amount := coupon.RefundAmount
		if err := coupon.ProcessRefund(amount, now); err != nil {
			return err
		}

		result = &RefundCouponResult{RefundedAmount: amount}
		if amount > 0 {
			tx, err := cashapp.ExecuteRefundCredit(ctx, repos.Cash, coupon.UserID, amount, coupon.ID, now)
			if err != nil {
				return err
			}
			result.TransactionID = &tx.ID
			result.NewBalance = tx.BalanceAfter
		}

		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}
		result.Coupon = toCouponDTO(coupon)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.publishEvent(ctx, &domain.CouponEvent{
		CouponID:   result.Coupon.CouponID,
		UserID:     result.Coupon.UserID,
		Type:       domain.EventCouponRefunded,
		Payload:    map[string]string{"refundAmount": strconv.Itoa(result.RefundedAmount)},
		OccurredAt: now,
	})
	metrics.CouponTransitionTotal.WithLabelValues(string(domain.StatusRefunded)).Inc()
	logger.Ctx(ctx).Info().
		Str("coupon_id", result.Coupon.CouponID.String()).
		Int("refund_amount", result.RefundedAmount).
		Msg("coupon refund processed")
	return result, nil
}

// UpdateGifticonInfo 回填外部兑换商的券码和图片。
func (s *CouponService) UpdateGifticonInfo(ctx context.Context, cmd UpdateGifticonCommand) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.UpdateGifticonInfo")
	defer span.End()

	now := time.Now()
	var dto *CouponDTO

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByIDForUpdate(ctx, cmd.CouponID)
		if err != nil {
			return err
		}
		if err := coupon.UpdateGifticonInfo(cmd.CouponCode, cmd.CouponImageURL, now); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// ExtendExpiration 管理员延长有效期。
func (s *CouponService) ExtendExpiration(ctx context.Context, cmd ExtendExpirationCommand) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ExtendExpiration")
	defer span.End()

	now := time.Now()
	var dto *CouponDTO

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByIDForUpdate(ctx, cmd.CouponID)
		if err != nil {
			return err
		}
		if err := coupon.ExtendExpiration(cmd.NewExpiresAt, now); err != nil {
			return err
		}
		if err := repos.Coupons.Save(ctx, coupon); err != nil {
			return err
		}

		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("coupon_id", dto.CouponID.String()).
		Time("new_expires_at", cmd.NewExpiresAt).
		Msg("coupon expiration extended")
	return dto, nil
}

// VerifyCouponCode 按券码查券，返回当前是否可核销。
func (s *CouponService) VerifyCouponCode(ctx context.Context, code string) (*VerifyCouponResult, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.VerifyCouponCode")
	defer span.End()

	now := time.Now()
	var result *VerifyCouponResult

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByCouponCode(ctx, code)
		if err != nil {
			return err
		}
		result = &VerifyCouponResult{
			Coupon: toCouponDTO(coupon),
			Usable: coupon.IsUsable(now),
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result, nil
}

// GetCoupon 查询单张券，校验归属。
func (s *CouponService) GetCoupon(ctx context.Context, couponID, userID uuid.UUID) (*CouponDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.GetCoupon")
	defer span.End()

	var dto *CouponDTO
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupon, err := repos.Coupons.FindByID(ctx, couponID)
		if err != nil {
			return err
		}
		if coupon.UserID != userID {
			return domain.ErrCouponAccessDenied
		}
		d := toCouponDTO(coupon)
		dto = &d
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// GetUserCoupons 分页查询用户的券。
func (s *CouponService) GetUserCoupons(ctx context.Context, userID uuid.UUID, filter domain.CouponFilter) (*CouponPage, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.GetUserCoupons")
	defer span.End()

	var page *CouponPage
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		coupons, total, err := repos.Coupons.ListByUser(ctx, userID, filter)
		if err != nil {
			return err
		}
		items := make([]CouponDTO, 0, len(coupons))
		for _, c := range coupons {
			items = append(items, toCouponDTO(c))
		}
		page = &CouponPage{Items: items, Total: total}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

// ListProducts 商品目录分页，只返回上架中的商品。
func (s *CouponService) ListProducts(ctx context.Context, offset, limit int) (*ProductPage, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.ListProducts")
	defer span.End()

	var page *ProductPage
	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		products, total, err := repos.Products.ListActive(ctx, offset, limit)
		if err != nil {
			return err
		}
		items := make([]ProductDTO, 0, len(products))
		for _, p := range products {
			items = append(items, toProductDTO(p))
		}
		page = &ProductPage{Items: items, Total: total}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return page, nil
}

// MarkExpiredCoupons 批量把过期未用的券转为 EXPIRED，由后台任务周期调用。
// 每张券在事务内重新加锁，和并发核销互斥。
func (s *CouponService) MarkExpiredCoupons(ctx context.Context, batchLimit int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.MarkExpiredCoupons")
	defer span.End()

	now := time.Now()
	var marked []*domain.CouponEvent

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		candidates, err := repos.Coupons.FindExpiredActive(ctx, now, batchLimit)
		if err != nil {
			return err
		}
		for _, candidate := range candidates {
			coupon, err := repos.Coupons.FindByIDForUpdate(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if !coupon.MarkExpired(now) {
				continue // 拿到锁之前已被核销或取消
			}
			if err := repos.Coupons.Save(ctx, coupon); err != nil {
				return err
			}
			marked = append(marked, &domain.CouponEvent{
				CouponID:   coupon.ID,
				UserID:     coupon.UserID,
				Type:       domain.EventCouponExpired,
				OccurredAt: now,
			})
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, event := range marked {
		s.publishEvent(ctx, event)
		metrics.CouponTransitionTotal.WithLabelValues(string(domain.StatusExpired)).Inc()
	}
	if len(marked) > 0 {
		logger.Ctx(ctx).Info().Int("count", len(marked)).Msg("expired coupons marked")
	}
	return len(marked), nil
}

// GetAdminSummary 是后台对账查询：存量按状态计数，
// 购买实付与退款金额按日期区间（含两端，格式 2006-01-02）聚合。
func (s *CouponService) GetAdminSummary(ctx context.Context, startDate, endDate string) (*CouponSummaryDTO, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.GetAdminSummary")
	defer span.End()

	start, err := time.ParseInLocation("2006-01-02", startDate, time.Local)
	if err != nil {
		return nil, domain.ErrInvalidDateRange
	}
	endDay, err := time.ParseInLocation("2006-01-02", endDate, time.Local)
	if err != nil || endDay.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}
	end := endDay.AddDate(0, 0, 1) // 半开区间 [start, end)，覆盖 endDate 全天

	statuses := []domain.CouponStatus{
		domain.StatusActive, domain.StatusUsed, domain.StatusExpired,
		domain.StatusCancelled, domain.StatusRefunded,
	}

	var dto *CouponSummaryDTO
	err = s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		counts := make(map[domain.CouponStatus]int64, len(statuses))
		for _, status := range statuses {
			count, err := repos.Coupons.CountByStatus(ctx, status)
			if err != nil {
				return err
			}
			counts[status] = count
		}
		paid, err := repos.Coupons.SumPaidAmountByIssueType(ctx, domain.IssuePurchase, start, end)
		if err != nil {
			return err
		}
		refunded, err := repos.Coupons.SumRefundAmount(ctx, start, end)
		if err != nil {
			return err
		}
		dto = &CouponSummaryDTO{
			StatusCounts:       counts,
			PurchasePaidAmount: paid,
			RefundedAmount:     refunded,
			StartDate:          startDate,
			EndDate:            endDate,
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return dto, nil
}

// NotifyExpiringSoon 对即将到期的 ACTIVE 券发出提醒事件，由后台任务周期调用。
// 核心只负责发出，重复提醒的去重是下游消费者的职责。
func (s *CouponService) NotifyExpiringSoon(ctx context.Context, within time.Duration) (int, error) {
	ctx, span := s.tracer.Start(ctx, "coupon.NotifyExpiringSoon")
	defer span.End()

	now := time.Now()
	var expiring []*domain.Coupon

	err := s.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		expiring, err = repos.Coupons.FindExpiringWithin(ctx, now, now.Add(within))
		return err
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, coupon := range expiring {
		s.publishEvent(ctx, &domain.CouponEvent{
			CouponID:   coupon.ID,
			UserID:     coupon.UserID,
			Type:       domain.EventCouponExpiringSoon,
			Payload:    map[string]string{"expiresAt": coupon.ExpiresAt.Format(time.RFC3339)},
			OccurredAt: now,
		})
	}
	if len(expiring) > 0 {
		logger.Ctx(ctx).Info().Int("count", len(expiring)).Msg("expiring coupon reminders published")
	}
	return len(expiring), nil
}

// publishEvent 发布生命周期事件。发布失败只记日志，不影响已提交的事务。
func (s *CouponService) publishEvent(ctx context.Context, event *domain.CouponEvent) {
	if err := s.events.PublishCouponEvent(ctx, event); err != nil {
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("coupon_id", event.CouponID.String()).
			Str("event_type", string(event.Type)).
			Msg("failed to publish coupon event")
	}
}

func productNotAvailable(p *productdomain.Product) error {
	if !p.IsActive() {
		return productdomain.ErrProductNotAvailable
	}
	return productdomain.ErrInsufficientStock
}
