package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	cashdomain "cashkeyboard/internal/service/cash/domain"
	"cashkeyboard/internal/service/coupon/application"
	"cashkeyboard/internal/service/coupon/domain"
	productdomain "cashkeyboard/internal/service/product/domain"
)

// CouponHandler 封装了 coupon 服务的 HTTP 处理器
type CouponHandler struct {
	service *application.CouponService
}

// NewCouponHandler 创建一个新的 HTTP 处理器实例
func NewCouponHandler(service *application.CouponService) *CouponHandler {
	return &CouponHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CouponHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.handleListProducts)
	mux.HandleFunc("POST /api/v1/coupons/purchase", h.handlePurchase)
	mux.HandleFunc("POST /api/v1/coupons/admin/issue", h.handleAdminIssue)
	mux.HandleFunc("GET /api/v1/coupons/admin/summary", h.handleAdminSummary)
	mux.HandleFunc("GET /api/v1/coupons/verify", h.handleVerifyCode)
	mux.HandleFunc("GET /api/v1/coupons/{couponId}", h.handleGetCoupon)
	mux.HandleFunc("POST /api/v1/coupons/{couponId}/use", h.handleUse)
	mux.HandleFunc("POST /api/v1/coupons/{couponId}/cancel", h.handleCancel)
	mux.HandleFunc("POST /api/v1/coupons/{couponId}/refund", h.handleRefund)
	mux.HandleFunc("PUT /api/v1/coupons/{couponId}/gifticon", h.handleUpdateGifticon)
	mux.HandleFunc("PUT /api/v1/coupons/{couponId}/expiration", h.handleExtendExpiration)
	mux.HandleFunc("GET /api/v1/users/{userId}/coupons", h.handleGetUserCoupons)
}

func (h *CouponHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	resp, err := h.service.ListProducts(ctx, offset, limit)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var cmd application.PurchaseCouponCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Purchase(ctx, cmd)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CouponHandler) handleAdminIssue(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var cmd application.AdminIssueCouponCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.AdminIssue(ctx, cmd)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CouponHandler) handleAdminSummary(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	// 默认查最近 30 天
	now := time.Now()
	startDate := r.URL.Query().Get("startDate")
	if startDate == "" {
		startDate = now.AddDate(0, 0, -29).Format("2006-01-02")
	}
	endDate := r.URL.Query().Get("endDate")
	if endDate == "" {
		endDate = now.Format("2006-01-02")
	}

	resp, err := h.service.GetAdminSummary(ctx, startDate, endDate)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing coupon code", http.StatusBadRequest)
		return
	}

	resp, err := h.service.VerifyCouponCode(ctx, code)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleGetCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetCoupon(ctx, couponID, userID)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleUse(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	var req struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Use(ctx, couponID, req.UserID)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	var cmd application.CancelCouponCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd.CouponID = couponID

	resp, err := h.service.Cancel(ctx, cmd)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleRefund(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	resp, err := h.service.ProcessRefund(ctx, couponID)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleUpdateGifticon(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	var cmd application.UpdateGifticonCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || cmd.CouponCode == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd.CouponID = couponID

	resp, err := h.service.UpdateGifticonInfo(ctx, cmd)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleExtendExpiration(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	couponID, err := uuid.Parse(r.PathValue("couponId"))
	if err != nil {
		http.Error(w, "Invalid coupon id", http.StatusBadRequest)
		return
	}

	var cmd application.ExtendExpirationCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd.CouponID = couponID

	resp, err := h.service.ExtendExpiration(ctx, cmd)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CouponHandler) handleGetUserCoupons(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	filter := domain.CouponFilter{
		Status:    domain.CouponStatus(r.URL.Query().Get("status")),
		IssueType: domain.CouponIssueType(r.URL.Query().Get("issueType")),
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}

	resp, err := h.service.GetUserCoupons(ctx, userID, filter)
	if err != nil {
		writeCouponError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCouponError 根据错误类型返回不同的 HTTP 状态码。
// 购买路径会透出账本和商品域的错误，这里一并映射。
func writeCouponError(w http.ResponseWriter, err error) {
	var rateLimited *cashdomain.RateLimitedError
	if errors.As(err, &rateLimited) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds())+1))
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	var statusCode int
	switch {
	case errors.Is(err, domain.ErrCouponNotFound),
		errors.Is(err, productdomain.ErrProductNotFound),
		errors.Is(err, cashdomain.ErrAccountNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidCouponData),
		errors.Is(err, domain.ErrInvalidRefundAmount),
		errors.Is(err, domain.ErrInvalidExpirationDate),
		errors.Is(err, domain.ErrInvalidDateRange):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrCouponAccessDenied):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrCouponExpired),
		errors.Is(err, domain.ErrCouponAlreadyUsed),
		errors.Is(err, domain.ErrCouponNotActive),
		errors.Is(err, domain.ErrCouponNotCancellable),
		errors.Is(err, domain.ErrCouponNotCancelled),
		errors.Is(err, productdomain.ErrProductNotAvailable),
		errors.Is(err, productdomain.ErrInsufficientStock),
		errors.Is(err, cashdomain.ErrInsufficientBalance):
		statusCode = http.StatusConflict // 资源存在但当前状态不允许该操作
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func extractTraceContext(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}
