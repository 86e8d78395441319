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

	"cashkeyboard/internal/service/cash/application"
	"cashkeyboard/internal/service/cash/domain"
)

// CashHandler 封装了 cash 服务的 HTTP 处理器
type CashHandler struct {
	service *application.CashService
}

// NewCashHandler 创建一个新的 HTTP 处理器实例
func NewCashHandler(service *application.CashService) *CashHandler {
	return &CashHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CashHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/cash/accounts", h.handleCreateAccount)
	mux.HandleFunc("POST /api/v1/cash/earn", h.handleEarn)
	mux.HandleFunc("POST /api/v1/cash/earn/random", h.handleRandomEarn)
	mux.HandleFunc("POST /api/v1/cash/spend", h.handleSpend)
	mux.HandleFunc("GET /api/v1/cash/accounts/{userId}", h.handleGetAccount)
	mux.HandleFunc("GET /api/v1/cash/accounts/{userId}/transactions", h.handleGetTransactions)
	mux.HandleFunc("GET /api/v1/cash/accounts/{userId}/limits", h.handleGetDailyLimits)
	mux.HandleFunc("GET /api/v1/cash/accounts/{userId}/summary", h.handleGetActivitySummary)
}

func (h *CashHandler) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.CreateAccount(ctx, req.UserID)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *CashHandler) handleEarn(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var cmd application.EarnCashCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Earn(ctx, cmd)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleRandomEarn(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var cmd application.RandomEarnCashCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.RandomEarn(ctx, cmd)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleSpend(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var cmd application.SpendCashCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.service.Spend(ctx, cmd)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	resp, err := h.service.GetAccount(ctx, userID)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleGetTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	filter := domain.TransactionFilter{
		Type:   domain.TransactionType(r.URL.Query().Get("type")),
		Source: domain.EarnSource(r.URL.Query().Get("source")),
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("startDate"); v != "" {
		start, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			http.Error(w, "Invalid start date", http.StatusBadRequest)
			return
		}
		filter.StartDate = &start
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		end, err := time.ParseInLocation("2006-01-02", v, time.Local)
		if err != nil {
			http.Error(w, "Invalid end date", http.StatusBadRequest)
			return
		}
		end = end.AddDate(0, 0, 1).Add(-time.Second) // 含 endDate 全天
		filter.EndDate = &end
	}

	resp, err := h.service.GetTransactions(ctx, userID, filter)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleGetDailyLimits(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = domain.DateKey(time.Now())
	}

	resp, err := h.service.GetDailyLimits(ctx, userID, date)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CashHandler) handleGetActivitySummary(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		http.Error(w, "Invalid user id", http.StatusBadRequest)
		return
	}

	// 默认查最近 7 天
	now := time.Now()
	startDate := r.URL.Query().Get("startDate")
	if startDate == "" {
		startDate = domain.DateKey(now.AddDate(0, 0, -6))
	}
	endDate := r.URL.Query().Get("endDate")
	if endDate == "" {
		endDate = domain.DateKey(now)
	}

	resp, err := h.service.GetActivitySummary(ctx, userID, startDate, endDate)
	if err != nil {
		writeCashError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeCashError 根据错误类型返回不同的 HTTP 状态码
func writeCashError(w http.ResponseWriter, err error) {
	var rateLimited *domain.RateLimitedError
	if errors.As(err, &rateLimited) {
		w.Header().Set("Retry-After", strconv.Itoa(int(rateLimited.RetryAfter.Seconds())+1))
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	var statusCode int
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateSourceID):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidSource),
		errors.Is(err, domain.ErrInvalidPurpose),
		errors.Is(err, domain.ErrMissingSourceID),
		errors.Is(err, domain.ErrInvalidDateRange):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrDailyLimitExceeded),
		errors.Is(err, domain.ErrRandomEarnLimitExceeded),
		errors.Is(err, domain.ErrFraudSuspected):
		statusCode = http.StatusForbidden // 客户端请求有效，但服务器拒绝执行
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
