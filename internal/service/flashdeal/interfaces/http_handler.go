// internal/service/flashdeal/interfaces/http_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/application"
	"github.com/Noman836/flesh-deal-api/internal/service/flashdeal/domain"
)

// FlashDealHandler 封装了秒杀预约服务的 HTTP 处理器
type FlashDealHandler struct {
	coordinator *application.ReservationCoordinator
	finalizer   *application.FinalizationService
	catalogSync *application.CatalogSyncService
	stockStatus *application.StockStatusService
}

// NewFlashDealHandler 创建一个新的 HTTP 处理器实例
func NewFlashDealHandler(
	coordinator *application.ReservationCoordinator,
	finalizer *application.FinalizationService,
	catalogSync *application.CatalogSyncService,
	stockStatus *application.StockStatusService,
) *FlashDealHandler {
	return &FlashDealHandler{
		coordinator: coordinator,
		finalizer:   finalizer,
		catalogSync: catalogSync,
		stockStatus: stockStatus,
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *FlashDealHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/reserve", h.handleReserve)
	mux.HandleFunc("/reserve_batch", h.handleReserveBatch)
	mux.HandleFunc("/release", h.handleRelease)
	mux.HandleFunc("/finalize", h.handleFinalize)
	mux.HandleFunc("/finalize_batch", h.handleFinalizeBatch)
	mux.HandleFunc("/stock_status", h.handleStockStatus)
	mux.HandleFunc("/reservations", h.handleListReservations)

	mux.HandleFunc("/create_product", h.handleCreateProduct)
	mux.HandleFunc("/restock_product", h.handleRestock)
	mux.HandleFunc("/deactivate_product", h.handleDeactivate)
}

type reserveRequest struct {
	UserID    string `json:"userId"`
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (h *FlashDealHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.ProductID == "" {
		http.Error(w, "userId and productId are required", http.StatusBadRequest)
		return
	}

	resp, err := h.coordinator.ReserveSingle(ctx, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		reservationsTotal.WithLabelValues(outcomeForError(err)).Inc()
		writeError(w, err)
		return
	}

	reservationsTotal.WithLabelValues(outcomeOK).Inc()
	writeJSON(w, resp)
}

type reserveBatchRequest struct {
	UserID string                  `json:"userId"`
	Items  []application.BatchItem `json:"items"`
}

func (h *FlashDealHandler) handleReserveBatch(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req reserveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	resp, err := h.coordinator.ReserveBatch(ctx, req.UserID, req.Items)
	if err != nil {
		reservationsTotal.WithLabelValues(outcomeForError(err)).Inc()
		writeError(w, err)
		return
	}

	reservationsTotal.WithLabelValues(outcomeOK).Inc()
	writeJSON(w, resp)
}

type releaseRequest struct {
	ReservationID string `json:"reservationId"`
}

func (h *FlashDealHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" {
		http.Error(w, "reservationId is required", http.StatusBadRequest)
		return
	}

	resp, err := h.coordinator.Release(ctx, req.ReservationID)
	if err != nil {
		releasesTotal.WithLabelValues(outcomeError).Inc()
		writeError(w, err)
		return
	}

	if resp.Released {
		releasesTotal.WithLabelValues(outcomeOK).Inc()
	} else {
		releasesTotal.WithLabelValues(outcomeNoop).Inc()
	}
	writeJSON(w, resp)
}

type finalizeRequest struct {
	ReservationID string                    `json:"reservationId"`
	OrderDetails  *application.OrderDetails `json:"orderDetails"`
}

func (h *FlashDealHandler) handleFinalize(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ReservationID == "" {
		http.Error(w, "reservationId is required", http.StatusBadRequest)
		return
	}

	resp, err := h.finalizer.Finalize(ctx, req.ReservationID, req.OrderDetails)
	if err != nil {
		finalizationsTotal.WithLabelValues(outcomeForError(err)).Inc()
		writeError(w, err)
		return
	}

	finalizationsTotal.WithLabelValues(outcomeOK).Inc()
	writeJSON(w, resp)
}

type finalizeBatchRequest struct {
	UserID       string                    `json:"userId"`
	BatchID      string                    `json:"batchReservationId"`
	OrderDetails *application.OrderDetails `json:"orderDetails"`
}

func (h *FlashDealHandler) handleFinalizeBatch(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req finalizeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.BatchID == "" {
		http.Error(w, "userId and batchReservationId are required", http.StatusBadRequest)
		return
	}

	resp, err := h.finalizer.FinalizeBatch(ctx, req.UserID, req.BatchID, req.OrderDetails)
	if err != nil {
		finalizationsTotal.WithLabelValues(outcomeForError(err)).Inc()
		writeError(w, err)
		return
	}

	finalizationsTotal.WithLabelValues(outcomeOK).Inc()
	writeJSON(w, resp)
}

func (h *FlashDealHandler) handleStockStatus(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	productID := r.URL.Query().Get("product_id")
	if productID == "" {
		http.Error(w, "product_id is required", http.StatusBadRequest)
		return
	}

	resp, err := h.stockStatus.StockStatus(ctx, productID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func (h *FlashDealHandler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	reservations, err := h.coordinator.ListUserReservations(ctx, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{
		"userId":       userID,
		"reservations": reservations,
		"count":        len(reservations),
	})
}

type createProductRequest struct {
	ProductID             string    `json:"productId"`
	SKU                   string    `json:"sku"`
	Name                  string    `json:"name"`
	Description           string    `json:"description"`
	Price                 float64   `json:"price"`
	Category              string    `json:"category"`
	TotalStock            int64     `json:"totalStock"`
	IsActive              *bool     `json:"isActive"`
	DealStartTime         time.Time `json:"dealStartTime"`
	DealEndTime           time.Time `json:"dealEndTime"`
	MaxReservationSeconds int       `json:"maxReservationSeconds"`
	EligibilityRule       string    `json:"eligibilityRule"`
}

func (h *FlashDealHandler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.SKU == "" || req.TotalStock < 0 {
		http.Error(w, "productId, sku and non-negative totalStock are required", http.StatusBadRequest)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	product := &domain.Product{
		ID:                    req.ProductID,
		SKU:                   req.SKU,
		Name:                  req.Name,
		Description:           req.Description,
		Price:                 req.Price,
		Category:              req.Category,
		TotalStock:            req.TotalStock,
		IsActive:              active,
		DealStartTime:         req.DealStartTime,
		DealEndTime:           req.DealEndTime,
		MaxReservationSeconds: req.MaxReservationSeconds,
		EligibilityRule:       req.EligibilityRule,
	}

	if err := h.catalogSync.CreateProduct(ctx, product); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]interface{}{"productId": product.ID, "created": true})
}

type restockRequest struct {
	ProductID  string `json:"productId"`
	TotalStock int64  `json:"totalStock"`
}

func (h *FlashDealHandler) handleRestock(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req restockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.TotalStock < 0 {
		http.Error(w, "productId and non-negative totalStock are required", http.StatusBadRequest)
		return
	}

	if err := h.catalogSync.OnRestock(ctx, req.ProductID, req.TotalStock); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"productId": req.ProductID, "totalStock": req.TotalStock})
}

type deactivateRequest struct {
	ProductID string `json:"productId"`
}

func (h *FlashDealHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req deactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		http.Error(w, "productId is required", http.StatusBadRequest)
		return
	}

	if err := h.catalogSync.OnDeactivate(ctx, req.ProductID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]interface{}{"productId": req.ProductID, "deactivated": true})
}

// extractTraceContext 从请求头还原链路上下文
func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPartialBatchUnavailable),
		errors.Is(err, domain.ErrDuplicateOrder):
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrReservationNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrProductInactive),
		errors.Is(err, domain.ErrDealWindowClosed),
		errors.Is(err, domain.ErrNotEligible):
		statusCode = http.StatusForbidden // 客户端请求有效，但服务器拒绝执行
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrBatchSizeExceeded):
		statusCode = http.StatusBadRequest
	default:
		statusCode = http.StatusInternalServerError // 其他未知错误
	}
	http.Error(w, err.Error(), statusCode)
}

// outcomeForError 把错误折叠成指标维度，避免标签基数爆炸
func outcomeForError(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrPartialBatchUnavailable),
		errors.Is(err, domain.ErrProductInactive),
		errors.Is(err, domain.ErrDealWindowClosed),
		errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrBatchSizeExceeded),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		return outcomeRejected
	default:
		return outcomeError
	}
}
