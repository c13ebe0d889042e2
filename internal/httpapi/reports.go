package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"geyim/backend/internal/store"
)

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.DailySales(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	summary, err := a.service.MonthlySales(r.Context(), r.URL.Query().Get("month"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleSalesByRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items, err := a.service.SalesByRange(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProfitReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.Profit(r.Context(), q.Get("start"), q.Get("end"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleStockValueReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.StockValue(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProductStatistics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var categoryID *int64
	if raw := strings.TrimSpace(q.Get("category_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 1 {
			writeServiceError(w, fmt.Errorf("%w: invalid category_id", store.ErrInvalidTransaction))
			return
		}
		categoryID = &id
	}
	report, err := a.service.ProductStatistics(r.Context(), q.Get("start"), q.Get("end"), categoryID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
