package handler

import (
	"net/http"

	"github.com/xenking/yumyard-cafe/internal/domain/order"
)

type itemSalesResponse struct {
	Name     string  `json:"name"`
	Quantity int     `json:"qty"`
	Revenue  float64 `json:"revenue"`
}

type insightsResponse struct {
	TotalRevenue  float64              `json:"totalRevenue"`
	TotalOrders   int                  `json:"totalOrders"`
	AvgOrderValue float64              `json:"avgOrderValue"`
	ByStatus      map[order.Status]int `json:"byStatus"`
	ItemsSold     []itemSalesResponse  `json:"itemsSold"`
}

func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	in, err := h.Orders.Insights(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := insightsResponse{
		TotalRevenue:  in.TotalRevenue.InexactFloat64(),
		TotalOrders:   in.TotalOrders,
		AvgOrderValue: in.AvgOrderValue.InexactFloat64(),
		ByStatus:      in.ByStatus,
		ItemsSold:     make([]itemSalesResponse, len(in.ItemsSold)),
	}
	for i, s := range in.ItemsSold {
		resp.ItemsSold[i] = itemSalesResponse{Name: s.Name, Quantity: s.Quantity, Revenue: s.Revenue.InexactFloat64()}
	}
	writeJSON(w, http.StatusOK, resp)
}
