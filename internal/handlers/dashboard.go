package handlers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"bookkeeper/internal/models"
)

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

var categoryStyles = map[string]CategoryStyle{
	"travel":        {Icon: "✈️", Color: "#3b82f6"},
	"meals":         {Icon: "🍔", Color: "#f59e0b"},
	"food":          {Icon: "🍔", Color: "#f59e0b"},
	"office":        {Icon: "🖇️", Color: "#8b5cf6"},
	"software":      {Icon: "💻", Color: "#06b6d4"},
	"utilities":     {Icon: "💡", Color: "#eab308"},
	"rent":          {Icon: "🏢", Color: "#ef4444"},
	"marketing":     {Icon: "📣", Color: "#ec4899"},
	"professional":  {Icon: "💼", Color: "#10b981"},
	"uncategorized": {Icon: "📦", Color: "#94a3b8"},
}

func getCategoryStyle(category string) CategoryStyle {
	if s, ok := categoryStyles[strings.ToLower(strings.TrimSpace(category))]; ok {
		return s
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

// CategoryShare is one bucket of the top categories panel.
type CategoryShare struct {
	models.CategoryTotal
	Percentage    float64
	CategoryStyle CategoryStyle
}

// DashboardViewModel is the data passed to the dashboard template.
type DashboardViewModel struct {
	Page
	TotalAll      decimal.Decimal
	TotalMonth    decimal.Decimal
	MonthName     string
	Count         int
	TopCategories []CategoryShare
	Recent        []models.Expense
}

// Dashboard renders the home page summary.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	now := h.Now()
	summary, err := h.Aggregator.Dashboard(r.Context(), now)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "dashboard.html", DashboardViewModel{
		Page:          h.page(w, r, "Dashboard"),
		TotalAll:      summary.TotalAll,
		TotalMonth:    summary.TotalMonth,
		MonthName:     now.Month().String(),
		Count:         summary.Count,
		TopCategories: shares(summary.TopCategories, summary.TotalAll),
		Recent:        summary.Recent,
	})
}

// shares attaches each bucket's percentage of total.
func shares(groups []models.CategoryTotal, total decimal.Decimal) []CategoryShare {
	out := make([]CategoryShare, 0, len(groups))
	for _, g := range groups {
		percentage := 0.0
		if total.IsPositive() {
			percentage = g.Total.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
		}
		out = append(out, CategoryShare{
			CategoryTotal: g,
			Percentage:    percentage,
			CategoryStyle: getCategoryStyle(g.Category),
		})
	}
	return out
}
