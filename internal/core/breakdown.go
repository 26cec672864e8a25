package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const noExpensesMessage = "Bu ay henüz harcama kaydın yok. İlk harcamanı ekleyerek dağılımı görebilirsin."

// CategoryAmount is a raw per-category expense total.
type CategoryAmount struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

type ExpenseSlice struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	Percent  float64 `json:"percent"`
	Color    string  `json:"color"`
}

type ExpenseBreakdown struct {
	Total  float64        `json:"total"`
	Slices []ExpenseSlice `json:"slices"`
}

// Breakdown groups expenses over the category whitelist. Unknown categories
// collapse into the Other bucket; slices are sorted by amount, largest first.
func Breakdown(expenses []CategoryAmount) ExpenseBreakdown {
	sums := make([]float64, len(expenseCategories))
	var other float64

	for _, e := range expenses {
		amount := max(0, finite(e.Amount))
		if amount == 0 {
			continue
		}
		if i, ok := categoryIndex[e.Category]; ok {
			sums[i] += amount
		} else {
			other += amount
		}
	}

	var total float64
	for _, s := range sums {
		total += s
	}
	total += other
	if total <= 0 {
		return ExpenseBreakdown{Total: 0, Slices: []ExpenseSlice{}}
	}

	slices := make([]ExpenseSlice, 0, len(expenseCategories)+1)
	for i, c := range expenseCategories {
		if sums[i] == 0 {
			continue
		}
		slices = append(slices, ExpenseSlice{
			Category: c.Name,
			Amount:   sums[i],
			Percent:  sums[i] / total,
			Color:    c.Color,
		})
	}
	if other > 0 {
		slices = append(slices, ExpenseSlice{
			Category: otherCategory.Name,
			Amount:   other,
			Percent:  other / total,
			Color:    otherCategory.Color,
		})
	}

	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].Amount > slices[j].Amount
	})

	return ExpenseBreakdown{Total: total, Slices: slices}
}

// ConicGradient renders slices as contiguous CSS conic-gradient stops.
func ConicGradient(slices []ExpenseSlice) string {
	if len(slices) == 0 {
		return fmt.Sprintf("conic-gradient(%s 0deg 360deg)", otherCategory.Color)
	}

	stops := make([]string, 0, len(slices))
	var start float64
	for i, s := range slices {
		end := start + finite(s.Percent)*360
		if i == len(slices)-1 {
			end = 360
		}
		color := s.Color
		if color == "" {
			color = categoryColor(s.Category)
		}
		stops = append(stops, fmt.Sprintf("%s %.2fdeg %.2fdeg", color, start, end))
		start = end
	}
	return "conic-gradient(" + strings.Join(stops, ", ") + ")"
}

// RealityCheckMessage summarizes the largest slice with a piece of advice.
// Slices are expected in Breakdown order.
func RealityCheckMessage(slices []ExpenseSlice) string {
	if len(slices) == 0 {
		return noExpensesMessage
	}
	top := slices[0]
	pct := int(math.Round(finite(top.Percent) * 100))
	return fmt.Sprintf("Bu ay harcamalarının %%%d kadarı %s kategorisine gitti. %s",
		pct, top.Category, categoryAdvice(top.Category))
}
