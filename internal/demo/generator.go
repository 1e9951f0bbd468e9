package demo

import (
	"math"
	"math/rand"
	"time"
)

var (
	productLines = []string{"Electronics", "Clothing", "Home Appliances", "Toys", "Books"}
	salesRegions = []string{"North America", "Europe", "Asia", "South America"}
)

// RevenueRow is one row of the daily_revenue demo table.
type RevenueRow struct {
	Date              time.Time
	ProductLine       string
	SalesRegion       string
	Revenue           float64
	COGS              float64
	ForecastedRevenue float64
}

type Generator struct {
	rnd *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

// Rows returns one row per product line and region for each day in
// [start, start+days). Revenue follows a mild upward trend with weekly
// seasonality.
func (g *Generator) Rows(start time.Time, days int) []RevenueRow {
	if days <= 0 {
		return nil
	}
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	rows := make([]RevenueRow, 0, days*len(productLines)*len(salesRegions))
	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day)
		trend := 1 + float64(day)*0.002
		weekly := 1 + 0.1*math.Sin(2*math.Pi*float64(date.Weekday())/7)
		for li, line := range productLines {
			for ri, region := range salesRegions {
				base := 800 + 150*float64(li) + 100*float64(ri)
				revenue := round2(base * trend * weekly * (0.85 + g.rnd.Float64()*0.3))
				rows = append(rows, RevenueRow{
					Date:              date,
					ProductLine:       line,
					SalesRegion:       region,
					Revenue:           revenue,
					COGS:              round2(revenue * (0.55 + g.rnd.Float64()*0.15)),
					ForecastedRevenue: round2(base * trend * weekly),
				})
			}
		}
	}
	return rows
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
