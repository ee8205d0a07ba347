package domain

import "github.com/shopspring/decimal"

// CapacityPrecision is the number of decimal places reported for capacity totals
const CapacityPrecision = 2

// Capacity is the aggregate physical capacity of a set of loads
type Capacity struct {
	TotalVolume    float64 `bson:"totalVolume" json:"totalVolume"`
	TotalWeight    float64 `bson:"totalWeight" json:"totalWeight"`
	TotalLademetre float64 `bson:"totalLademetre" json:"totalLademetre"`
	LoadCount      int     `bson:"loadCount" json:"loadCount"`
}

// CalculateCapacity sums volume, gross weight and lademetre over every item of
// every load. Sums are exact and rounded once, half away from zero, to
// CapacityPrecision places. Nil loads are skipped.
func CalculateCapacity(loads []*Load) Capacity {
	volume, weight, lademetre := decimal.Zero, decimal.Zero, decimal.Zero
	count := 0

	for _, load := range loads {
		if load == nil {
			continue
		}
		count++
		for _, item := range load.Items {
			volume = volume.Add(decimal.NewFromFloat(item.Volume))
			weight = weight.Add(decimal.NewFromFloat(item.GrossWeight))
			lademetre = lademetre.Add(decimal.NewFromFloat(item.Lademetre))
		}
	}

	return Capacity{
		TotalVolume:    round(volume),
		TotalWeight:    round(weight),
		TotalLademetre: round(lademetre),
		LoadCount:      count,
	}
}

func round(d decimal.Decimal) float64 {
	f, _ := d.Round(CapacityPrecision).Float64()
	return f
}
