package calc

import (
	"sort"

	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

// PriceGroup aggregates the lines sharing one exact unit price.
type PriceGroup struct {
	UnitPrice   float64           `json:"unit_price"`
	Lines       []entity.LineItem `json:"lines"`
	Packages    int               `json:"packages"`
	GrossWeight float64           `json:"gross_weight"`
	NetWeight   float64           `json:"net_weight"`
	Value       float64           `json:"value"`
}

// PriceGroups is a list of groups in first-seen order.
type PriceGroups []PriceGroup

// GroupByPrice groups lines by exact unit price, keeping the order in which
// each price first appears.
func GroupByPrice(lines []entity.LineItem) PriceGroups {
	index := make(map[float64]int, len(lines))
	var out PriceGroups
	for _, l := range lines {
		i, ok := index[l.UnitPrice]
		if !ok {
			i = len(out)
			index[l.UnitPrice] = i
			out = append(out, PriceGroup{UnitPrice: l.UnitPrice})
		}
		g := &out[i]
		g.Lines = append(g.Lines, l)
		g.Packages += l.Packages
		g.GrossWeight += l.GrossWeight
		g.NetWeight += l.NetWeight
	}
	for i := range out {
		out[i].Value = Round2(out[i].NetWeight * out[i].UnitPrice)
	}
	return out
}

// SortedByWeight returns a copy ordered heaviest first; equal weights keep
// their first-seen order, so the head is the retained price group.
func (gs PriceGroups) SortedByWeight() PriceGroups {
	out := make(PriceGroups, len(gs))
	copy(out, gs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NetWeight > out[j].NetWeight
	})
	return out
}

// NetWeightByPrice maps each unit price to the total net weight sold at it.
func (gs PriceGroups) NetWeightByPrice() map[float64]float64 {
	out := make(map[float64]float64, len(gs))
	for _, g := range gs {
		out[g.UnitPrice] = g.NetWeight
	}
	return out
}
