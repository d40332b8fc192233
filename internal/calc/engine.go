// Package calc computes the financial summary of a CDV session from its sale
// lines and declared fees. Everything here is pure and safe to call on every
// edit.
package calc

import (
	"math"

	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

// Input is the subset of a session the calculation depends on.
type Input struct {
	FeeTransit        float64
	FeeCommission     float64
	FeeOther          float64
	FeeEU             float64
	FeeIntl           float64
	DeclaredWeight    float64
	DeclaredUnitPrice float64
}

// InputFromSession extracts the calculation input from a session snapshot.
func InputFromSession(s *entity.Session) Input {
	return Input{
		FeeTransit:        s.FeeTransit,
		FeeCommission:     s.FeeCommission,
		FeeOther:          s.FeeOther,
		FeeEU:             s.FeeEU,
		FeeIntl:           s.FeeIntl,
		DeclaredWeight:    s.DeclaredWeight,
		DeclaredUnitPrice: s.DeclaredUnitPrice,
	}
}

// CalculatedLine is a sale line with its rounded total.
type CalculatedLine struct {
	Client      string  `json:"client"`
	Product     string  `json:"product"`
	Packages    int     `json:"packages"`
	GrossWeight float64 `json:"gross_weight"`
	NetWeight   float64 `json:"net_weight"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
}

// Result is the derived view of a session. It is never persisted.
type Result struct {
	Lines            []CalculatedLine `json:"lines"`
	TotalPackages    int              `json:"total_packages"`
	TotalGrossWeight float64          `json:"total_gross_weight"`
	TotalNetWeight   float64          `json:"total_net_weight"`
	TotalSales       float64          `json:"total_sales"`

	FeeTransit    float64 `json:"fee_transit"`
	FeeCommission float64 `json:"fee_commission"`
	FeeOther      float64 `json:"fee_other"`
	FeeEU         float64 `json:"fee_eu"`
	FeeIntl       float64 `json:"fee_intl"`
	TotalFees     float64 `json:"total_fees"`

	RetainedPrice float64 `json:"retained_price"`
	NetPayable    float64 `json:"net_payable"`

	DeclaredWeight float64 `json:"declared_weight"`
	SoldWeight     float64 `json:"sold_weight"`
	WeightGap      float64 `json:"weight_gap"`

	DeclaredValue float64 `json:"declared_value"`
	GrossValue    float64 `json:"gross_value"`
	NetValue      float64 `json:"net_value"`
	ValueGap      float64 `json:"value_gap"`
}

// Decision is the user-facing outcome of the declared vs computed comparison.
type Decision string

const (
	// DecisionReport means the computed net value exceeds the declared value.
	DecisionReport Decision = "value_to_report"
	// DecisionMaintain means the declared value stands.
	DecisionMaintain Decision = "declared_value_stands"
)

// Decision returns the reconciliation outcome and the amount to report
// (zero when the declared value stands).
func (r Result) Decision() (Decision, float64) {
	if r.ValueGap < 0 {
		return DecisionReport, math.Abs(r.ValueGap)
	}
	return DecisionMaintain, 0
}

// Round2 rounds a money amount half-up to the cent.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}

// Round1 rounds a weight half-up to one decimal.
func Round1(v float64) float64 {
	return math.Floor(v*10+0.5) / 10
}

// Calculate computes totals, the retained unit price and the declared vs
// computed reconciliation.
func Calculate(in Input, lines []entity.LineItem) Result {
	res := Result{
		Lines:          make([]CalculatedLine, 0, len(lines)),
		FeeTransit:     in.FeeTransit,
		FeeCommission:  in.FeeCommission,
		FeeOther:       in.FeeOther,
		FeeEU:          in.FeeEU,
		FeeIntl:        in.FeeIntl,
		DeclaredWeight: in.DeclaredWeight,
	}

	var gross, net, sales float64
	for _, l := range lines {
		cl := CalculatedLine{
			Client:      l.Client,
			Product:     l.Product,
			Packages:    l.Packages,
			GrossWeight: l.GrossWeight,
			NetWeight:   l.NetWeight,
			UnitPrice:   l.UnitPrice,
			LineTotal:   Round2(l.NetWeight * l.UnitPrice),
		}
		res.Lines = append(res.Lines, cl)
		res.TotalPackages += l.Packages
		gross += l.GrossWeight
		net += l.NetWeight
		sales += cl.LineTotal
	}
	res.TotalGrossWeight = Round1(gross)
	res.TotalNetWeight = Round1(net)
	res.TotalSales = Round2(sales)

	res.TotalFees = Round2(in.FeeTransit + in.FeeCommission + in.FeeOther + in.FeeEU + in.FeeIntl)
	res.RetainedPrice = RetainedPrice(lines)
	res.NetPayable = Round2(res.TotalSales - res.TotalFees)

	res.SoldWeight = res.TotalNetWeight
	res.WeightGap = Round1(res.SoldWeight - in.DeclaredWeight)

	// The gross value prices the declared weight, not the sold weight.
	res.DeclaredValue = Round2(in.DeclaredWeight * in.DeclaredUnitPrice)
	res.GrossValue = Round2(res.RetainedPrice * in.DeclaredWeight)
	res.NetValue = Round2(res.GrossValue - res.TotalFees)
	res.ValueGap = Round2(res.DeclaredValue - res.NetValue)

	return res
}

// RetainedPrice returns the unit price whose lines carry the largest total net
// weight. Ties keep the group seen first in line order. No lines yields 0.
func RetainedPrice(lines []entity.LineItem) float64 {
	groups := GroupByPrice(lines)
	if len(groups) == 0 {
		return 0
	}
	best := groups[0]
	for _, g := range groups[1:] {
		if g.NetWeight > best.NetWeight {
			best = g
		}
	}
	return best.UnitPrice
}
