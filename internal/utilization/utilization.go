// Package utilization turns usage values and rated capacities into
// utilization ratios.
package utilization

// AreaUnit is the unit label of area-based printers. Only these machines
// enter the shop-wide aggregate.
const AreaUnit = "Sq. ft."

// Entry is one machine's usage for the day.
type Entry struct {
	MachineID int64
	Unit      string
	Capacity  float64
	UnitsUsed float64
}

// Ratio returns units/capacity. ok is false when capacity is not positive,
// in which case no ratio exists and the machine must be left out of totals.
func Ratio(units, capacity float64) (ratio float64, ok bool) {
	if capacity <= 0 {
		return 0, false
	}
	return units / capacity, true
}

// eligible reports whether e takes part in the shop-wide aggregate.
func eligible(e Entry, areaUnit string) bool {
	return e.Unit == areaUnit && e.Capacity > 0
}

// ShopWide returns the capacity-weighted utilization of the area-based
// machines: sum(units) / sum(capacity). It is 0 when no machine qualifies.
func ShopWide(entries []Entry, areaUnit string) float64 {
	var used, capacity float64
	for _, e := range entries {
		if !eligible(e, areaUnit) {
			continue
		}
		used += e.UnitsUsed
		capacity += e.Capacity
	}
	if capacity == 0 {
		return 0
	}
	return used / capacity
}

// TotalUnits sums the usage of every machine measured in areaUnit.
func TotalUnits(entries []Entry, areaUnit string) float64 {
	total := 0.0
	for _, e := range entries {
		if e.Unit == areaUnit {
			total += e.UnitsUsed
		}
	}
	return total
}
