// Package classify derives department domain flags from free-text name and
// type fields using keyword heuristics. Classification is pure and total:
// any (name, type) pair yields a result, and the keyword sets are plain data
// so callers can substitute their own.
package classify

import "strings"

// Keywords holds the substring sets driving classification. Name matching
// uses every set; the *Types sets additionally match the department type.
type Keywords struct {
	Fuel         []string
	FuelTypes    []string
	CarWash      []string
	Lottery      []string
	LotteryTypes []string
}

// DefaultKeywords returns the keyword sets observed across POS vendors.
func DefaultKeywords() Keywords {
	return Keywords{
		Fuel: []string{
			"fuel", "gas", "gasoline", "diesel", "petroleum", "pump", "dispenser",
			"unleaded", "premium", "regular", "e85", "ethanol",
		},
		FuelTypes: []string{"fuel", "gasoline", "petroleum"},
		CarWash:   []string{"car wash", "carwash", "wash", "vehicle wash", "auto wash"},
		Lottery: []string{
			"lottery", "lotto", "instant", "scratch", "powerball", "mega millions",
			"pick 3", "pick 4", "keno", "scratch off", "instant win",
		},
		LotteryTypes: []string{"lottery", "gaming"},
	}
}

// Classification carries the three independent flags plus a short
// human-readable reason for each flag that fired.
type Classification struct {
	IsFuel    bool
	IsCarWash bool
	IsLottery bool
	Reason    []string
}

// Classify tests the lower-cased name (and, for fuel and lottery, the type)
// against the keyword sets. Flags are orthogonal; a department can be fuel
// and lottery at once.
func Classify(kw Keywords, name, deptType string) Classification {
	n := strings.ToLower(strings.TrimSpace(name))
	t := strings.ToLower(strings.TrimSpace(deptType))

	var c Classification
	if containsAny(n, kw.CarWash) {
		c.IsCarWash = true
		c.Reason = append(c.Reason, "name contains car wash keywords")
	}
	if containsAny(n, kw.Fuel) || containsAny(t, kw.FuelTypes) {
		c.IsFuel = true
		c.Reason = append(c.Reason, "name/type contains fuel keywords")
	}
	if containsAny(n, kw.Lottery) || containsAny(t, kw.LotteryTypes) ||
		(strings.Contains(n, "instant") && strings.Contains(n, "lotto")) {
		c.IsLottery = true
		c.Reason = append(c.Reason, "name/type contains lottery keywords")
	}
	return c
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
