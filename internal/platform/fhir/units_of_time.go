package fhir

import "fmt"

// UnitsOfTime is a UCUM unit of time code as used by Timing.repeat.durationUnit.
type UnitsOfTime string

const (
	UnitsOfTimeS   UnitsOfTime = "s"
	UnitsOfTimeMin UnitsOfTime = "min"
	UnitsOfTimeH   UnitsOfTime = "h"
	UnitsOfTimeD   UnitsOfTime = "d"
	UnitsOfTimeWk  UnitsOfTime = "wk"
	UnitsOfTimeMo  UnitsOfTime = "mo"
	UnitsOfTimeA   UnitsOfTime = "a"
)

var unitsOfTimeDisplay = map[UnitsOfTime]string{
	UnitsOfTimeS:   "second",
	UnitsOfTimeMin: "minute",
	UnitsOfTimeH:   "hour",
	UnitsOfTimeD:   "day",
	UnitsOfTimeWk:  "week",
	UnitsOfTimeMo:  "month",
	UnitsOfTimeA:   "year",
}

func (u UnitsOfTime) Code() string { return string(u) }

func (u UnitsOfTime) Display() string { return unitsOfTimeDisplay[u] }

func (u UnitsOfTime) String() string { return string(u) }

// ParseUnitsOfTime maps a UCUM unit of time code ("s", "min", "h", "d", "wk",
// "mo", "a") to its value.
func ParseUnitsOfTime(code string) (UnitsOfTime, error) {
	u := UnitsOfTime(code)
	if _, ok := unitsOfTimeDisplay[u]; !ok {
		return "", fmt.Errorf("unknown unit of time %q", code)
	}
	return u, nil
}
