package timesheet

// defaultOvertimeMultiplier applies when a placement carries no explicit
// overtime rate.
const defaultOvertimeMultiplier = 1.5

// Recompute derives the timesheet totals from the full entry set and the
// effective rates. It is a pure function: calling it twice over the same
// inputs yields identical totals, and it is the only way totals change.
func Recompute(entries []TimeEntry, rates Rates) Totals {
	var t Totals

	overtimeRate := rates.Regular * defaultOvertimeMultiplier
	if rates.Overtime != nil {
		overtimeRate = *rates.Overtime
	}
	billRate := rates.Regular
	if rates.Bill != nil {
		billRate = *rates.Bill
	}

	for _, e := range entries {
		t.RegularHours += e.HoursRegular
		t.OvertimeHours += e.HoursOvertime
		if e.Billable {
			t.BillableHours += e.TotalHours()
		}
	}

	t.TotalHours = t.RegularHours + t.OvertimeHours
	t.RegularAmount = t.RegularHours * rates.Regular
	t.OvertimeAmount = t.OvertimeHours * overtimeRate
	t.PayAmount = t.RegularAmount + t.OvertimeAmount

	t.BillAmount = t.BillableHours * billRate
	t.Margin = t.BillAmount - t.PayAmount

	return t
}
