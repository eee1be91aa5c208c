package dump

import (
	"time"
)

// DayIterator yields every calendar date from start to end inclusive, in
// ascending order.
type DayIterator struct {
	next time.Time
	end  time.Time
	done bool
}

// NewDayIterator creates an iterator over [start, end]. Both bounds are
// truncated to midnight.
func NewDayIterator(start, end time.Time) *DayIterator {
	start, end = Midnight(start), Midnight(end)
	return &DayIterator{
		next: start,
		end:  end,
		done: start.After(end),
	}
}

// Next returns the next date and whether there was one
func (it *DayIterator) Next() (time.Time, bool) {
	if it.done {
		return time.Time{}, false
	}

	day := it.next
	if !day.Before(it.end) {
		it.done = true
	}
	// AddDate keeps wall-clock midnight across DST changes
	it.next = day.AddDate(0, 0, 1)
	return day, true
}

// Len returns the number of dates in [start, end].
func Len(start, end time.Time) int {
	n := 0
	for it := NewDayIterator(start, end); ; n++ {
		if _, ok := it.Next(); !ok {
			return n
		}
	}
}
