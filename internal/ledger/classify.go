package ledger

import "time"

// Arrival classification derived at read time from the tenant's opening
// time. Never persisted.
const (
	ClassPresent = "PRESENT"
	ClassLate    = "LATE"
)

// ClassifyArrival labels an IN event LATE when its local time of day is
// strictly after the opening time ("HH:MM"). Non-IN events and blank or
// malformed opening times yield PRESENT.
func ClassifyArrival(evt Event, openingTime string) string {
	if evt.Status != StatusIn || openingTime == "" {
		return ClassPresent
	}
	open, err := time.Parse("15:04", openingTime)
	if err != nil {
		return ClassPresent
	}
	arrived := evt.Timestamp.Hour()*60 + evt.Timestamp.Minute()
	cutoff := open.Hour()*60 + open.Minute()
	if arrived > cutoff {
		return ClassLate
	}
	return ClassPresent
}
