package attendance

import "classattend/internal/apperr"

// Overlaps reports whether two windows intersect. Windows are half-open, so
// one ending exactly when the other starts does not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// CheckSchedule returns a conflict error naming the first existing session
// whose window overlaps the proposal. Existing sessions always win.
func CheckSchedule(existing []Session, proposed Session) error {
	for _, s := range existing {
		if s.ID == proposed.ID || s.CourseID != proposed.CourseID || !s.Date.Equal(proposed.Date) {
			continue
		}
		if Overlaps(s.Start, s.End, proposed.Start, proposed.End) {
			return apperr.ErrScheduleConflict.
				With("existing_session_id", s.ID).
				With("existing_window", s.Start.String()+"-"+s.End.String())
		}
	}
	return nil
}
