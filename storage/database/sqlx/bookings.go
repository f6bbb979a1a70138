package sqlxrepos

import (
	"context"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

type bookingRow struct {
	ID          string         `db:"id"`
	Date        calendar.Date  `db:"date"`
	StartTime   calendar.Clock `db:"start_time"`
	EndTime     calendar.Clock `db:"end_time"`
	ClassID     string         `db:"class_id"`
	ClassName   string         `db:"class_name"`
	SubjectName string         `db:"subject_name"`
	Room        string         `db:"room"`
	Title       string         `db:"title"`
}

// bookingWhere adds the conditions of q on the table aliased alias to w and returns the WHERE clause.
// Rows overlap [q.Start, q.End) and share the class or the (non-empty) room.
func bookingWhere(q calendar.BookingQuery, alias string, w *where) string {
	col := func(name string) string { return alias + "." + name }

	w.add(col("date")+" BETWEEN ? AND ?", q.From, q.To)
	w.add(col("start_time")+" < ? AND "+col("end_time")+" > ?", q.End, q.Start)
	if q.Room != "" {
		w.add("("+col("class_id")+" = ? OR LOWER(TRIM("+col("room")+")) = LOWER(?))", q.ClassID, q.Room)
	} else {
		w.add(col("class_id")+" = ?", q.ClassID)
	}
	if q.ExcludeID != "" {
		w.add(col("id")+" <> ?", q.ExcludeID)
	}
	return w.String() + " ORDER BY " + col("date") + ", " + col("start_time")
}

func selectBookings(ctx context.Context, exec core.DBExecutor, kind, query string, args ...interface{}) ([]calendar.Booking, error) {
	var rows []bookingRow
	if err := sqlxSelect(ctx, exec, &rows, query, args...); err != nil {
		return nil, errors.Wrapf(err, "querying %s bookings", kind)
	}
	bookings := make([]calendar.Booking, 0, len(rows))
	for _, r := range rows {
		bookings = append(bookings, calendar.Booking{
			ID:          r.ID,
			Kind:        kind,
			Slot:        calendar.Slot{Date: r.Date, Start: r.StartTime, End: r.EndTime},
			ClassID:     r.ClassID,
			ClassName:   r.ClassName,
			SubjectName: r.SubjectName,
			Room:        r.Room,
			Title:       r.Title,
		})
	}
	return bookings, nil
}
