package timetable

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

var (
	recurrenceTag  = "recurrence"
	recurrenceText = "must be one of weekly, biweekly, monthly or custom"

	weekdaysTag  = "weekdays"
	weekdaysText = "weekdays must be distinct numbers from 0 (Sunday) to 6 (Saturday)"

	weekdaysRequiredTag  = "weekdays_required"
	weekdaysRequiredText = "select at least one weekday"

	dateOrderTag  = "dateorder"
	dateOrderText = "{0} must not be before the start date"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(recurrenceTag, recurrenceValidation)
	core.RegisterCustomTranslation(validate, translator, recurrenceTag, recurrenceText)

	_ = validate.RegisterValidation(weekdaysTag, weekdaysValidation)
	core.RegisterCustomTranslation(validate, translator, weekdaysTag, weekdaysText)

	validate.RegisterStructValidation(timetableStructValidation, NewTemplate{}, NewTimetable{})
	core.RegisterCustomTranslation(validate, translator, weekdaysRequiredTag, weekdaysRequiredText)
	core.RegisterCustomTranslation(validate, translator, dateOrderTag, dateOrderText)
}

// Custom Validators

func recurrenceValidation(fl validator.FieldLevel) bool {
	return calendar.Recurrence(fl.Field().String()).IsValid()
}

// weekdaysValidation checks that weekdays are distinct and within 0..6.
func weekdaysValidation(fl validator.FieldLevel) bool {
	days, ok := fl.Field().Interface().([]int)
	if !ok {
		return false
	}
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 || seen[d] {
			return false
		}
		seen[d] = true
	}
	return true
}

// timetableStructValidation does struct level validation on NewTemplate and NewTimetable structs.
func timetableStructValidation(sl validator.StructLevel) {
	switch v := sl.Current().Interface().(type) {
	case NewTemplate:
		validateTimeRange(sl, v.StartTime, v.EndTime)
		if v.Recurrence != string(calendar.Custom) && len(v.Weekdays) == 0 {
			sl.ReportError(v.Weekdays, "weekdays", "Weekdays", weekdaysRequiredTag, "")
		}
		start, sErr := calendar.ParseDate(v.StartDate)
		end, eErr := calendar.ParseDate(v.EndDate)
		if sErr == nil && eErr == nil && end.Before(start) {
			sl.ReportError(v.EndDate, "end_date", "EndDate", dateOrderTag, "")
		}
	case NewTimetable:
		validateTimeRange(sl, v.StartTime, v.EndTime)
	}
}

// validateTimeRange reports end_time unless it is after start_time. Unparsable values are left to field validators.
func validateTimeRange(sl validator.StructLevel, start, end string) {
	s, sErr := calendar.ParseClock(start)
	e, eErr := calendar.ParseClock(end)
	if sErr == nil && eErr == nil && e <= s {
		core.ReportTimeOrder(sl, end, "end_time", "EndTime")
	}
}
