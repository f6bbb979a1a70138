package exam

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

func InitValidators(validate *validator.Validate, _ ut.Translator) {
	validate.RegisterStructValidation(newExamStructValidation, NewExam{})
}

// newExamStructValidation checks that the exam ends after it starts.
func newExamStructValidation(sl validator.StructLevel) {
	ne, ok := sl.Current().Interface().(NewExam)
	if !ok {
		return
	}
	start, sErr := calendar.ParseClock(ne.StartTime)
	end, eErr := calendar.ParseClock(ne.EndTime)
	if sErr == nil && eErr == nil && end <= start {
		core.ReportTimeOrder(sl, ne.EndTime, "end_time", "EndTime")
	}
}
