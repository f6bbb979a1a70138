package exam

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

// BookingKind tags exams in conflict reports.
const BookingKind = "exam"

type (
	Exam struct {
		ID        string         `json:"id" db:"id"`
		BranchID  string         `json:"branch_id" db:"branch_id"`
		ClassID   string         `json:"class_id" db:"class_id"`
		SubjectID string         `json:"subject_id" db:"subject_id"`
		Title     string         `json:"title" db:"title"`
		Date      calendar.Date  `json:"date" db:"date"`
		StartTime calendar.Clock `json:"start_time" db:"start_time"`
		EndTime   calendar.Clock `json:"end_time" db:"end_time"`
		Room      null.String    `json:"room" db:"room"`
		IsActive  bool           `json:"is_active" db:"is_active"`
		CreatedAt time.Time      `json:"created_at" db:"created_at"` // UTC
		UpdatedAt time.Time      `json:"updated_at" db:"updated_at"` // UTC

		// joined, read-only
		ClassName   string `json:"class_name" db:"class_name"`
		SubjectName string `json:"subject_name" db:"subject_name"`
	}

	// NewExam is the payload scheduling or rescheduling an Exam.
	NewExam struct {
		BranchID  string `json:"branch_id" validate:"required"`
		ClassID   string `json:"class_id" validate:"required"`
		SubjectID string `json:"subject_id" validate:"required"`
		Title     string `json:"title" validate:"required,max=150"`
		Date      string `json:"date" validate:"required,datetime=2006-01-02"`
		StartTime string `json:"start_time" validate:"required,datetime=15:04"`
		EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
		Room      string `json:"room" validate:"max=50"`
		IsActive  *bool  `json:"is_active"`
	}

	QueryFilter struct {
		BranchID  string        `query:"branch_id"`
		ClassID   string        `query:"class_id"`
		SubjectID string        `query:"subject_id"`
		Room      string        `query:"room"`
		From      calendar.Date `query:"from"`
		To        calendar.Date `query:"to"`
		IsActive  *bool         `query:"is_active"`
	}
)

func (e Exam) Booking() calendar.Booking {
	return calendar.Booking{
		ID:          e.ID,
		Kind:        BookingKind,
		Slot:        calendar.Slot{Date: e.Date, Start: e.StartTime, End: e.EndTime},
		ClassID:     e.ClassID,
		ClassName:   e.ClassName,
		SubjectName: e.SubjectName,
		Room:        e.Room.String,
		Title:       e.Title,
	}
}

func (ne *NewExam) clean() {
	ne.BranchID = core.CleanString(ne.BranchID)
	ne.ClassID = core.CleanString(ne.ClassID)
	ne.SubjectID = core.CleanString(ne.SubjectID)
	ne.Title = core.CleanString(ne.Title)
	ne.Date = core.CleanString(ne.Date)
	ne.StartTime = core.CleanString(ne.StartTime)
	ne.EndTime = core.CleanString(ne.EndTime)
	ne.Room = core.CleanString(ne.Room)
}

func (ne *NewExam) Validate(validate *validator.Validate, translator ut.Translator) error {
	ne.clean()
	return core.ValidateStruct(validate, translator, ne)
}

// Exam converts a validated payload.
func (ne NewExam) Exam() (Exam, error) {
	date, err := calendar.ParseDate(ne.Date)
	if err != nil {
		return Exam{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	start, err := calendar.ParseClock(ne.StartTime)
	if err != nil {
		return Exam{}, core.NewValidationError(err, core.FieldError{Field: "start_time", Error: err.Error()})
	}
	end, err := calendar.ParseClock(ne.EndTime)
	if err != nil {
		return Exam{}, core.NewValidationError(err, core.FieldError{Field: "end_time", Error: err.Error()})
	}

	isActive := true
	if ne.IsActive != nil {
		isActive = *ne.IsActive
	}
	return Exam{
		BranchID:  ne.BranchID,
		ClassID:   ne.ClassID,
		SubjectID: ne.SubjectID,
		Title:     ne.Title,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Room:      null.NewString(ne.Room, ne.Room != ""),
		IsActive:  isActive,
	}, nil
}

func (f *QueryFilter) Clean() {
	f.BranchID = core.CleanString(f.BranchID)
	f.ClassID = core.CleanString(f.ClassID)
	f.SubjectID = core.CleanString(f.SubjectID)
	f.Room = core.CleanString(f.Room)
}
