package timetable

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

// BookingKind tags timetable sessions in conflict reports.
const BookingKind = "timetable"

type (
	// Template is a recurrence rule expanding into Timetable sessions. It is never scheduled itself.
	Template struct {
		ID             string              `json:"id" db:"id"`
		Name           string              `json:"name" db:"name"`
		BranchID       string              `json:"branch_id" db:"branch_id"`
		ClassID        string              `json:"class_id" db:"class_id"`
		AcademicYearID null.String         `json:"academic_year_id" db:"academic_year_id"`
		SubjectID      string              `json:"subject_id" db:"subject_id"`
		TeacherID      null.String         `json:"teacher_id" db:"teacher_id"`
		Weekdays       calendar.WeekdaySet `json:"weekdays" db:"weekdays"`
		StartTime      calendar.Clock      `json:"start_time" db:"start_time"`
		EndTime        calendar.Clock      `json:"end_time" db:"end_time"`
		Room           null.String         `json:"room" db:"room"`
		Building       null.String         `json:"building" db:"building"`
		Recurrence     calendar.Recurrence `json:"recurrence" db:"recurrence"`
		StartDate      calendar.Date       `json:"start_date" db:"start_date"`
		EndDate        calendar.Date       `json:"end_date" db:"end_date"`
		Exclusions     []calendar.Date     `json:"exclusion_dates" db:"-"`
		IsActive       bool                `json:"is_active" db:"is_active"`
		CreatedAt      time.Time           `json:"created_at" db:"created_at"` // UTC
		UpdatedAt      time.Time           `json:"updated_at" db:"updated_at"` // UTC
	}

	// Timetable is a concrete session. TemplateID is set when it was generated from a Template.
	Timetable struct {
		ID         string         `json:"id" db:"id"`
		TemplateID null.String    `json:"template_id" db:"template_id"`
		BranchID   string         `json:"branch_id" db:"branch_id"`
		ClassID    string         `json:"class_id" db:"class_id"`
		SubjectID  string         `json:"subject_id" db:"subject_id"`
		TeacherID  null.String    `json:"teacher_id" db:"teacher_id"`
		Date       calendar.Date  `json:"date" db:"date"`
		StartTime  calendar.Clock `json:"start_time" db:"start_time"`
		EndTime    calendar.Clock `json:"end_time" db:"end_time"`
		Room       null.String    `json:"room" db:"room"`
		Building   null.String    `json:"building" db:"building"`
		IsActive   bool           `json:"is_active" db:"is_active"`
		CreatedAt  time.Time      `json:"created_at" db:"created_at"` // UTC
		UpdatedAt  time.Time      `json:"updated_at" db:"updated_at"` // UTC

		// joined, read-only
		ClassName   string      `json:"class_name" db:"class_name"`
		SubjectName string      `json:"subject_name" db:"subject_name"`
		TeacherName null.String `json:"teacher_name" db:"teacher_name"`
	}

	// NewTemplate is the payload creating or replacing a Template.
	NewTemplate struct {
		Name           string   `json:"name" validate:"required,max=100"`
		BranchID       string   `json:"branch_id" validate:"required"`
		ClassID        string   `json:"class_id" validate:"required"`
		AcademicYearID string   `json:"academic_year_id"`
		SubjectID      string   `json:"subject_id" validate:"required"`
		TeacherID      string   `json:"teacher_id"`
		Weekdays       []int    `json:"weekdays" validate:"weekdays"`
		StartTime      string   `json:"start_time" validate:"required,datetime=15:04"`
		EndTime        string   `json:"end_time" validate:"required,datetime=15:04"`
		Room           string   `json:"room" validate:"max=50"`
		Building       string   `json:"building" validate:"max=100"`
		Recurrence     string   `json:"recurrence" validate:"required,recurrence"`
		StartDate      string   `json:"start_date" validate:"required,datetime=2006-01-02"`
		EndDate        string   `json:"end_date" validate:"required,datetime=2006-01-02"`
		ExclusionDates []string `json:"exclusion_dates" validate:"dive,datetime=2006-01-02"`
		IsActive       *bool    `json:"is_active"`
	}

	// NewTimetable is the payload creating or replacing a Timetable session.
	NewTimetable struct {
		BranchID  string `json:"branch_id" validate:"required"`
		ClassID   string `json:"class_id" validate:"required"`
		SubjectID string `json:"subject_id" validate:"required"`
		TeacherID string `json:"teacher_id"`
		Date      string `json:"date" validate:"required,datetime=2006-01-02"`
		StartTime string `json:"start_time" validate:"required,datetime=15:04"`
		EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
		Room      string `json:"room" validate:"max=50"`
		Building  string `json:"building" validate:"max=100"`
		IsActive  *bool  `json:"is_active"`
	}

	TemplateFilter struct {
		BranchID  string `query:"branch_id"`
		ClassID   string `query:"class_id"`
		TeacherID string `query:"teacher_id"`
		IsActive  *bool  `query:"is_active"`
	}

	Filter struct {
		BranchID   string        `query:"branch_id"`
		ClassID    string        `query:"class_id"`
		SubjectID  string        `query:"subject_id"`
		TeacherID  string        `query:"teacher_id"`
		TemplateID string        `query:"template_id"`
		Room       string        `query:"room"`
		From       calendar.Date `query:"from"`
		To         calendar.Date `query:"to"`
		IsActive   *bool         `query:"is_active"`
	}

	GenerateOptions struct {
		// Force creates sessions on conflicting dates too.
		Force bool `json:"force"`
		// Regenerate deletes the sessions previously generated in the template range first. Implies Force.
		Regenerate bool `json:"regenerate"`
	}

	DateConflicts struct {
		Date      calendar.Date       `json:"date"`
		Conflicts []calendar.Conflict `json:"conflicts"`
	}

	// Preview is the read-only outcome of expanding a template.
	// TotalDates = ValidDates + ConflictingDates + AlreadyGenerated.
	Preview struct {
		TotalDates       int             `json:"total_dates"`
		ValidDates       int             `json:"valid_dates"`
		ConflictingDates int             `json:"conflicting_dates"`
		AlreadyGenerated int             `json:"already_generated"`
		SampleDates      []calendar.Date `json:"sample_dates"`
		Conflicts        []DateConflicts `json:"conflicts"`
	}

	// Generation is the outcome of committing a template.
	Generation struct {
		TemplateID   string          `json:"template_id"`
		TotalDates   int             `json:"total_dates"`
		Created      int             `json:"created"`
		Skipped      int             `json:"skipped"`     // already generated
		Conflicting  int             `json:"conflicting"` // not created because of conflicts
		Forced       int             `json:"forced"`      // created despite conflicts
		Removed      int             `json:"removed"`     // deleted by a regeneration
		CreatedDates []calendar.Date `json:"created_dates"`
		Conflicts    []DateConflicts `json:"conflicts"`
	}
)

// Rule returns the recurrence rule of the template.
func (tpl Template) Rule() calendar.Rule {
	return calendar.Rule{
		Start:      tpl.StartDate,
		End:        tpl.EndDate,
		Weekdays:   tpl.Weekdays,
		Recurrence: tpl.Recurrence,
		Exclusions: tpl.Exclusions,
	}
}

// Booking returns the candidate booking of the template on date d.
func (tpl Template) Booking(d calendar.Date) calendar.Booking {
	return calendar.Booking{
		Kind:    BookingKind,
		Slot:    calendar.Slot{Date: d, Start: tpl.StartTime, End: tpl.EndTime},
		ClassID: tpl.ClassID,
		Room:    tpl.Room.String,
	}
}

// Session returns the session generated by the template on date d.
func (tpl Template) Session(d calendar.Date, now time.Time) Timetable {
	return Timetable{
		TemplateID: null.StringFrom(tpl.ID),
		BranchID:   tpl.BranchID,
		ClassID:    tpl.ClassID,
		SubjectID:  tpl.SubjectID,
		TeacherID:  tpl.TeacherID,
		Date:       d,
		StartTime:  tpl.StartTime,
		EndTime:    tpl.EndTime,
		Room:       tpl.Room,
		Building:   tpl.Building,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (tt Timetable) Booking() calendar.Booking {
	return calendar.Booking{
		ID:          tt.ID,
		Kind:        BookingKind,
		Slot:        calendar.Slot{Date: tt.Date, Start: tt.StartTime, End: tt.EndTime},
		ClassID:     tt.ClassID,
		ClassName:   tt.ClassName,
		SubjectName: tt.SubjectName,
		Room:        tt.Room.String,
	}
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

func (nt *NewTemplate) clean() {
	nt.Name = core.CleanString(nt.Name)
	nt.BranchID = core.CleanString(nt.BranchID)
	nt.ClassID = core.CleanString(nt.ClassID)
	nt.AcademicYearID = core.CleanString(nt.AcademicYearID)
	nt.SubjectID = core.CleanString(nt.SubjectID)
	nt.TeacherID = core.CleanString(nt.TeacherID)
	nt.StartTime = core.CleanString(nt.StartTime)
	nt.EndTime = core.CleanString(nt.EndTime)
	nt.Room = core.CleanString(nt.Room)
	nt.Building = core.CleanString(nt.Building)
	nt.Recurrence = core.CleanString(nt.Recurrence, true /* lower */)
	nt.StartDate = core.CleanString(nt.StartDate)
	nt.EndDate = core.CleanString(nt.EndDate)
	for i := range nt.ExclusionDates {
		nt.ExclusionDates[i] = core.CleanString(nt.ExclusionDates[i])
	}
}

func (nt *NewTemplate) Validate(validate *validator.Validate, translator ut.Translator) error {
	nt.clean()
	return core.ValidateStruct(validate, translator, nt)
}

// Template converts a validated payload.
func (nt NewTemplate) Template() (Template, error) {
	start, err := calendar.ParseClock(nt.StartTime)
	if err != nil {
		return Template{}, core.NewValidationError(err, core.FieldError{Field: "start_time", Error: err.Error()})
	}
	end, err := calendar.ParseClock(nt.EndTime)
	if err != nil {
		return Template{}, core.NewValidationError(err, core.FieldError{Field: "end_time", Error: err.Error()})
	}
	startDate, err := calendar.ParseDate(nt.StartDate)
	if err != nil {
		return Template{}, core.NewValidationError(err, core.FieldError{Field: "start_date", Error: err.Error()})
	}
	endDate, err := calendar.ParseDate(nt.EndDate)
	if err != nil {
		return Template{}, core.NewValidationError(err, core.FieldError{Field: "end_date", Error: err.Error()})
	}

	var weekdays calendar.WeekdaySet
	for _, d := range nt.Weekdays {
		weekdays = weekdays.Add(time.Weekday(d))
	}

	exclusions := make([]calendar.Date, 0, len(nt.ExclusionDates))
	seen := make(map[calendar.Date]bool, len(nt.ExclusionDates))
	for _, s := range nt.ExclusionDates {
		d, err := calendar.ParseDate(s)
		if err != nil {
			return Template{}, core.NewValidationError(err, core.FieldError{Field: "exclusion_dates", Error: err.Error()})
		}
		if !seen[d] {
			seen[d] = true
			exclusions = append(exclusions, d)
		}
	}

	isActive := true
	if nt.IsActive != nil {
		isActive = *nt.IsActive
	}

	return Template{
		Name:           nt.Name,
		BranchID:       nt.BranchID,
		ClassID:        nt.ClassID,
		AcademicYearID: nullString(nt.AcademicYearID),
		SubjectID:      nt.SubjectID,
		TeacherID:      nullString(nt.TeacherID),
		Weekdays:       weekdays,
		StartTime:      start,
		EndTime:        end,
		Room:           nullString(nt.Room),
		Building:       nullString(nt.Building),
		Recurrence:     calendar.Recurrence(nt.Recurrence),
		StartDate:      startDate,
		EndDate:        endDate,
		Exclusions:     exclusions,
		IsActive:       isActive,
	}, nil
}

func (nt *NewTimetable) clean() {
	nt.BranchID = core.CleanString(nt.BranchID)
	nt.ClassID = core.CleanString(nt.ClassID)
	nt.SubjectID = core.CleanString(nt.SubjectID)
	nt.TeacherID = core.CleanString(nt.TeacherID)
	nt.Date = core.CleanString(nt.Date)
	nt.StartTime = core.CleanString(nt.StartTime)
	nt.EndTime = core.CleanString(nt.EndTime)
	nt.Room = core.CleanString(nt.Room)
	nt.Building = core.CleanString(nt.Building)
}

func (nt *NewTimetable) Validate(validate *validator.Validate, translator ut.Translator) error {
	nt.clean()
	return core.ValidateStruct(validate, translator, nt)
}

// Timetable converts a validated payload.
func (nt NewTimetable) Timetable() (Timetable, error) {
	date, err := calendar.ParseDate(nt.Date)
	if err != nil {
		return Timetable{}, core.NewValidationError(err, core.FieldError{Field: "date", Error: err.Error()})
	}
	start, err := calendar.ParseClock(nt.StartTime)
	if err != nil {
		return Timetable{}, core.NewValidationError(err, core.FieldError{Field: "start_time", Error: err.Error()})
	}
	end, err := calendar.ParseClock(nt.EndTime)
	if err != nil {
		return Timetable{}, core.NewValidationError(err, core.FieldError{Field: "end_time", Error: err.Error()})
	}

	isActive := true
	if nt.IsActive != nil {
		isActive = *nt.IsActive
	}

	return Timetable{
		BranchID:  nt.BranchID,
		ClassID:   nt.ClassID,
		SubjectID: nt.SubjectID,
		TeacherID: nullString(nt.TeacherID),
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Room:      nullString(nt.Room),
		Building:  nullString(nt.Building),
		IsActive:  isActive,
	}, nil
}

func (f *TemplateFilter) Clean() {
	f.BranchID = core.CleanString(f.BranchID)
	f.ClassID = core.CleanString(f.ClassID)
	f.TeacherID = core.CleanString(f.TeacherID)
}

func (f *Filter) Clean() {
	f.BranchID = core.CleanString(f.BranchID)
	f.ClassID = core.CleanString(f.ClassID)
	f.SubjectID = core.CleanString(f.SubjectID)
	f.TeacherID = core.CleanString(f.TeacherID)
	f.TemplateID = core.CleanString(f.TemplateID)
	f.Room = core.CleanString(f.Room)
}
