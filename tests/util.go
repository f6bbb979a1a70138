package testutil

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/exam"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/services/email"
	"github.com/trezcool/ratiba/services/logger"
	"github.com/trezcool/ratiba/storage/database"
	"github.com/trezcool/ratiba/storage/database/sqlx"
)

var parseTemplatesOnce sync.Once

func init() {
	goose.SetLogger(log.New(io.Discard, "", 0))
}

// NewLogger returns a logger writing nowhere, with Rollbar disabled.
func NewLogger() *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(zerolog.Nop(), core.NewTestConfig())
	logger.Enable(false)
	return logger
}

// PrepareDB opens a migrated in-memory database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	conf := core.NewTestConfig()

	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(context.Background(), db, conf.Database.Engine, "up"); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

// School is the reference data created by SeedSchool.
type School struct {
	Branch      school.Branch
	OtherBranch school.Branch
	Year        school.AcademicYear
	Class       school.Class // in Branch
	OtherClass  school.Class // in Branch
	Subject     school.Subject
	Teacher     school.Teacher // has an email
}

// SeedSchool creates two branches, an academic year, two classes, a subject and a teacher.
func SeedSchool(t *testing.T, db core.DBExecutor) School {
	t.Helper()
	ctx := context.Background()
	repo := sqlxrepos.NewSchoolRepository(db)
	now := time.Now().UTC()

	must := func(err error) {
		if err != nil {
			t.Fatalf("SeedSchool() failed: %v", err)
		}
	}

	var (
		s   School
		err error
	)
	s.Branch, err = repo.UpsertBranch(ctx, school.Branch{Name: "Main", CreatedAt: now})
	must(err)
	s.OtherBranch, err = repo.UpsertBranch(ctx, school.Branch{Name: "Annex", CreatedAt: now})
	must(err)
	s.Year, err = repo.UpsertAcademicYear(ctx, school.AcademicYear{
		Name:      "2025",
		StartDate: calendar.MustParseDate("2025-01-06"),
		EndDate:   calendar.MustParseDate("2025-12-19"),
		CreatedAt: now,
	})
	must(err)
	s.Class, err = repo.UpsertClass(ctx, school.Class{BranchID: s.Branch.ID, AcademicYearID: null.StringFrom(s.Year.ID), Name: "5A", CreatedAt: now})
	must(err)
	s.OtherClass, err = repo.UpsertClass(ctx, school.Class{BranchID: s.Branch.ID, Name: "5B", CreatedAt: now})
	must(err)
	s.Subject, err = repo.UpsertSubject(ctx, school.Subject{Name: "Mathematics", Code: null.StringFrom("MATH"), CreatedAt: now})
	must(err)
	s.Teacher, err = repo.UpsertTeacher(ctx, school.Teacher{Name: "Amani Juma", Email: null.StringFrom("amani@example.com"), CreatedAt: now})
	must(err)
	return s
}

func BoolPtr(b bool) *bool {
	return &b
}

// Services are the domain services wired on a test database.
type Services struct {
	Conf       *core.Config
	School     *school.Service
	Timetable  *timetable.Service
	Exam       *exam.Service
	Mail       *emailsvc.ConsoleServiceMock
	Validate   *validator.Validate
	Translator ut.Translator
}

func NewServices(db *sqlx.DB) Services {
	conf := core.NewTestConfig()
	logger := NewLogger()
	parseTemplatesOnce.Do(func() { core.ParseEmailTemplates(conf, logger) })

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)
	timetable.InitValidators(validate, translator)
	exam.InitValidators(validate, translator)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	return Services{
		Conf:       conf,
		School:     school.NewService(db, schoolRepo),
		Timetable:  timetable.NewService(db, sqlxrepos.NewTimetableRepository(db), schoolRepo, mailSvc, conf, logger),
		Exam:       exam.NewService(db, sqlxrepos.NewExamRepository(db), schoolRepo),
		Mail:       mailSvc,
		Validate:   validate,
		Translator: translator,
	}
}

// NewTemplate returns a weekly Monday/Wednesday 08:00-09:00 template of s.Class in room R1,
// over the four weeks from Monday 2025-03-03 (8 dates).
func NewTemplate(s School) timetable.NewTemplate {
	return timetable.NewTemplate{
		Name:           "5A Maths",
		BranchID:       s.Branch.ID,
		ClassID:        s.Class.ID,
		AcademicYearID: s.Year.ID,
		SubjectID:      s.Subject.ID,
		TeacherID:      s.Teacher.ID,
		Weekdays:       []int{int(time.Monday), int(time.Wednesday)},
		StartTime:      "08:00",
		EndTime:        "09:00",
		Room:           "R1",
		Recurrence:     string(calendar.Weekly),
		StartDate:      "2025-03-03",
		EndDate:        "2025-03-30",
	}
}

// NewTimetable returns a session of s.OtherClass in room R1 on date, from start to end.
func NewTimetable(s School, date, start, end string) timetable.NewTimetable {
	return timetable.NewTimetable{
		BranchID:  s.Branch.ID,
		ClassID:   s.OtherClass.ID,
		SubjectID: s.Subject.ID,
		Date:      date,
		StartTime: start,
		EndTime:   end,
		Room:      "R1",
	}
}
