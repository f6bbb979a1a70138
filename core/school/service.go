package school

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

var (
	// errors
	ErrBranchNotFound       = errors.Wrap(core.ErrNotFound, "branch")
	ErrAcademicYearNotFound = errors.Wrap(core.ErrNotFound, "academic year")
	ErrClassNotFound        = errors.Wrap(core.ErrNotFound, "class")
	ErrSubjectNotFound      = errors.Wrap(core.ErrNotFound, "subject")
	ErrTeacherNotFound      = errors.Wrap(core.ErrNotFound, "teacher")
)

type (
	Repository interface {
		GetBranch(ctx context.Context, id string, exec ...core.DBExecutor) (Branch, error)
		GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
		GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error)
		GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (Teacher, error)

		// Upsert* insert the record, or update the one with the same natural key. The stored ID is returned.
		UpsertBranch(ctx context.Context, branch Branch, exec ...core.DBExecutor) (Branch, error)
		UpsertAcademicYear(ctx context.Context, year AcademicYear, exec ...core.DBExecutor) (AcademicYear, error)
		UpsertClass(ctx context.Context, class Class, exec ...core.DBExecutor) (Class, error)
		UpsertSubject(ctx context.Context, subject Subject, exec ...core.DBExecutor) (Subject, error)
		UpsertTeacher(ctx context.Context, teacher Teacher, exec ...core.DBExecutor) (Teacher, error)
	}

	// ImportResult maps the names of imported records to their IDs. Classes are keyed by ClassKey.
	ImportResult struct {
		Branches      map[string]string
		AcademicYears map[string]string
		Classes       map[string]string
		Subjects      map[string]string
		Teachers      map[string]string
	}

	Service struct {
		db   core.DB
		repo Repository
	}
)

// ClassKey identifies a class by its branch and name.
func ClassKey(branch, class string) string {
	return branch + "/" + class
}

// Count returns the number of imported records.
func (r ImportResult) Count() int {
	return len(r.Branches) + len(r.AcademicYears) + len(r.Classes) + len(r.Subjects) + len(r.Teachers)
}

func NewService(db core.DB, repo Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
	).CheckAndPanic()

	return &Service{db: db, repo: repo}
}

func (svc *Service) GetBranch(ctx context.Context, id string, exec ...core.DBExecutor) (Branch, error) {
	return svc.repo.GetBranch(ctx, id, exec...)
}

func (svc *Service) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error) {
	return svc.repo.GetClass(ctx, id, exec...)
}

func (svc *Service) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (Subject, error) {
	return svc.repo.GetSubject(ctx, id, exec...)
}

func (svc *Service) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id, exec...)
}

// Import upserts a validated catalog in a single transaction.
func (svc *Service) Import(ctx context.Context, catalog Catalog) (ImportResult, error) {
	res := ImportResult{
		Branches:      make(map[string]string, len(catalog.Branches)),
		AcademicYears: make(map[string]string, len(catalog.AcademicYears)),
		Classes:       make(map[string]string, len(catalog.Classes)),
		Subjects:      make(map[string]string, len(catalog.Subjects)),
		Teachers:      make(map[string]string, len(catalog.Teachers)),
	}
	now := time.Now().UTC()

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		for _, b := range catalog.Branches {
			branch, err := svc.repo.UpsertBranch(ctx, Branch{
				Name:      b.Name,
				Address:   null.NewString(b.Address, b.Address != ""),
				CreatedAt: now,
			}, tx)
			if err != nil {
				return errors.Wrapf(err, "importing branch %q", b.Name)
			}
			res.Branches[branch.Name] = branch.ID
		}

		for _, y := range catalog.AcademicYears {
			start, err := calendar.ParseDate(y.StartDate)
			if err != nil {
				return core.NewValidationError(err, core.FieldError{Field: "start_date", Error: err.Error()})
			}
			end, err := calendar.ParseDate(y.EndDate)
			if err != nil {
				return core.NewValidationError(err, core.FieldError{Field: "end_date", Error: err.Error()})
			}
			year, err := svc.repo.UpsertAcademicYear(ctx, AcademicYear{Name: y.Name, StartDate: start, EndDate: end, CreatedAt: now}, tx)
			if err != nil {
				return errors.Wrapf(err, "importing academic year %q", y.Name)
			}
			res.AcademicYears[year.Name] = year.ID
		}

		for _, c := range catalog.Classes {
			branchID, ok := res.Branches[c.Branch]
			if !ok {
				return errors.Wrapf(ErrBranchNotFound, "importing class %q", c.Name)
			}
			yearID, ok := res.AcademicYears[c.AcademicYear]
			class, err := svc.repo.UpsertClass(ctx, Class{
				BranchID:       branchID,
				AcademicYearID: null.NewString(yearID, ok),
				Name:           c.Name,
				CreatedAt:      now,
			}, tx)
			if err != nil {
				return errors.Wrapf(err, "importing class %q", c.Name)
			}
			res.Classes[ClassKey(c.Branch, class.Name)] = class.ID
		}

		for _, s := range catalog.Subjects {
			subject, err := svc.repo.UpsertSubject(ctx, Subject{
				Name:      s.Name,
				Code:      null.NewString(s.Code, s.Code != ""),
				CreatedAt: now,
			}, tx)
			if err != nil {
				return errors.Wrapf(err, "importing subject %q", s.Name)
			}
			res.Subjects[subject.Name] = subject.ID
		}

		for _, t := range catalog.Teachers {
			teacher, err := svc.repo.UpsertTeacher(ctx, Teacher{Name: t.Name, Email: t.Email, CreatedAt: now}, tx)
			if err != nil {
				return errors.Wrapf(err, "importing teacher %q", t.Name)
			}
			res.Teachers[teacher.Name] = teacher.ID
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}
