package exam

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/school"
)

// errors
var ErrExamNotFound = errors.Wrap(core.ErrNotFound, "exam")

type (
	Repository interface {
		Create(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		Get(ctx context.Context, id string, exec ...core.DBExecutor) (Exam, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Exam, error)
		Update(ctx context.Context, e Exam, exec ...core.DBExecutor) (Exam, error)
		Delete(ctx context.Context, id string, exec ...core.DBExecutor) error
		// Bookings returns the active exams matching q.
		Bookings(ctx context.Context, q calendar.BookingQuery, exec ...core.DBExecutor) ([]calendar.Booking, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		schoolRepo school.Repository
	}
)

func NewService(db core.DB, repo Repository, schoolRepo school.Repository) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(schoolRepo, "schoolRepo"),
	).CheckAndPanic()

	return &Service{db: db, repo: repo, schoolRepo: schoolRepo}
}

func (svc *Service) checkReferences(ctx context.Context, e Exam, exec core.DBExecutor) error {
	class, err := svc.schoolRepo.GetClass(ctx, e.ClassID, exec)
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "class_id", Error: "class not found"})
		}
		return errors.Wrap(err, "checking class_id")
	}
	if class.BranchID != e.BranchID {
		return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: "class does not belong to this branch"})
	}
	if _, err = svc.schoolRepo.GetSubject(ctx, e.SubjectID, exec); err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "subject_id", Error: "subject not found"})
		}
		return errors.Wrap(err, "checking subject_id")
	}
	return nil
}

// conflicts returns the active exams clashing with e (e itself excluded).
func (svc *Service) conflicts(ctx context.Context, e Exam, exec ...core.DBExecutor) ([]calendar.Conflict, error) {
	candidate := e.Booking()
	existing, err := svc.repo.Bookings(ctx, calendar.QueryFor(candidate), exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	return calendar.DetectConflicts(candidate, existing), nil
}

// CheckConflicts reports the exams the payload would clash with. excludeID is the exam being edited, if any.
func (svc *Service) CheckConflicts(ctx context.Context, ne NewExam, excludeID string) ([]calendar.Conflict, error) {
	e, err := ne.Exam()
	if err != nil {
		return nil, err
	}
	e.ID = excludeID
	return svc.conflicts(ctx, e)
}

// Schedule creates an exam. Clashes return a *calendar.ConflictError unless force is set.
func (svc *Service) Schedule(ctx context.Context, ne NewExam, force bool) (Exam, error) {
	e, err := ne.Exam()
	if err != nil {
		return Exam{}, err
	}
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.checkReferences(ctx, e, tx); err != nil {
			return err
		}
		if e.IsActive {
			conflicts, err := svc.conflicts(ctx, e, tx)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 && !force {
				return calendar.NewConflictError(conflicts)
			}
		}
		e, err = svc.repo.Create(ctx, e, tx)
		return errors.Wrap(err, "creating exam")
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Exam, error) {
	return svc.repo.Get(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Exam, error) {
	return svc.repo.Query(ctx, filter, ordering)
}

// Update reschedules an exam, running the same conflict check as Schedule.
func (svc *Service) Update(ctx context.Context, id string, ne NewExam, force bool) (Exam, error) {
	upd, err := ne.Exam()
	if err != nil {
		return Exam{}, err
	}

	var e Exam
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		old, err := svc.repo.Get(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.checkReferences(ctx, upd, tx); err != nil {
			return err
		}
		upd.ID = old.ID
		upd.CreatedAt = old.CreatedAt
		upd.UpdatedAt = time.Now().UTC()

		if upd.IsActive {
			conflicts, err := svc.conflicts(ctx, upd, tx)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 && !force {
				return calendar.NewConflictError(conflicts)
			}
		}
		e, err = svc.repo.Update(ctx, upd, tx)
		return errors.Wrap(err, "updating exam")
	})
	if err != nil {
		return Exam{}, err
	}
	return e, nil
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.Delete(ctx, id)
}
