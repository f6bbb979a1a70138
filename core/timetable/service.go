package timetable

import (
	"context"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/school"
)

var (
	// errors
	ErrTemplateNotFound  = errors.Wrap(core.ErrNotFound, "timetable template")
	ErrTimetableNotFound = errors.Wrap(core.ErrNotFound, "timetable")
	ErrTemplateInactive  = core.NewValidationError(errors.New("timetable template is inactive"))
)

type (
	Repository interface {
		CreateTemplate(ctx context.Context, tpl Template, exec ...core.DBExecutor) (Template, error)
		GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (Template, error)
		QueryTemplates(ctx context.Context, filter *TemplateFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Template, error)
		UpdateTemplate(ctx context.Context, tpl Template, exec ...core.DBExecutor) (Template, error)
		DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateTimetable(ctx context.Context, tt Timetable, exec ...core.DBExecutor) (Timetable, error)
		// CreateGenerated inserts a generated session unless its template already has one on that date.
		CreateGenerated(ctx context.Context, tt Timetable, exec ...core.DBExecutor) (bool, error)
		GetTimetable(ctx context.Context, id string, exec ...core.DBExecutor) (Timetable, error)
		QueryTimetables(ctx context.Context, filter *Filter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Timetable, error)
		UpdateTimetable(ctx context.Context, tt Timetable, exec ...core.DBExecutor) (Timetable, error)
		DeleteTimetable(ctx context.Context, id string, exec ...core.DBExecutor) error

		// GeneratedDates returns the dates between from and to having a session generated by the template.
		GeneratedDates(ctx context.Context, templateID string, from, to calendar.Date, exec ...core.DBExecutor) ([]calendar.Date, error)
		DeleteGenerated(ctx context.Context, templateID string, from, to calendar.Date, exec ...core.DBExecutor) (int, error)
		// Bookings returns the active sessions matching q.
		Bookings(ctx context.Context, q calendar.BookingQuery, exec ...core.DBExecutor) ([]calendar.Booking, error)
	}

	Service struct {
		db         core.DB
		repo       Repository
		schoolRepo school.Repository
		mailSvc    core.EmailService
		conf       *core.Config
		logger     core.Logger
		now        func() time.Time
	}
)

func NewService(
	db core.DB,
	repo Repository,
	schoolRepo school.Repository,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(db, "db"),
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(schoolRepo, "schoolRepo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		db:         db,
		repo:       repo,
		schoolRepo: schoolRepo,
		mailSvc:    mailSvc,
		conf:       conf,
		logger:     logger,
		now:        time.Now,
	}
}

// checkReferences makes sure the referenced records exist and the class belongs to the branch.
func (svc *Service) checkReferences(ctx context.Context, branchID, classID, subjectID string, teacherID string, exec core.DBExecutor) error {
	notFound := func(err error, field, msg string) error {
		if errors.Cause(err) == core.ErrNotFound {
			return core.NewValidationError(err, core.FieldError{Field: field, Error: msg})
		}
		return errors.Wrap(err, "checking "+field)
	}

	class, err := svc.schoolRepo.GetClass(ctx, classID, exec)
	if err != nil {
		return notFound(err, "class_id", "class not found")
	}
	if class.BranchID != branchID {
		return core.NewValidationError(nil, core.FieldError{Field: "class_id", Error: "class does not belong to this branch"})
	}
	if _, err = svc.schoolRepo.GetSubject(ctx, subjectID, exec); err != nil {
		return notFound(err, "subject_id", "subject not found")
	}
	if teacherID != "" {
		if _, err = svc.schoolRepo.GetTeacher(ctx, teacherID, exec); err != nil {
			return notFound(err, "teacher_id", "teacher not found")
		}
	}
	return nil
}

// Templates

func (svc *Service) CreateTemplate(ctx context.Context, nt NewTemplate) (Template, error) {
	tpl, err := nt.Template()
	if err != nil {
		return Template{}, err
	}
	if err = tpl.Rule().Validate(svc.conf.Generation.MaxDays); err != nil {
		return Template{}, err
	}

	now := time.Now().UTC()
	tpl.CreatedAt = now
	tpl.UpdatedAt = now

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.checkReferences(ctx, tpl.BranchID, tpl.ClassID, tpl.SubjectID, tpl.TeacherID.String, tx); err != nil {
			return err
		}
		tpl, err = svc.repo.CreateTemplate(ctx, tpl, tx)
		return errors.Wrap(err, "creating template")
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

func (svc *Service) GetTemplate(ctx context.Context, id string) (Template, error) {
	return svc.repo.GetTemplate(ctx, id)
}

func (svc *Service) QueryTemplates(ctx context.Context, filter *TemplateFilter, ordering []core.DBOrdering) ([]Template, error) {
	return svc.repo.QueryTemplates(ctx, filter, ordering)
}

// UpdateTemplate replaces the template. Sessions it already generated are left untouched:
// commit with GenerateOptions.Regenerate to rebuild them.
func (svc *Service) UpdateTemplate(ctx context.Context, id string, nt NewTemplate) (Template, error) {
	upd, err := nt.Template()
	if err != nil {
		return Template{}, err
	}
	if err = upd.Rule().Validate(svc.conf.Generation.MaxDays); err != nil {
		return Template{}, err
	}

	var tpl Template
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		old, err := svc.repo.GetTemplate(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.checkReferences(ctx, upd.BranchID, upd.ClassID, upd.SubjectID, upd.TeacherID.String, tx); err != nil {
			return err
		}
		upd.ID = old.ID
		upd.CreatedAt = old.CreatedAt
		upd.UpdatedAt = time.Now().UTC()
		tpl, err = svc.repo.UpdateTemplate(ctx, upd, tx)
		return errors.Wrap(err, "updating template")
	})
	if err != nil {
		return Template{}, err
	}
	return tpl, nil
}

// DeleteTemplate deletes the template. Its generated sessions are kept, detached from it.
func (svc *Service) DeleteTemplate(ctx context.Context, id string) error {
	return svc.repo.DeleteTemplate(ctx, id)
}

// Timetables

// conflicts returns the active sessions clashing with tt (tt itself excluded).
func (svc *Service) conflicts(ctx context.Context, tt Timetable, exec ...core.DBExecutor) ([]calendar.Conflict, error) {
	candidate := tt.Booking()
	existing, err := svc.repo.Bookings(ctx, calendar.QueryFor(candidate), exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookings")
	}
	return calendar.DetectConflicts(candidate, existing), nil
}

// CheckConflicts reports the sessions the payload would clash with. excludeID is the session being edited, if any.
func (svc *Service) CheckConflicts(ctx context.Context, nt NewTimetable, excludeID string) ([]calendar.Conflict, error) {
	tt, err := nt.Timetable()
	if err != nil {
		return nil, err
	}
	tt.ID = excludeID
	return svc.conflicts(ctx, tt)
}

// CreateTimetable schedules a session. Clashes return a *calendar.ConflictError unless force is set.
func (svc *Service) CreateTimetable(ctx context.Context, nt NewTimetable, force bool) (Timetable, error) {
	tt, err := nt.Timetable()
	if err != nil {
		return Timetable{}, err
	}
	now := time.Now().UTC()
	tt.CreatedAt = now
	tt.UpdatedAt = now

	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.checkReferences(ctx, tt.BranchID, tt.ClassID, tt.SubjectID, tt.TeacherID.String, tx); err != nil {
			return err
		}
		if tt.IsActive {
			conflicts, err := svc.conflicts(ctx, tt, tx)
			if err != nil {
				return err
			}
			if len(conflicts) > 0 && !force {
				return calendar.NewConflictError(conflicts)
			}
		}
		tt, err = svc.repo.CreateTimetable(ctx, tt, tx)
		return errors.Wrap(err, "creating timetable")
	})
	if err != nil {
		return Timetable{}, err
	}
	return tt, nil
}

func (svc *Service) GetTimetable(ctx context.Context, id string) (Timetable, error) {
	return svc.repo.GetTimetable(ctx, id)
}

func (svc *Service) QueryTimetables(ctx context.Context, filter *Filter, ordering []core.DBOrdering) ([]Timetable, error) {
	return svc.repo.QueryTimetables(ctx, filter, ordering)
}

// UpdateTimetable replaces a session, running the same conflict check as CreateTimetable.
func (svc *Service) UpdateTimetable(ctx context.Context, id string, nt NewTimetable, force bool) (Timetable, error) {
	upd, err := nt.Timetable()
	if err != nil {
		return Timetable{}, err
	}

	var tt Timetable
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		old, err := svc.repo.GetTimetable(ctx, id, tx)
		if err != nil {
			return err
		}
		if err = svc.checkReferences(ctx, upd.BranchID, upd.ClassID, upd.SubjectID, upd.TeacherID.String, tx); err != nil {
			return err
		}
		upd.ID = old.ID
		upd.TemplateID = old.TemplateID
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
		tt, err = svc.repo.UpdateTimetable(ctx, upd, tx)
		return errors.Wrap(err, "updating timetable")
	})
	if err != nil {
		return Timetable{}, err
	}
	return tt, nil
}

func (svc *Service) DeleteTimetable(ctx context.Context, id string) error {
	return svc.repo.DeleteTimetable(ctx, id)
}
