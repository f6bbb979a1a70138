package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/exam"
	"github.com/trezcool/ratiba/storage/database"
)

const examSelect = `
	SELECT e.id, e.branch_id, e.class_id, e.subject_id, e.title, e.date, e.start_time, e.end_time,
		e.room, e.is_active, e.created_at, e.updated_at, c.name AS class_name, s.name AS subject_name
	FROM exams e
	JOIN classes c ON c.id = e.class_id
	JOIN subjects s ON s.id = e.subject_id`

var examOrdering = map[string]string{
	"date":       "e.date",
	"start_time": "e.start_time",
	"title":      "e.title",
	"class":      "c.name",
	"subject":    "s.name",
	"room":       "e.room",
	"created_at": "e.created_at",
}

type examRepository struct {
	repository
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db core.DBExecutor) *examRepository {
	return &examRepository{repository{db: db}}
}

func (repo examRepository) Create(ctx context.Context, e exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	ex := repo.getExec(exec)
	e.ID = uuid.NewString()
	_, err := sqlx.NamedExecContext(ctx, ex, `
		INSERT INTO exams (id, branch_id, class_id, subject_id, title, date, start_time, end_time,
			room, is_active, created_at, updated_at)
		VALUES (:id, :branch_id, :class_id, :subject_id, :title, :date, :start_time, :end_time,
			:room, :is_active, :created_at, :updated_at)`,
		e,
	)
	if err != nil {
		return exam.Exam{}, database.TranslateError(err)
	}
	return repo.Get(ctx, e.ID, ex)
}

func (repo examRepository) Get(ctx context.Context, id string, exec ...core.DBExecutor) (exam.Exam, error) {
	var e exam.Exam
	if err := sqlxGet(ctx, repo.getExec(exec), &e, examSelect+" WHERE e.id = ?", id); err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrExamNotFound)
	}
	return e, nil
}

func (repo examRepository) Query(ctx context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]exam.Exam, error) {
	var w where
	if filter != nil {
		if filter.BranchID != "" {
			w.add("e.branch_id = ?", filter.BranchID)
		}
		if filter.ClassID != "" {
			w.add("e.class_id = ?", filter.ClassID)
		}
		if filter.SubjectID != "" {
			w.add("e.subject_id = ?", filter.SubjectID)
		}
		if filter.Room != "" {
			w.add("LOWER(e.room) = LOWER(?)", filter.Room)
		}
		if !filter.From.IsZero() {
			w.add("e.date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.add("e.date <= ?", filter.To)
		}
		if filter.IsActive != nil {
			w.add("e.is_active = ?", *filter.IsActive)
		}
	}

	exams := make([]exam.Exam, 0)
	query := examSelect + w.String() + core.OrderBy(ordering, examOrdering, "e.date ASC, e.start_time ASC")
	if err := sqlxSelect(ctx, repo.getExec(exec), &exams, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying exams")
	}
	return exams, nil
}

func (repo examRepository) Update(ctx context.Context, e exam.Exam, exec ...core.DBExecutor) (exam.Exam, error) {
	ex := repo.getExec(exec)
	res, err := sqlx.NamedExecContext(ctx, ex, `
		UPDATE exams SET
			branch_id = :branch_id, class_id = :class_id, subject_id = :subject_id, title = :title, date = :date,
			start_time = :start_time, end_time = :end_time, room = :room, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		e,
	)
	if err != nil {
		return exam.Exam{}, database.TranslateError(err)
	}
	if err = checkAffected(res, exam.ErrExamNotFound); err != nil {
		return exam.Exam{}, err
	}
	return repo.Get(ctx, e.ID, ex)
}

func (repo examRepository) Delete(ctx context.Context, id string, exec ...core.DBExecutor) error {
	ex := repo.getExec(exec)
	res, err := ex.ExecContext(ctx, ex.Rebind("DELETE FROM exams WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return checkAffected(res, exam.ErrExamNotFound)
}

func (repo examRepository) Bookings(ctx context.Context, q calendar.BookingQuery, exec ...core.DBExecutor) ([]calendar.Booking, error) {
	var w where
	w.add("e.is_active = ?", true)
	query := `
		SELECT e.id, e.date, e.start_time, e.end_time, e.class_id, COALESCE(e.room, '') AS room,
			c.name AS class_name, s.name AS subject_name, e.title
		FROM exams e
		JOIN classes c ON c.id = e.class_id
		JOIN subjects s ON s.id = e.subject_id` + bookingWhere(q, "e", &w)

	return selectBookings(ctx, repo.getExec(exec), exam.BookingKind, query, w.args...)
}
