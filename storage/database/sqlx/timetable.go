package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/storage/database"
)

const (
	templateColumns = `id, name, branch_id, class_id, academic_year_id, subject_id, teacher_id, weekdays,
		start_time, end_time, room, building, recurrence, start_date, end_date, is_active, created_at, updated_at`

	timetableSelect = `
		SELECT t.id, t.template_id, t.branch_id, t.class_id, t.subject_id, t.teacher_id, t.date,
			t.start_time, t.end_time, t.room, t.building, t.is_active, t.created_at, t.updated_at,
			c.name AS class_name, s.name AS subject_name, te.name AS teacher_name
		FROM timetables t
		JOIN classes c ON c.id = t.class_id
		JOIN subjects s ON s.id = t.subject_id
		LEFT JOIN teachers te ON te.id = t.teacher_id`
)

var (
	templateOrdering = map[string]string{
		"name":       "name",
		"start_date": "start_date",
		"end_date":   "end_date",
		"start_time": "start_time",
		"created_at": "created_at",
	}
	timetableOrdering = map[string]string{
		"date":       "t.date",
		"start_time": "t.start_time",
		"class":      "c.name",
		"subject":    "s.name",
		"room":       "t.room",
		"created_at": "t.created_at",
	}
)

type timetableRepository struct {
	repository
}

var _ timetable.Repository = (*timetableRepository)(nil) // interface compliance check

func NewTimetableRepository(db core.DBExecutor) *timetableRepository {
	return &timetableRepository{repository{db: db}}
}

// Templates

type exclusionRow struct {
	TemplateID string        `db:"template_id"`
	Date       calendar.Date `db:"date"`
}

// loadExclusions fills the exclusion dates of tpls with a single query.
func (repo timetableRepository) loadExclusions(ctx context.Context, exec core.DBExecutor, tpls []timetable.Template) error {
	if len(tpls) == 0 {
		return nil
	}
	ids := make([]string, 0, len(tpls))
	byID := make(map[string]int, len(tpls))
	for i, tpl := range tpls {
		ids = append(ids, tpl.ID)
		byID[tpl.ID] = i
		tpls[i].Exclusions = make([]calendar.Date, 0)
	}

	query, args, err := sqlx.In("SELECT template_id, date FROM timetable_template_exclusions WHERE template_id IN (?) ORDER BY date", ids)
	if err != nil {
		return errors.Wrap(err, "building exclusions query")
	}
	var rows []exclusionRow
	if err = sqlxSelect(ctx, exec, &rows, query, args...); err != nil {
		return errors.Wrap(err, "querying exclusions")
	}
	for _, r := range rows {
		i := byID[r.TemplateID]
		tpls[i].Exclusions = append(tpls[i].Exclusions, r.Date)
	}
	return nil
}

func (repo timetableRepository) saveExclusions(ctx context.Context, exec core.DBExecutor, tpl timetable.Template) error {
	if _, err := exec.ExecContext(ctx, exec.Rebind("DELETE FROM timetable_template_exclusions WHERE template_id = ?"), tpl.ID); err != nil {
		return errors.Wrap(err, "clearing exclusions")
	}
	for _, d := range tpl.Exclusions {
		_, err := exec.ExecContext(ctx, exec.Rebind("INSERT INTO timetable_template_exclusions (template_id, date) VALUES (?, ?)"), tpl.ID, d)
		if err != nil {
			return errors.Wrapf(database.TranslateError(err), "saving exclusion %s", d)
		}
	}
	return nil
}

func (repo timetableRepository) CreateTemplate(ctx context.Context, tpl timetable.Template, exec ...core.DBExecutor) (timetable.Template, error) {
	e := repo.getExec(exec)
	tpl.ID = uuid.NewString()

	_, err := sqlx.NamedExecContext(ctx, e, `
		INSERT INTO timetable_templates (`+templateColumns+`)
		VALUES (:id, :name, :branch_id, :class_id, :academic_year_id, :subject_id, :teacher_id, :weekdays,
			:start_time, :end_time, :room, :building, :recurrence, :start_date, :end_date, :is_active, :created_at, :updated_at)`,
		tpl,
	)
	if err != nil {
		return timetable.Template{}, database.TranslateError(err)
	}
	if err = repo.saveExclusions(ctx, e, tpl); err != nil {
		return timetable.Template{}, err
	}
	return tpl, nil
}

func (repo timetableRepository) GetTemplate(ctx context.Context, id string, exec ...core.DBExecutor) (timetable.Template, error) {
	e := repo.getExec(exec)
	tpls := make([]timetable.Template, 1)
	err := sqlxGet(ctx, e, &tpls[0], "SELECT "+templateColumns+" FROM timetable_templates WHERE id = ?", id)
	if err != nil {
		return timetable.Template{}, trapNoRowsErr(err, timetable.ErrTemplateNotFound)
	}
	if err = repo.loadExclusions(ctx, e, tpls); err != nil {
		return timetable.Template{}, err
	}
	return tpls[0], nil
}

func (repo timetableRepository) QueryTemplates(
	ctx context.Context,
	filter *timetable.TemplateFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]timetable.Template, error) {
	e := repo.getExec(exec)

	var w where
	if filter != nil {
		if filter.BranchID != "" {
			w.add("branch_id = ?", filter.BranchID)
		}
		if filter.ClassID != "" {
			w.add("class_id = ?", filter.ClassID)
		}
		if filter.TeacherID != "" {
			w.add("teacher_id = ?", filter.TeacherID)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	tpls := make([]timetable.Template, 0)
	query := "SELECT " + templateColumns + " FROM timetable_templates" + w.String() +
		core.OrderBy(ordering, templateOrdering, "name ASC, start_date ASC")
	if err := sqlxSelect(ctx, e, &tpls, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying templates")
	}
	if err := repo.loadExclusions(ctx, e, tpls); err != nil {
		return nil, err
	}
	return tpls, nil
}

func (repo timetableRepository) UpdateTemplate(ctx context.Context, tpl timetable.Template, exec ...core.DBExecutor) (timetable.Template, error) {
	e := repo.getExec(exec)
	res, err := sqlx.NamedExecContext(ctx, e, `
		UPDATE timetable_templates SET
			name = :name, branch_id = :branch_id, class_id = :class_id, academic_year_id = :academic_year_id,
			subject_id = :subject_id, teacher_id = :teacher_id, weekdays = :weekdays, start_time = :start_time,
			end_time = :end_time, room = :room, building = :building, recurrence = :recurrence,
			start_date = :start_date, end_date = :end_date, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		tpl,
	)
	if err != nil {
		return timetable.Template{}, database.TranslateError(err)
	}
	if err = checkAffected(res, timetable.ErrTemplateNotFound); err != nil {
		return timetable.Template{}, err
	}
	if err = repo.saveExclusions(ctx, e, tpl); err != nil {
		return timetable.Template{}, err
	}
	return tpl, nil
}

func (repo timetableRepository) DeleteTemplate(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	res, err := e.ExecContext(ctx, e.Rebind("DELETE FROM timetable_templates WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return checkAffected(res, timetable.ErrTemplateNotFound)
}

// Timetables

const timetableInsert = `
	INSERT INTO timetables (id, template_id, branch_id, class_id, subject_id, teacher_id, date,
		start_time, end_time, room, building, is_active, created_at, updated_at)
	VALUES (:id, :template_id, :branch_id, :class_id, :subject_id, :teacher_id, :date,
		:start_time, :end_time, :room, :building, :is_active, :created_at, :updated_at)`

func (repo timetableRepository) CreateTimetable(ctx context.Context, tt timetable.Timetable, exec ...core.DBExecutor) (timetable.Timetable, error) {
	e := repo.getExec(exec)
	tt.ID = uuid.NewString()
	if _, err := sqlx.NamedExecContext(ctx, e, timetableInsert, tt); err != nil {
		return timetable.Timetable{}, database.TranslateError(err)
	}
	return repo.GetTimetable(ctx, tt.ID, e)
}

func (repo timetableRepository) CreateGenerated(ctx context.Context, tt timetable.Timetable, exec ...core.DBExecutor) (bool, error) {
	e := repo.getExec(exec)
	tt.ID = uuid.NewString()
	res, err := sqlx.NamedExecContext(ctx, e, timetableInsert+" ON CONFLICT (template_id, date) DO NOTHING", tt)
	if err != nil {
		return false, database.TranslateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

func (repo timetableRepository) GetTimetable(ctx context.Context, id string, exec ...core.DBExecutor) (timetable.Timetable, error) {
	var tt timetable.Timetable
	if err := sqlxGet(ctx, repo.getExec(exec), &tt, timetableSelect+" WHERE t.id = ?", id); err != nil {
		return timetable.Timetable{}, trapNoRowsErr(err, timetable.ErrTimetableNotFound)
	}
	return tt, nil
}

func (repo timetableRepository) QueryTimetables(
	ctx context.Context,
	filter *timetable.Filter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]timetable.Timetable, error) {
	var w where
	if filter != nil {
		if filter.BranchID != "" {
			w.add("t.branch_id = ?", filter.BranchID)
		}
		if filter.ClassID != "" {
			w.add("t.class_id = ?", filter.ClassID)
		}
		if filter.SubjectID != "" {
			w.add("t.subject_id = ?", filter.SubjectID)
		}
		if filter.TeacherID != "" {
			w.add("t.teacher_id = ?", filter.TeacherID)
		}
		if filter.TemplateID != "" {
			w.add("t.template_id = ?", filter.TemplateID)
		}
		if filter.Room != "" {
			w.add("LOWER(t.room) = LOWER(?)", filter.Room)
		}
		if !filter.From.IsZero() {
			w.add("t.date >= ?", filter.From)
		}
		if !filter.To.IsZero() {
			w.add("t.date <= ?", filter.To)
		}
		if filter.IsActive != nil {
			w.add("t.is_active = ?", *filter.IsActive)
		}
	}

	tts := make([]timetable.Timetable, 0)
	query := timetableSelect + w.String() + core.OrderBy(ordering, timetableOrdering, "t.date ASC, t.start_time ASC")
	if err := sqlxSelect(ctx, repo.getExec(exec), &tts, query, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying timetables")
	}
	return tts, nil
}

func (repo timetableRepository) UpdateTimetable(ctx context.Context, tt timetable.Timetable, exec ...core.DBExecutor) (timetable.Timetable, error) {
	e := repo.getExec(exec)
	res, err := sqlx.NamedExecContext(ctx, e, `
		UPDATE timetables SET
			branch_id = :branch_id, class_id = :class_id, subject_id = :subject_id, teacher_id = :teacher_id,
			date = :date, start_time = :start_time, end_time = :end_time, room = :room, building = :building,
			is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`,
		tt,
	)
	if err != nil {
		return timetable.Timetable{}, database.TranslateError(err)
	}
	if err = checkAffected(res, timetable.ErrTimetableNotFound); err != nil {
		return timetable.Timetable{}, err
	}
	return repo.GetTimetable(ctx, tt.ID, e)
}

func (repo timetableRepository) DeleteTimetable(ctx context.Context, id string, exec ...core.DBExecutor) error {
	e := repo.getExec(exec)
	res, err := e.ExecContext(ctx, e.Rebind("DELETE FROM timetables WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting timetable")
	}
	return checkAffected(res, timetable.ErrTimetableNotFound)
}

func (repo timetableRepository) GeneratedDates(
	ctx context.Context,
	templateID string,
	from, to calendar.Date,
	exec ...core.DBExecutor,
) ([]calendar.Date, error) {
	dates := make([]calendar.Date, 0)
	err := sqlxSelect(ctx, repo.getExec(exec), &dates,
		"SELECT date FROM timetables WHERE template_id = ? AND date BETWEEN ? AND ? ORDER BY date",
		templateID, from, to,
	)
	if err != nil {
		return nil, errors.Wrap(err, "querying generated dates")
	}
	return dates, nil
}

func (repo timetableRepository) DeleteGenerated(
	ctx context.Context,
	templateID string,
	from, to calendar.Date,
	exec ...core.DBExecutor,
) (int, error) {
	e := repo.getExec(exec)
	res, err := e.ExecContext(ctx,
		e.Rebind("DELETE FROM timetables WHERE template_id = ? AND date BETWEEN ? AND ?"),
		templateID, from, to,
	)
	if err != nil {
		return 0, errors.Wrap(err, "deleting generated sessions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "reading affected rows")
}

func (repo timetableRepository) Bookings(ctx context.Context, q calendar.BookingQuery, exec ...core.DBExecutor) ([]calendar.Booking, error) {
	var w where
	w.add("t.is_active = ?", true)
	if q.ExcludeTemplateID != "" {
		w.add("(t.template_id IS NULL OR t.template_id <> ?)", q.ExcludeTemplateID)
	}
	query := `
		SELECT t.id, t.date, t.start_time, t.end_time, t.class_id, COALESCE(t.room, '') AS room,
			c.name AS class_name, s.name AS subject_name, '' AS title
		FROM timetables t
		JOIN classes c ON c.id = t.class_id
		JOIN subjects s ON s.id = t.subject_id` + bookingWhere(q, "t", &w)

	return selectBookings(ctx, repo.getExec(exec), timetable.BookingKind, query, w.args...)
}
