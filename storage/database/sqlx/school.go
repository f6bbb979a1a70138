package sqlxrepos

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/storage/database"
)

type schoolRepository struct {
	repository
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db core.DBExecutor) *schoolRepository {
	return &schoolRepository{repository{db: db}}
}

func (repo schoolRepository) GetBranch(ctx context.Context, id string, exec ...core.DBExecutor) (school.Branch, error) {
	e := repo.getExec(exec)
	var branch school.Branch
	err := sqlxGet(ctx, e, &branch, "SELECT id, name, address, created_at FROM branches WHERE id = ?", id)
	if err != nil {
		return school.Branch{}, trapNoRowsErr(err, school.ErrBranchNotFound)
	}
	return branch, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	e := repo.getExec(exec)
	var class school.Class
	err := sqlxGet(ctx, e, &class, "SELECT id, branch_id, academic_year_id, name, created_at FROM classes WHERE id = ?", id)
	if err != nil {
		return school.Class{}, trapNoRowsErr(err, school.ErrClassNotFound)
	}
	return class, nil
}

func (repo schoolRepository) GetSubject(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	e := repo.getExec(exec)
	var subject school.Subject
	err := sqlxGet(ctx, e, &subject, "SELECT id, name, code, created_at FROM subjects WHERE id = ?", id)
	if err != nil {
		return school.Subject{}, trapNoRowsErr(err, school.ErrSubjectNotFound)
	}
	return subject, nil
}

func (repo schoolRepository) GetTeacher(ctx context.Context, id string, exec ...core.DBExecutor) (school.Teacher, error) {
	e := repo.getExec(exec)
	var teacher school.Teacher
	err := sqlxGet(ctx, e, &teacher, "SELECT id, name, email, created_at FROM teachers WHERE id = ?", id)
	if err != nil {
		return school.Teacher{}, trapNoRowsErr(err, school.ErrTeacherNotFound)
	}
	return teacher, nil
}

// upsert runs an "INSERT .. ON CONFLICT DO UPDATE .. RETURNING id" and returns the stored ID.
func upsert(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (string, error) {
	var id string
	if err := exec.QueryRowxContext(ctx, exec.Rebind(query), args...).Scan(&id); err != nil {
		return "", database.TranslateError(err)
	}
	return id, nil
}

func (repo schoolRepository) UpsertBranch(ctx context.Context, branch school.Branch, exec ...core.DBExecutor) (school.Branch, error) {
	id, err := upsert(ctx, repo.getExec(exec), `
		INSERT INTO branches (id, name, address, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET address = excluded.address
		RETURNING id`,
		uuid.NewString(), branch.Name, branch.Address, branch.CreatedAt,
	)
	if err != nil {
		return school.Branch{}, errors.Wrap(err, "upserting branch")
	}
	branch.ID = id
	return branch, nil
}

func (repo schoolRepository) UpsertAcademicYear(ctx context.Context, year school.AcademicYear, exec ...core.DBExecutor) (school.AcademicYear, error) {
	id, err := upsert(ctx, repo.getExec(exec), `
		INSERT INTO academic_years (id, name, start_date, end_date, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET start_date = excluded.start_date, end_date = excluded.end_date
		RETURNING id`,
		uuid.NewString(), year.Name, year.StartDate, year.EndDate, year.CreatedAt,
	)
	if err != nil {
		return school.AcademicYear{}, errors.Wrap(err, "upserting academic year")
	}
	year.ID = id
	return year, nil
}

func (repo schoolRepository) UpsertClass(ctx context.Context, class school.Class, exec ...core.DBExecutor) (school.Class, error) {
	id, err := upsert(ctx, repo.getExec(exec), `
		INSERT INTO classes (id, branch_id, academic_year_id, name, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (branch_id, name) DO UPDATE SET academic_year_id = excluded.academic_year_id
		RETURNING id`,
		uuid.NewString(), class.BranchID, class.AcademicYearID, class.Name, class.CreatedAt,
	)
	if err != nil {
		return school.Class{}, errors.Wrap(err, "upserting class")
	}
	class.ID = id
	return class, nil
}

func (repo schoolRepository) UpsertSubject(ctx context.Context, subject school.Subject, exec ...core.DBExecutor) (school.Subject, error) {
	id, err := upsert(ctx, repo.getExec(exec), `
		INSERT INTO subjects (id, name, code, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET code = excluded.code
		RETURNING id`,
		uuid.NewString(), subject.Name, subject.Code, subject.CreatedAt,
	)
	if err != nil {
		return school.Subject{}, errors.Wrap(err, "upserting subject")
	}
	subject.ID = id
	return subject, nil
}

func (repo schoolRepository) UpsertTeacher(ctx context.Context, teacher school.Teacher, exec ...core.DBExecutor) (school.Teacher, error) {
	id, err := upsert(ctx, repo.getExec(exec), `
		INSERT INTO teachers (id, name, email, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET email = excluded.email
		RETURNING id`,
		uuid.NewString(), teacher.Name, teacher.Email, teacher.CreatedAt,
	)
	if err != nil {
		return school.Teacher{}, errors.Wrap(err, "upserting teacher")
	}
	teacher.ID = id
	return teacher, nil
}
