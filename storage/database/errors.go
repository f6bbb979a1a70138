package database

import (
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/trezcool/ratiba/core"
)

type violation int

const (
	noViolation violation = iota
	uniqueViolation
	foreignKeyViolation
	checkViolation
)

// constraintErrors maps constraint names (postgres) and failing columns (sqlite) to field errors.
var constraintErrors = map[string]core.FieldError{
	"timetables_template_id_date_key":         {Field: "date", Error: "a session was already generated from this template on this date"},
	"timetables.template_id, timetables.date": {Field: "date", Error: "a session was already generated from this template on this date"},
	"classes_branch_id_name_key":              {Field: "name", Error: "a class with this name already exists in this branch"},
	"classes.branch_id, classes.name":         {Field: "name", Error: "a class with this name already exists in this branch"},
	"branches_name_key":                       {Field: "name", Error: "a branch with this name already exists"},
	"branches.name":                           {Field: "name", Error: "a branch with this name already exists"},
	"subjects_name_key":                       {Field: "name", Error: "a subject with this name already exists"},
	"subjects.name":                           {Field: "name", Error: "a subject with this name already exists"},
	"teachers_name_key":                       {Field: "name", Error: "a teacher with this name already exists"},
	"teachers.name":                           {Field: "name", Error: "a teacher with this name already exists"},
	"academic_years_name_key":                 {Field: "name", Error: "an academic year with this name already exists"},
	"academic_years.name":                     {Field: "name", Error: "an academic year with this name already exists"},
}

// classify returns the kind of constraint err violates and the constraint (or sqlite detail) it names.
func classify(err error) (violation, string) {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		switch string(e.Code) {
		case pgerrcode.UniqueViolation:
			return uniqueViolation, e.Constraint
		case pgerrcode.ForeignKeyViolation:
			return foreignKeyViolation, e.Constraint
		case pgerrcode.CheckViolation:
			return checkViolation, e.Constraint
		}
	case *pgconn.PgError:
		switch e.Code {
		case pgerrcode.UniqueViolation:
			return uniqueViolation, e.ConstraintName
		case pgerrcode.ForeignKeyViolation:
			return foreignKeyViolation, e.ConstraintName
		case pgerrcode.CheckViolation:
			return checkViolation, e.ConstraintName
		}
	case *sqlite.Error:
		msg := e.Error()
		detail := ""
		if i := strings.LastIndex(msg, "constraint failed: "); i >= 0 {
			detail = strings.TrimSpace(msg[i+len("constraint failed: "):])
			if j := strings.Index(detail, " ("); j >= 0 {
				detail = detail[:j]
			}
		}
		switch e.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return uniqueViolation, detail
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return foreignKeyViolation, detail
		case sqlite3.SQLITE_CONSTRAINT_CHECK:
			return checkViolation, detail
		}
		if e.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			switch {
			case strings.Contains(msg, "UNIQUE"):
				return uniqueViolation, detail
			case strings.Contains(msg, "FOREIGN KEY"):
				return foreignKeyViolation, detail
			}
		}
	}
	return noViolation, ""
}

// TranslateError turns constraint violations into a *core.ValidationError with a user-facing message.
// Other errors are returned as is.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	v, constraint := classify(err)
	switch v {
	case uniqueViolation:
		fe, ok := constraintErrors[constraint]
		if !ok {
			fe = core.FieldError{Field: "id", Error: "a record with the same values already exists"}
		}
		return core.NewValidationError(err, fe)
	case foreignKeyViolation:
		return core.NewValidationError(err, core.FieldError{Field: "id", Error: "a referenced record does not exist"})
	case checkViolation:
		return core.NewValidationError(err, core.FieldError{Field: "id", Error: "invalid values"})
	}
	return err
}
