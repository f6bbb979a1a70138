package school

import (
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

type (
	Branch struct {
		ID        string      `json:"id" db:"id"`
		Name      string      `json:"name" db:"name"`
		Address   null.String `json:"address" db:"address"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
	}

	AcademicYear struct {
		ID        string        `json:"id" db:"id"`
		Name      string        `json:"name" db:"name"`
		StartDate calendar.Date `json:"start_date" db:"start_date"`
		EndDate   calendar.Date `json:"end_date" db:"end_date"`
		CreatedAt time.Time     `json:"created_at" db:"created_at"`
	}

	Class struct {
		ID             string      `json:"id" db:"id"`
		BranchID       string      `json:"branch_id" db:"branch_id"`
		AcademicYearID null.String `json:"academic_year_id" db:"academic_year_id"`
		Name           string      `json:"name" db:"name"`
		CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	}

	Subject struct {
		ID        string      `json:"id" db:"id"`
		Name      string      `json:"name" db:"name"`
		Code      null.String `json:"code" db:"code"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
	}

	Teacher struct {
		ID        string      `json:"id" db:"id"`
		Name      string      `json:"name" db:"name"`
		Email     null.String `json:"email" db:"email"`
		CreatedAt time.Time   `json:"created_at" db:"created_at"`
	}
)

// Catalog is the reference data of a school, as imported from YAML.
// Records are matched by name: classes within their branch, everything else globally.
type (
	Catalog struct {
		Branches      []CatalogBranch       `yaml:"branches" validate:"dive"`
		AcademicYears []CatalogAcademicYear `yaml:"academic_years" validate:"dive"`
		Classes       []CatalogClass        `yaml:"classes" validate:"dive"`
		Subjects      []CatalogSubject      `yaml:"subjects" validate:"dive"`
		Teachers      []CatalogTeacher      `yaml:"teachers" validate:"dive"`
	}

	CatalogBranch struct {
		Name    string `yaml:"name" validate:"required,max=100"`
		Address string `yaml:"address" validate:"max=255"`
	}

	CatalogAcademicYear struct {
		Name      string `yaml:"name" validate:"required,max=50"`
		StartDate string `yaml:"start_date" validate:"required,datetime=2006-01-02"`
		EndDate   string `yaml:"end_date" validate:"required,datetime=2006-01-02"`
	}

	CatalogClass struct {
		Name         string `yaml:"name" validate:"required,max=100"`
		Branch       string `yaml:"branch" validate:"required"`
		AcademicYear string `yaml:"academic_year"`
	}

	CatalogSubject struct {
		Name string `yaml:"name" validate:"required,max=100"`
		Code string `yaml:"code" validate:"omitempty,max=20,alphanum_"`
	}

	CatalogTeacher struct {
		Name  string      `yaml:"name" validate:"required,max=100"`
		Email null.String `yaml:"email" validate:"omitempty,email"`
	}
)

func (c *Catalog) clean() {
	for i := range c.Branches {
		c.Branches[i].Name = core.CleanString(c.Branches[i].Name)
		c.Branches[i].Address = core.CleanString(c.Branches[i].Address)
	}
	for i := range c.AcademicYears {
		c.AcademicYears[i].Name = core.CleanString(c.AcademicYears[i].Name)
	}
	for i := range c.Classes {
		c.Classes[i].Name = core.CleanString(c.Classes[i].Name)
		c.Classes[i].Branch = core.CleanString(c.Classes[i].Branch)
		c.Classes[i].AcademicYear = core.CleanString(c.Classes[i].AcademicYear)
	}
	for i := range c.Subjects {
		c.Subjects[i].Name = core.CleanString(c.Subjects[i].Name)
		c.Subjects[i].Code = core.CleanString(c.Subjects[i].Code)
	}
	for i := range c.Teachers {
		c.Teachers[i].Name = core.CleanString(c.Teachers[i].Name)
		if c.Teachers[i].Email.Valid {
			email := core.CleanString(c.Teachers[i].Email.String, true /* lower */)
			c.Teachers[i].Email = null.NewString(email, email != "")
		}
	}
}

// Validate cleans the catalog, then checks its fields and the references between its records.
func (c *Catalog) Validate(validate *validator.Validate, translator ut.Translator) error {
	c.clean()
	if err := core.ValidateStruct(validate, translator, c); err != nil {
		return err
	}

	branches := make(map[string]bool, len(c.Branches))
	for _, b := range c.Branches {
		branches[b.Name] = true
	}
	years := make(map[string]bool, len(c.AcademicYears))
	for _, y := range c.AcademicYears {
		start, _ := calendar.ParseDate(y.StartDate)
		end, _ := calendar.ParseDate(y.EndDate)
		if end.Before(start) {
			return core.NewValidationError(nil, core.FieldError{
				Field: "academic_years", Error: "academic year " + y.Name + " ends before it starts",
			})
		}
		years[y.Name] = true
	}
	for _, cls := range c.Classes {
		if !branches[cls.Branch] {
			return core.NewValidationError(nil, core.FieldError{
				Field: "classes", Error: "class " + cls.Name + " references unknown branch " + cls.Branch,
			})
		}
		if cls.AcademicYear != "" && !years[cls.AcademicYear] {
			return core.NewValidationError(nil, core.FieldError{
				Field: "classes", Error: "class " + cls.Name + " references unknown academic year " + cls.AcademicYear,
			})
		}
	}
	return nil
}
