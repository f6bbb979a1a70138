package school_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/school"
	"github.com/trezcool/ratiba/tests"
)

const catalogYAML = `
branches:
  - name: Main
    address: 1 Uhuru St
academic_years:
  - name: "2025"
    start_date: "2025-01-06"
    end_date: "2025-12-19"
classes:
  - name: 1A
    branch: Main
    academic_year: "2025"
  - name: 1B
    branch: Main
subjects:
  - name: Biology
    code: BIO
teachers:
  - name: Neema Otieno
    email: " Neema@Example.com "
  - name: Baraka Mwangi
`

func decode(t *testing.T, doc string) school.Catalog {
	t.Helper()
	var c school.Catalog
	require.NoError(t, yaml.Unmarshal([]byte(doc), &c))
	return c
}

func TestCatalog_Validate(t *testing.T) {
	svcs := testutil.NewServices(testutil.PrepareDB(t))

	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{name: "valid", doc: catalogYAML},
		{name: "missing name", doc: "branches:\n  - address: nowhere\n", wantField: "name"},
		{name: "bad date", doc: "academic_years:\n  - {name: x, start_date: 2025/01/06, end_date: 2025-12-19}\n", wantField: "start_date"},
		{name: "year ends before it starts", doc: "academic_years:\n  - {name: x, start_date: 2025-12-19, end_date: 2025-01-06}\n", wantField: "academic_years"},
		{name: "bad subject code", doc: "subjects:\n  - {name: x, code: \"B-1\"}\n", wantField: "code"},
		{name: "bad email", doc: "teachers:\n  - {name: x, email: lol}\n", wantField: "email"},
		{name: "unknown branch", doc: "classes:\n  - {name: 1A, branch: Annex}\n", wantField: "classes"},
		{name: "unknown year", doc: "branches:\n  - name: Main\nclasses:\n  - {name: 1A, branch: Main, academic_year: \"1999\"}\n", wantField: "classes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := decode(t, tt.doc)
			err := c.Validate(svcs.Validate, svcs.Translator)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			vErr, ok := errors.Cause(err).(*core.ValidationError)
			require.True(t, ok, "want *core.ValidationError, got %v", err)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
		})
	}
}

func TestService_Import(t *testing.T) {
	db := testutil.PrepareDB(t)
	svcs := testutil.NewServices(db)
	ctx := context.Background()

	catalog := decode(t, catalogYAML)
	require.NoError(t, catalog.Validate(svcs.Validate, svcs.Translator))

	res, err := svcs.School.Import(ctx, catalog)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Count())

	class, err := svcs.School.GetClass(ctx, res.Classes[school.ClassKey("Main", "1A")])
	require.NoError(t, err)
	assert.Equal(t, res.Branches["Main"], class.BranchID)
	assert.Equal(t, res.AcademicYears["2025"], class.AcademicYearID.String)

	class, err = svcs.School.GetClass(ctx, res.Classes[school.ClassKey("Main", "1B")])
	require.NoError(t, err)
	assert.False(t, class.AcademicYearID.Valid)

	teacher, err := svcs.School.GetTeacher(ctx, res.Teachers["Neema Otieno"])
	require.NoError(t, err)
	assert.Equal(t, "neema@example.com", teacher.Email.String)

	teacher, err = svcs.School.GetTeacher(ctx, res.Teachers["Baraka Mwangi"])
	require.NoError(t, err)
	assert.False(t, teacher.Email.Valid)

	t.Run("re-import keeps IDs", func(t *testing.T) {
		again, err := svcs.School.Import(ctx, catalog)
		require.NoError(t, err)
		assert.Equal(t, res, again)
	})

	t.Run("failure rolls back", func(t *testing.T) {
		bad := school.Catalog{
			Branches: []school.CatalogBranch{{Name: "Annex"}},
			Classes:  []school.CatalogClass{{Name: "2A", Branch: "Nowhere"}},
		}
		_, err := svcs.School.Import(ctx, bad)
		assert.Equal(t, core.ErrNotFound, errors.Cause(err))

		var count int
		require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM branches"))
		assert.Equal(t, 1, count)
	})
}
