package echoapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/exam"
	"github.com/trezcool/ratiba/core/timetable"
	"github.com/trezcool/ratiba/tests"
)

func TestTemplateAPI(t *testing.T) {
	ta := newTestApp(t)
	ctx := context.Background()

	// a session of another class in R1 on Wednesday 2025-03-05 overlaps the template there
	_, err := ta.svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(ta.school, "2025-03-05", "08:30", "09:30"), false)
	require.NoError(t, err)

	var tplID string
	invalidBody := "{"
	unknownClass := testutil.NewTemplate(ta.school)
	unknownClass.ClassID = "nope"

	ta.run(t, []httpTest{
		{
			name:     "create: empty payload",
			method:   http.MethodPost,
			path:     "/api/templates",
			body:     timetable.NewTemplate{},
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res jsonResponse) {
				flds := res.fieldErrors(t)
				for _, key := range []string{"name", "branch_id", "class_id", "subject_id", "start_date", "end_date", "recurrence"} {
					assert.Contains(t, flds, key)
				}
			},
		},
		{
			name:     "create: invalid body",
			method:   http.MethodPost,
			path:     "/api/templates",
			body:     invalidBody,
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, map[string]interface{}{"body": "invalid request body"}, res.fieldErrors(t))
			},
		},
		{
			name:     "create: unknown class",
			method:   http.MethodPost,
			path:     "/api/templates",
			body:     unknownClass,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "create",
			method:   http.MethodPost,
			path:     "/api/templates",
			body:     testutil.NewTemplate(ta.school),
			wantCode: http.StatusCreated,
			check: func(t *testing.T, res jsonResponse) {
				var tpl timetable.Template
				res.decode(t, &tpl)
				assert.NotEmpty(t, tpl.ID)
				assert.Equal(t, "5A Maths", tpl.Name)
				assert.Equal(t, calendar.Weekly, tpl.Recurrence)
				assert.True(t, tpl.IsActive)
				tplID = tpl.ID
			},
		},
		{
			name:     "list",
			path:     "/api/templates?is_active=true&ordering=-name",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 1, res.Count)
			},
		},
		{
			name:     "list: invalid query",
			path:     "/api/templates?is_active=maybe",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "get: not found",
			path:     "/api/templates/unknown",
			wantCode: http.StatusNotFound,
		},
	})
	require.NotEmpty(t, tplID)

	ta.run(t, []httpTest{
		{
			name:     "get",
			path:     "/api/templates/" + tplID,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var tpl timetable.Template
				res.decode(t, &tpl)
				assert.Equal(t, tplID, tpl.ID)
			},
		},
		{
			name:     "preview",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/preview",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var pv timetable.Preview
				res.decode(t, &pv)
				assert.Equal(t, 8, pv.TotalDates)
				assert.Equal(t, 7, pv.ValidDates)
				assert.Equal(t, 1, pv.ConflictingDates)
				assert.Equal(t, 0, pv.AlreadyGenerated)
				require.Len(t, pv.Conflicts, 1)
				assert.Equal(t, calendar.MustParseDate("2025-03-05"), pv.Conflicts[0].Date)
			},
		},
		{
			name:     "preview draft",
			method:   http.MethodPost,
			path:     "/api/templates/preview",
			body:     testutil.NewTemplate(ta.school),
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var pv timetable.Preview
				res.decode(t, &pv)
				assert.Equal(t, 8, pv.TotalDates)
				assert.Len(t, pv.SampleDates, ta.svcs.Conf.Generation.SampleSize)
			},
		},
		{
			name:     "generate",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/generate",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var gen timetable.Generation
				res.decode(t, &gen)
				assert.Equal(t, 8, gen.TotalDates)
				assert.Equal(t, 7, gen.Created)
				assert.Equal(t, 1, gen.Conflicting)
				assert.Equal(t, 0, gen.Forced)
			},
		},
		{
			name:     "generate again",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/generate",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var gen timetable.Generation
				res.decode(t, &gen)
				assert.Equal(t, 0, gen.Created)
				assert.Equal(t, 7, gen.Skipped)
				assert.Equal(t, 1, gen.Conflicting)
			},
		},
		{
			name:     "generate forced",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/generate",
			body:     timetable.GenerateOptions{Force: true},
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var gen timetable.Generation
				res.decode(t, &gen)
				assert.Equal(t, 1, gen.Created)
				assert.Equal(t, 7, gen.Skipped)
				assert.Equal(t, 1, gen.Forced)
				assert.Equal(t, []calendar.Date{calendar.MustParseDate("2025-03-05")}, gen.CreatedDates)
			},
		},
		{
			name:     "generated sessions",
			path:     "/api/timetables?template_id=" + tplID,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 8, res.Count)
			},
		},
		{
			name:     "generate: invalid body",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/generate",
			body:     `{"force": "yes"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "generate: not found",
			method:   http.MethodPost,
			path:     "/api/templates/unknown/generate",
			wantCode: http.StatusNotFound,
		},
	})

	update := testutil.NewTemplate(ta.school)
	update.Name = "5A Maths (afternoon)"
	update.StartTime = "14:00"
	update.EndTime = "15:00"
	update.IsActive = testutil.BoolPtr(false)

	ta.run(t, []httpTest{
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/api/templates/" + tplID,
			body:     update,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var tpl timetable.Template
				res.decode(t, &tpl)
				assert.Equal(t, "5A Maths (afternoon)", tpl.Name)
				assert.Equal(t, calendar.MustParseClock("14:00"), tpl.StartTime)
				assert.False(t, tpl.IsActive)
			},
		},
		{
			name:     "generate: inactive",
			method:   http.MethodPost,
			path:     "/api/templates/" + tplID + "/generate",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/api/templates/" + tplID,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "get: deleted",
			path:     "/api/templates/" + tplID,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "sessions survive the template",
			path:     "/api/timetables?class_id=" + ta.school.Class.ID,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 8, res.Count)
			},
		},
	})
}

func TestTimetableAPI(t *testing.T) {
	ta := newTestApp(t)

	session := testutil.NewTimetable(ta.school, "2025-03-05", "08:00", "09:00")

	// same room, another class, overlapping by 30 minutes
	roomClash := testutil.NewTimetable(ta.school, "2025-03-05", "08:30", "09:30")
	roomClash.ClassID = ta.school.Class.ID

	// same class in another room, right after the session
	touching := testutil.NewTimetable(ta.school, "2025-03-05", "09:00", "10:00")
	touching.Room = "R2"

	badTimes := testutil.NewTimetable(ta.school, "2025-03-05", "10:00", "09:00")

	var sessionID string
	ta.run(t, []httpTest{
		{
			name:     "create",
			method:   http.MethodPost,
			path:     "/api/timetables",
			body:     session,
			wantCode: http.StatusCreated,
			check: func(t *testing.T, res jsonResponse) {
				var tt timetable.Timetable
				res.decode(t, &tt)
				assert.NotEmpty(t, tt.ID)
				assert.False(t, tt.TemplateID.Valid)
				assert.Equal(t, "5B", tt.ClassName)
				sessionID = tt.ID
			},
		},
		{
			name:     "create: end before start",
			method:   http.MethodPost,
			path:     "/api/timetables",
			body:     badTimes,
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res jsonResponse) {
				assert.Contains(t, res.fieldErrors(t), "end_time")
			},
		},
		{
			name:     "create: invalid force",
			method:   http.MethodPost,
			path:     "/api/timetables?force=maybe",
			body:     roomClash,
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, map[string]interface{}{"force": "must be a boolean"}, res.fieldErrors(t))
			},
		},
		{
			name:     "create: conflict",
			method:   http.MethodPost,
			path:     "/api/timetables",
			body:     roomClash,
			wantCode: http.StatusConflict,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, "scheduling conflict", res.Error)
				assert.NotEmpty(t, res.Message)
				require.Len(t, res.Conflicts, 1)
				c := res.Conflicts[0]
				assert.Equal(t, sessionID, c["id"])
				assert.Equal(t, timetable.BookingKind, c["kind"])
				assert.Equal(t, "2025-03-05", c["date"])
				assert.Equal(t, []interface{}{"room"}, c["reasons"])
			},
		},
		{
			name:     "conflict check",
			method:   http.MethodPost,
			path:     "/api/timetables/conflicts",
			body:     roomClash,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 1, res.Count)
			},
		},
		{
			name:     "create: touching",
			method:   http.MethodPost,
			path:     "/api/timetables",
			body:     touching,
			wantCode: http.StatusCreated,
		},
		{
			name:     "create: forced",
			method:   http.MethodPost,
			path:     "/api/timetables?force=true",
			body:     roomClash,
			wantCode: http.StatusCreated,
		},
		{
			name:     "list",
			path:     "/api/timetables?from=2025-03-05&to=2025-03-05&ordering=start_time",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var tts []timetable.Timetable
				res.decode(t, &tts)
				require.Len(t, tts, 3)
				assert.Equal(t, calendar.MustParseClock("08:00"), tts[0].StartTime)
				assert.Equal(t, calendar.MustParseClock("09:00"), tts[2].StartTime)
			},
		},
		{
			name:     "list: other day",
			path:     "/api/timetables?from=2025-03-06",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 0, res.Count)
			},
		},
		{
			name:     "get: not found",
			path:     "/api/timetables/unknown",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "update: not found",
			method:   http.MethodPut,
			path:     "/api/timetables/unknown",
			body:     session,
			wantCode: http.StatusNotFound,
		},
	})
	require.NotEmpty(t, sessionID)

	// moving the first session onto the forced one clashes on room and class
	moved := session
	moved.ClassID = ta.school.Class.ID
	moved.StartTime = "08:15"
	moved.EndTime = "08:45"

	ta.run(t, []httpTest{
		{
			name:     "conflict check: excluding itself",
			method:   http.MethodPost,
			path:     "/api/timetables/conflicts?exclude_id=" + sessionID,
			body:     session,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				// the forced session still overlaps in R1
				assert.Equal(t, 1, res.Count)
			},
		},
		{
			name:     "update: conflict",
			method:   http.MethodPut,
			path:     "/api/timetables/" + sessionID,
			body:     moved,
			wantCode: http.StatusConflict,
			check: func(t *testing.T, res jsonResponse) {
				require.Len(t, res.Conflicts, 1)
				assert.ElementsMatch(t, []interface{}{"class", "room"}, res.Conflicts[0]["reasons"])
			},
		},
		{
			name:     "update: forced",
			method:   http.MethodPut,
			path:     "/api/timetables/" + sessionID + "?force=true",
			body:     moved,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var tt timetable.Timetable
				res.decode(t, &tt)
				assert.Equal(t, calendar.MustParseClock("08:15"), tt.StartTime)
				assert.Equal(t, "5A", tt.ClassName)
			},
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/api/timetables/" + sessionID,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "delete: not found",
			method:   http.MethodDelete,
			path:     "/api/timetables/" + sessionID,
			wantCode: http.StatusNotFound,
		},
	})
}

func TestExamAPI(t *testing.T) {
	ta := newTestApp(t)

	// timetables never conflict with exams
	_, err := ta.svcs.Timetable.CreateTimetable(context.Background(), testutil.NewTimetable(ta.school, "2025-06-02", "09:00", "11:00"), false)
	require.NoError(t, err)

	paper1 := exam.NewExam{
		BranchID:  ta.school.Branch.ID,
		ClassID:   ta.school.OtherClass.ID,
		SubjectID: ta.school.Subject.ID,
		Title:     "Mathematics paper 1",
		Date:      "2025-06-02",
		StartTime: "09:00",
		EndTime:   "11:00",
		Room:      "R1",
	}
	paper2 := paper1
	paper2.Title = "Mathematics paper 2"
	paper2.StartTime = "10:00"
	paper2.EndTime = "12:00"
	paper2.Room = "Hall"

	badTimes := paper1
	badTimes.EndTime = "08:00"

	var examID string
	ta.run(t, []httpTest{
		{
			name:     "schedule",
			method:   http.MethodPost,
			path:     "/api/exams",
			body:     paper1,
			wantCode: http.StatusCreated,
			check: func(t *testing.T, res jsonResponse) {
				var e exam.Exam
				res.decode(t, &e)
				assert.NotEmpty(t, e.ID)
				assert.Equal(t, "Mathematics paper 1", e.Title)
				examID = e.ID
			},
		},
		{
			name:     "schedule: end before start",
			method:   http.MethodPost,
			path:     "/api/exams",
			body:     badTimes,
			wantCode: http.StatusBadRequest,
			check: func(t *testing.T, res jsonResponse) {
				assert.Contains(t, res.fieldErrors(t), "end_time")
			},
		},
		{
			name:     "schedule: class conflict",
			method:   http.MethodPost,
			path:     "/api/exams",
			body:     paper2,
			wantCode: http.StatusConflict,
			check: func(t *testing.T, res jsonResponse) {
				require.Len(t, res.Conflicts, 1)
				c := res.Conflicts[0]
				assert.Equal(t, exam.BookingKind, c["kind"])
				assert.Equal(t, []interface{}{"class"}, c["reasons"])
			},
		},
		{
			name:     "conflict check",
			method:   http.MethodPost,
			path:     "/api/exams/conflicts",
			body:     paper2,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				assert.Equal(t, 1, res.Count)
			},
		},
		{
			name:     "schedule: forced",
			method:   http.MethodPost,
			path:     "/api/exams?force=1",
			body:     paper2,
			wantCode: http.StatusCreated,
		},
		{
			name:     "list",
			path:     "/api/exams?class_id=" + ta.school.OtherClass.ID + "&ordering=start_time",
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var exams []exam.Exam
				res.decode(t, &exams)
				require.Len(t, exams, 2)
				assert.Equal(t, "Mathematics paper 1", exams[0].Title)
			},
		},
		{
			name:     "get: not found",
			path:     "/api/exams/unknown",
			wantCode: http.StatusNotFound,
		},
	})
	require.NotEmpty(t, examID)

	moved := paper1
	moved.StartTime = "13:00"
	moved.EndTime = "15:00"

	ta.run(t, []httpTest{
		{
			name:     "get",
			path:     "/api/exams/" + examID,
			wantCode: http.StatusOK,
		},
		{
			name:     "update: still conflicting",
			method:   http.MethodPut,
			path:     "/api/exams/" + examID,
			body:     paper1,
			wantCode: http.StatusConflict,
		},
		{
			name:     "update",
			method:   http.MethodPut,
			path:     "/api/exams/" + examID,
			body:     moved,
			wantCode: http.StatusOK,
			check: func(t *testing.T, res jsonResponse) {
				var e exam.Exam
				res.decode(t, &e)
				assert.Equal(t, calendar.MustParseClock("13:00"), e.StartTime)
			},
		},
		{
			name:     "delete",
			method:   http.MethodDelete,
			path:     "/api/exams/" + examID,
			wantCode: http.StatusNoContent,
		},
		{
			name:     "get: deleted",
			path:     "/api/exams/" + examID,
			wantCode: http.StatusNotFound,
		},
	})
}

func TestGenerationRateLimit(t *testing.T) {
	ta := newTestApp(t, func(conf *core.Config) {
		conf.Generation.RateLimit = 1 // bursts of 2
	})
	path := "/api/templates/preview"
	draft := testutil.NewTemplate(ta.school)

	for i := 0; i < 2; i++ {
		code, res := ta.do(t, http.MethodPost, path, draft)
		require.Equal(t, http.StatusOK, code, "request %d: %v", i+1, res.Error)
	}

	code, res := ta.do(t, http.MethodPost, path, draft)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "too many generation requests, try again later", res.Error)

	// other endpoints are not limited
	code, _ = ta.do(t, http.MethodGet, "/api/templates", nil)
	assert.Equal(t, http.StatusOK, code)
}
