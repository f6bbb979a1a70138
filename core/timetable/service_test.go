package timetable_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	_ "time/tzdata" // timezone tests must not depend on the host

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/timetable"
	logsvc "github.com/trezcool/ratiba/services/logger"
	sqlxrepos "github.com/trezcool/ratiba/storage/database/sqlx"
	"github.com/trezcool/ratiba/tests"
)

func setup(t *testing.T) (*sqlx.DB, testutil.School, testutil.Services) {
	db := testutil.PrepareDB(t)
	return db, testutil.SeedSchool(t, db), testutil.NewServices(db)
}

func dates(ss ...string) []calendar.Date {
	res := make([]calendar.Date, 0, len(ss))
	for _, s := range ss {
		res = append(res, calendar.MustParseDate(s))
	}
	return res
}

func fieldErrors(t *testing.T, err error) []core.FieldError {
	t.Helper()
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want *core.ValidationError, got %T (%v)", err, err)
	return vErr.Fields
}

func TestService_CreateTemplate(t *testing.T) {
	_, s, svcs := setup(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		update    func(nt *timetable.NewTemplate)
		wantField string
	}{
		{name: "unknown class", update: func(nt *timetable.NewTemplate) { nt.ClassID = "lol" }, wantField: "class_id"},
		{name: "class of another branch", update: func(nt *timetable.NewTemplate) { nt.BranchID = s.OtherBranch.ID }, wantField: "class_id"},
		{name: "unknown subject", update: func(nt *timetable.NewTemplate) { nt.SubjectID = "lol" }, wantField: "subject_id"},
		{name: "unknown teacher", update: func(nt *timetable.NewTemplate) { nt.TeacherID = "lol" }, wantField: "teacher_id"},
		{name: "range too long", update: func(nt *timetable.NewTemplate) { nt.EndDate = "2027-01-01" }, wantField: "end_date"},
		{name: "valid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nt := testutil.NewTemplate(s)
			if tt.update != nil {
				tt.update(&nt)
			}
			tpl, err := svcs.Timetable.CreateTemplate(ctx, nt)
			if tt.wantField != "" {
				flds := fieldErrors(t, err)
				require.NotEmpty(t, flds)
				assert.Equal(t, tt.wantField, flds[0].Field)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tpl.ID)
			assert.True(t, tpl.IsActive)
		})
	}
}

func TestService_UpdateTemplate(t *testing.T) {
	_, s, svcs := setup(t)
	ctx := context.Background()

	tpl, err := svcs.Timetable.CreateTemplate(ctx, testutil.NewTemplate(s))
	require.NoError(t, err)
	gen, err := svcs.Timetable.Generate(ctx, tpl.ID, timetable.GenerateOptions{})
	require.NoError(t, err)
	require.Equal(t, 8, gen.Created)

	nt := testutil.NewTemplate(s)
	nt.Name = "5A Maths (lab)"
	nt.StartTime, nt.EndTime = "10:00", "11:00"
	nt.ExclusionDates = []string{"2025-03-10"}
	updated, err := svcs.Timetable.UpdateTemplate(ctx, tpl.ID, nt)
	require.NoError(t, err)
	assert.Equal(t, tpl.ID, updated.ID)
	assert.Equal(t, calendar.MustParseClock("10:00"), updated.StartTime)
	assert.Equal(t, tpl.CreatedAt.Unix(), updated.CreatedAt.Unix())

	// existing sessions are left alone
	sessions, err := svcs.Timetable.QueryTimetables(ctx, &timetable.Filter{TemplateID: tpl.ID}, nil)
	require.NoError(t, err)
	require.Len(t, sessions, 8)
	assert.Equal(t, calendar.MustParseClock("08:00"), sessions[0].StartTime)

	_, err = svcs.Timetable.UpdateTemplate(ctx, "lol", nt)
	assert.Equal(t, timetable.ErrTemplateNotFound, err)
}

func TestService_Preview(t *testing.T) {
	db, s, svcs := setup(t)
	ctx := context.Background()

	tpl, err := svcs.Timetable.CreateTemplate(ctx, testutil.NewTemplate(s))
	require.NoError(t, err)

	// room clash on Wednesday 2025-03-05, class clash on Monday 2025-03-17
	_, err = svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-05", "08:30", "09:30"), false)
	require.NoError(t, err)
	classClash := testutil.NewTimetable(s, "2025-03-17", "07:30", "08:15")
	classClash.ClassID, classClash.Room = s.Class.ID, "R9"
	_, err = svcs.Timetable.CreateTimetable(ctx, classClash, false)
	require.NoError(t, err)
	// touching and other-room sessions do not clash
	_, err = svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-10", "09:00", "10:00"), false)
	require.NoError(t, err)
	otherRoom := testutil.NewTimetable(s, "2025-03-12", "08:00", "09:00")
	otherRoom.Room = "R2"
	_, err = svcs.Timetable.CreateTimetable(ctx, otherRoom, false)
	require.NoError(t, err)

	pv, err := svcs.Timetable.Preview(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, pv.TotalDates)
	assert.Equal(t, 6, pv.ValidDates)
	assert.Equal(t, 2, pv.ConflictingDates)
	assert.Equal(t, 0, pv.AlreadyGenerated)
	assert.Equal(t, dates("2025-03-03", "2025-03-10", "2025-03-12", "2025-03-19", "2025-03-24"), pv.SampleDates)
	require.Len(t, pv.Conflicts, 2)
	assert.Equal(t, calendar.MustParseDate("2025-03-05"), pv.Conflicts[0].Date)
	assert.Equal(t, []string{calendar.ReasonRoom}, pv.Conflicts[0].Conflicts[0].Reasons)
	assert.Equal(t, calendar.MustParseDate("2025-03-17"), pv.Conflicts[1].Date)
	assert.Equal(t, []string{calendar.ReasonClass}, pv.Conflicts[1].Conflicts[0].Reasons)

	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM timetables"))
	assert.Equal(t, 4, count, "preview must not write")

	t.Run("after generation", func(t *testing.T) {
		_, err := svcs.Timetable.Generate(ctx, tpl.ID, timetable.GenerateOptions{})
		require.NoError(t, err)

		pv, err := svcs.Timetable.Preview(ctx, tpl.ID)
		require.NoError(t, err)
		assert.Equal(t, 8, pv.TotalDates)
		assert.Equal(t, 6, pv.AlreadyGenerated)
		assert.Equal(t, 2, pv.ConflictingDates)
		assert.Equal(t, 0, pv.ValidDates)
		assert.Empty(t, pv.SampleDates)
	})

	t.Run("draft", func(t *testing.T) {
		nt := testutil.NewTemplate(s)
		nt.Recurrence = string(calendar.Biweekly)
		nt.ExclusionDates = []string{"2025-03-19"}
		pv, err := svcs.Timetable.PreviewDraft(ctx, nt)
		require.NoError(t, err)
		// weeks of 03-03 and 03-17: 03-03, 03-05, 03-17, 03-19(excluded)
		assert.Equal(t, 3, pv.TotalDates)
		assert.Equal(t, 0, pv.AlreadyGenerated)
		// a draft has no ID, so the saved template's session on 03-03 clashes too
		assert.Equal(t, 3, pv.ConflictingDates)
	})

	t.Run("empty range", func(t *testing.T) {
		nt := testutil.NewTemplate(s)
		nt.Weekdays = []int{int(time.Saturday)}
		nt.EndDate = "2025-03-07"
		pv, err := svcs.Timetable.PreviewDraft(ctx, nt)
		require.NoError(t, err)
		assert.Equal(t, timetable.Preview{SampleDates: []calendar.Date{}, Conflicts: []timetable.DateConflicts{}}, pv)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svcs.Timetable.Preview(ctx, "lol")
		assert.Equal(t, timetable.ErrTemplateNotFound, err)
	})
}

func TestService_Generate(t *testing.T) {
	db, s, svcs := setup(t)
	ctx := context.Background()

	tpl, err := svcs.Timetable.CreateTemplate(ctx, testutil.NewTemplate(s))
	require.NoError(t, err)
	_, err = svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-05", "08:30", "09:30"), false)
	require.NoError(t, err)

	countGenerated := func(t *testing.T) int {
		var n int
		require.NoError(t, db.Get(&n, db.Rebind("SELECT COUNT(*) FROM timetables WHERE template_id = ?"), tpl.ID))
		return n
	}

	tests := []struct {
		name      string
		opts      timetable.GenerateOptions
		want      timetable.Generation // CreatedDates and Conflicts not compared
		wantCount int
		wantMails int
	}{
		{
			name:      "skips conflicts",
			want:      timetable.Generation{TotalDates: 8, Created: 7, Conflicting: 1},
			wantCount: 7,
			wantMails: 1,
		},
		{
			name:      "idempotent",
			want:      timetable.Generation{TotalDates: 8, Skipped: 7, Conflicting: 1},
			wantCount: 7,
		},
		{
			name:      "force",
			opts:      timetable.GenerateOptions{Force: true},
			want:      timetable.Generation{TotalDates: 8, Created: 1, Skipped: 7, Forced: 1},
			wantCount: 8,
			wantMails: 1,
		},
		{
			name:      "regenerate",
			opts:      timetable.GenerateOptions{Regenerate: true},
			want:      timetable.Generation{TotalDates: 8, Created: 8, Forced: 1, Removed: 8},
			wantCount: 8,
			wantMails: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svcs.Mail.Reset()

			gen, err := svcs.Timetable.Generate(ctx, tpl.ID, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tpl.ID, gen.TemplateID)
			assert.Equal(t, tt.want.TotalDates, gen.TotalDates, "TotalDates")
			assert.Equal(t, tt.want.Created, gen.Created, "Created")
			assert.Equal(t, tt.want.Skipped, gen.Skipped, "Skipped")
			assert.Equal(t, tt.want.Conflicting, gen.Conflicting, "Conflicting")
			assert.Equal(t, tt.want.Forced, gen.Forced, "Forced")
			assert.Equal(t, tt.want.Removed, gen.Removed, "Removed")
			assert.Len(t, gen.CreatedDates, gen.Created)
			assert.Equal(t, tt.wantCount, countGenerated(t))
			assert.Len(t, svcs.Mail.SentMessages(), tt.wantMails)
		})
	}

	t.Run("report email", func(t *testing.T) {
		svcs.Mail.Reset()
		_, err := svcs.Timetable.Generate(ctx, tpl.ID, timetable.GenerateOptions{Regenerate: true})
		require.NoError(t, err)

		sent := svcs.Mail.SentMessages()
		require.Len(t, sent, 1)
		msg := sent[0]
		assert.Equal(t, s.Teacher.Email.String, msg.To[0].Address)
		assert.Contains(t, msg.Subject, tpl.Name)
		assert.Contains(t, msg.TextContent, "8 new session(s)")
		assert.Contains(t, msg.TextContent, s.Class.Name)
		require.Len(t, msg.Attachments, 1)
		assert.Equal(t, "sessions.csv", msg.Attachments[0].Filename)
	})

	t.Run("inactive", func(t *testing.T) {
		nt := testutil.NewTemplate(s)
		nt.IsActive = testutil.BoolPtr(false)
		inactive, err := svcs.Timetable.CreateTemplate(ctx, nt)
		require.NoError(t, err)

		_, err = svcs.Timetable.Generate(ctx, inactive.ID, timetable.GenerateOptions{})
		assert.Equal(t, timetable.ErrTemplateInactive, err)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svcs.Timetable.Generate(ctx, "lol", timetable.GenerateOptions{})
		assert.Equal(t, core.ErrNotFound, errors.Cause(err))
	})

	t.Run("exclusions", func(t *testing.T) {
		nt := testutil.NewTemplate(s)
		nt.ClassID, nt.Room = s.OtherClass.ID, "R7"
		nt.StartTime, nt.EndTime = "14:00", "15:00"
		nt.ExclusionDates = []string{"2025-03-05", "2025-03-06"}
		other, err := svcs.Timetable.CreateTemplate(ctx, nt)
		require.NoError(t, err)

		gen, err := svcs.Timetable.Generate(ctx, other.ID, timetable.GenerateOptions{})
		require.NoError(t, err)
		assert.Equal(t, 7, gen.Created)
		assert.NotContains(t, gen.CreatedDates, calendar.MustParseDate("2025-03-05"))
	})
}

func TestService_GenerateActive(t *testing.T) {
	_, s, svcs := setup(t)
	ctx := context.Background()

	today := calendar.DateOf(time.Now().UTC())
	running := testutil.NewTemplate(s)
	running.Recurrence = string(calendar.Custom)
	running.Weekdays = nil
	running.StartDate, running.EndDate = today.String(), today.AddDays(6).String()
	tpl, err := svcs.Timetable.CreateTemplate(ctx, running)
	require.NoError(t, err)

	_, err = svcs.Timetable.CreateTemplate(ctx, testutil.NewTemplate(s)) // over
	require.NoError(t, err)

	paused := running
	paused.ClassID = s.OtherClass.ID
	paused.IsActive = testutil.BoolPtr(false)
	_, err = svcs.Timetable.CreateTemplate(ctx, paused)
	require.NoError(t, err)

	gens, err := svcs.Timetable.GenerateActive(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, tpl.ID, gens[0].TemplateID)
	assert.Equal(t, 7, gens[0].Created)

	gens, err = svcs.Timetable.GenerateActive(ctx)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, 0, gens[0].Created)
	assert.Equal(t, 7, gens[0].Skipped)
}

func TestService_GenerateActive_timezone(t *testing.T) {
	// testutil.NewTemplate ends on 2025-03-30
	tests := []struct {
		name     string
		timezone string
		now      time.Time
		wantGens int
	}{
		{name: "last day in UTC", timezone: "", now: time.Date(2025, 3, 30, 22, 30, 0, 0, time.UTC), wantGens: 1},
		{name: "already over in Nairobi", timezone: "Africa/Nairobi", now: time.Date(2025, 3, 30, 22, 30, 0, 0, time.UTC), wantGens: 0},
		{name: "over in UTC", timezone: "UTC", now: time.Date(2025, 3, 31, 2, 0, 0, 0, time.UTC), wantGens: 0},
		{name: "still running in New York", timezone: "America/New_York", now: time.Date(2025, 3, 31, 2, 0, 0, 0, time.UTC), wantGens: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, s, svcs := setup(t)
			ctx := context.Background()
			svcs.Conf.Scheduler.Timezone = tt.timezone
			svcs.Timetable.SetNow(func() time.Time { return tt.now })

			_, err := svcs.Timetable.CreateTemplate(ctx, testutil.NewTemplate(s))
			require.NoError(t, err)

			gens, err := svcs.Timetable.GenerateActive(ctx)
			require.NoError(t, err)
			assert.Len(t, gens, tt.wantGens)
		})
	}

	t.Run("unknown timezone", func(t *testing.T) {
		_, _, svcs := setup(t)
		svcs.Conf.Scheduler.Timezone = "Mars/Olympus_Mons"
		_, err := svcs.Timetable.GenerateActive(context.Background())
		assert.Error(t, err)
	})
}

func TestService_GenerateActive_logsFailures(t *testing.T) {
	db, s, svcs := setup(t)
	ctx := context.Background()

	var out bytes.Buffer
	logger := logsvc.NewRollbarLogger(zerolog.New(&out), svcs.Conf)
	logger.Enable(false)
	schoolRepo := sqlxrepos.NewSchoolRepository(db)
	svc := timetable.NewService(db, sqlxrepos.NewTimetableRepository(db), schoolRepo, svcs.Mail, svcs.Conf, logger)
	svc.SetNow(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })

	tpl, err := svc.CreateTemplate(ctx, testutil.NewTemplate(s))
	require.NoError(t, err)

	svcs.Conf.Generation.MaxDays = 7 // the template now spans too many days
	gens, err := svc.GenerateActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, gens)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry), out.String())
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, s.Teacher.ID, entry["actor"])
	assert.Contains(t, entry["message"], "generating template "+tpl.ID)
}

func TestService_CreateTimetable(t *testing.T) {
	_, s, svcs := setup(t)
	ctx := context.Background()

	existing, err := svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-05", "08:00", "09:00"), false)
	require.NoError(t, err)
	assert.Equal(t, s.OtherClass.Name, existing.ClassName)

	tests := []struct {
		name         string
		nt           timetable.NewTimetable
		force        bool
		wantConflict bool
	}{
		{name: "same room overlapping", nt: testutil.NewTimetable(s, "2025-03-05", "08:30", "09:30"), wantConflict: true},
		{name: "touching", nt: testutil.NewTimetable(s, "2025-03-05", "09:00", "10:00")},
		{name: "other date", nt: testutil.NewTimetable(s, "2025-03-06", "08:00", "09:00")},
		{name: "forced", nt: testutil.NewTimetable(s, "2025-03-05", "07:30", "08:30"), force: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.nt.Room = strings.ToLower(tt.nt.Room)
			tt.nt.ClassID = s.Class.ID

			created, err := svcs.Timetable.CreateTimetable(ctx, tt.nt, tt.force)
			if tt.wantConflict {
				cErr, ok := calendar.AsConflictError(err)
				require.True(t, ok, "want *calendar.ConflictError, got %v", err)
				require.Len(t, cErr.Conflicts, 1)
				assert.Equal(t, existing.ID, cErr.Conflicts[0].ID)
				assert.Equal(t, []string{calendar.ReasonRoom}, cErr.Conflicts[0].Reasons)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
		})
	}

	t.Run("inactive sessions are not checked", func(t *testing.T) {
		nt := testutil.NewTimetable(s, "2025-03-05", "08:00", "09:00")
		nt.IsActive = testutil.BoolPtr(false)
		_, err := svcs.Timetable.CreateTimetable(ctx, nt, false)
		assert.NoError(t, err)
	})
}

func TestService_UpdateTimetable(t *testing.T) {
	_, s, svcs := setup(t)
	ctx := context.Background()

	first, err := svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-05", "08:00", "09:00"), false)
	require.NoError(t, err)
	second, err := svcs.Timetable.CreateTimetable(ctx, testutil.NewTimetable(s, "2025-03-05", "10:00", "11:00"), false)
	require.NoError(t, err)

	t.Run("own slot is not a conflict", func(t *testing.T) {
		upd, err := svcs.Timetable.UpdateTimetable(ctx, first.ID, testutil.NewTimetable(s, "2025-03-05", "08:00", "09:30"), false)
		require.NoError(t, err)
		assert.Equal(t, calendar.MustParseClock("09:30"), upd.EndTime)
	})

	t.Run("moving onto another session", func(t *testing.T) {
		nt := testutil.NewTimetable(s, "2025-03-05", "10:30", "11:30")
		_, err := svcs.Timetable.UpdateTimetable(ctx, first.ID, nt, false)
		cErr, ok := calendar.AsConflictError(err)
		require.True(t, ok)
		assert.Equal(t, second.ID, cErr.Conflicts[0].ID)

		conflicts, err := svcs.Timetable.CheckConflicts(ctx, nt, first.ID)
		require.NoError(t, err)
		assert.Len(t, conflicts, 1)

		_, err = svcs.Timetable.UpdateTimetable(ctx, first.ID, nt, true)
		assert.NoError(t, err)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svcs.Timetable.UpdateTimetable(ctx, "lol", testutil.NewTimetable(s, "2025-03-05", "08:00", "09:00"), false)
		assert.Equal(t, timetable.ErrTimetableNotFound, err)
		assert.Equal(t, timetable.ErrTimetableNotFound, svcs.Timetable.DeleteTimetable(ctx, "lol"))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, svcs.Timetable.DeleteTimetable(ctx, second.ID))
		_, err := svcs.Timetable.GetTimetable(ctx, second.ID)
		assert.Equal(t, timetable.ErrTimetableNotFound, err)
	})
}
