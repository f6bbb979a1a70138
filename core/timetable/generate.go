package timetable

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
)

const generatedEmailTemplate = "timetable_generated"

// plannedDate is one date of a template expansion and its state against the stored sessions.
type plannedDate struct {
	date      calendar.Date
	generated bool
	conflicts []calendar.Conflict
}

// plan expands the template and checks every date against the stored sessions.
// Sessions generated by the template itself never count as conflicts.
func (svc *Service) plan(ctx context.Context, tpl Template, exec ...core.DBExecutor) ([]plannedDate, error) {
	dates := tpl.Rule().Dates()
	if len(dates) == 0 {
		return nil, nil
	}
	from, to := dates[0], dates[len(dates)-1]

	generated := make(map[calendar.Date]bool)
	if tpl.ID != "" {
		gDates, err := svc.repo.GeneratedDates(ctx, tpl.ID, from, to, exec...)
		if err != nil {
			return nil, errors.Wrap(err, "querying generated dates")
		}
		for _, d := range gDates {
			generated[d] = true
		}
	}

	bookings, err := svc.repo.Bookings(ctx, calendar.BookingQuery{
		From:              from,
		To:                to,
		Start:             tpl.StartTime,
		End:               tpl.EndTime,
		ClassID:           tpl.ClassID,
		Room:              tpl.Room.String,
		ExcludeTemplateID: tpl.ID,
	}, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying bookings")
	}
	byDate := make(map[calendar.Date][]calendar.Booking)
	for _, b := range bookings {
		byDate[b.Date] = append(byDate[b.Date], b)
	}

	plan := make([]plannedDate, 0, len(dates))
	for _, d := range dates {
		pd := plannedDate{date: d, generated: generated[d]}
		if !pd.generated {
			pd.conflicts = calendar.DetectConflicts(tpl.Booking(d), byDate[d])
		}
		plan = append(plan, pd)
	}
	return plan, nil
}

func (svc *Service) preview(ctx context.Context, tpl Template) (Preview, error) {
	plan, err := svc.plan(ctx, tpl)
	if err != nil {
		return Preview{}, err
	}

	pv := Preview{
		TotalDates:  len(plan),
		SampleDates: make([]calendar.Date, 0, svc.conf.Generation.SampleSize),
		Conflicts:   make([]DateConflicts, 0),
	}
	for _, pd := range plan {
		switch {
		case pd.generated:
			pv.AlreadyGenerated++
		case len(pd.conflicts) > 0:
			pv.ConflictingDates++
			pv.Conflicts = append(pv.Conflicts, DateConflicts{Date: pd.date, Conflicts: pd.conflicts})
		default:
			pv.ValidDates++
			if len(pv.SampleDates) < svc.conf.Generation.SampleSize {
				pv.SampleDates = append(pv.SampleDates, pd.date)
			}
		}
	}
	return pv, nil
}

// Preview expands a stored template and reports what a commit would do. Nothing is written.
func (svc *Service) Preview(ctx context.Context, id string) (Preview, error) {
	tpl, err := svc.repo.GetTemplate(ctx, id)
	if err != nil {
		return Preview{}, err
	}
	if err = tpl.Rule().Validate(svc.conf.Generation.MaxDays); err != nil {
		return Preview{}, err
	}
	return svc.preview(ctx, tpl)
}

// PreviewDraft is Preview for a template that is not saved yet.
func (svc *Service) PreviewDraft(ctx context.Context, nt NewTemplate) (Preview, error) {
	tpl, err := nt.Template()
	if err != nil {
		return Preview{}, err
	}
	if err = tpl.Rule().Validate(svc.conf.Generation.MaxDays); err != nil {
		return Preview{}, err
	}
	return svc.preview(ctx, tpl)
}

// Generate creates the sessions of a template, in a single transaction.
// Dates already generated are skipped, so running it again only fills the gaps.
// Conflicting dates are skipped unless opts.Force or opts.Regenerate is set.
func (svc *Service) Generate(ctx context.Context, id string, opts GenerateOptions) (Generation, error) {
	var (
		tpl Template
		gen Generation
	)
	now := time.Now().UTC()

	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if tpl, err = svc.repo.GetTemplate(ctx, id, tx); err != nil {
			return err
		}
		if !tpl.IsActive {
			return ErrTemplateInactive
		}
		rule := tpl.Rule()
		if err = rule.Validate(svc.conf.Generation.MaxDays); err != nil {
			return err
		}

		gen = Generation{TemplateID: tpl.ID, CreatedDates: make([]calendar.Date, 0), Conflicts: make([]DateConflicts, 0)}
		if opts.Regenerate {
			if gen.Removed, err = svc.repo.DeleteGenerated(ctx, tpl.ID, rule.Start, rule.End, tx); err != nil {
				return errors.Wrap(err, "deleting generated sessions")
			}
		}

		plan, err := svc.plan(ctx, tpl, tx)
		if err != nil {
			return err
		}
		gen.TotalDates = len(plan)

		for _, pd := range plan {
			if pd.generated {
				gen.Skipped++
				continue
			}
			if len(pd.conflicts) > 0 {
				gen.Conflicts = append(gen.Conflicts, DateConflicts{Date: pd.date, Conflicts: pd.conflicts})
				if !(opts.Force || opts.Regenerate) {
					gen.Conflicting++
					continue
				}
				gen.Forced++
			}

			created, err := svc.repo.CreateGenerated(ctx, tpl.Session(pd.date, now), tx)
			if err != nil {
				return errors.Wrapf(err, "creating session on %s", pd.date)
			}
			if !created {
				gen.Skipped++
				continue
			}
			gen.Created++
			gen.CreatedDates = append(gen.CreatedDates, pd.date)
		}
		return nil
	})
	if err != nil {
		return Generation{}, err
	}

	if gen.Created > 0 {
		svc.notifyTeacher(ctx, tpl, gen)
	}
	return gen, nil
}

// GenerateActive commits every active template whose range is not over yet, without forcing.
// "Today" is taken in the scheduler time zone. A failing template is logged and does not stop the others.
func (svc *Service) GenerateActive(ctx context.Context) ([]Generation, error) {
	loc, err := svc.conf.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	today := calendar.DateOf(svc.now().In(loc))

	active := true
	tpls, err := svc.repo.QueryTemplates(ctx, &TemplateFilter{IsActive: &active}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "querying active templates")
	}

	gens := make([]Generation, 0, len(tpls))
	for _, tpl := range tpls {
		if err = ctx.Err(); err != nil {
			return gens, err
		}
		if tpl.EndDate.Before(today) {
			continue
		}
		gen, err := svc.Generate(ctx, tpl.ID, GenerateOptions{})
		if err != nil {
			svc.logger.Error(fmt.Sprintf("generating template %s: %v", tpl.ID, err), err, teacherActor(tpl))
			continue
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

type generatedReport struct {
	TemplateName string
	TeacherName  string
	ClassName    string
	SubjectName  string
	Slot         string
	Generation   Generation
}

// notifyTeacher emails the template's teacher the sessions just created. Failures are only logged.
func (svc *Service) notifyTeacher(ctx context.Context, tpl Template, gen Generation) {
	if !tpl.TeacherID.Valid {
		return
	}
	teacher, err := svc.schoolRepo.GetTeacher(ctx, tpl.TeacherID.String)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("notifying teacher %s: %v", tpl.TeacherID.String, err), err, teacherActor(tpl))
		return
	}
	if !teacher.Email.Valid {
		return
	}

	report := generatedReport{
		TemplateName: tpl.Name,
		TeacherName:  teacher.Name,
		Slot:         fmt.Sprintf("%s %s-%s", tpl.Weekdays, tpl.StartTime, tpl.EndTime),
		Generation:   gen,
	}
	if class, err := svc.schoolRepo.GetClass(ctx, tpl.ClassID); err == nil {
		report.ClassName = class.Name
	}
	if subject, err := svc.schoolRepo.GetSubject(ctx, tpl.SubjectID); err == nil {
		report.SubjectName = subject.Name
	}

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: teacher.Name, Address: teacher.Email.String}},
		Subject:      "New sessions scheduled: " + tpl.Name,
		TemplateName: generatedEmailTemplate,
		TemplateData: report,
	}
	csvData, err := sessionsCSV(tpl, gen.CreatedDates)
	if err == nil {
		err = msg.Attach(bytes.NewReader(csvData), "sessions.csv", "text/csv")
	}
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("attaching sessions to email: %v", err), err,
			core.Actor{ID: teacher.ID, Name: teacher.Name, Email: teacher.Email.String})
	}
	svc.mailSvc.SendMessages(msg)
}

// teacherActor identifies the template's teacher in logs. Loggers ignore it when the template has no teacher.
func teacherActor(tpl Template) core.Actor {
	return core.Actor{ID: tpl.TeacherID.String}
}

func sessionsCSV(tpl Template, dates []calendar.Date) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"date", "weekday", "start_time", "end_time", "room"})
	for _, d := range dates {
		_ = w.Write([]string{d.String(), d.Weekday().String(), tpl.StartTime.String(), tpl.EndTime.String(), tpl.Room.String})
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
