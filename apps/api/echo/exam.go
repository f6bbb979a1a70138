package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/calendar"
	"github.com/trezcool/ratiba/core/exam"
)

// ExamService is implemented by *exam.Service.
type ExamService interface {
	Schedule(ctx context.Context, ne exam.NewExam, force bool) (exam.Exam, error)
	Get(ctx context.Context, id string) (exam.Exam, error)
	Query(ctx context.Context, filter *exam.QueryFilter, ordering []core.DBOrdering) ([]exam.Exam, error)
	Update(ctx context.Context, id string, ne exam.NewExam, force bool) (exam.Exam, error)
	Delete(ctx context.Context, id string) error
	CheckConflicts(ctx context.Context, ne exam.NewExam, excludeID string) ([]calendar.Conflict, error)
}

var _ ExamService = (*exam.Service)(nil)

type examApi struct {
	svc        ExamService
	validate   *validator.Validate
	translator ut.Translator
}

func registerExamAPI(g *echo.Group, svc ExamService, validate *validator.Validate, translator ut.Translator) {
	api := examApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	eg := g.Group("/exams")
	eg.POST("", api.create)
	eg.GET("", api.query)
	eg.POST("/conflicts", api.conflicts)

	// detail endpoints
	eg.GET("/:id", api.retrieve)
	eg.PUT("/:id", api.update)
	eg.DELETE("/:id", api.destroy)
}

func (api *examApi) bindExam(ctx echo.Context) (exam.NewExam, error) {
	var data exam.NewExam
	if err := bindBody(ctx, &data); err != nil {
		return data, err
	}
	return data, data.Validate(api.validate, api.translator)
}

func (api *examApi) create(ctx echo.Context) error {
	force, err := bindForce(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindExam(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Schedule(ctx.Request().Context(), data, force)
	if err != nil {
		return errors.Wrap(err, "scheduling exam")
	}
	return respond(ctx, http.StatusCreated, e)
}

func (api *examApi) query(ctx echo.Context) error {
	filter := new(exam.QueryFilter)
	if err := bindQuery(ctx, filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	exams, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying exams")
	}
	return respondList(ctx, exams, len(exams))
}

func (api *examApi) conflicts(ctx echo.Context) error {
	data, err := api.bindExam(ctx)
	if err != nil {
		return err
	}
	conflicts, err := api.svc.CheckConflicts(ctx.Request().Context(), data, ctx.QueryParam("exclude_id"))
	if err != nil {
		return errors.Wrap(err, "checking conflicts")
	}
	return respondList(ctx, conflicts, len(conflicts))
}

func (api *examApi) retrieve(ctx echo.Context) error {
	e, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return respond(ctx, http.StatusOK, e)
}

func (api *examApi) update(ctx echo.Context) error {
	force, err := bindForce(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindExam(ctx)
	if err != nil {
		return err
	}
	e, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, force)
	if err != nil {
		return errors.Wrap(err, "updating exam")
	}
	return respond(ctx, http.StatusOK, e)
}

func (api *examApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting exam")
	}
	return ctx.NoContent(http.StatusNoContent)
}
