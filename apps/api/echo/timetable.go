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
	"github.com/trezcool/ratiba/core/timetable"
)

// TimetableService is implemented by *timetable.Service.
type TimetableService interface {
	CreateTemplate(ctx context.Context, nt timetable.NewTemplate) (timetable.Template, error)
	GetTemplate(ctx context.Context, id string) (timetable.Template, error)
	QueryTemplates(ctx context.Context, filter *timetable.TemplateFilter, ordering []core.DBOrdering) ([]timetable.Template, error)
	UpdateTemplate(ctx context.Context, id string, nt timetable.NewTemplate) (timetable.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	Preview(ctx context.Context, id string) (timetable.Preview, error)
	PreviewDraft(ctx context.Context, nt timetable.NewTemplate) (timetable.Preview, error)
	Generate(ctx context.Context, id string, opts timetable.GenerateOptions) (timetable.Generation, error)

	CreateTimetable(ctx context.Context, nt timetable.NewTimetable, force bool) (timetable.Timetable, error)
	GetTimetable(ctx context.Context, id string) (timetable.Timetable, error)
	QueryTimetables(ctx context.Context, filter *timetable.Filter, ordering []core.DBOrdering) ([]timetable.Timetable, error)
	UpdateTimetable(ctx context.Context, id string, nt timetable.NewTimetable, force bool) (timetable.Timetable, error)
	DeleteTimetable(ctx context.Context, id string) error
	CheckConflicts(ctx context.Context, nt timetable.NewTimetable, excludeID string) ([]calendar.Conflict, error)
}

var _ TimetableService = (*timetable.Service)(nil)

type templateApi struct {
	svc        TimetableService
	validate   *validator.Validate
	translator ut.Translator
}

func registerTemplateAPI(
	g *echo.Group,
	svc TimetableService,
	validate *validator.Validate,
	translator ut.Translator,
	generateLimiter echo.MiddlewareFunc,
) {
	api := templateApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	tg := g.Group("/templates")
	tg.POST("", api.create)
	tg.GET("", api.query)
	tg.POST("/preview", api.previewDraft, generateLimiter)

	// detail endpoints
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
	tg.POST("/:id/preview", api.preview, generateLimiter)
	tg.POST("/:id/generate", api.generate, generateLimiter)
}

func (api *templateApi) bindTemplate(ctx echo.Context) (timetable.NewTemplate, error) {
	var data timetable.NewTemplate
	if err := bindBody(ctx, &data); err != nil {
		return data, err
	}
	return data, data.Validate(api.validate, api.translator)
}

func (api *templateApi) create(ctx echo.Context) error {
	data, err := api.bindTemplate(ctx)
	if err != nil {
		return err
	}
	tpl, err := api.svc.CreateTemplate(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating template")
	}
	return respond(ctx, http.StatusCreated, tpl)
}

func (api *templateApi) query(ctx echo.Context) error {
	filter := new(timetable.TemplateFilter)
	if err := bindQuery(ctx, filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tpls, err := api.svc.QueryTemplates(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying templates")
	}
	return respondList(ctx, tpls, len(tpls))
}

func (api *templateApi) retrieve(ctx echo.Context) error {
	tpl, err := api.svc.GetTemplate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting template")
	}
	return respond(ctx, http.StatusOK, tpl)
}

func (api *templateApi) update(ctx echo.Context) error {
	data, err := api.bindTemplate(ctx)
	if err != nil {
		return err
	}
	tpl, err := api.svc.UpdateTemplate(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating template")
	}
	return respond(ctx, http.StatusOK, tpl)
}

func (api *templateApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTemplate(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting template")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *templateApi) preview(ctx echo.Context) error {
	pv, err := api.svc.Preview(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "previewing template")
	}
	return respond(ctx, http.StatusOK, pv)
}

func (api *templateApi) previewDraft(ctx echo.Context) error {
	data, err := api.bindTemplate(ctx)
	if err != nil {
		return err
	}
	pv, err := api.svc.PreviewDraft(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "previewing template")
	}
	return respond(ctx, http.StatusOK, pv)
}

func (api *templateApi) generate(ctx echo.Context) error {
	var opts timetable.GenerateOptions
	if ctx.Request().ContentLength != 0 {
		if err := bindBody(ctx, &opts); err != nil {
			return err
		}
	}
	gen, err := api.svc.Generate(ctx.Request().Context(), ctx.Param("id"), opts)
	if err != nil {
		return errors.Wrap(err, "generating timetables")
	}
	return respond(ctx, http.StatusOK, gen)
}

type timetableApi struct {
	svc        TimetableService
	validate   *validator.Validate
	translator ut.Translator
}

func registerTimetableAPI(g *echo.Group, svc TimetableService, validate *validator.Validate, translator ut.Translator) {
	api := timetableApi{
		svc:        svc,
		validate:   validate,
		translator: translator,
	}

	tg := g.Group("/timetables")
	tg.POST("", api.create)
	tg.GET("", api.query)
	tg.POST("/conflicts", api.conflicts)

	// detail endpoints
	tg.GET("/:id", api.retrieve)
	tg.PUT("/:id", api.update)
	tg.DELETE("/:id", api.destroy)
}

func (api *timetableApi) bindTimetable(ctx echo.Context) (timetable.NewTimetable, error) {
	var data timetable.NewTimetable
	if err := bindBody(ctx, &data); err != nil {
		return data, err
	}
	return data, data.Validate(api.validate, api.translator)
}

func (api *timetableApi) create(ctx echo.Context) error {
	force, err := bindForce(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindTimetable(ctx)
	if err != nil {
		return err
	}
	tt, err := api.svc.CreateTimetable(ctx.Request().Context(), data, force)
	if err != nil {
		return errors.Wrap(err, "creating timetable")
	}
	return respond(ctx, http.StatusCreated, tt)
}

func (api *timetableApi) query(ctx echo.Context) error {
	filter := new(timetable.Filter)
	if err := bindQuery(ctx, filter); err != nil {
		return err
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	tts, err := api.svc.QueryTimetables(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying timetables")
	}
	return respondList(ctx, tts, len(tts))
}

// conflicts checks a session without saving it. "exclude_id" names the session being edited.
func (api *timetableApi) conflicts(ctx echo.Context) error {
	data, err := api.bindTimetable(ctx)
	if err != nil {
		return err
	}
	conflicts, err := api.svc.CheckConflicts(ctx.Request().Context(), data, ctx.QueryParam("exclude_id"))
	if err != nil {
		return errors.Wrap(err, "checking conflicts")
	}
	return respondList(ctx, conflicts, len(conflicts))
}

func (api *timetableApi) retrieve(ctx echo.Context) error {
	tt, err := api.svc.GetTimetable(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting timetable")
	}
	return respond(ctx, http.StatusOK, tt)
}

func (api *timetableApi) update(ctx echo.Context) error {
	force, err := bindForce(ctx)
	if err != nil {
		return err
	}
	data, err := api.bindTimetable(ctx)
	if err != nil {
		return err
	}
	tt, err := api.svc.UpdateTimetable(ctx.Request().Context(), ctx.Param("id"), data, force)
	if err != nil {
		return errors.Wrap(err, "updating timetable")
	}
	return respond(ctx, http.StatusOK, tt)
}

func (api *timetableApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteTimetable(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting timetable")
	}
	return ctx.NoContent(http.StatusNoContent)
}
