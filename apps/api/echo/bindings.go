package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

var (
	orderingParam = "ordering"
	forceParam    = "force"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindForce reads the "force" query param. Missing means false.
func bindForce(ctx echo.Context) (bool, error) {
	val := ctx.QueryParam(forceParam)
	if val == "" {
		return false, nil
	}
	force, err := strconv.ParseBool(val)
	if err != nil {
		return false, core.NewValidationError(err, core.FieldError{Field: forceParam, Error: "must be a boolean"})
	}
	return force, nil
}

// bindQuery binds the query params of ctx to filter.
func bindQuery(ctx echo.Context, filter interface{}) error {
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, filter); err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) && herr.Code == http.StatusBadRequest {
			return core.NewValidationError(err, core.FieldError{Field: "query", Error: "invalid query parameters"})
		}
		return errors.Wrap(err, "binding query params")
	}
	return nil
}

// bindBody binds the JSON body of ctx to data. Malformed bodies are validation errors.
func bindBody(ctx echo.Context, data interface{}) error {
	if err := (&echo.DefaultBinder{}).BindBody(ctx, data); err != nil {
		var herr *echo.HTTPError
		if errors.As(err, &herr) {
			return core.NewValidationError(err, core.FieldError{Field: "body", Error: "invalid request body"})
		}
		return errors.Wrap(err, "binding body")
	}
	return nil
}

type (
	response struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}

	listResponse struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
		Count   int         `json:"count"`
	}
)

func respond(ctx echo.Context, code int, data interface{}) error {
	return ctx.JSON(code, response{Success: true, Data: data})
}

func respondList(ctx echo.Context, data interface{}, count int) error {
	return ctx.JSON(http.StatusOK, listResponse{Success: true, Data: data, Count: count})
}
