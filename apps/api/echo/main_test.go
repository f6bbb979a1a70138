package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/ratiba/apps/api/echo"
	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/tests"
)

type testApp struct {
	app    echoapi.Server
	db     *sqlx.DB
	school testutil.School
	svcs   testutil.Services
}

func newTestApp(t *testing.T, configure ...func(conf *core.Config)) testApp {
	t.Helper()

	// set up DB & services
	db := testutil.PrepareDB(t)
	svcs := testutil.NewServices(db)
	for _, fn := range configure {
		fn(svcs.Conf)
	}

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:         svcs.Conf,
		Logger:       testutil.NewLogger(),
		TimetableSvc: svcs.Timetable,
		ExamSvc:      svcs.Exam,
		Validate:     svcs.Validate,
		Translator:   svcs.Translator,
	})
	t.Cleanup(func() { _ = app.Close() })

	return testApp{app: app, db: db, school: testutil.SeedSchool(t, db), svcs: svcs}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	wantCode int
	check    func(t *testing.T, res jsonResponse)
}

// jsonResponse is the decoded body of an API response.
type jsonResponse struct {
	Success   bool                     `json:"success"`
	Data      json.RawMessage          `json:"data"`
	Count     int                      `json:"count"`
	Error     interface{}              `json:"error"`
	Message   string                   `json:"message"`
	Conflicts []map[string]interface{} `json:"conflicts"`
}

func (res jsonResponse) decode(t *testing.T, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(res.Data, dst))
}

// fieldErrors returns the {field: message} error of a 400 response.
func (res jsonResponse) fieldErrors(t *testing.T) map[string]interface{} {
	t.Helper()
	flds, ok := res.Error.(map[string]interface{})
	require.True(t, ok, "want field errors, got %v", res.Error)
	return flds
}

func newRequest(t *testing.T, method, path string, data interface{}) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	switch v := data.(type) {
	case nil:
	case string:
		body.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&body).Encode(v))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req, httptest.NewRecorder()
}

func (ta testApp) do(t *testing.T, method, path string, data interface{}) (int, jsonResponse) {
	t.Helper()
	req, rec := newRequest(t, method, path, data)
	ta.app.ServeHTTP(rec, req)

	var res jsonResponse
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	}
	return rec.Code, res
}

func (ta testApp) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			code, res := ta.do(t, method, tt.path, tt.body)
			if !assert.Equal(t, tt.wantCode, code, "error: %v", res.Error) {
				return
			}
			if tt.wantCode < 300 && tt.wantCode != http.StatusNoContent {
				assert.True(t, res.Success)
			} else if tt.wantCode >= 400 {
				assert.False(t, res.Success)
			}
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestHome(t *testing.T) {
	ta := newTestApp(t)
	req, rec := newRequest(t, http.MethodGet, "/", nil)
	ta.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Ratiba API!", rec.Body.String())
}
