package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "amplisend/internal/platform/errors"
	pnet "amplisend/internal/platform/net"
	phttp "amplisend/internal/platform/net/http"
)

func decode(t *testing.T, rr *httptest.ResponseRecorder) phttp.Envelope {
	t.Helper()
	var env phttp.Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return env
}

func request() *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	return r.WithContext(pnet.WithRequest(r.Context(), "rid-1"))
}

func TestHandle_Success(t *testing.T) {
	h := phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.OK(map[string]int{"events": 3})
	})
	rr := httptest.NewRecorder()
	h(rr, request())

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content type = %q", ct)
	}
	env := decode(t, rr)
	if env.StatusCode != 200 || env.Status != "OK" || env.RequestID != "rid-1" || env.Error != "" {
		t.Fatalf("env = %+v", env)
	}
	if m, _ := env.Data.(map[string]any); m["events"] != float64(3) {
		t.Fatalf("data = %#v", env.Data)
	}
}

func TestHandle_ErrorMapsStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{perr.WithField(perr.Validationf("user_id or device_id is required"), "user_id"), 400, "missing_required_field"},
		{perr.JSONErrf("bad line"), 400, "malformed_json"},
		{perr.NotFoundf("no such object"), 404, "not_found"},
		{perr.Newf(perr.ErrorCodeDecompression, "corrupt"), 422, "decompression"},
		{perr.Transmissionf("amplitude said 500"), 502, "transmission"},
		{perr.Unavailablef("s3 down"), 503, "unavailable"},
		{errors.New("plain"), 500, "unknown"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		phttp.Handle(func(*http.Request) phttp.Response { return phttp.Error(tc.err) })(rr, request())
		if rr.Code != tc.status {
			t.Fatalf("%v: status = %d want %d", tc.err, rr.Code, tc.status)
		}
		env := decode(t, rr)
		if env.Reason != tc.reason || env.StatusCode != tc.status || env.Data != nil {
			t.Fatalf("%v: env = %+v", tc.err, env)
		}
	}

	rr := httptest.NewRecorder()
	phttp.RespondError(rr, request(), perr.WithField(perr.Validationf("x"), "event_type"))
	if env := decode(t, rr); env.Field != "event_type" || env.Code != perr.ErrorCodeValidation {
		t.Fatalf("env = %+v", env)
	}
}

func TestHandle_StatusHeadersAndNoContent(t *testing.T) {
	rr := httptest.NewRecorder()
	phttp.Handle(func(*http.Request) phttp.Response {
		resp := phttp.Status(http.StatusMultiStatus, []int{1})
		resp.Header = http.Header{"X-Run": []string{"a"}}
		return resp
	})(rr, request())
	if rr.Code != http.StatusMultiStatus || rr.Header().Get("X-Run") != "a" {
		t.Fatalf("got %d %v", rr.Code, rr.Header())
	}

	rr = httptest.NewRecorder()
	phttp.Handle(func(*http.Request) phttp.Response { return phttp.NoContent() })(rr, request())
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 {
		t.Fatalf("got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	phttp.Handle(func(*http.Request) phttp.Response { return phttp.Response{Body: "x"} })(rr, request())
	if rr.Code != http.StatusOK {
		t.Fatalf("zero status should default to 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	phttp.RespondOK(rr, request(), "fine")
	if env := decode(t, rr); env.Data != "fine" {
		t.Fatalf("env = %+v", env)
	}
}
