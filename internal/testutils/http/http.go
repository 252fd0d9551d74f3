package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
)

type RequestOption func(req *http.Request) *http.Request

func WithHeader(key string, value string, values ...string) RequestOption {
	return func(req *http.Request) *http.Request {
		req.Header.Add(key, value)
		for _, v := range values {
			req.Header.Add(key, v)
		}
		return req
	}
}

// JSON encodes v as a request body. It panics if v cannot be encoded.
func JSON(v any) io.Reader {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return bytes.NewReader(b)
}

// Request makes an echo.Context for the request, with path parameters.
//
// params are pairs of name and value, like "view", "main".
func Request(e *echo.Echo, method string, target string, body io.Reader, params []string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, body)
	for _, opt := range reqopts {
		req = opt(req)
	}
	resp := httptest.NewRecorder()

	ctx := e.NewContext(req, resp)
	names, values := []string{}, []string{}
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	ctx.SetParamNames(names...)
	ctx.SetParamValues(values...)
	return ctx, resp
}

func Get(e *echo.Echo, target string, params []string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodGet, target, nil, params, reqopts...)
}

func Post(e *echo.Echo, target string, data io.Reader, params []string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodPost, target, data, params, reqopts...)
}

func Put(e *echo.Echo, target string, data io.Reader, params []string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodPut, target, data, params, reqopts...)
}

func Delete(e *echo.Echo, target string, params []string, reqopts ...RequestOption) (echo.Context, *httptest.ResponseRecorder) {
	return Request(e, http.MethodDelete, target, nil, params, reqopts...)
}
