package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dop251/goja"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// fetchInit holds the supported subset of the fetch() init dictionary
type fetchInit struct {
	method  string
	headers map[string]string
	body    string
}

// fetchResponse is the host side of a completed request
type fetchResponse struct {
	status     int
	statusText string
	url        string
	header     http.Header
	body       string
}

// fetch performs the request on a separate goroutine and settles the
// returned promise on the session goroutine. The request holds a tracker
// handle until it settles.
func (s *Session) fetch(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := s.vm.NewPromise()

	if s.fetches >= s.cfg.MaxFetches {
		reject(s.vm.NewTypeError(fmt.Sprintf("fetch limit of %d requests exceeded", s.cfg.MaxFetches)))
		return s.vm.ToValue(promise)
	}
	s.fetches++

	url := call.Argument(0).String()
	init := s.parseInit(call.Argument(1))
	handle := s.loop.reserve()
	s.tracker.Add(handle)

	client := s.http
	if client == nil {
		client = resty.New()
		s.http = client
	}
	ctx := s.ctx

	go func() {
		resp, err := s.doFetch(ctx, client, url, init)
		s.loop.post(func() error {
			if !s.tracker.Remove(handle) {
				return nil
			}
			if err != nil {
				s.logger.Debug("fetch failed", zap.String("url", url), zap.Error(err))
				return reject(s.vm.NewTypeError("fetch failed: " + err.Error()))
			}
			return resolve(s.newResponse(resp))
		})
	}()

	return s.vm.ToValue(promise)
}

// parseInit reads method, headers and body from the init argument
func (s *Session) parseInit(v goja.Value) fetchInit {
	init := fetchInit{method: http.MethodGet, headers: map[string]string{}}
	obj, ok := v.(*goja.Object)
	if !ok {
		return init
	}
	if m := obj.Get("method"); m != nil && !goja.IsUndefined(m) {
		init.method = strings.ToUpper(m.String())
	}
	if h, ok := obj.Get("headers").(*goja.Object); ok {
		for _, key := range h.Keys() {
			init.headers[key] = h.Get(key).String()
		}
	}
	if b := obj.Get("body"); b != nil && !goja.IsUndefined(b) && !goja.IsNull(b) {
		init.body = b.String()
	}
	return init
}

func (s *Session) doFetch(ctx context.Context, client *resty.Client, url string, init fetchInit) (*fetchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	req := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeaders(init.headers)
	if init.body != "" {
		req.SetBody(init.body)
	}

	resp, err := req.Execute(init.method, url)
	if err != nil {
		return nil, err
	}
	raw := resp.RawBody()
	defer raw.Close()

	body, err := io.ReadAll(io.LimitReader(raw, s.cfg.MaxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > s.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", s.cfg.MaxResponseBytes)
	}

	return &fetchResponse{
		status:     resp.StatusCode(),
		statusText: http.StatusText(resp.StatusCode()),
		url:        url,
		header:     resp.Header(),
		body:       string(body),
	}, nil
}

// newResponse builds the script-visible Response object
func (s *Session) newResponse(r *fetchResponse) *goja.Object {
	res := s.vm.NewObject()
	res.Set("status", r.status)
	res.Set("statusText", r.statusText)
	res.Set("ok", r.status >= 200 && r.status < 300)
	res.Set("url", r.url)

	headers := s.vm.NewObject()
	for key, values := range r.header {
		headers.Set(strings.ToLower(key), strings.Join(values, ", "))
	}
	res.Set("headers", headers)

	res.Set("text", func(goja.FunctionCall) goja.Value {
		p, resolve, _ := s.vm.NewPromise()
		resolve(r.body)
		return s.vm.ToValue(p)
	})
	res.Set("json", func(goja.FunctionCall) goja.Value {
		p, resolve, reject := s.vm.NewPromise()
		parse, _ := goja.AssertFunction(s.vm.Get("JSON").ToObject(s.vm).Get("parse"))
		if parsed, err := parse(goja.Undefined(), s.vm.ToValue(r.body)); err != nil {
			reject(err)
		} else {
			resolve(parsed)
		}
		return s.vm.ToValue(p)
	})
	return res
}
