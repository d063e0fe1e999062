// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package local contains a local HTTP server that receives the redirect of an
// interactive authentication on a loopback redirect URI.
package local

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var okPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Complete</title>
</head>
<body>
    <p>Authentication complete. You can return to the application. Feel free to close this browser tab.</p>
</body>
</html>
`)

var failPage = []byte(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8" />
    <title>Authentication Failed</title>
</head>
<body>
	<p>Authentication failed. You can return to the application. Feel free to close this browser tab.</p>
	<p>Error details: error {{.Code}}, error description: {{.Err}}</p>
</body>
</html>
`)

var (
	codeVar = []byte("{{.Code}}")
	errVar  = []byte("{{.Err}}")
)

// Result is the result from the redirect.
type Result struct {
	// URL is the redirect as received, query included. It is empty if no redirect
	// arrived.
	URL string
	// Code is the authorization code sent by the authority.
	Code string
	// Err is set if there was an error.
	Err error
}

// Server is an HTTP server listening on a loopback address.
type Server struct {
	// Addr is the address the server is listening on.
	Addr     string
	resultCh chan Result
	s        *http.Server
	reqState string
}

// New creates a local HTTP server and starts it. With port 0 a free port is chosen.
func New(reqState string, port int) (*Server, error) {
	var l net.Listener
	var err error
	var portStr string
	if port > 0 {
		l, err = net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
		portStr = strconv.Itoa(port)
	} else {
		for i := 0; i < 10; i++ {
			l, err = net.Listen("tcp", "localhost:0")
			if err != nil {
				continue
			}
			addr := l.Addr().String()
			portStr = addr[strings.LastIndex(addr, ":")+1:]
			break
		}
	}
	if err != nil {
		return nil, err
	}

	serv := &Server{
		Addr:     fmt.Sprintf("http://localhost:%s", portStr),
		s:        &http.Server{Addr: "localhost:0", ReadHeaderTimeout: time.Second},
		reqState: reqState,
		resultCh: make(chan Result, 1),
	}
	serv.s.Handler = http.HandlerFunc(serv.handler)

	go func() {
		if err := serv.s.Serve(l); err != nil && err != http.ErrServerClosed {
			serv.putResult(Result{Err: err})
		}
	}()
	return serv, nil
}

// Result gets the result of the redirect operation. ctx deadline will be honored.
func (s *Server) Result(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	case r := <-s.resultCh:
		return r
	}
}

// Shutdown shuts down the server.
func (s *Server) Shutdown() {
	// Note: You might get clever and think you can do this in handler() as a defer, you can't.
	_ = s.s.Shutdown(context.Background())
}

func (s *Server) putResult(r Result) {
	select {
	case s.resultCh <- r:
	default:
	}
}

func (s *Server) handler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	redirect := s.Addr + r.URL.RequestURI()

	if headerErr := q.Get("error"); headerErr != "" {
		escapedErrDesc := html.EscapeString(q.Get("error_description")) // provides XSS protection
		escapedHeaderErr := html.EscapeString(headerErr)                // provides XSS protection

		page := bytes.ReplaceAll(failPage, codeVar, []byte(escapedHeaderErr))
		page = bytes.ReplaceAll(page, errVar, []byte(escapedErrDesc))
		_, _ = w.Write(page)

		s.putResult(Result{URL: redirect, Err: fmt.Errorf("%s: %s", headerErr, q.Get("error_description"))})
		return
	}

	respState := q.Get("state")
	switch respState {
	case s.reqState:
	case "":
		s.error(w, redirect, "server didn't send OAuth state")
		return
	default:
		s.error(w, redirect, "mismatched OAuth state, req(%s), resp(%s)", s.reqState, respState)
		return
	}

	code := q.Get("code")
	if code == "" {
		s.error(w, redirect, "authorization code missing in query string")
		return
	}

	_, _ = w.Write(okPage)
	s.putResult(Result{URL: redirect, Code: code})
}

func (s *Server) error(w http.ResponseWriter, redirect, str string, i ...interface{}) {
	err := fmt.Errorf(str, i...)
	http.Error(w, err.Error(), http.StatusInternalServerError)
	s.putResult(Result{URL: redirect, Err: err})
}
