package probe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simonization/webservTester/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testExecutor(timeout time.Duration) *Executor {
	return NewExecutor(&Client{}, &Dialer{}, timeout, testLogger())
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Probe", "1")
		w.Write([]byte("hello world"))
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})
	mux.HandleFunc("/echo-method", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Method))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestExecuteStatusExpectation(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "ok",
		Method: http.MethodGet,
		URL:    srv.URL + "/ok",
		Expect: model.Expectation{Status: http.StatusOK},
	})

	assert.Equal(t, model.OutcomePassed, res.Outcome)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, res.Detail)
}

func TestExecuteStatusMismatch(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "teapot",
		Method: http.MethodGet,
		URL:    srv.URL + "/teapot",
		Expect: model.Expectation{Status: http.StatusOK},
	})

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, "got status 418, expected 200", res.Detail)
}

func TestExecuteStatusIn(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "any 2xx",
		Method: http.MethodGet,
		URL:    srv.URL + "/ok",
		Expect: model.Expectation{StatusIn: StatusOK()},
	})

	assert.Equal(t, model.OutcomePassed, res.Outcome)
}

func TestExecuteHeaderAndBodyExpectations(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "header",
		Method: http.MethodGet,
		URL:    srv.URL + "/ok",
		Expect: model.Expectation{HeaderPresent: "x-probe"},
	})
	assert.Equal(t, model.OutcomePassed, res.Outcome)

	res = e.Execute(context.Background(), model.Probe{
		Name:   "body",
		Method: http.MethodGet,
		URL:    srv.URL + "/ok",
		Expect: model.Expectation{BodyContains: "hello"},
	})
	assert.Equal(t, model.OutcomePassed, res.Outcome)

	res = e.Execute(context.Background(), model.Probe{
		Name:   "missing body",
		Method: http.MethodGet,
		URL:    srv.URL + "/ok",
		Expect: model.Expectation{BodyContains: "goodbye"},
	})
	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Equal(t, `body does not contain "goodbye"`, res.Detail)
}

func TestExecuteInformationalProbeAlwaysPasses(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "observe",
		Method: http.MethodGet,
		URL:    srv.URL + "/teapot",
	})

	assert.Equal(t, model.OutcomePassed, res.Outcome)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
}

func TestExecuteTimeoutIsAFailedResult(t *testing.T) {
	srv := testServer(t)
	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:    "slow",
		Method:  http.MethodGet,
		URL:     srv.URL + "/slow",
		Timeout: 50 * time.Millisecond,
		Expect:  model.Expectation{Status: http.StatusOK},
	})

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.True(t, strings.HasPrefix(res.Detail, "request failed:"), res.Detail)
}

func TestExecuteConnectionRefusedIsAFailedResult(t *testing.T) {
	e := testExecutor(100 * time.Millisecond)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "refused",
		Method: http.MethodGet,
		URL:    "http://127.0.0.1:1/",
		Expect: model.Expectation{Status: http.StatusOK},
	})

	assert.Equal(t, model.OutcomeFailed, res.Outcome)
	assert.Contains(t, res.Detail, "request failed:")
}

func TestExecuteRawCleanCloseAccepted(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	// close without writing a reply
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}

		buf := make([]byte, 16)
		conn.Read(buf)
		conn.Close()
	}()

	e := testExecutor(time.Second)

	res := e.Execute(context.Background(), model.Probe{
		Name:   "empty request line",
		Raw:    "\r\n\r\n",
		Target: l.Addr().String(),
		Expect: model.Expectation{StatusIn: []int{http.StatusBadRequest}, CloseOK: true},
	})

	assert.Equal(t, model.OutcomePassed, res.Outcome)
	assert.Equal(t, 0, res.StatusCode)
}

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		reply string
		want  int
	}{
		{"HTTP/1.1 400 Bad Request\r\n\r\n", 400},
		{"HTTP/1.0 200 OK\r\n\r\n", 200},
		{"HTTP/1.1 999 Nope\r\n\r\n", 0},
		{"HTTP/1.1", 0},
		{"garbage", 0},
		{"", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseStatusLine(tt.reply), tt.reply)
	}
}

func TestDialerSend(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 1024)
		conn.Read(buf)
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
	}()

	d := &Dialer{}

	reply, err := d.Send(context.Background(), l.Addr().String(), "garbage\r\n\r\n", time.Second)
	require.NoError(t, err)
	assert.Contains(t, reply, "400")
	assert.Equal(t, 400, parseStatusLine(reply))
}
