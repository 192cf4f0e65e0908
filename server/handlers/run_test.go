package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nomis52/e2eflow/runner"
	"github.com/stretchr/testify/assert"
)

type mockSuiteRunner struct {
	err    error
	called [][]string
}

func (m *mockSuiteRunner) StartSuites(names []string) error {
	m.called = append(m.called, names)
	return m.err
}

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantBody   string
		wantCalls  int
	}{
		{
			name:       "accepted",
			body:       `{"suites":["signup","health"]}`,
			wantStatus: http.StatusAccepted,
			wantBody:   `"suites":["signup","health"]`,
			wantCalls:  1,
		},
		{
			name:       "invalid json",
			body:       `{"suites":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "invalid JSON",
		},
		{
			name:       "empty suites",
			body:       `{"suites":[]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   "cannot be empty",
		},
		{
			name:       "duplicate suite",
			body:       `{"suites":["signup","signup"]}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `duplicate suite \"signup\"`,
		},
		{
			name:       "run in progress",
			body:       `{"suites":["signup"]}`,
			err:        runner.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantBody:   "run already in progress",
			wantCalls:  1,
		},
		{
			name:       "unknown suite",
			body:       `{"suites":["nightly"]}`,
			err:        fmt.Errorf("unknown suite: %q", "nightly"),
			wantStatus: http.StatusBadRequest,
			wantBody:   "unknown suite",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockSuiteRunner{err: tt.err}
			handler := NewRunHandler(r)

			req := httptest.NewRequest(http.MethodPost, "/run", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			assert.Len(t, r.called, tt.wantCalls)
		})
	}
}
