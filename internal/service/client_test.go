package service_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Prospect/internal/jobtest"
	"github.com/CZERTAINLY/Prospect/internal/model"
	"github.com/CZERTAINLY/Prospect/internal/service"
)

func TestNewJobClient(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    string
		then     bool
	}{
		{"host", "http://localhost:5001", true},
		{"trailing slash", "https://jobs.example.net/", true},
		{"base path", "https://jobs.example.net/api/v1", true},
		{"no scheme", "localhost:5001", false},
		{"ftp", "ftp://jobs.example.net", false},
		{"no host", "http://", false},
		{"query", "http://localhost:5001?x=1", false},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := service.NewJobClient(tt.given)
			if tt.then {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestJobClient(t *testing.T) {
	t.Parallel()
	result := model.Result{{Label: "Alice", Value: 5}, {Label: "Bob", Value: 2}}
	srv := jobtest.NewServer(t, jobtest.Pending(), jobtest.Done(result))

	client, err := service.NewJobClient(srv.URL)
	require.NoError(t, err)
	client.WithFilter("sales team")
	ctx := t.Context()

	job, err := client.Submit(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{job.String()}, srv.Jobs())
	require.Equal(t, []string{"sales team"}, srv.Filters())

	status, got, err := client.Status(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, status)
	require.Nil(t, got)

	status, got, err = client.Status(ctx, job)
	require.NoError(t, err)
	require.Equal(t, model.StatusComplete, status)
	require.Equal(t, result, got)
	require.Equal(t, 2, srv.Polls(job.String()))

	t.Run("unknown job", func(t *testing.T) {
		_, _, err := client.Status(ctx, "does-not-exist")
		require.ErrorIs(t, err, model.ErrUnexpectedStatus)
		require.ErrorContains(t, err, "404")
	})
}

func TestJobClient_Submit(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		status   int
		body     string
		then     model.JobHandle
		err      error
	}{
		{"json string", http.StatusOK, `"abc123"`, "abc123", nil},
		{"plain text", http.StatusOK, "job-9\n", "job-9", nil},
		{"object", http.StatusCreated, `{"id": "j1"}`, "j1", nil},
		{"empty body", http.StatusOK, "", "", model.ErrEmptyJobHandle},
		{"empty string", http.StatusOK, `" "`, "", model.ErrEmptyJobHandle},
		{"server error", http.StatusInternalServerError, "boom", "", model.ErrUnexpectedStatus},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/api/refresh" {
					http.NotFound(w, r)
					return
				}
				if r.URL.RawQuery != "" {
					http.Error(w, "unexpected query "+r.URL.RawQuery, http.StatusBadRequest)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			client, err := service.NewJobClient(srv.URL + "/api/")
			require.NoError(t, err)
			job, err := client.Submit(t.Context())
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.then, job)
		})
	}
}

func TestJobClient_Status(t *testing.T) {
	t.Parallel()
	type then struct {
		status model.PollStatus
		result model.Result
		err    error
	}
	var testCases = []struct {
		scenario string
		status   int
		body     string
		then     then
	}{
		{"pending with body", http.StatusAccepted, `{"status": "queued"}`, then{status: model.StatusPending}},
		{"pending without body", http.StatusAccepted, ``, then{status: model.StatusPending}},
		{"complete", http.StatusOK, `[["Alice", 5], ["Bob", 2.5]]`,
			then{status: model.StatusComplete, result: model.Result{{Label: "Alice", Value: 5}, {Label: "Bob", Value: 2.5}}}},
		{"complete empty", http.StatusOK, `[]`, then{status: model.StatusComplete, result: model.Result{}}},
		{"server error", http.StatusInternalServerError, `oops`, then{err: model.ErrUnexpectedStatus}},
		{"no content", http.StatusNoContent, ``, then{err: model.ErrUnexpectedStatus}},
		{"not json", http.StatusOK, `<html>`, then{err: model.ErrInvalidPayload}},
		{"not a list", http.StatusOK, `{"Alice": 5}`, then{err: model.ErrInvalidPayload}},
		{"swapped pair", http.StatusOK, `[[5, "Alice"]]`, then{err: model.ErrInvalidPayload}},
		{"short pair", http.StatusOK, `[["Alice"]]`, then{err: model.ErrInvalidPayload}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet || r.URL.EscapedPath() != "/results/a%2Fb" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			client, err := service.NewJobClient(srv.URL)
			require.NoError(t, err)
			status, result, err := client.Status(t.Context(), "a/b")
			if tt.then.err != nil {
				require.ErrorIs(t, err, tt.then.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.then.status, status)
			require.Equal(t, tt.then.result, result)
		})
	}
}

func TestJobClient_Timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	client, err := service.NewJobClient(srv.URL)
	require.NoError(t, err)
	client.WithTimeout(50 * time.Millisecond)

	_, err = client.Submit(t.Context())
	require.Error(t, err)
}
