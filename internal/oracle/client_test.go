package oracle_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/matcenter/internal/models"
	"github.com/BradenHooton/matcenter/internal/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) *oracle.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return oracle.NewClient(oracle.Config{Endpoint: srv.URL + "/exec?deployment=1", Timeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetch_Success(t *testing.T) {
	var gotQuery map[string]string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"password":   r.URL.Query().Get("password"),
			"clientId":   r.URL.Query().Get("clientId"),
			"deployment": r.URL.Query().Get("deployment"),
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"success":true,"isAdmin":true,"count":3,"tasks":[
			{"number":"98 (ЛЗ 36)","status":" Р ","description":"Найти предел","hint":"L'Hôpital"},
			{"number":12,"status":"Н"},
			{"number":"доп.","status":"От","description":"x"}
		]}`)
	})

	data, err := c.Fetch(context.Background(), "s3cret&x", "0123456789abcdef")
	require.NoError(t, err)

	assert.Equal(t, "s3cret&x", gotQuery["password"])
	assert.Equal(t, "0123456789abcdef", gotQuery["clientId"])
	assert.Equal(t, "1", gotQuery["deployment"], "endpoint query is preserved")

	assert.True(t, data.IsAdmin)
	assert.Equal(t, 3, data.Count)
	require.Len(t, data.Tasks, 3)

	first := data.Tasks[0]
	require.NotNil(t, first.Number)
	assert.Equal(t, 98, *first.Number)
	assert.Equal(t, "98 (ЛЗ 36)", first.NumberText)
	assert.Equal(t, models.TaskStatusSolved, first.Status)
	assert.Equal(t, "L'Hôpital", first.Hint)

	second := data.Tasks[1]
	require.NotNil(t, second.Number)
	assert.Equal(t, 12, *second.Number)
	assert.Equal(t, oracle.DefaultDescription, second.Description)

	assert.Nil(t, data.Tasks[2].Number)
}

func TestFetch_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success":false,"error":"Неверный пароль"}`)
			},
			wantErr: models.ErrInvalidCredential,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: models.ErrOracleUnavailable,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>Sign in</html>`)
			},
			wantErr: models.ErrMalformedResponse,
		},
		{
			name: "empty task list",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"success":true,"tasks":[],"count":0}`)
			},
			wantErr: models.ErrMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, tt.handler)
			_, err := c.Fetch(context.Background(), "pw", "unknown")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := oracle.NewClient(oracle.Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := c.Fetch(context.Background(), "pw", "unknown")
	assert.ErrorIs(t, err, models.ErrOracleUnavailable)
	assert.True(t, oracle.IsTransient(err))
}

func TestChangeTaskStatusAndSetHint(t *testing.T) {
	var actions []string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		actions = append(actions, q.Get("action")+":"+q.Get("taskNumber")+":"+q.Get("newStatus")+q.Get("hintText"))
		fmt.Fprint(w, `{"success":true}`)
	})

	require.NoError(t, c.ChangeTaskStatus(context.Background(), "pw", 98, models.TaskStatusSolved))
	require.NoError(t, c.SetHint(context.Background(), "pw", 12, "use symmetry"))

	assert.Equal(t, []string{"changeStatus:98:Р", "setHint:12:use symmetry"}, actions)
}

func TestSetHint_Rejected(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":false}`)
	})

	err := c.SetHint(context.Background(), "pw", 1, "hint")
	assert.ErrorIs(t, err, models.ErrInvalidCredential)
	assert.False(t, oracle.IsTransient(err))
}
