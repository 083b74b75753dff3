package application_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gadfly/internal/nagging/application"
)

func TestWebhookNotifier(t *testing.T) {
	t.Run("posts json", func(t *testing.T) {
		var got application.Notification
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		n := application.NewWebhookNotifier(srv.URL, srv.Client())
		err := n.Notify(context.Background(), application.Notification{Kind: application.KindNag, TaskID: "t1", Message: "hey"})

		require.NoError(t, err)
		assert.Equal(t, "t1", got.TaskID)
		assert.Equal(t, "hey", got.Message)
	})

	statusCases := []struct {
		status     int
		permission bool
	}{
		{http.StatusForbidden, true},
		{http.StatusGone, true},
		{http.StatusBadGateway, false},
	}
	for _, tc := range statusCases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			err := application.NewWebhookNotifier(srv.URL, nil).Notify(context.Background(), application.Notification{})
			require.Error(t, err)
			assert.Equal(t, tc.permission, err == application.ErrPermissionDenied)
		})
	}
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, application.NewLogNotifier(nil).Notify(context.Background(), application.Notification{TaskID: "t1"}))
}
