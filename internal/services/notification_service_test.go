package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, alert Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func TestSlackNotifier(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL, server.Client())
	err := notifier.Notify(context.Background(), Alert{
		Level:   AlertError,
		Title:   "Pending seat sync failed",
		Message: "1 subscription could not be updated",
		Fields:  map[string]string{"subscription_id": "sub_1"},
	})
	require.NoError(t, err)
	assert.Contains(t, received["text"], "*[error] Pending seat sync failed*")
	assert.Contains(t, received["text"], "subscription_id: sub_1")
}

func TestSlackNotifier_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackNotifier(server.URL, server.Client()).Notify(context.Background(), Alert{Title: "x"})
	assert.EqualError(t, err, "slack returned non-success status: 403")
}

func TestMultiNotifier(t *testing.T) {
	first := &MockNotificationService{}
	second := &MockNotificationService{}
	alert := Alert{Level: AlertWarning, Title: "drift"}
	first.On("Notify", mock.Anything, alert).Return(errors.New("down"))
	second.On("Notify", mock.Anything, alert).Return(nil)

	err := NewMultiNotifier(first, NewLogNotifier(), second).Notify(context.Background(), alert)
	assert.EqualError(t, err, "notification delivery failed: down")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}
