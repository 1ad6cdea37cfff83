package job_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lokeshec23/GC-AI/features/job"
)

// MockRepo implements job.Repository
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockRepo) List(ctx context.Context) ([]job.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]job.Job), args.Error(1)
}
func (m *MockRepo) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}
func (m *MockRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockRepo) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestHandler_List(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil))

	mockRepo.On("List", mock.Anything).Return([]job.Job{
		{ID: "1", SessionID: "s-1", Kind: "ingest", Status: "completed", Error: "1 of 4 chunks failed"},
	}, nil)

	req := httptest.NewRequest("GET", "/jobs/failed", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []job.Job     `json:"data"`
		Meta map[string]int `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Meta["count"])
	assert.Equal(t, "s-1", resp.Data[0].SessionID)
}

func TestHandler_List_Empty(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil))

	mockRepo.On("List", mock.Anything).Return(nil, nil)

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/jobs/failed", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":[],"meta":{"count":0}}`, w.Body.String())
}

func TestHandler_List_ServiceError(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil))

	mockRepo.On("List", mock.Anything).Return(nil, errors.New("database error"))

	w := httptest.NewRecorder()
	handler.List(w, httptest.NewRequest("GET", "/jobs/failed", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
	mockRepo.AssertExpectations(t)
}

func TestHandler_Get(t *testing.T) {
	mockRepo := new(MockRepo)
	handler := job.NewHandler(job.NewService(mockRepo, nil))

	mockRepo.On("Get", mock.Anything, "job-1").Return(&job.Job{ID: "job-1", Status: "failed"}, nil)
	mockRepo.On("Get", mock.Anything, "missing").Return(nil, sql.ErrNoRows)

	req := httptest.NewRequest("GET", "/jobs/failed/job-1", nil)
	req.SetPathValue("id", "job-1")
	w := httptest.NewRecorder()
	handler.Get(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"failed"`)

	req = httptest.NewRequest("GET", "/jobs/failed/missing", nil)
	req.SetPathValue("id", "missing")
	w = httptest.NewRecorder()
	handler.Get(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Dismiss(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"Success", nil, http.StatusNoContent},
		{"NotFound", sql.ErrNoRows, http.StatusNotFound},
		{"DBError", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockRepo)
			handler := job.NewHandler(job.NewService(mockRepo, nil))
			mockRepo.On("Delete", mock.Anything, "job-9").Return(tt.err)

			req := httptest.NewRequest("DELETE", "/jobs/failed/job-9", nil)
			req.SetPathValue("id", "job-9")
			w := httptest.NewRecorder()

			handler.Dismiss(w, req)
			assert.Equal(t, tt.status, w.Code)
			mockRepo.AssertExpectations(t)
		})
	}
}
