package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/lokeshec23/GC-AI/features/job"
)

// Mocks

type MockJobRepo struct{ mock.Mock }

func (m *MockJobRepo) Save(ctx context.Context, j *job.Job) error {
	args := m.Called(ctx, j)
	return args.Error(0)
}
func (m *MockJobRepo) List(ctx context.Context) ([]job.Job, error)          { return nil, nil }
func (m *MockJobRepo) Get(ctx context.Context, id string) (*job.Job, error) { return nil, nil }
func (m *MockJobRepo) Delete(ctx context.Context, id string) error          { return nil }
func (m *MockJobRepo) Count(ctx context.Context) (int, error)               { return 0, nil }
