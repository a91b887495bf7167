package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/cognito-gateway/models"
	"go.uber.org/zap"
)

// MockAuditRepository is a mock implementation of AuditRepository
type MockAuditRepository struct {
	mock.Mock
	mu           sync.Mutex
	insertedLogs []*models.AuditLog
}

func (m *MockAuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	args := m.Called(ctx, log)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertedLogs = append(m.insertedLogs, log)
	return args.Error(0)
}

func (m *MockAuditRepository) GetInsertedLogs() []*models.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.AuditLog(nil), m.insertedLogs...)
}

func TestAuditService_StartStop(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, service.Start())

	stats := service.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, service.Start())

	require.NoError(t, service.Stop(5*time.Second))
	assert.False(t, service.GetStats().Started)

	// Stopping twice and logging after stop are errors, not panics
	assert.ErrorIs(t, service.Stop(time.Second), ErrNotStarted)
	assert.ErrorIs(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "fahim")), ErrNotStarted)
}

func TestAuditService_LogEventBeforeStart(t *testing.T) {
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), DefaultConfig())

	err := service.LogEvent(models.NewAuditLog(models.AuditActionSignUp, "fahim"))
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestAuditService_LogEvent(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, service.Start())

	log := models.NewAuditLog(models.AuditActionSignIn, "fahim").
		WithOutcome(models.AuditOutcomeFailure, "NotAuthorizedException")
	require.NoError(t, service.LogEvent(log))

	// Stop drains the buffer
	require.NoError(t, service.Stop(5*time.Second))

	insertedLogs := mockRepo.GetInsertedLogs()
	require.Len(t, insertedLogs, 1)
	assert.Equal(t, log.ID, insertedLogs[0].ID)
	assert.Equal(t, models.AuditActionSignIn, insertedLogs[0].Action)
	mockRepo.AssertExpectations(t)
}

func TestAuditService_RepositoryErrorDoesNotStopWorkers(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "a")))
	require.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "b")))
	require.NoError(t, service.Stop(5*time.Second))

	assert.Len(t, mockRepo.GetInsertedLogs(), 2)
}

func TestAuditService_ConcurrentLogging(t *testing.T) {
	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil)

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 1000, WorkerCount: 4})
	require.NoError(t, service.Start())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				assert.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionVerifyToken, fmt.Sprintf("user-%d-%d", g, i))))
			}
		}(g)
	}
	wg.Wait()

	require.NoError(t, service.Stop(5*time.Second))
	assert.Len(t, mockRepo.GetInsertedLogs(), 200)
}

func TestAuditService_BufferFull(t *testing.T) {
	// No workers, so nothing drains the buffer
	service := NewAuditService(new(MockAuditRepository), zap.NewNop(), Config{BufferSize: 2, WorkerCount: 0})
	require.NoError(t, service.Start())

	require.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "a")))
	require.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "b")))
	assert.ErrorIs(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "c")), ErrBufferFull)

	stats := service.GetStats()
	assert.Equal(t, 2, stats.PendingEvents)
	assert.Equal(t, 1, stats.Dropped)
}

func TestAuditService_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	mockRepo := new(MockAuditRepository)
	mockRepo.On("Insert", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		<-release
	})

	service := NewAuditService(mockRepo, zap.NewNop(), Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, service.Start())
	require.NoError(t, service.LogEvent(models.NewAuditLog(models.AuditActionSignIn, "fahim")))

	err := service.Stop(100 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, 1000, config.BufferSize)
	assert.Equal(t, 2, config.WorkerCount)
}
