package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	commonredis "drmp-assignment/common/redis"
	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleEvent() *domain.CaseFlowEvent {
	return &domain.CaseFlowEvent{
		EventID:     "E1",
		PackageID:   "P1",
		EventType:   domain.FlowEventAutoAssigned,
		FromStatus:  domain.PackageStatusPublished,
		ToStatus:    domain.PackageStatusAssigned,
		Description: "auto assigned to O1",
		OperatorID:  "u1",
		OccurredAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	return m.Called(topic, qos, retained, payload).Error(0)
}

func TestStreamSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewStreamSink(client, "drmp:case-flow", 1000)
	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))

	msgs, err := commonredis.ReadRange(context.Background(), client, "drmp:case-flow", "-", "+")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "PACKAGE_AUTO_ASSIGNED", msgs[0].Values["type"])

	var got domain.CaseFlowEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, "P1", got.PackageID)
	assert.Equal(t, domain.PackageStatusAssigned, got.ToStatus)
}

func TestMQTTSink_TopicPerPackage(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", "drmp/case-flow/P1", byte(1), false, mock.Anything).Return(nil).Once()

	sink := NewMQTTSink(pub, "drmp/case-flow/", 1)
	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))

	pub.AssertExpectations(t)
}

func TestMultiSink_ContinuesAfterFailure(t *testing.T) {
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))
	repo := repository.NewMemoryFlowEventsRepo()

	multi := NewMultiSink(zap.NewNop(), NewMQTTSink(pub, "drmp/case-flow", 0), NewRepositorySink(repo))
	err := multi.Emit(context.Background(), sampleEvent())

	assert.ErrorContains(t, err, "broker down")
	assert.Len(t, repo.All(), 1, "later sinks still receive the event")
	assert.Equal(t, 2, multi.Len())
}

func TestMultiSink_Empty(t *testing.T) {
	assert.NoError(t, NewMultiSink(zap.NewNop()).Emit(context.Background(), sampleEvent()))
}
