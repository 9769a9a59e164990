// Package events 案件流转事件输出（审计日志、Redis Streams、MQTT）
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	commonredis "drmp-assignment/common/redis"
	"drmp-assignment/internal/domain"
	"drmp-assignment/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Sink 流转事件接收方；只在状态变更提交之后调用
type Sink interface {
	Emit(ctx context.Context, ev *domain.CaseFlowEvent) error
}

// RepositorySink 写入 case_flow_events
type RepositorySink struct {
	repo repository.FlowEventsRepository
}

func NewRepositorySink(repo repository.FlowEventsRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Emit(ctx context.Context, ev *domain.CaseFlowEvent) error {
	return s.repo.InsertEvent(ctx, ev)
}

// StreamSink 发布到 Redis Stream，供通知 / 报表服务消费
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Emit(ctx context.Context, ev *domain.CaseFlowEvent) error {
	if _, err := commonredis.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, string(ev.EventType), ev); err != nil {
		return fmt.Errorf("failed to publish flow event to stream %s: %w", s.stream, err)
	}
	return nil
}

// Publisher MQTT 发布能力（common/mqtt.Client 满足该接口）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSink 发布到 {prefix}/{package_id}
type MQTTSink struct {
	pub    Publisher
	prefix string
	qos    byte
}

func NewMQTTSink(pub Publisher, prefix string, qos byte) *MQTTSink {
	return &MQTTSink{pub: pub, prefix: strings.TrimSuffix(prefix, "/"), qos: qos}
}

// Topic 事件对应的 MQTT 主题
func (s *MQTTSink) Topic(packageID string) string {
	return s.prefix + "/" + packageID
}

func (s *MQTTSink) Emit(_ context.Context, ev *domain.CaseFlowEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode flow event: %w", err)
	}
	return s.pub.Publish(s.Topic(ev.PackageID), s.qos, false, payload)
}

// MultiSink 依次写入全部 sink；单个失败不影响其他 sink
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewMultiSink(logger *zap.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger}
}

func (m *MultiSink) Emit(ctx context.Context, ev *domain.CaseFlowEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(ctx, ev); err != nil {
			m.logger.Warn("Flow event sink failed",
				zap.String("package_id", ev.PackageID),
				zap.String("event_type", string(ev.EventType)),
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len sink 数量
func (m *MultiSink) Len() int { return len(m.sinks) }
