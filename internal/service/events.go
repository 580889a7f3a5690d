package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-service/internal/model"
	"github.com/d60-Lab/timeline-service/pkg/logger"
)

// EventType 帖子生命周期事件
type EventType string

const (
	EventPostCreated EventType = "created"
	EventPostUpdated EventType = "updated"
	EventPostDeleted EventType = "deleted"
)

// PostEvent 对外发布的事件体
type PostEvent struct {
	Type       EventType     `json:"type"`
	PostID     int64         `json:"postId"`
	UserID     int64         `json:"userId"`
	Title      string        `json:"title,omitempty"`
	MediaFiles []model.Media `json:"mediaFiles,omitempty"`
	OccurredAt time.Time     `json:"occurredAt"`
}

func newPostEvent(t EventType, p *model.Post, at time.Time) PostEvent {
	ev := PostEvent{Type: t, PostID: p.ID, UserID: p.UserID, OccurredAt: at}
	if t != EventPostDeleted {
		ev.Title = p.Title
		// 事件异步发布，不与调用方共享切片
		ev.MediaFiles = append([]model.Media(nil), p.MediaFiles...)
	}
	return ev
}

// EventPublisher 事件出口
type EventPublisher interface {
	Publish(ctx context.Context, ev PostEvent) error
}

// NopPublisher 未配置消息队列时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, PostEvent) error { return nil }

// NatsPublisher 发布到 <prefix>.<type>，并把 trace 上下文写入消息头
type NatsPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
}

func NewNatsPublisher(nc *nats.Conn, subjectPrefix string) *NatsPublisher {
	if subjectPrefix == "" {
		subjectPrefix = "post"
	}
	return &NatsPublisher{nc: nc, subjectPrefix: subjectPrefix}
}

func (p *NatsPublisher) Subject(t EventType) string {
	return fmt.Sprintf("%s.%s", p.subjectPrefix, t)
}

func (p *NatsPublisher) Publish(ctx context.Context, ev PostEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &nats.Msg{
		Subject: p.Subject(ev.Type),
		Data:    data,
		Header:  nats.Header{},
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	logger.Debug("publishing post event", zap.String("subject", msg.Subject), zap.Int64("post_id", ev.PostID))
	return p.nc.PublishMsg(msg)
}
