package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/timeline-service/pkg/logger"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "timeline",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Post events handed to the publisher, by type and result",
	}, []string{"type", "result"})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "timeline",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Post events dropped because the queue was full or stopped",
	})

	eventLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "timeline",
		Subsystem: "events",
		Name:      "lag_seconds",
		Help:      "Time between enqueue and publish",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
)

type dispatchJob struct {
	ev    PostEvent
	span  trace.SpanContext
	enqAt time.Time
}

// EventDispatcher 本地异步发布：有界队列 + 固定 worker，队列满则丢弃并告警
type EventDispatcher struct {
	pub     EventPublisher
	ch      chan dispatchJob
	stopped atomic.Bool
	timeout time.Duration
}

func NewEventDispatcher(pub EventPublisher, queueSize int) *EventDispatcher {
	if queueSize <= 0 {
		queueSize = 10000
	}
	if pub == nil {
		pub = NopPublisher{}
	}
	return &EventDispatcher{pub: pub, ch: make(chan dispatchJob, queueSize), timeout: 5 * time.Second}
}

// Start launches the workers and returns a stop function that drains what
// is already queued, bounded by its context.
func (d *EventDispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.publish(job)
				case <-stopCh:
					for {
						select {
						case job := <-d.ch:
							d.publish(job)
						default:
							return
						}
					}
				}
			}
		}()
	}

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			d.stopped.Store(true)
			close(stopCh)
		})
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *EventDispatcher) publish(job dispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if job.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, job.span)
	}
	if err := d.pub.Publish(ctx, job.ev); err != nil {
		eventsPublished.WithLabelValues(string(job.ev.Type), "error").Inc()
		logger.Warn("publish post event failed",
			zap.String("type", string(job.ev.Type)),
			zap.Int64("post_id", job.ev.PostID),
			zap.Error(err))
		return
	}
	eventsPublished.WithLabelValues(string(job.ev.Type), "ok").Inc()
	eventLag.Observe(time.Since(job.enqAt).Seconds())
}

// Enqueue never blocks the caller.
func (d *EventDispatcher) Enqueue(ctx context.Context, ev PostEvent) {
	if d == nil {
		return
	}
	if d.stopped.Load() {
		eventsDropped.Inc()
		return
	}
	job := dispatchJob{ev: ev, span: trace.SpanContextFromContext(ctx), enqAt: time.Now()}
	select {
	case d.ch <- job:
	default:
		eventsDropped.Inc()
		logger.Warn("event queue full, drop", zap.String("type", string(ev.Type)), zap.Int64("post_id", ev.PostID))
	}
}

// QueueLen 返回当前队列长度（采样值）
func (d *EventDispatcher) QueueLen() int { return len(d.ch) }
