// Package stream mirrors a running capture session to remote viewers over
// NATS and websockets.
package stream

import (
	"encoding/json"
	"sync"

	"ppg-screening/internal/capture"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Publisher sends one encoded update on a subject.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// LivePublisher forwards controller view updates. Phase changes always go
// out; updates inside a phase are limited to perSecond.
type LivePublisher struct {
	pubs    []Publisher
	subject string
	limiter *rate.Limiter
	logger  *zap.Logger

	mu        sync.Mutex
	lastPhase capture.Phase
	sent      int
	dropped   int
}

func NewLivePublisher(subject string, perSecond float64, logger *zap.Logger, pubs ...Publisher) *LivePublisher {
	if perSecond <= 0 {
		perSecond = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LivePublisher{
		pubs:    pubs,
		subject: subject,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// Update is meant to be passed to Controller.OnUpdate.
func (l *LivePublisher) Update(v capture.ViewModel) {
	l.mu.Lock()
	changed := v.Phase != l.lastPhase
	l.lastPhase = v.Phase
	if !changed && !l.limiter.Allow() {
		l.dropped++
		l.mu.Unlock()
		return
	}
	l.sent++
	l.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		l.logger.Error("failed to marshal view update", zap.Error(err))
		return
	}
	for _, p := range l.pubs {
		if err := p.Publish(l.subject, data); err != nil {
			l.logger.Warn("live update not delivered", zap.String("subject", l.subject), zap.Error(err))
		}
	}
}

// Stats returns how many updates were sent and throttled.
func (l *LivePublisher) Stats() (sent, dropped int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent, l.dropped
}
