package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"consultation-desk/models"
	"consultation-desk/monitoring"

	"go.uber.org/zap"
)

// Unavailable stands in when the configured backend could not be set up.
// The failure surfaces on the first call, like any transport failure.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Fetch(context.Context, int, int) ([]models.Consultation, error) {
	return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, u.Reason)
}

func (u Unavailable) Save(context.Context, *models.Consultation) (SaveResult, error) {
	return SaveResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, u.Reason)
}

// Observed records metrics and logs failures for every call.
type Observed struct {
	inner   Store
	backend string
	logger  *zap.Logger
}

func NewObserved(inner Store, backend string, logger *zap.Logger) *Observed {
	return &Observed{inner: inner, backend: backend, logger: logger}
}

func (o *Observed) Fetch(ctx context.Context, year, month int) ([]models.Consultation, error) {
	start := time.Now()
	records, err := o.inner.Fetch(ctx, year, month)
	o.observe("fetch", start, err, zap.Int("year", year), zap.Int("month", month), zap.Int("count", len(records)))
	return records, err
}

func (o *Observed) Save(ctx context.Context, rec *models.Consultation) (SaveResult, error) {
	start := time.Now()
	res, err := o.inner.Save(ctx, rec)
	o.observe("save", start, err, zap.String("id", res.ID), zap.Bool("document", res.DocumentURL != ""))
	return res, err
}

func (o *Observed) observe(op string, start time.Time, err error, fields ...zap.Field) {
	monitoring.StoreDuration.WithLabelValues(o.backend, op).Observe(time.Since(start).Seconds())

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	monitoring.StoreOperations.WithLabelValues(o.backend, op, outcome).Inc()

	fields = append(fields, zap.String("backend", o.backend), zap.String("operation", op))
	if err != nil {
		o.logger.Error("Store call failed", append(fields, zap.Error(err))...)
		return
	}
	o.logger.Debug("Store call completed", fields...)
}

const EventConsultationSaved = "consultation_saved"

type ConsultationEvent struct {
	Event string              `json:"event"`
	Data  models.Consultation `json:"data"`
}

// EventProducer is satisfied by utils.KafkaProducer.
type EventProducer interface {
	SendMessage(ctx context.Context, topic string, key, value []byte) error
}

// Publishing announces successful saves. Publishing happens in the
// background and never affects the save result.
type Publishing struct {
	inner    Store
	producer EventProducer
	topic    string
	logger   *zap.Logger
}

func NewPublishing(inner Store, producer EventProducer, topic string, logger *zap.Logger) *Publishing {
	return &Publishing{inner: inner, producer: producer, topic: topic, logger: logger}
}

func (p *Publishing) Fetch(ctx context.Context, year, month int) ([]models.Consultation, error) {
	return p.inner.Fetch(ctx, year, month)
}

func (p *Publishing) Save(ctx context.Context, rec *models.Consultation) (SaveResult, error) {
	res, err := p.inner.Save(ctx, rec)
	if err != nil || res.Record == nil {
		return res, err
	}

	go p.publish(ConsultationEvent{Event: EventConsultationSaved, Data: *res.Record.Clone()})
	return res, nil
}

func (p *Publishing) publish(event ConsultationEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal consultation event", zap.Error(err))
		return
	}

	if err := p.producer.SendMessage(ctx, p.topic, []byte(event.Data.ID), value); err != nil {
		p.logger.Warn("Failed to publish consultation event",
			zap.String("id", event.Data.ID),
			zap.Error(err),
		)
	}
}
