// Package orphanreport publishes orphaned identities to a Kafka topic so an
// operator job can remove or repair them.
package orphanreport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/eskate/storefront-api/internal/ports/out/orphanreport"
)

// DefaultTopic receives orphan records when no topic is configured.
const DefaultTopic = "storefront.orphaned-identities"

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Reporter is a Kafka implementation of orphanreport.Reporter.
// Records are keyed by subject so reports for one identity stay ordered.
type Reporter struct {
	producer producer
	topic    string
}

func NewReporter(p producer, topic string) *Reporter {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Reporter{producer: p, topic: topic}
}

// NewClient builds a franz-go producer for the comma-separated broker list.
func NewClient(brokers string, opts ...kgo.Opt) (*kgo.Client, error) {
	var seeds []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			seeds = append(seeds, b)
		}
	}
	if len(seeds) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	opts = append([]kgo.Opt{
		kgo.SeedBrokers(seeds...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}, opts...)
	return kgo.NewClient(opts...)
}

func (r *Reporter) ReportOrphan(ctx context.Context, o orphanreport.Orphan) error {
	rec, err := r.record(o)
	if err != nil {
		return err
	}
	if err := r.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish orphan %s: %w", o.Subject, err)
	}
	return nil
}

func (r *Reporter) record(o orphanreport.Orphan) (*kgo.Record, error) {
	o.DetectedAt = o.DetectedAt.UTC()
	body, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode orphan: %w", err)
	}
	return &kgo.Record{
		Topic: r.topic,
		Key:   []byte(o.Subject),
		Value: body,
		Headers: []kgo.RecordHeader{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}
