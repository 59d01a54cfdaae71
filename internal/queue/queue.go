package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// DispatchQueue carries campaign ids whose first batch should start without
// waiting for the next scheduler tick.
const DispatchQueue = "campaign_dispatch"

// DispatchJob is the wire format of one queued dispatch kick.
type DispatchJob struct {
	JobID      string `json:"job_id"`
	CampaignID int    `json:"campaign_id"`
}

// Publisher is the slice of the queue the campaign service needs.
type Publisher interface {
	PublishDispatch(campaignID int) error
}

// RabbitPublisher publishes dispatch jobs to RabbitMQ.
type RabbitPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to RabbitMQ and declares the durable dispatch queue.
func Dial(amqpURL string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		DispatchQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &RabbitPublisher{conn: conn, ch: ch}, nil
}

func (p *RabbitPublisher) PublishDispatch(campaignID int) error {
	body, err := json.Marshal(DispatchJob{
		JobID:      uuid.NewString(),
		CampaignID: campaignID,
	})
	if err != nil {
		return err
	}

	return p.ch.Publish(
		"",            // default exchange
		DispatchQueue, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Redeliver re-enqueues a failed job carrying its retry count, because a
// plain nack-requeue preserves no state and would loop a poisoned job
// forever. Consumers read the count back with RetryCount.
func (p *RabbitPublisher) Redeliver(job DispatchJob, retries int) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	return p.ch.Publish(
		"",
		DispatchQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retries": int32(retries)},
			Body:         body,
		},
	)
}

// RetryCount reads the redelivery counter from a delivery's headers. The
// broker hands integers back in whatever width it encoded, so all of them
// are accepted; a missing header is attempt zero.
func RetryCount(headers amqp.Table) int {
	switch v := headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (p *RabbitPublisher) Close() {
	p.ch.Close()
	p.conn.Close()
}

// Consume registers a consumer on the dispatch queue with manual acks.
func (p *RabbitPublisher) Consume() (<-chan amqp.Delivery, error) {
	return p.ch.Consume(
		DispatchQueue,
		"",    // consumer tag
		false, // autoAck off for reliability
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
}

var _ Publisher = (*RabbitPublisher)(nil)
