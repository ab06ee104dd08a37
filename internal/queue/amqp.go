package queue

import (
	"log"

	"github.com/streadway/amqp"
)

const maxDeliveries = 3

// AMQPQueue implements Queue over RabbitMQ. Queues are durable and
// consumed with manual acks; a failed handler gets the message
// republished with an incremented retry header up to maxDeliveries.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
}

func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	if _, err := q.declare(topic); err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck off for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				retries := retryCount(d)
				if retries < maxDeliveries {
					if pubErr := q.republish(topic, d, retries+1); pubErr != nil {
						log.Println("⚠️ failed to requeue message:", pubErr)
					}
				} else {
					log.Printf("⚠️ message permanently failed after %d deliveries: %v", maxDeliveries, err)
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

// republish re-enqueues a failed delivery with the bumped retry header.
// Nack-requeue would spin without counting, so the header carries state.
func (q *AMQPQueue) republish(topic string, d amqp.Delivery, retries int) error {
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{"x-retry-count": int32(retries)},
			Body:         d.Body,
		},
	)
}

func retryCount(d amqp.Delivery) int {
	if d.Headers == nil {
		return 0
	}
	switch v := d.Headers["x-retry-count"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
