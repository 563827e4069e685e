package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"wheres-my-table/internal/config"
	"wheres-my-table/internal/domain"
	"wheres-my-table/internal/logger"
)

// Broker topology. The topic exchange carries keyed availability and table
// status traffic; reservation events fan out to every subscriber.
const (
	TopicExchange  = "reservations_topic"
	EventsExchange = "reservation_events"

	kindHeader       = "x-kind"
	kindAvailability = "availability_update"
	kindEvent        = "reservation_event"
	kindTableStatus  = "table_status_update"
)

// Client wraps one AMQP connection and channel.
type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(cfg config.RabbitMQ) (*Client, error) {
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, vhost)
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Channel() *amqp.Channel { return c.ch }

func (c *Client) Ping() error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// DeclareTopology declares both exchanges. Idempotent.
func DeclareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(TopicExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", TopicExchange, err)
	}
	if err := ch.ExchangeDeclare(EventsExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", EventsExchange, err)
	}
	return nil
}

func availabilityKey(date, timeSlot string) string { return fmt.Sprintf("availability.%s.%s", date, timeSlot) }
func tableStatusKey(tableID string) string         { return fmt.Sprintf("tables.%s.status", tableID) }

// Publisher pushes domain updates to the broker as persistent JSON.
// Publish calls are serialized: one amqp channel must not be used from
// several goroutines at once.
type Publisher struct {
	client *Client
	mu     sync.Mutex
}

func NewPublisher(client *Client) (*Publisher, error) {
	if err := DeclareTopology(client.Channel()); err != nil {
		return nil, err
	}
	return &Publisher{client: client}, nil
}

func (p *Publisher) PublishReservationEvent(ctx context.Context, e domain.ReservationEvent) error {
	return p.publish(ctx, EventsExchange, "", kindEvent, e)
}

func (p *Publisher) PublishTableStatus(ctx context.Context, u domain.TableStatusUpdate) error {
	return p.publish(ctx, TopicExchange, tableStatusKey(u.TableID), kindTableStatus, u)
}

func (p *Publisher) PublishAvailability(ctx context.Context, u domain.AvailabilityUpdate) error {
	return p.publish(ctx, TopicExchange, availabilityKey(u.Date, u.TimeSlot), kindAvailability, u)
}

func (p *Publisher) publish(ctx context.Context, exchange, key, kind string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", kind, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.Channel().PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{kindHeader: kind},
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}

// AMQPChannel implements Channel over one server-named exclusive queue.
// Date and table subscriptions become queue bindings on the topic
// exchange; reservation events arrive through the fanout binding.
type AMQPChannel struct {
	client *Client
	lg     *logger.Logger
	queue  string

	avail    registry[domain.AvailabilityUpdate]
	events   registry[domain.ReservationEvent]
	statuses registry[domain.TableStatusUpdate]
	conns    registry[domain.ConnectionStatus]

	mu     sync.Mutex // guards the amqp channel and status
	status domain.ConnectionStatus
}

func NewAMQPChannel(client *Client, lg *logger.Logger) (*AMQPChannel, error) {
	ch := client.Channel()
	if err := DeclareTopology(ch); err != nil {
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare subscriber queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", EventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", q.Name, EventsExchange, err)
	}

	c := &AMQPChannel{client: client, lg: lg, queue: q.Name, status: domain.Connecting}

	msgs, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}

	closeCh := ch.NotifyClose(make(chan *amqp.Error, 1))
	go c.watchClose(closeCh)
	go c.dispatchLoop(msgs)

	c.setStatus(domain.Connected)
	return c, nil
}

func (c *AMQPChannel) SubscribeToDate(date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Channel().QueueBind(c.queue, availabilityKey(date, "*"), TopicExchange, false, nil)
}

func (c *AMQPChannel) UnsubscribeFromDate(date string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Channel().QueueUnbind(c.queue, availabilityKey(date, "*"), TopicExchange, nil)
}

func (c *AMQPChannel) SubscribeToTable(tableID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Channel().QueueBind(c.queue, tableStatusKey(tableID), TopicExchange, false, nil)
}

// RequestAvailabilityUpdate asks the reservation backend to republish the
// current availability for a date. Fire and forget.
func (c *AMQPChannel) RequestAvailabilityUpdate(date string) error {
	body, _ := json.Marshal(map[string]string{"date": date})
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Channel().PublishWithContext(context.Background(),
		TopicExchange, "availability.refresh."+date, false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now().UTC(),
			Body:        body,
		})
}

func (c *AMQPChannel) OnAvailabilityUpdate(fn func(domain.AvailabilityUpdate)) func() {
	return c.avail.add(fn)
}

func (c *AMQPChannel) OnReservationEvent(fn func(domain.ReservationEvent)) func() {
	return c.events.add(fn)
}

func (c *AMQPChannel) OnTableStatusUpdate(fn func(domain.TableStatusUpdate)) func() {
	return c.statuses.add(fn)
}

// OnConnectionChange registers fn and invokes it once with the current
// status, so late subscribers do not miss the initial transition.
func (c *AMQPChannel) OnConnectionChange(fn func(domain.ConnectionStatus)) func() {
	unsub := c.conns.add(fn)
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()
	fn(status)
	return unsub
}

func (c *AMQPChannel) setStatus(s domain.ConnectionStatus) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	c.mu.Unlock()
	if changed {
		c.conns.dispatch(s)
	}
}

func (c *AMQPChannel) watchClose(closeCh <-chan *amqp.Error) {
	if e := <-closeCh; e != nil {
		c.lg.Error("amqp_channel_closed", e, map[string]any{"queue": c.queue})
	}
	c.setStatus(domain.Disconnected)
}

func (c *AMQPChannel) dispatchLoop(msgs <-chan amqp.Delivery) {
	for d := range msgs {
		kind, _ := d.Headers[kindHeader].(string)
		switch kind {
		case kindAvailability:
			var u domain.AvailabilityUpdate
			if err := json.Unmarshal(d.Body, &u); err != nil {
				c.lg.Error("availability_decode_failed", err, nil)
				continue
			}
			c.avail.dispatch(u)
		case kindEvent:
			var e domain.ReservationEvent
			if err := json.Unmarshal(d.Body, &e); err != nil {
				c.lg.Error("event_decode_failed", err, nil)
				continue
			}
			c.events.dispatch(e)
		case kindTableStatus:
			var u domain.TableStatusUpdate
			if err := json.Unmarshal(d.Body, &u); err != nil {
				c.lg.Error("table_status_decode_failed", err, nil)
				continue
			}
			c.statuses.dispatch(u)
		default:
			c.lg.Debug("unknown_message_kind", map[string]any{"kind": kind, "key": d.RoutingKey})
		}
	}
}
