package messaging

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"speaker-diarizer/pkg/errors"
	"speaker-diarizer/pkg/metrics"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

// AMQPConfig holds AMQP publisher configuration
type AMQPConfig struct {
	URL          string
	ExchangeName string
	RoutingKey   string
	QueueName    string
	Durable      bool
}

// publishChannel is the part of *amqp.Channel the publisher uses
type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// amqpSession is an open connection and its channel
type amqpSession struct {
	channel publishChannel
	conn    io.Closer
	closed  chan *amqp.Error
}

type dialFunc func(url string) (*amqpSession, error)

func dialAMQP(url string) (*amqpSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &amqpSession{
		channel: channel,
		conn:    conn,
		closed:  conn.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

// AMQPPublisher publishes speaker events to an AMQP exchange and reconnects
// when the broker drops the connection
type AMQPPublisher struct {
	logger *logrus.Entry
	config AMQPConfig
	dial   dialFunc

	connMutex sync.RWMutex
	session   *amqpSession
	connected bool
	stopChan  chan struct{}
}

// NewAMQPPublisher creates a publisher. Connect must be called before publishing.
func NewAMQPPublisher(logger *logrus.Logger, config AMQPConfig) *AMQPPublisher {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	return &AMQPPublisher{
		logger:   logger.WithField("component", "amqp_publisher"),
		config:   config,
		dial:     dialAMQP,
		stopChan: make(chan struct{}),
	}
}

// Connect dials the broker and declares the exchange, queue and binding
func (p *AMQPPublisher) Connect() error {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	if p.connected {
		return nil
	}
	if p.config.URL == "" {
		return errors.NewInvalidInput("AMQP URL not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type dialResult struct {
		session *amqpSession
		err     error
	}
	resultChan := make(chan dialResult, 1)
	go func() {
		session, err := p.dial(p.config.URL)
		resultChan <- dialResult{session, err}
	}()

	var session *amqpSession
	select {
	case result := <-resultChan:
		if result.err != nil {
			return errors.Wrap(errors.ErrUnavailable, "failed to connect to AMQP server",
				map[string]interface{}{"cause": result.err.Error()})
		}
		session = result.session
	case <-ctx.Done():
		// Close whatever the dial eventually returns
		go func() {
			if result := <-resultChan; result.session != nil {
				result.session.conn.Close()
			}
		}()
		return errors.Wrap(errors.ErrTimeout, "connection to AMQP server timed out")
	}

	if err := p.declare(session.channel); err != nil {
		session.channel.Close()
		session.conn.Close()
		return err
	}

	p.session = session
	p.connected = true
	p.stopChan = make(chan struct{})
	metrics.SetAMQPConnectionStatus(true)

	p.logger.WithFields(logrus.Fields{
		"exchange":    p.config.ExchangeName,
		"routing_key": p.config.RoutingKey,
		"queue":       p.config.QueueName,
	}).Info("Connected to AMQP server")

	go p.monitorConnection(session.closed, p.stopChan)
	return nil
}

func (p *AMQPPublisher) declare(channel publishChannel) error {
	if p.config.ExchangeName != "" {
		err := channel.ExchangeDeclare(
			p.config.ExchangeName,
			amqp.ExchangeTopic,
			p.config.Durable,
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			return errors.Wrap(err, "failed to declare AMQP exchange",
				map[string]interface{}{"exchange": p.config.ExchangeName})
		}
	}

	if p.config.QueueName == "" {
		return nil
	}

	if _, err := channel.QueueDeclare(p.config.QueueName, p.config.Durable, false, false, false, nil); err != nil {
		return errors.Wrap(err, "failed to declare AMQP queue",
			map[string]interface{}{"queue": p.config.QueueName})
	}

	if p.config.ExchangeName != "" {
		if err := channel.QueueBind(p.config.QueueName, p.config.RoutingKey, p.config.ExchangeName, false, nil); err != nil {
			return errors.Wrap(err, "failed to bind AMQP queue",
				map[string]interface{}{"queue": p.config.QueueName, "exchange": p.config.ExchangeName})
		}
	}
	return nil
}

// Disconnect closes the AMQP connection and stops reconnecting
func (p *AMQPPublisher) Disconnect() {
	p.connMutex.Lock()
	defer p.connMutex.Unlock()

	select {
	case <-p.stopChan:
	default:
		close(p.stopChan)
	}

	if !p.connected {
		return
	}

	p.session.channel.Close()
	p.session.conn.Close()
	p.session = nil
	p.connected = false
	metrics.SetAMQPConnectionStatus(false)

	p.logger.Info("Disconnected from AMQP server")
}

// IsConnected returns the connection status
func (p *AMQPPublisher) IsConnected() bool {
	p.connMutex.RLock()
	defer p.connMutex.RUnlock()
	return p.connected
}

// PublishEvent publishes one speaker event as persistent JSON
func (p *AMQPPublisher) PublishEvent(ctx context.Context, event SpeakerEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal speaker event")
	}

	publishChan := make(chan error, 1)
	go func() {
		p.connMutex.RLock()
		defer p.connMutex.RUnlock()

		if !p.connected || p.session == nil {
			publishChan <- errors.Wrap(errors.ErrUnavailable, "not connected to AMQP server")
			return
		}

		publishChan <- p.session.channel.Publish(
			p.config.ExchangeName,
			p.config.RoutingKey,
			false, // mandatory
			false, // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				MessageId:    event.EventID,
				Type:         event.Type,
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    event.Timestamp,
				Headers: amqp.Table{
					"x-session-id": event.SessionID,
				},
			},
		)
	}()

	select {
	case err := <-publishChan:
		if err != nil {
			metrics.RecordAMQPPublish(p.config.ExchangeName, "error")
			return errors.Wrap(err, "failed to publish speaker event",
				map[string]interface{}{"session_id": event.SessionID})
		}
	case <-ctx.Done():
		metrics.RecordAMQPPublish(p.config.ExchangeName, "timeout")
		return errors.Wrap(errors.ErrTimeout, "publishing to AMQP timed out",
			map[string]interface{}{"session_id": event.SessionID})
	}

	metrics.RecordAMQPPublish(p.config.ExchangeName, "success")
	p.logger.WithFields(logrus.Fields{
		"session_id": event.SessionID,
		"type":       event.Type,
	}).Debug("Published speaker event")
	return nil
}

// monitorConnection reconnects with exponential backoff when the broker closes the connection
func (p *AMQPPublisher) monitorConnection(closed chan *amqp.Error, stop chan struct{}) {
	var closeErr *amqp.Error
	select {
	case <-stop:
		return
	case closeErr = <-closed:
	}

	select {
	case <-stop:
		return
	default:
	}

	p.connMutex.Lock()
	if p.session != nil {
		p.session.conn.Close()
	}
	p.session = nil
	p.connected = false
	p.connMutex.Unlock()
	metrics.SetAMQPConnectionStatus(false)

	p.logger.WithField("reason", closeErr).Warn("AMQP connection closed, attempting to reconnect")

	for attempt := 1; attempt <= 10; attempt++ {
		err := p.Connect()
		if err == nil {
			p.logger.WithField("attempt", attempt).Info("Reconnected to AMQP server")
			return
		}
		p.logger.WithError(err).WithField("attempt", attempt).Error("Failed to reconnect to AMQP server")

		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
	}
	p.logger.Error("Giving up on AMQP reconnection")
}
