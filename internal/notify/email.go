package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// EmailConfig configures the SMTP relay used for notification mail.
type EmailConfig struct {
	Host      string   `conf:"host"`
	Port      int      `conf:"port"`
	Username  string   `conf:"username"`
	Password  string   `conf:"password"`
	From      string   `conf:"from"`
	To        []string `conf:"to"`
	QueueSize int      `conf:"queue_size"`
}

// Enabled reports whether enough is configured to send mail.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

type sendMailFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier queues notifications and mails them from a background
// goroutine. A full queue drops the notification and logs it instead
// of blocking the caller.
type EmailNotifier struct {
	config EmailConfig
	queue  chan Notification
	send   sendMailFn

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	log *zap.Logger
}

var _ Notifier = (*EmailNotifier)(nil)

func NewEmailNotifier(config EmailConfig, log *zap.Logger) *EmailNotifier {
	return newEmailNotifier(config, smtp.SendMail, log)
}

func newEmailNotifier(config EmailConfig, send sendMailFn, log *zap.Logger) *EmailNotifier {
	if config.QueueSize <= 0 {
		config.QueueSize = 100
	}
	if config.Port == 0 {
		config.Port = 25
	}

	n := &EmailNotifier{
		config: config,
		queue:  make(chan Notification, config.QueueSize),
		send:   send,
		log:    log.Named("notify_email"),
	}

	n.wg.Add(1)
	go n.loop()

	return n
}

func (n *EmailNotifier) Notify(_ context.Context, notification Notification) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		n.log.Warn("notifier closed, dropping",
			zap.String("subject", notification.Subject),
			zap.String("body", notification.Body),
		)
		return
	}

	select {
	case n.queue <- notification:
	default:
		n.log.Warn("notification queue full, dropping",
			zap.String("subject", notification.Subject),
			zap.String("body", notification.Body),
		)
	}
}

// Close stops accepting notifications and waits until the queued ones
// have been sent.
func (n *EmailNotifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()

	for notification := range n.queue {
		if err := n.deliver(notification); err != nil {
			n.log.Error("failed to send notification",
				zap.String("subject", notification.Subject),
				zap.Error(err),
			)
		}
	}
}

func (n *EmailNotifier) deliver(notification Notification) error {
	var auth smtp.Auth
	if n.config.Username != "" {
		auth = smtp.PlainAuth("", n.config.Username, n.config.Password, n.config.Host)
	}

	subject := notification.Subject
	if notification.Source != "" {
		subject = fmt.Sprintf("[%s] %s", notification.Source, subject)
	}

	msg := fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n",
		n.config.From,
		strings.Join(n.config.To, ", "),
		subject,
		notification.Body,
	)

	addr := fmt.Sprintf("%s:%d", n.config.Host, n.config.Port)
	return n.send(addr, auth, n.config.From, n.config.To, []byte(msg))
}
