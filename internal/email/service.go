// Package email queues outgoing mail in Redis and delivers it over SMTP
// from a background worker.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/smtp"
	"time"

	"github.com/redis/go-redis/v9"

	"coursehub/internal/config"
	"coursehub/internal/logger"
	"coursehub/internal/metrics"
)

const (
	queueKey    = "emails"
	failedKey   = "emails:failed"
	maxTries    = 3
	popTimeout  = 2 * time.Second
	retryPause  = 5 * time.Second
	dateLayout  = "Jan 2, 2006"
	timeLayout  = "Jan 2, 2006 at 15:04 MST"
	signatureLn = "\n\n- CourseHub Team"
)

type EmailJob struct {
	Kind    string    `json:"kind"`
	To      string    `json:"to"`
	Name    string    `json:"name"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	Tries   int       `json:"tries"`
	Created time.Time `json:"created"`
}

type deliverFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Service struct {
	redis    *redis.Client
	from     string
	fromName string
	smtpHost string
	smtpPort string
	smtpUser string
	smtpPass string

	deliver    deliverFunc
	retryPause time.Duration
}

func New(cfg config.Email, rdb *redis.Client) *Service {
	return &Service{
		redis:      rdb,
		from:       cfg.From,
		fromName:   cfg.FromName,
		smtpHost:   cfg.SMTPHost,
		smtpPort:   cfg.SMTPPort,
		smtpUser:   cfg.SMTPUser,
		smtpPass:   cfg.SMTPPass,
		deliver:    smtp.SendMail,
		retryPause: retryPause,
	}
}

// Send queues a message. kind labels the delivery metrics.
func (s *Service) Send(ctx context.Context, kind, to, name, subject, body string) error {
	job := EmailJob{
		Kind:    kind,
		To:      to,
		Name:    name,
		Subject: subject,
		Body:    body,
		Created: time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	if err := s.redis.LPush(ctx, queueKey, string(data)).Err(); err != nil {
		metrics.RecordEmail(kind, "queue_failed")
		logger.Error("failed to queue email", "kind", kind, "to", to, "error", err)
		return err
	}

	metrics.RecordEmail(kind, "queued")
	logger.Debug("email queued", "kind", kind, "to", to)
	return nil
}

// Start runs the delivery loop until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Info("email worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("email worker stopped")
			return
		default:
			s.processNext(ctx)
		}
	}
}

func (s *Service) processNext(ctx context.Context) {
	result, err := s.redis.BRPop(ctx, popTimeout, queueKey).Result()
	if err != nil {
		return
	}

	var job EmailJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		logger.Error("dropping malformed email job", "error", err)
		return
	}

	job.Tries++
	if err := s.sendNow(job); err != nil {
		logger.Warn("email delivery failed", "kind", job.Kind, "to", job.To, "attempt", job.Tries, "error", err)

		if job.Tries < maxTries {
			if s.retryPause > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(s.retryPause):
				}
			}
			data, _ := json.Marshal(job)
			s.redis.LPush(context.WithoutCancel(ctx), queueKey, string(data))
			metrics.RecordEmail(job.Kind, "retried")
		} else {
			s.saveFailed(ctx, job, err)
		}
		return
	}

	metrics.RecordEmail(job.Kind, "sent")
	logger.Info("email sent", "kind", job.Kind, "to", job.To)
}

func (s *Service) sendNow(job EmailJob) error {
	if s.smtpHost == "" {
		logger.Info("smtp not configured, email logged only", "kind", job.Kind, "to", job.To, "subject", job.Subject)
		return nil
	}

	message := fmt.Sprintf("From: %s <%s>\r\n", s.fromName, s.from)
	message += fmt.Sprintf("To: %s\r\n", job.To)
	message += fmt.Sprintf("Subject: %s\r\n", job.Subject)
	message += "\r\n" + job.Body

	var auth smtp.Auth
	if s.smtpUser != "" && s.smtpPass != "" {
		auth = smtp.PlainAuth("", s.smtpUser, s.smtpPass, s.smtpHost)
	}

	addr := s.smtpHost + ":" + s.smtpPort
	return s.deliver(addr, auth, s.from, []string{job.To}, []byte(message))
}

func (s *Service) saveFailed(ctx context.Context, job EmailJob, err error) {
	failed := map[string]any{
		"job":   job,
		"error": err.Error(),
		"time":  time.Now(),
	}
	data, _ := json.Marshal(failed)
	s.redis.LPush(context.WithoutCancel(ctx), failedKey, string(data))
	metrics.RecordEmail(job.Kind, "failed")
	logger.Error("email moved to failed queue", "kind", job.Kind, "to", job.To, "attempts", job.Tries)
}

// QueueLength reports the backlog and mirrors it into the queue gauge.
func (s *Service) QueueLength(ctx context.Context) int64 {
	length, err := s.redis.LLen(ctx, queueKey).Result()
	if err != nil {
		return 0
	}
	metrics.EmailQueueLength.Set(float64(length))
	return length
}

// WatchQueue samples the queue length every interval until ctx is done.
func (s *Service) WatchQueue(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.QueueLength(ctx)
		}
	}
}
