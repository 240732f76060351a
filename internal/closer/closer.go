// Package closer периодически закрывает тендеры, срок подачи которых истёк.
package closer

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// ExpiredCloser - то, что умеет закрывать просроченные тендеры
type ExpiredCloser interface {
	CloseExpired(ctx context.Context, now time.Time) (int64, error)
}

// Closer оборачивает robfig/cron и запускает закрытие по расписанию
type Closer struct {
	cron    *cron.Cron
	tenders ExpiredCloser
	logger  *slog.Logger
	spec    string // например "@every 1m"
	timeout time.Duration
	now     func() time.Time
}

func New(tenders ExpiredCloser, spec string, logger *slog.Logger) *Closer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Closer{
		cron:    cron.New(cron.WithLogger(cronLogger{logger})),
		tenders: tenders,
		logger:  logger,
		spec:    spec,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

// Start регистрирует задачу и запускает планировщик
func (c *Closer) Start(ctx context.Context) error {
	if _, err := c.cron.AddFunc(c.spec, func() { c.RunOnce(ctx) }); err != nil {
		return errors.Wrapf(err, "schedule closer %q", c.spec)
	}
	c.cron.Start()
	c.logger.Info("closer started", "spec", c.spec)
	return nil
}

// Stop ждёт завершения текущего запуска
func (c *Closer) Stop() {
	<-c.cron.Stop().Done()
	c.logger.Info("closer stopped")
}

// RunOnce закрывает просроченные тендеры один раз
func (c *Closer) RunOnce(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.tenders.CloseExpired(ctx, c.now())
	if err != nil {
		c.logger.Warn("close expired tenders failed", "error", err)
		return 0
	}
	if n > 0 {
		c.logger.Info("closed expired tenders", "count", n)
	}
	return n
}

// cronLogger пишет сообщения cron в slog
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
