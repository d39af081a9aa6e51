package sweeper

import (
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"booklib/internal/services"
)

// Sweeper periodically expires abandoned pending payments. It is the only
// in-process trigger for ExpireStalePayments; operators can also fire the
// internal HTTP endpoint.
type Sweeper struct {
	payments services.PaymentService
	schedule string
	cron     *cron.Cron
}

func New(payments services.PaymentService, schedule string) *Sweeper {
	return &Sweeper{
		payments: payments,
		schedule: schedule,
		cron:     cron.New(),
	}
}

// Start registers the sweep job and launches the scheduler.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	log.Infof("[INFO] sweeper: payment expiry scheduled (%s)", s.schedule)
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	count, err := s.payments.ExpireStalePayments(time.Now().UTC())
	if err != nil {
		log.Errorf("[ERROR] sweeper: expiry sweep failed: %v", err)
		return
	}
	log.Infof("[INFO] sweeper: expired %d payment(s)", count)
}
