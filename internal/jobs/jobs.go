package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"whiteboard/internal/repository"

	"github.com/robfig/cron/v3"
)

type Scheduler struct {
	cron  *cron.Cron
	links repository.LoginLinkRepositoryInterface
	now   func() time.Time
}

func NewScheduler(links repository.LoginLinkRepositoryInterface) *Scheduler {
	return &Scheduler{
		cron:  cron.New(),
		links: links,
		now:   time.Now,
	}
}

// Start регистрирует задачи и запускает планировщик
func (s *Scheduler) Start(purgeSchedule string) error {
	if _, err := s.cron.AddFunc(purgeSchedule, func() {
		s.PurgeLoginLinks(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", purgeSchedule, err)
	}
	s.cron.Start()
	log.Printf("⏰ Login link purge scheduled (%s)\n", purgeSchedule)
	return nil
}

// Stop ждет завершения запущенных задач
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// PurgeLoginLinks удаляет использованные и просроченные ссылки входа
func (s *Scheduler) PurgeLoginLinks(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.links.PurgeExpired(ctx, s.now())
	if err != nil {
		log.Printf("❌ Login link purge failed: %v\n", err)
		return 0
	}
	if n > 0 {
		log.Printf("🧹 Purged %d login links\n", n)
	}
	return n
}
