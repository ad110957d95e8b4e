package wire

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/sirrobot01/pakscan/internal/utils"
)

const scheduleTag = "pakscan-run"

// Schedule runs job now and then on every interval until ctx is done. A run
// that is still going when the next one is due delays it instead of
// overlapping.
func Schedule(ctx context.Context, interval string, logger zerolog.Logger, job func(ctx context.Context)) error {
	jd, err := utils.ConvertToJobDef(interval)
	if err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := scheduler.NewJob(jd, gocron.NewTask(func() {
		logger.Info().Msgf("Scheduled run started at %s", time.Now().Format("15:04:05"))
		job(ctx)
	}),
		gocron.WithContext(ctx),
		gocron.WithTags(scheduleTag),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to create job: %w", err)
	}

	scheduler.Start()
	logger.Info().Msgf("Run scheduled every %s", interval)

	<-ctx.Done()

	logger.Info().Msg("Stopping scheduler")
	scheduler.RemoveByTags(scheduleTag)
	return scheduler.Shutdown()
}
