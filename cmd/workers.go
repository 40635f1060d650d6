/*
Copyright 2026 Caravel Rentals Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/caravel-rentals/caravel"
	"github.com/caravel-rentals/caravel/config"
	redis_db "github.com/caravel-rentals/caravel/internal/redis-db"

	"github.com/hibiken/asynq"
)

// processNotification delivers one queued booking email. Rate-limited drops
// are terminal; transport failures bubble up so asynq retries the task.
func (b *caravelInstance) processNotification(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("caravel.notifications.worker").Start(ctx, "Process Notification From Redis Queue")
	defer span.End()

	var payload caravel.EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logrus.Error(err)
		return err
	}

	if err := b.caravel.SendQueuedEmail(ctx, payload); err != nil {
		logrus.Infof("Notification %s pushed back for retry due to error: %v", payload.NotificationID, err)
		return err
	}

	log.Println(" [*] Notification Delivered", payload.NotificationID)
	return nil
}

// processRetrySweep runs one pass of the webhook retry engine plus the side
// effect reconciliation. Triggered by the periodic schedule and by manual
// sweeps enqueued from the admin surface.
func (b *caravelInstance) processRetrySweep(ctx context.Context, _ *asynq.Task) error {
	ctx, span := otel.Tracer("caravel.retry.worker").Start(ctx, "Process Retry Sweep From Redis Queue")
	defer span.End()

	result, err := b.caravel.ProcessDueRetries(ctx, b.cnf.Queue.RetrySweepLimit)
	if err != nil {
		logrus.Errorf("retry sweep failed: %v", err)
		return err
	}

	repaired, err := b.caravel.ReconcileSideEffects(ctx, b.cnf.Queue.RetrySweepLimit)
	if err != nil {
		logrus.Errorf("side effect reconciliation failed: %v", err)
		return err
	}

	log.Printf(" [*] Retry sweep done: %d processed, %d succeeded, %d rescheduled, %d dead-lettered, %d side effects repaired",
		result.Processed, result.Succeeded, result.Rescheduled, result.DeadLettered, repaired)
	return nil
}

func initializeQueues(cfg *config.Configuration) map[string]int {
	queues := make(map[string]int)
	queues[cfg.Queue.NotificationQueue] = 3
	queues[cfg.Queue.RetrySweepQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

// initializeScheduler registers the periodic retry sweep on the configured
// cron spec.
func initializeScheduler(conf *config.Configuration) (*asynq.Scheduler, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		nil,
	)

	task := asynq.NewTask(conf.Queue.RetrySweepQueue, nil, asynq.Queue(conf.Queue.RetrySweepQueue))
	if _, err := scheduler.Register(conf.Queue.RetrySweepSchedule, task); err != nil {
		return nil, fmt.Errorf("error registering retry sweep schedule: %v", err)
	}
	return scheduler, nil
}

func initializeTaskHandlers(b *caravelInstance, mux *asynq.ServeMux) {
	mux.HandleFunc(b.cnf.Queue.NotificationQueue, b.processNotification)
	mux.HandleFunc(b.cnf.Queue.RetrySweepQueue, b.processRetrySweep)
}

// workerCommands defines the "workers" command to start worker processes for
// notifications and the periodic retry sweep.
func workerCommands(b *caravelInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start caravel workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			shutdown, err := initializeTracing(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer func() {
				if err := shutdown(ctx); err != nil {
					log.Printf("Error during shutdown: %v", err)
				}
			}()

			queues := initializeQueues(conf)

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			scheduler, err := initializeScheduler(conf)
			if err != nil {
				log.Fatal(err)
			}
			go func() {
				if err := scheduler.Run(); err != nil {
					log.Fatalf("could not run scheduler: %v", err)
				}
			}()

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run worker server: %v", err)
			}
		},
	}

	return cmd
}
