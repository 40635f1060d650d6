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

package caravel

import (
	"context"
	"encoding/json"
	"log"

	"github.com/caravel-rentals/caravel/config"
	redis_db "github.com/caravel-rentals/caravel/internal/redis-db"

	"github.com/hibiken/asynq"
)

// Queue hands booking notifications and retry sweeps to the asynq workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// EmailPayload is the task body for a queued booking email.
type EmailPayload struct {
	NotificationID string `json:"notification_id"`
	BookingID      string `json:"booking_id"`
	Recipient      string `json:"recipient"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueNotification queues a booking email for the notification worker.
// The task id is the notification id, so a replayed side effect cannot queue
// the same email twice.
func (q *Queue) EnqueueNotification(ctx context.Context, payload EmailPayload) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	IPayload, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(payload.NotificationID),
		asynq.Queue(cfg.Queue.NotificationQueue),
	}
	task := asynq.NewTask(cfg.Queue.NotificationQueue, IPayload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued notification: %+v", payload.NotificationID)
	return nil
}

// EnqueueRetrySweep queues an immediate due-retry sweep, outside the
// periodic schedule. Used by the admin surface after a dead-letter requeue.
func (q *Queue) EnqueueRetrySweep(ctx context.Context) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	task := asynq.NewTask(cfg.Queue.RetrySweepQueue, nil, asynq.Queue(cfg.Queue.RetrySweepQueue))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued retry sweep: %s", info.ID)
	return nil
}
