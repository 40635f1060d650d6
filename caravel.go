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
	"embed"
	"fmt"

	"github.com/caravel-rentals/caravel/config"
	"github.com/caravel-rentals/caravel/database"
	redis_db "github.com/caravel-rentals/caravel/internal/redis-db"
	"github.com/redis/go-redis/v9"
)

// Caravel is the booking lifecycle orchestrator. It owns the booking state
// machine, the availability calendar, the webhook retry engine and the
// append-only booking event log.
type Caravel struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
	payment    PaymentProvider
	contract   ContractProvider
	mailer     Mailer
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewCaravel initializes a new instance of Caravel with the provided
// datasource. It fetches the configuration and wires the Redis client, task
// queue and provider adapters.
func NewCaravel(db database.IDataSource) (*Caravel, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newCaravel := &Caravel{
		datasource: db,
		queue:      newQueue,
		redis:      redisClient.Client(),
		payment:    NewPaymentClient(configuration.Payment),
		contract:   NewContractClient(configuration.Contract),
	}
	newCaravel.mailer = NewEmailMailer(configuration.Notification.Email, redisClient.Client())
	return newCaravel, nil
}
