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
package api

import (
	"github.com/caravel-rentals/caravel/config"

	"github.com/caravel-rentals/caravel/api/middleware"

	"github.com/caravel-rentals/caravel"
	"github.com/gin-gonic/gin"
)

type Api struct {
	caravel *caravel.Caravel
	router  *gin.Engine
}

// Router registers the API surface. Webhook ingestion authenticates with a
// per-provider HMAC signature instead of the secret key, so it stays outside
// the guarded group.
func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/webhooks/payment", a.ReceivePaymentWebhook)
	router.POST("/webhooks/contract", a.ReceiveContractWebhook)

	conf, err := config.Fetch()
	guarded := router.Group("/")
	if err == nil && conf.Server.Secure {
		guarded.Use(middleware.SecretKeyAuthMiddleware())
	}

	guarded.POST("/bookings", a.CreateBooking)
	guarded.GET("/bookings/:id", a.GetBooking)
	guarded.POST("/bookings/:id/transitions", a.RequestTransition)
	guarded.GET("/bookings/:id/events", a.GetBookingEvents)
	guarded.POST("/bookings/:id/disputes", a.OpenDispute)

	guarded.GET("/cars/:car_id/availability", a.GetCarAvailability)
	guarded.POST("/maintenance", a.SetMaintenance)
	guarded.DELETE("/maintenance", a.ClearMaintenance)

	guarded.GET("/dead-letters", a.GetDeadLetterItems)
	guarded.POST("/dead-letters/:id/requeue", a.RequeueDeadLetterItem)
	guarded.POST("/retries/sweep", a.TriggerRetrySweep)
	guarded.POST("/reconciliation/side-effects", a.ReconcileSideEffects)

	return a.router
}

func NewAPI(c *caravel.Caravel) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{caravel: c, router: r}
}
