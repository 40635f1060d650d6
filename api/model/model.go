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
package model

import (
	"errors"
	"time"

	"github.com/caravel-rentals/caravel/model"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func validateDateFormat(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return errors.New("please format the date as 'YYYY-MM-DD' (e.g., 2026-09-14)")
	}
	return nil
}

func (b *CreateBooking) ValidateCreateBooking() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.CarID, validation.Required),
		validation.Field(&b.CustomerID, validation.Required),
		validation.Field(&b.StartDate, validation.Required, validation.By(validateDateFormat)),
		validation.Field(&b.EndDate, validation.Required, validation.By(validateDateFormat)),
		validation.Field(&b.Currency, validation.Required, validation.Length(3, 3)),
	)
}

func (t *TransitionRequest) ValidateTransitionRequest() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Target, validation.Required, validation.By(func(value interface{}) error {
			target, _ := value.(string)
			if _, known := model.AllowedTransitions[target]; !known {
				return errors.New("unknown booking status")
			}
			return nil
		})),
	)
}

func (d *OpenDisputeRequest) ValidateOpenDisputeRequest() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Reason, validation.Required, validation.Length(3, 500)),
	)
}

func (m *MaintenanceRequest) ValidateMaintenanceRequest() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.CarID, validation.Required),
		validation.Field(&m.StartDate, validation.Required, validation.By(validateDateFormat)),
		validation.Field(&m.EndDate, validation.Required, validation.By(validateDateFormat)),
	)
}
