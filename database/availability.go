package database

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/caravel-rentals/caravel/internal/apierror"
	"github.com/caravel-rentals/caravel/model"
)

// SeedAvailability inserts an available row for every day in [from, to],
// leaving already-present rows (e.g. maintenance blocks) untouched.
func (d Datasource) SeedAvailability(ctx context.Context, carID string, from, to time.Time) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO caravel.availability_days (car_id, date, status, updated_at)
		SELECT $1, d::date, $2, NOW()
		FROM generate_series($3::date, $4::date, '1 day') AS d
		ON CONFLICT (car_id, date) DO NOTHING
	`, carID, model.DayAvailable, from, to)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to seed availability", err)
	}
	return nil
}

// UpdateAvailabilityRange is the conditional bulk write behind hold/release.
// Only rows whose status is currently in allowedSource are touched, so a
// stale or re-ordered side effect can never clobber an operator-set
// maintenance block. When owner is set the write additionally skips days
// held for a different booking: a replayed release frees only its own days.
func (d Datasource) UpdateAvailabilityRange(ctx context.Context, carID string, from, to time.Time, target string, allowedSource []string, bookingID, owner string) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE caravel.availability_days
		SET status = $4, booking_id = NULLIF($5, ''), updated_at = NOW()
		WHERE car_id = $1
		  AND date BETWEEN $2::date AND $3::date
		  AND status = ANY($6)
		  AND ($7 = '' OR booking_id IS NULL OR booking_id = $7)
	`, carID, from, to, target, bookingID, pq.Array(allowedSource), owner)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update availability range", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}
	return rowsAffected, nil
}

// availabilityGeneration returns the car's current cache generation,
// minting one when none exists. Range keys embed the generation, so
// dropping it orphans every cached range for the car at once.
func (d Datasource) availabilityGeneration(ctx context.Context, carID string) string {
	if d.Cache == nil {
		return "0"
	}
	genKey := fmt.Sprintf("availability:gen:%s", carID)

	var gen string
	if err := d.Cache.Get(ctx, genKey, &gen); err == nil && gen != "" {
		return gen
	}
	gen = strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := d.Cache.Set(ctx, genKey, gen, time.Hour); err != nil {
		log.Printf("Failed to store availability cache generation: %v", err)
	}
	return gen
}

// InvalidateAvailability drops the car's cache generation. Keys minted under
// the old generation become unreachable and age out by TTL.
func (d Datasource) InvalidateAvailability(ctx context.Context, carID string) error {
	if d.Cache == nil {
		return nil
	}
	return d.Cache.Delete(ctx, fmt.Sprintf("availability:gen:%s", carID))
}

func (d Datasource) GetAvailability(ctx context.Context, carID string, from, to time.Time) ([]model.AvailabilityDay, error) {
	cacheKey := fmt.Sprintf("availability:%s:%s:%s:%s", carID, d.availabilityGeneration(ctx, carID), from.Format("2006-01-02"), to.Format("2006-01-02"))

	var cached []model.AvailabilityDay
	if d.Cache != nil {
		if err := d.Cache.Get(ctx, cacheKey, &cached); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT car_id, date, status, COALESCE(booking_id, ''), updated_at
		FROM caravel.availability_days
		WHERE car_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date ASC
	`, carID, from, to)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve availability", err)
	}
	defer rows.Close()

	var days []model.AvailabilityDay
	for rows.Next() {
		var day model.AvailabilityDay
		if err := rows.Scan(&day.CarID, &day.Date, &day.Status, &day.BookingID, &day.UpdatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan availability day", err)
		}
		days = append(days, day)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over availability", err)
	}

	// Calendar reads tolerate short staleness; writes go uncached.
	if d.Cache != nil && len(days) > 0 {
		if err := d.Cache.Set(ctx, cacheKey, days, time.Minute); err != nil {
			log.Printf("Failed to cache availability: %v", err)
		}
	}
	return days, nil
}
