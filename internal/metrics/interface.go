package metrics

import (
	"context"
	"time"
)

// Point is one timestamped, tagged measurement record. Two points with the
// same measurement, tags and timestamp are the same logical point; rewriting
// one overwrites the stored value rather than duplicating it.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]any
	Timestamp   time.Time
}

// Repository is the store-side half of the writer: one call commits a whole
// batch or none of it.
type Repository interface {
	WriteBatch(ctx context.Context, points []Point) error
	Close()
}

// Common tag keys and measurement names, matching the dashboard queries.
const (
	TagStationID = "station_id"
	TagSource    = "source"

	SourceSigenStats = "sigen_api_stats"
	SourceOpenMeteo  = "open_meteo"

	MeasurementEnergyFlow        = "energy_metrics"
	MeasurementDailyConsumption  = "daily_consumption_summary"
	MeasurementHourlyConsumption = "hourly_consumption"
	MeasurementSunTimes          = "sun_times"
	MeasurementWeatherCurrent    = "weather_current"
	MeasurementWeatherForecast   = "weather_forecast"
	MeasurementStationInfo       = "station_info"
)
