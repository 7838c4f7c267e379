package metrics

import (
	"time"

	"github.com/sigenflux/sigenflux/internal/errors"
	"github.com/sigenflux/sigenflux/internal/sigen"
	"github.com/sigenflux/sigenflux/internal/weather"
)

const (
	vendorDateTimeFormat = "20060102 15:04"
	clockFormat          = "15:04"
	forecastTimeFormat   = "2006-01-02T15:04"
)

// FromEnergyFlow flattens a real-time power snapshot into a single point.
// Null channels are left out rather than written as zero, so a station
// without an EV charger never reports ev_power at all.
func FromEnergyFlow(flow sigen.EnergyFlow, stationID string, ts time.Time) Point {
	fields := map[string]any{}

	setFloat := func(key string, v *float64) {
		if v != nil {
			fields[key] = *v
		}
	}

	setFloat("pv_power", flow.PVPower)
	setFloat("load_power", flow.LoadPower)
	setFloat("battery_soc", flow.BatterySOC)
	setFloat("grid_flow_power", flow.BuySellPower)
	setFloat("battery_power", flow.BatteryPower)
	setFloat("pv_day_nrg", flow.PVDayEnergy)
	setFloat("ac_power", flow.ACPower)
	setFloat("ev_power", flow.EVPower)
	setFloat("generator_power", flow.GeneratorPower)
	setFloat("heat_pump_power", flow.HeatPumpPower)
	setFloat("third_pv_power", flow.ThirdPVPower)
	setFloat("station_status", flow.StationStatus)
	setFloat("on_off_grid_status", flow.OnOffGridStatus)

	if flow.OnGrid != nil {
		onGrid := 0
		if *flow.OnGrid {
			onGrid = 1
		}
		fields["on_grid"] = onGrid
	}

	return Point{
		Measurement: MeasurementEnergyFlow,
		Tags:        map[string]string{TagStationID: stationID},
		Fields:      fields,
		Timestamp:   ts,
	}
}

// FromConsumption turns one day's statistics into a daily summary point at
// local midnight plus one point per hourly bucket. Duplicate buckets for the
// same timestamp collapse to the first one seen.
func FromConsumption(stats sigen.ConsumptionStats, stationID string, day time.Time, loc *time.Location) ([]Point, error) {
	errFactory := errors.New()
	// Fresh map per point; points must not alias each other's tags.
	tags := func() map[string]string {
		return map[string]string{
			TagStationID: stationID,
			TagSource:    SourceSigenStats,
		}
	}

	var points []Point

	if stats.BaseLoadConsumption != nil {
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
		points = append(points, Point{
			Measurement: MeasurementDailyConsumption,
			Tags:        tags(),
			Fields:      map[string]any{"total_base_load_kwh": *stats.BaseLoadConsumption},
			Timestamp:   midnight,
		})
	}

	hourly := map[time.Time]float64{}
	var order []time.Time
	for _, detail := range stats.Details {
		if detail.BaseLoadConsumption == nil {
			continue
		}
		ts, err := time.ParseInLocation(vendorDateTimeFormat, detail.DataTime, loc)
		if err != nil {
			return nil, errFactory.Wrap(ErrBadTimestamp, err).WithData(detail.DataTime)
		}
		if _, seen := hourly[ts]; seen {
			continue
		}
		order = append(order, ts)
		hourly[ts] = *detail.BaseLoadConsumption
	}

	for _, ts := range order {
		points = append(points, Point{
			Measurement: MeasurementHourlyConsumption,
			Tags:        tags(),
			Fields:      map[string]any{"base_load_kwh": hourly[ts]},
			Timestamp:   ts,
		})
	}

	return points, nil
}

// FromSunTimes anchors the vendor's "HH:MM" clock times onto the given day
// and records them both as unix seconds and as RFC3339 strings.
func FromSunTimes(sun sigen.SunTimes, stationID string, day time.Time, loc *time.Location) (Point, error) {
	errFactory := errors.New()

	sunrise, err := clockOnDay(sun.SunriseTime, day, loc)
	if err != nil {
		return Point{}, errFactory.Wrap(ErrBadTimestamp, err).WithData(sun.SunriseTime)
	}
	sunset, err := clockOnDay(sun.SunsetTime, day, loc)
	if err != nil {
		return Point{}, errFactory.Wrap(ErrBadTimestamp, err).WithData(sun.SunsetTime)
	}

	return Point{
		Measurement: MeasurementSunTimes,
		Tags:        map[string]string{TagStationID: stationID},
		Fields: map[string]any{
			"sunrise_unix": sunrise.Unix(),
			"sunset_unix":  sunset.Unix(),
			"sunrise":      sunrise.Format(time.RFC3339),
			"sunset":       sunset.Format(time.RFC3339),
		},
		Timestamp: time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc),
	}, nil
}

// FromStationInfo records the station metadata as a slowly-changing series.
func FromStationInfo(info sigen.StationInfo, stationID string, ts time.Time) Point {
	return Point{
		Measurement: MeasurementStationInfo,
		Tags:        map[string]string{TagStationID: stationID},
		Fields: map[string]any{
			"station_name":         info.StationName,
			"pv_capacity_kw":       info.PVCapacity,
			"battery_capacity_kwh": info.BatteryCapacity,
			"has_battery":          info.HasBattery,
			"off_grid":             info.OffGrid,
		},
		Timestamp: ts,
	}
}

// FromWeather produces one current-conditions point plus one forecast point
// per hour. Hours whose parallel arrays ran short are skipped rather than
// written with partial fields.
func FromWeather(snap weather.Snapshot, stationID string, ts time.Time) ([]Point, error) {
	errFactory := errors.New()

	loc, err := time.LoadLocation(snap.Timezone)
	if err != nil {
		return nil, errFactory.Wrap(ErrBadTimestamp, err).WithData(snap.Timezone)
	}

	// Fresh map per point; points must not alias each other's tags.
	tags := func() map[string]string {
		return map[string]string{
			TagStationID: stationID,
			TagSource:    SourceOpenMeteo,
		}
	}

	var points []Point

	if snap.Current.Time != "" {
		currentTS, err := time.ParseInLocation(forecastTimeFormat, snap.Current.Time, loc)
		if err != nil {
			return nil, errFactory.Wrap(ErrBadTimestamp, err).WithData(snap.Current.Time)
		}
		points = append(points, Point{
			Measurement: MeasurementWeatherCurrent,
			Tags:        tags(),
			Fields: map[string]any{
				"temperature":  snap.Current.Temperature,
				"wind_speed":   snap.Current.WindSpeed,
				"weather_code": snap.Current.WeatherCode,
			},
			Timestamp: currentTS,
		})
	}

	hourly := snap.Hourly
	for i, raw := range hourly.Time {
		hourTS, err := time.ParseInLocation(forecastTimeFormat, raw, loc)
		if err != nil {
			return nil, errFactory.Wrap(ErrBadTimestamp, err).WithData(raw)
		}

		fields := map[string]any{}
		addHourly(fields, "temperature", hourly.Temperature, i)
		addHourly(fields, "relative_humidity", hourly.RelativeHumidity, i)
		addHourly(fields, "apparent_temperature", hourly.ApparentTemperature, i)
		addHourly(fields, "precipitation_probability", hourly.PrecipitationProbability, i)
		addHourly(fields, "precipitation", hourly.Precipitation, i)
		addHourly(fields, "cloud_cover", hourly.CloudCover, i)
		addHourly(fields, "shortwave_radiation", hourly.ShortwaveRadiation, i)
		addHourly(fields, "direct_radiation", hourly.DirectRadiation, i)
		addHourly(fields, "diffuse_radiation", hourly.DiffuseRadiation, i)
		addHourly(fields, "wind_speed", hourly.WindSpeed, i)
		addHourly(fields, "wind_direction", hourly.WindDirection, i)
		if i < len(hourly.WeatherCode) {
			fields["weather_code"] = hourly.WeatherCode[i]
		}
		if len(fields) == 0 {
			continue
		}

		points = append(points, Point{
			Measurement: MeasurementWeatherForecast,
			Tags:        tags(),
			Fields:      fields,
			Timestamp:   hourTS,
		})
	}

	return points, nil
}

// WithFields drops points that carry no fields. The store rejects fieldless
// lines, and a single one would fail the whole batch; a snapshot where every
// channel is null produces such a point.
func WithFields(points []Point) []Point {
	kept := points[:0]
	for _, p := range points {
		if len(p.Fields) > 0 {
			kept = append(kept, p)
		}
	}
	return kept
}

func addHourly(fields map[string]any, key string, values []float64, i int) {
	if i < len(values) {
		fields[key] = values[i]
	}
}

func clockOnDay(clock string, day time.Time, loc *time.Location) (time.Time, error) {
	parsed, err := time.ParseInLocation(clockFormat, clock, loc)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc), nil
}
