package models

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrInvalidArgument marks bad periods, metric names, column names and
	// other caller mistakes. Always surfaced, never coerced.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaMismatch marks a frame whose columns differ from the schema a
	// fitted preprocessor expects.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

type Location struct {
	LocationID string
	Name       string
	Latitude   float64
	Longitude  float64
	Timezone   string // "auto" lets the archive API resolve it
}

// DailyVariables are the Open-Meteo daily fields requested for every
// observation. Order matters: it is the CSV column order after "date".
var DailyVariables = []string{
	"weather_code",
	"temperature_2m_max",
	"temperature_2m_min",
	"temperature_2m_mean",
	"apparent_temperature_max",
	"apparent_temperature_min",
	"apparent_temperature_mean",
	"sunrise",
	"sunset",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"precipitation_hours",
	"wind_speed_10m_max",
	"wind_gusts_10m_max",
	"wind_direction_10m_dominant",
	"shortwave_radiation_sum",
	"et0_fao_evapotranspiration",
}

type DailyObservation struct {
	LocationID               string
	Date                     time.Time
	WeatherCode              sql.NullFloat64
	TempMax                  sql.NullFloat64
	TempMin                  sql.NullFloat64
	TempMean                 sql.NullFloat64
	ApparentTempMax          sql.NullFloat64
	ApparentTempMin          sql.NullFloat64
	ApparentTempMean         sql.NullFloat64
	Sunrise                  sql.NullString
	Sunset                   sql.NullString
	PrecipitationSum         sql.NullFloat64
	RainSum                  sql.NullFloat64
	SnowfallSum              sql.NullFloat64
	PrecipitationHours       sql.NullFloat64
	WindSpeedMax             sql.NullFloat64
	WindGustsMax             sql.NullFloat64
	WindDirectionDominant    sql.NullFloat64
	ShortwaveRadiationSum    sql.NullFloat64
	ET0FAOEvapotranspiration sql.NullFloat64
	QualityFlags             string
}

// Numeric returns the nullable numeric measurement stored under an Open-Meteo
// daily variable name. ok is false for unknown or non-numeric names.
func (o *DailyObservation) Numeric(name string) (v sql.NullFloat64, ok bool) {
	switch name {
	case "weather_code":
		return o.WeatherCode, true
	case "temperature_2m_max":
		return o.TempMax, true
	case "temperature_2m_min":
		return o.TempMin, true
	case "temperature_2m_mean":
		return o.TempMean, true
	case "apparent_temperature_max":
		return o.ApparentTempMax, true
	case "apparent_temperature_min":
		return o.ApparentTempMin, true
	case "apparent_temperature_mean":
		return o.ApparentTempMean, true
	case "precipitation_sum":
		return o.PrecipitationSum, true
	case "rain_sum":
		return o.RainSum, true
	case "snowfall_sum":
		return o.SnowfallSum, true
	case "precipitation_hours":
		return o.PrecipitationHours, true
	case "wind_speed_10m_max":
		return o.WindSpeedMax, true
	case "wind_gusts_10m_max":
		return o.WindGustsMax, true
	case "wind_direction_10m_dominant":
		return o.WindDirectionDominant, true
	case "shortwave_radiation_sum":
		return o.ShortwaveRadiationSum, true
	case "et0_fao_evapotranspiration":
		return o.ET0FAOEvapotranspiration, true
	}
	return sql.NullFloat64{}, false
}

// SetNumeric is the inverse of Numeric.
func (o *DailyObservation) SetNumeric(name string, v sql.NullFloat64) bool {
	switch name {
	case "weather_code":
		o.WeatherCode = v
	case "temperature_2m_max":
		o.TempMax = v
	case "temperature_2m_min":
		o.TempMin = v
	case "temperature_2m_mean":
		o.TempMean = v
	case "apparent_temperature_max":
		o.ApparentTempMax = v
	case "apparent_temperature_min":
		o.ApparentTempMin = v
	case "apparent_temperature_mean":
		o.ApparentTempMean = v
	case "precipitation_sum":
		o.PrecipitationSum = v
	case "rain_sum":
		o.RainSum = v
	case "snowfall_sum":
		o.SnowfallSum = v
	case "precipitation_hours":
		o.PrecipitationHours = v
	case "wind_speed_10m_max":
		o.WindSpeedMax = v
	case "wind_gusts_10m_max":
		o.WindGustsMax = v
	case "wind_direction_10m_dominant":
		o.WindDirectionDominant = v
	case "shortwave_radiation_sum":
		o.ShortwaveRadiationSum = v
	case "et0_fao_evapotranspiration":
		o.ET0FAOEvapotranspiration = v
	default:
		return false
	}
	return true
}

type PipelineRun struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    sql.NullTime
	Stage         string // "train", "evaluate"
	SelectedModel sql.NullString
	Outcome       sql.NullString // "tunable", "not_tunable"
	BestC         sql.NullFloat64
	ArtifactPath  sql.NullString
	Seed          int64
}

type CVResult struct {
	RunID string
	Model string
	Row   string // "test_f1", "train_accuracy", ...
	Mean  float64
	Std   float64
}

type EvaluationResult struct {
	RunID     string
	Class     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}
