package ingest

import (
	"database/sql"
	"encoding/json"

	"github.com/lox/raincouver/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagTempOrderInvalid   = "temp_order_invalid"
	FlagPrecipNegative     = "precip_negative"
	FlagPrecipHoursInvalid = "precip_hours_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagRadiationNegative  = "radiation_negative"
	FlagEvapotranspiration = "et0_negative"
	FlagWeatherCodeUnknown = "weather_code_unknown"
)

// ValidateDaily returns quality flags for implausible values. Flagged
// observations are kept; the flags are stored alongside them.
func ValidateDaily(obs *models.DailyObservation) []string {
	var flags []string

	for _, t := range []sql.NullFloat64{obs.TempMax, obs.TempMin, obs.TempMean} {
		if t.Valid && (t.Float64 < -50 || t.Float64 > 50) {
			flags = append(flags, FlagTempOutOfRange)
			break
		}
	}

	if obs.TempMax.Valid && obs.TempMin.Valid && obs.TempMin.Float64 > obs.TempMax.Float64 {
		flags = append(flags, FlagTempOrderInvalid)
	}

	if (obs.PrecipitationSum.Valid && obs.PrecipitationSum.Float64 < 0) ||
		(obs.RainSum.Valid && obs.RainSum.Float64 < 0) ||
		(obs.SnowfallSum.Valid && obs.SnowfallSum.Float64 < 0) {
		flags = append(flags, FlagPrecipNegative)
	}

	if obs.PrecipitationHours.Valid {
		if obs.PrecipitationHours.Float64 < 0 || obs.PrecipitationHours.Float64 > 24 {
			flags = append(flags, FlagPrecipHoursInvalid)
		}
	}

	if obs.WindDirectionDominant.Valid {
		if obs.WindDirectionDominant.Float64 < 0 || obs.WindDirectionDominant.Float64 > 360 {
			flags = append(flags, FlagWindDirInvalid)
		}
	}

	if (obs.WindSpeedMax.Valid && (obs.WindSpeedMax.Float64 < 0 || obs.WindSpeedMax.Float64 > 250)) ||
		(obs.WindGustsMax.Valid && (obs.WindGustsMax.Float64 < 0 || obs.WindGustsMax.Float64 > 350)) {
		flags = append(flags, FlagWindSpeedUnlikely)
	}

	if obs.ShortwaveRadiationSum.Valid && obs.ShortwaveRadiationSum.Float64 < 0 {
		flags = append(flags, FlagRadiationNegative)
	}

	if obs.ET0FAOEvapotranspiration.Valid && obs.ET0FAOEvapotranspiration.Float64 < 0 {
		flags = append(flags, FlagEvapotranspiration)
	}

	// WMO codes run 0-99.
	if obs.WeatherCode.Valid && (obs.WeatherCode.Float64 < 0 || obs.WeatherCode.Float64 > 99) {
		flags = append(flags, FlagWeatherCodeUnknown)
	}

	return flags
}

func QualityFlagsToJSON(flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	b, _ := json.Marshal(flags)
	return string(b)
}
