// Package dataset transforms a raw NWP payload into the day/hour
// structure consumed by thinning, formatting, and the LLM prompt
// builder (spec.md §4.2).
package dataset

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tehoro/ibfcore/internal/model"
	"github.com/tehoro/ibfcore/internal/snow"
)

// Inputs bundles everything Transform needs beyond the raw surface
// payload: an optional pressure-level profile (for the richer
// snow-level diagnostic) and the resolution context.
type Inputs struct {
	Raw               model.RawForecastResponse
	ProfileRaw        *model.RawForecastResponse // pressure-level profile fetch, nil when unavailable
	PressureLevelsHPa []int
	Timezone          string
	Now               time.Time // wall clock; any location, converted internally
	Kind              model.ModelKind
	SnowLevelEnabled  bool
	StationElevationM float64
	StationPressurePa float64
	Terrain           snow.TerrainProvider // nil disables terrain-based rejection
	Latitude          float64
	Longitude         float64
}

// Transform converts in.Raw into a ProcessedDataset: hours grouped by
// local calendar day, filtered to the present-and-future 24 hours
// (spec.md §4.2), with every member's derived fields computed.
func Transform(in Inputs) (model.ProcessedDataset, error) {
	if err := in.Raw.Validate(); err != nil {
		return model.ProcessedDataset{}, err
	}

	loc, err := time.LoadLocation(in.Timezone)
	if err != nil || in.Timezone == "" {
		loc = time.UTC
	}
	now := in.Now.In(loc)

	members := detectMembers(in.Raw.HourlyUnits)
	times := in.Raw.Hourly["time"]

	type dayBucket struct {
		date  time.Time
		hours map[string]model.Hour // keyed by "HH:00"
	}
	days := make(map[string]*dayBucket)
	var dayOrder []string

	terrain := in.Terrain
	if terrain == nil {
		terrain = snow.NoTerrain{}
	}

	for idx, rawTime := range times {
		tsStr, ok := rawTime.(string)
		if !ok {
			continue
		}
		ts, ok := parseTimestamp(tsStr, loc)
		if !ok {
			continue
		}
		if ts.Before(now) {
			continue
		}
		if ts.Sub(now) > 24*time.Hour {
			continue
		}

		dateKey := ts.Format("2006-01-02")
		hourKey := ts.Format("15:00")

		bucket, ok := days[dateKey]
		if !ok {
			bucket = &dayBucket{date: truncateToDate(ts), hours: make(map[string]model.Hour)}
			days[dateKey] = bucket
			dayOrder = append(dayOrder, dateKey)
		}

		hour, ok := bucket.hours[hourKey]
		if !ok {
			hour = model.Hour{Key: hourKey, Time: ts, Members: make(map[string]model.MemberRecord)}
		}

		var profile snow.Profile
		if in.ProfileRaw != nil {
			profile = extractProfile(*in.ProfileRaw, in.PressureLevelsHPa, idx)
		}

		for _, member := range members {
			rec, ok := buildMemberRecord(in, member, idx, profile, terrain)
			if ok {
				hour.Members[member] = rec
			}
		}
		if len(hour.Members) > 0 {
			bucket.hours[hourKey] = hour
		}
	}

	sort.Strings(dayOrder)

	var result []model.Day
	for _, dateKey := range dayOrder {
		bucket := days[dateKey]
		if len(bucket.hours) == 0 {
			continue
		}
		var hourKeys []string
		for k := range bucket.hours {
			hourKeys = append(hourKeys, k)
		}
		sort.Strings(hourKeys)

		var hours []model.Hour
		for _, k := range hourKeys {
			hours = append(hours, bucket.hours[k])
		}

		result = append(result, model.Day{
			Date:  bucket.date,
			Year:  bucket.date.Year(),
			Month: int(bucket.date.Month()),
			Day:   bucket.date.Day(),
			Label: DayLabel(bucket.date, now),
			Hours: hours,
		})
	}

	memberIDs := append([]string(nil), members...)
	sort.Strings(memberIDs)
	moveToFront(memberIDs, "member00")

	return model.ProcessedDataset{
		Days:       result,
		MemberIDs:  memberIDs,
		Timezone:   in.Timezone,
		ElevationM: in.StationElevationM,
		Kind:       in.Kind,
	}, nil
}

func moveToFront(ids []string, target string) {
	for i, id := range ids {
		if id == target {
			copy(ids[1:i+1], ids[0:i])
			ids[0] = target
			return
		}
	}
}

// detectMembers returns every member present in a raw payload's
// hourly_units keys, always including "member00" (the sole series in
// deterministic responses, or the unsuffixed control run in ensemble
// ones).
func detectMembers(hourlyUnits map[string]string) []string {
	seen := map[string]bool{"member00": true}
	for key := range hourlyUnits {
		const marker = "temperature_2m_member"
		if strings.HasPrefix(key, marker) {
			suffix := strings.TrimPrefix(key, marker)
			if n, err := strconv.Atoi(suffix); err == nil {
				seen[memberID(n)] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func memberID(n int) string {
	if n < 10 {
		return "member0" + strconv.Itoa(n)
	}
	return "member" + strconv.Itoa(n)
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	if strings.HasSuffix(s, "Z") {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, false
		}
		return t.In(loc), true
	}
	t, err := time.Parse("2006-01-02T15:04", s)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC).In(loc), true
}

// variableKey builds the hourly-array key for a base variable and
// member: unsuffixed for member00, "_memberNN" otherwise.
func variableKey(base, member string) string {
	if member == "member00" {
		return base
	}
	return base + "_" + member
}

func series(raw model.RawForecastResponse, key string) []any {
	return raw.Hourly[key]
}

func getFloat(s []any, idx int) (float64, bool) {
	if idx < 0 || idx >= len(s) || s[idx] == nil {
		return 0, false
	}
	switch v := s[idx].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func getUnit(units map[string]string, key string) string { return units[key] }

func buildMemberRecord(in Inputs, member string, idx int, profile snow.Profile, terrain snow.TerrainProvider) (model.MemberRecord, bool) {
	raw := in.Raw
	units := raw.HourlyUnits

	temperature, ok := getFloat(series(raw, variableKey("temperature_2m", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	precipitation, ok := getFloat(series(raw, variableKey("precipitation", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	snowfall, ok := getFloat(series(raw, variableKey("snowfall", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	weatherCodeF, ok := getFloat(series(raw, variableKey("weather_code", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	cloudCoverF, ok := getFloat(series(raw, variableKey("cloud_cover", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	windSpeed, ok := getFloat(series(raw, variableKey("wind_speed_10m", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}
	windDir, ok := getFloat(series(raw, variableKey("wind_direction_10m", member)), idx)
	if !ok {
		return model.MemberRecord{}, false
	}

	temperature = toCelsius(temperature, getUnit(units, variableKey("temperature_2m", member)))
	precipitation = toMM(precipitation, getUnit(units, variableKey("precipitation", member)))
	windSpeed = toKPH(windSpeed, getUnit(units, variableKey("wind_speed_10m", member)))

	windGust, _ := getFloat(series(raw, variableKey("wind_gusts_10m", member)), idx)
	windGust = toKPH(windGust, getUnit(units, variableKey("wind_gusts_10m", member)))

	weatherCode := int(weatherCodeF)
	rec := model.MemberRecord{
		Temperature:   temperature,
		Precipitation: precipitation,
		Snowfall:      snowfall,
		WeatherCode:   weatherCode,
		WeatherWord:   WeatherWord(weatherCode),
		CloudCoverPct: int(cloudCoverF),
		WindDirWord:   CompassWord(windDir),
		WindDirDeg:    windDir,
		WindSpeed:     windSpeed,
		WindGust:      windGust,
	}

	if popRaw, ok := getFloat(series(raw, variableKey("precipitation_probability", member)), idx); ok {
		pop := int(popRaw)
		rec.PrecipProb = &pop
	}

	if in.SnowLevelEnabled && snow.ShouldCheck(precipitation, weatherCode, temperature) {
		if dewpoint, ok := getFloat(series(raw, variableKey("dew_point_2m", member)), idx); ok {
			level, found := estimateSnowLevel(in, temperature, dewpoint, precipitation, profile, idx, member)
			if found {
				if filtered, ok := snow.Filter(level, in.StationElevationM, in.Latitude, in.Longitude, terrain); ok {
					rec.SnowLevelM = &filtered
				}
			}
		}
	}

	return rec, true
}

func estimateSnowLevel(in Inputs, t2mC, td2mC, precipRateMMPerHour float64, profile snow.Profile, idx int, member string) (float64, bool) {
	if profile.Valid() {
		if level, ok := snow.EstimateFromProfile(in.StationElevationM, in.StationPressurePa, t2mC, td2mC, profile, precipRateMMPerHour, true); ok {
			return level, true
		}
	}

	fzl, ok := getFloat(series(in.Raw, variableKey("freezing_level_height", member)), idx)
	if !ok {
		return 0, false
	}
	if fzl <= in.StationElevationM {
		return 0, false
	}
	level := snow.EstimateFromFreezingLevel(in.StationElevationM, in.StationPressurePa, t2mC, td2mC, fzl, precipRateMMPerHour, true)
	return level, true
}

// extractProfile builds a pressure-level Profile at hour index idx
// from a secondary raw payload requested with PressureLevels fields.
func extractProfile(raw model.RawForecastResponse, levelsHPa []int, idx int) snow.Profile {
	var profile snow.Profile
	for _, lvl := range levelsHPa {
		t, tOK := getFloat(series(raw, pressureFieldKey("temperature", lvl)), idx)
		rh, rhOK := getFloat(series(raw, pressureFieldKey("relative_humidity", lvl)), idx)
		gh, ghOK := getFloat(series(raw, pressureFieldKey("geopotential_height", lvl)), idx)
		if !tOK || !rhOK || !ghOK {
			continue
		}
		profile.PressuresHPa = append(profile.PressuresHPa, float64(lvl))
		profile.TempsC = append(profile.TempsC, t)
		profile.RHsPct = append(profile.RHsPct, rh)
		profile.GeopHeightsM = append(profile.GeopHeightsM, gh)
	}
	return profile
}

func pressureFieldKey(base string, lvl int) string {
	return base + "_" + strconv.Itoa(lvl) + "hPa"
}
