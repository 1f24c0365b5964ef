package dataset

// wmoWeatherWords maps WMO weather interpretation codes (as returned
// by Open-Meteo's weather_code variable) to a short description.
// Unrecognized codes decode to "unknown" per spec.md §4.2.
var wmoWeatherWords = map[int]string{
	0:  "clear sky",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "fog",
	48: "depositing rime fog",
	51: "light drizzle",
	53: "moderate drizzle",
	55: "dense drizzle",
	56: "light freezing drizzle",
	57: "dense freezing drizzle",
	61: "slight rain",
	63: "moderate rain",
	65: "heavy rain",
	66: "light freezing rain",
	67: "heavy freezing rain",
	71: "slight snow fall",
	73: "moderate snow fall",
	75: "heavy snow fall",
	77: "snow grains",
	80: "slight rain showers",
	81: "moderate rain showers",
	82: "violent rain showers",
	85: "slight snow showers",
	86: "heavy snow showers",
	95: "thunderstorm",
	96: "thunderstorm with slight hail",
	99: "thunderstorm with heavy hail",
}

// WeatherWord decodes a WMO weather code into its description, or
// "unknown" for any code absent from the table.
func WeatherWord(code int) string {
	if word, ok := wmoWeatherWords[code]; ok {
		return word
	}
	return "unknown"
}

// snowPhaseCodes are weather codes that already describe a snow or
// freezing-precipitation phenomenon; used by the formatter to infer
// precipitation phase without re-running the snow-level diagnostic.
var snowPhaseCodes = map[int]bool{
	56: true, 57: true, 66: true, 67: true,
	71: true, 73: true, 75: true, 77: true,
	85: true, 86: true,
}

// IsSnowPhaseCode reports whether code already denotes snow or
// freezing precipitation.
func IsSnowPhaseCode(code int) bool { return snowPhaseCodes[code] }
