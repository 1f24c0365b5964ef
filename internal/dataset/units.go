package dataset

import "strings"

// toCelsius converts a temperature value to °C given its payload unit
// string. Open-Meteo is always requested in celsius (internal/nwp), so
// this only guards against a provider returning Fahrenheit unexpectedly.
func toCelsius(value float64, unit string) float64 {
	if strings.Contains(unit, "°F") || strings.EqualFold(unit, "f") {
		return (value - 32.0) * 5.0 / 9.0
	}
	return value
}

// toKPH converts a wind speed to km/h given its payload unit string.
// Open-Meteo is always requested in km/h; this guards the same way.
func toKPH(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mph":
		return value * 1.60934
	case "kn", "kt", "knots":
		return value * 1.852
	case "m/s", "ms":
		return value * 3.6
	default:
		return value
	}
}

// toMM converts a precipitation depth to millimeters given its payload
// unit string. Open-Meteo is always requested in mm; this guards the
// same way.
func toMM(value float64, unit string) float64 {
	if strings.Contains(unit, "inch") || strings.EqualFold(unit, "in") {
		return value * 25.4
	}
	return value
}
