package types

// FahrenheitFromCelsius converts a °C value to °F. Device and sensor adapters
// call this once at the API boundary so the control loop only sees °F.
func FahrenheitFromCelsius(c float64) float64 {
	return c*9/5 + 32
}

// CelsiusFromFahrenheit converts a °F value to °C for device commands.
func CelsiusFromFahrenheit(f float64) float64 {
	return (f - 32) * 5 / 9
}

// FahrenheitPtr converts an optional °C value, preserving nil.
func FahrenheitPtr(c *float64) *float64 {
	if c == nil {
		return nil
	}
	f := FahrenheitFromCelsius(*c)
	return &f
}
