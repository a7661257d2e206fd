package impact

import "fmt"

// AirQuality is a PM2.5 reading mapped onto the EPA 24-hour categories.
type AirQuality struct {
	PM25           float64 `json:"pm25"`
	Category       string  `json:"category"`
	HealthRisk     string  `json:"healthRisk"`
	Recommendation string  `json:"recommendation"`
	Message        string  `json:"message"`
}

type pm25Band struct {
	upper          float64
	category       string
	risk           string
	recommendation string
}

var pm25Bands = []pm25Band{
	{12.0, "Good", "Low", "Air quality is satisfactory. Outdoor activities in the park are encouraged."},
	{35.4, "Moderate", "Moderate", "Unusually sensitive people should consider limiting prolonged outdoor exertion."},
	{55.4, "Unhealthy for Sensitive Groups", "Elevated", "Children, seniors and people with heart or lung disease should reduce prolonged outdoor exertion."},
	{150.4, "Unhealthy", "High", "Everyone should reduce prolonged outdoor exertion; sensitive groups should avoid it."},
	{250.4, "Very Unhealthy", "Very High", "Avoid prolonged outdoor exertion; sensitive groups should remain indoors."},
}

// AssessAirQuality categorizes a PM2.5 concentration in µg/m³.
func AssessAirQuality(pm25 float64) AirQuality {
	band := pm25Band{
		category:       "Hazardous",
		risk:           "Severe",
		recommendation: "Everyone should avoid outdoor activity.",
	}
	for _, b := range pm25Bands {
		if pm25 <= b.upper {
			band = b
			break
		}
	}
	return AirQuality{
		PM25:           round(pm25, 2),
		Category:       band.category,
		HealthRisk:     band.risk,
		Recommendation: band.recommendation,
		Message: fmt.Sprintf("PM2.5 near this park is about %.1f µg/m³ (%s, %s health risk). %s",
			pm25, band.category, band.risk, band.recommendation),
	}
}
