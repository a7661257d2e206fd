// Package impact holds the numeric park computations the agent reports:
// area unit conversion, removal impact estimates and PM2.5 categories.
// Everything here is a pure function of its inputs.
package impact

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	SquareMetersPerAcre     = 4046.86
	SquareKilometersPerAcre = 0.00404686
	HectaresPerAcre         = 0.404686

	// WalkBufferMeters approximates a 10-minute walk around the park edge.
	WalkBufferMeters = 800.0

	bareGroundNDVI = 0.12
	builtUpNDVI    = 0.05

	// Relative PM2.5 uplift per unit of relative vegetation loss.
	pm25VegetationFactor = 0.6
)

type Unit string

const (
	UnitAcres            Unit = "acres"
	UnitSquareMeters     Unit = "m2"
	UnitSquareKilometers Unit = "km2"
	UnitHectares         Unit = "hectares"
)

// Scenario is what replaces the park in a removal analysis.
type Scenario string

const (
	ScenarioRemoved            Scenario = "removed"
	ScenarioReplacedByBuilding Scenario = "replaced_by_building"
)

var printer = message.NewPrinter(language.English)

// ConvertAcres converts an acreage into unit and returns the display label.
// Unknown units fall back to acres.
func ConvertAcres(acres float64, unit Unit) (float64, string) {
	switch unit {
	case UnitSquareMeters:
		return acres * SquareMetersPerAcre, "m²"
	case UnitSquareKilometers:
		return acres * SquareKilometersPerAcre, "km²"
	case UnitHectares:
		return acres * HectaresPerAcre, "hectares"
	default:
		return acres, "acres"
	}
}

// FormatArea renders an area with thousands separators and two decimals.
func FormatArea(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// Site is the park data a removal estimate needs.
type Site struct {
	Name  string
	Zip   string
	Acres float64
	// NDVI and PM25 describe the walk buffer around the park.
	NDVI       float64
	PM25       float64
	Population int64
	Kids       int64
	Adults     int64
	Seniors    int64
}

type Demographics struct {
	Kids    int64 `json:"kids"`
	Adults  int64 `json:"adults"`
	Seniors int64 `json:"seniors"`
}

// Analysis is the removal impact snapshot stored in the session and embedded
// in proposals.
type Analysis struct {
	ParkName            string       `json:"parkName"`
	ParkZip             string       `json:"parkZip,omitempty"`
	LandUseType         Scenario     `json:"landUseType"`
	NDVIBefore          float64      `json:"ndviBefore"`
	NDVIAfter           float64      `json:"ndviAfter"`
	PM25Before          float64      `json:"pm25Before"`
	PM25After           float64      `json:"pm25After"`
	PM25IncreasePercent float64      `json:"pm25IncreasePercent"`
	AffectedPopulation  int64        `json:"affectedPopulation10MinWalk"`
	Demographics        Demographics `json:"demographics"`
	Message             string       `json:"message"`
}

// VegetationLossPercent is the NDVI drop expressed in percentage points.
func (a Analysis) VegetationLossPercent() float64 {
	if a.NDVIBefore == 0 || a.NDVIAfter == 0 {
		return 0
	}
	return round((a.NDVIBefore-a.NDVIAfter)*100, 1)
}

// ParkShare is the fraction of the walk buffer covered by a park of the given
// acreage, treating both as circles.
func ParkShare(acres float64) float64 {
	if acres <= 0 {
		return 0
	}
	area := acres * SquareMetersPerAcre
	r := math.Sqrt(area / math.Pi)
	buffer := math.Pi * (r + WalkBufferMeters) * (r + WalkBufferMeters)
	return area / buffer
}

// RemovalImpact estimates how vegetation and PM2.5 in the walk buffer change
// when the park is replaced according to scenario.
func RemovalImpact(site Site, scenario Scenario) Analysis {
	if scenario == "" {
		scenario = ScenarioRemoved
	}
	share := ParkShare(site.Acres)

	after := site.NDVI
	switch scenario {
	case ScenarioRemoved:
		after = site.NDVI*(1-share) + bareGroundNDVI*share
	case ScenarioReplacedByBuilding:
		after = site.NDVI*(1-share) + builtUpNDVI*share
	}

	var loss float64
	if site.NDVI > 0 && after < site.NDVI {
		loss = (site.NDVI - after) / site.NDVI
	}
	pm25After := site.PM25 * (1 + pm25VegetationFactor*loss)

	var increase float64
	if site.PM25 > 0 {
		increase = (pm25After - site.PM25) / site.PM25 * 100
	}

	a := Analysis{
		ParkName:            site.Name,
		ParkZip:             site.Zip,
		LandUseType:         scenario,
		NDVIBefore:          round(site.NDVI, 4),
		NDVIAfter:           round(after, 4),
		PM25Before:          round(site.PM25, 2),
		PM25After:           round(pm25After, 2),
		PM25IncreasePercent: round(increase, 1),
		AffectedPopulation:  site.Population,
		Demographics: Demographics{
			Kids:    site.Kids,
			Adults:  site.Adults,
			Seniors: site.Seniors,
		},
	}
	a.Message = printer.Sprintf(
		"Removing %s would change the vegetation index within a 10-minute walk from %.3f to %.3f and PM2.5 from %.2f to %.2f µg/m³ (+%.1f%%), affecting %d residents.",
		site.Name, a.NDVIBefore, a.NDVIAfter, a.PM25Before, a.PM25After, a.PM25IncreasePercent, a.AffectedPopulation,
	)
	return a
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
