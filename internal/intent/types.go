// Package intent classifies free-text chat messages into the fixed set of
// actions the agent understands.
package intent

import "github.com/parkpulse/parkpulse/internal/impact"

type Kind string

const (
	KindShowParks       Kind = "show_parks"
	KindAskArea         Kind = "ask_area"
	KindRemovalImpact   Kind = "park_removal_impact"
	KindNDVIQuery       Kind = "park_ndvi_query"
	KindStatQuery       Kind = "park_stat_query"
	KindInfoQuery       Kind = "park_info_query"
	KindAirQualityQuery Kind = "air_quality_query"
	KindCreateProposal  Kind = "create_proposal"
	KindGreeting        Kind = "greeting"
	KindUnknown         Kind = "unknown"
)

// Intent is one of the variant structs below.
type Intent interface {
	Kind() Kind
	isIntent()
}

type LocationType string

const (
	LocationZip   LocationType = "zip"
	LocationCity  LocationType = "city"
	LocationState LocationType = "state"
)

type LandUseType string

const (
	LandUseRemoved            LandUseType = "removed"
	LandUseReplacedByBuilding LandUseType = "replaced_by_building"
)

// Scenario maps the land use onto the impact estimate scenario.
func (l LandUseType) Scenario() impact.Scenario {
	if l == LandUseReplacedByBuilding {
		return impact.ScenarioReplacedByBuilding
	}
	return impact.ScenarioRemoved
}

type ShowParks struct {
	LocationType  LocationType
	LocationValue string
}

type AskArea struct {
	Unit impact.Unit
}

type RemovalImpact struct {
	LandUse LandUseType
}

type NDVIQuery struct{}

type StatQuery struct {
	// Metric is a park statistic column such as SUM_TOTPOP. Empty when the
	// message did not name one.
	Metric string
}

type InfoQuery struct{}

type AirQualityQuery struct{}

type CreateProposal struct{}

type Greeting struct{}

type Unknown struct{}

func (ShowParks) Kind() Kind       { return KindShowParks }
func (AskArea) Kind() Kind         { return KindAskArea }
func (RemovalImpact) Kind() Kind   { return KindRemovalImpact }
func (NDVIQuery) Kind() Kind       { return KindNDVIQuery }
func (StatQuery) Kind() Kind       { return KindStatQuery }
func (InfoQuery) Kind() Kind       { return KindInfoQuery }
func (AirQualityQuery) Kind() Kind { return KindAirQualityQuery }
func (CreateProposal) Kind() Kind  { return KindCreateProposal }
func (Greeting) Kind() Kind        { return KindGreeting }
func (Unknown) Kind() Kind         { return KindUnknown }

func (ShowParks) isIntent()       {}
func (AskArea) isIntent()         {}
func (RemovalImpact) isIntent()   {}
func (NDVIQuery) isIntent()       {}
func (StatQuery) isIntent()       {}
func (InfoQuery) isIntent()       {}
func (AirQualityQuery) isIntent() {}
func (CreateProposal) isIntent()  {}
func (Greeting) isIntent()        {}
func (Unknown) isIntent()         {}
