package agent

import (
	"github.com/parkpulse/parkpulse/internal/db"
	"github.com/parkpulse/parkpulse/internal/impact"
	"github.com/parkpulse/parkpulse/internal/intent"
)

// ImpactAnalyzer estimates removal impact from the park record.
type ImpactAnalyzer struct{}

func (ImpactAnalyzer) RemovalImpact(park db.Park, landUse intent.LandUseType) impact.Analysis {
	site := impact.Site{
		Name:       park.Name,
		Zip:        park.Zip,
		Acres:      park.Acres,
		Population: int64(park.Stat(db.StatTotalPopulation)),
		Kids:       int64(park.Stat(db.StatKids)),
		Adults:     int64(park.Stat(db.StatAdults)),
		Seniors:    int64(park.Stat(db.StatSeniors)),
	}
	if park.NDVI != nil {
		site.NDVI = *park.NDVI
	}
	if park.PM25 != nil {
		site.PM25 = *park.PM25
	}
	return impact.RemovalImpact(site, landUse.Scenario())
}
