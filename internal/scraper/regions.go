package scraper

import "github.com/carwatch/olx-monitor/internal/models"

// MapRegions groups the configured cities by listing URL so each URL is
// fetched once per cycle. Regions and their cities keep first-seen order.
func MapRegions(cities []models.CityTarget) []models.Region {
	index := make(map[string]int, len(cities))
	var regions []models.Region
	for _, c := range cities {
		i, ok := index[c.QueryURL]
		if !ok {
			i = len(regions)
			index[c.QueryURL] = i
			regions = append(regions, models.Region{QueryURL: c.QueryURL})
		}
		regions[i].TargetCities = append(regions[i].TargetCities, c.Name)
	}
	return regions
}
