package domain

type CountByKey struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// BanStatistics aggregates the ban history held by the store.
type BanStatistics struct {
	Total        int64        `json:"total"`
	Active       int64        `json:"active"`
	Today        int64        `json:"today"`
	ThisWeek     int64        `json:"this_week"`
	TopAddresses []CountByKey `json:"top_addresses"`
	TopRules     []CountByKey `json:"top_rules"`
}
