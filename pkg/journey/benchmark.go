package journey

import (
	"sort"
	"strings"
)

// stageBenchmarks maps a benchmark key to its target value for one stage.
type stageBenchmarks map[string]float64

type channelBenchmarks map[Stage]stageBenchmarks

// industryBenchmarks holds per-industry KPI targets for early-stage
// companies. Unknown industries fall back to the "default" table.
var industryBenchmarks = map[string]map[Channel]channelBenchmarks{
	"healthcare": {
		ChannelSocial: {
			StageAwareness:  {"reach": 1000, "impressions": 2000},
			StageEngagement: {"engagement_rate": 2.5, "interactions": 50},
			StageConversion: {"link_clicks": 20, "cta_clicks": 10},
			StageRetention:  {"follower_growth": 5, "repeat_engagement": 15},
			StageAdvocacy:   {"shares": 5, "mentions": 3},
		},
		ChannelWebsite: {
			StageAwareness:  {"sessions": 500, "users": 400},
			StageEngagement: {"pages_per_session": 2.5, "avg_session_duration": 120},
			StageConversion: {"conversions": 10, "conversion_rate": 2.0},
			StageRetention:  {"returning_users": 30, "retention_rate": 20},
			StageAdvocacy:   {"referrals": 5, "social_shares": 10},
		},
		ChannelEmail: {
			StageAwareness:  {"emails_sent": 1000, "emails_delivered": 950},
			StageEngagement: {"email_opens": 200, "email_clicks": 25},
			StageResponse:   {"email_replies": 50},
			StageRetention:  {"unsubscribes": 5},
			StageQuality:    {"deliverability_score": 95},
		},
	},
	"dental": {
		ChannelSocial: {
			StageAwareness:  {"reach": 800, "impressions": 1500},
			StageEngagement: {"engagement_rate": 3.0, "interactions": 60},
			StageConversion: {"link_clicks": 25, "cta_clicks": 12},
			StageRetention:  {"follower_growth": 6, "repeat_engagement": 18},
			StageAdvocacy:   {"shares": 6, "mentions": 4},
		},
		ChannelWebsite: {
			StageAwareness:  {"sessions": 600, "users": 450},
			StageEngagement: {"pages_per_session": 3.0, "avg_session_duration": 150},
			StageConversion: {"conversions": 15, "conversion_rate": 2.5},
			StageRetention:  {"returning_users": 35, "retention_rate": 25},
			StageAdvocacy:   {"referrals": 8, "social_shares": 12},
		},
		ChannelEmail: {
			StageAwareness:  {"emails_sent": 800, "emails_delivered": 768},
			StageEngagement: {"email_opens": 176, "email_clicks": 24},
			StageResponse:   {"email_replies": 48},
			StageRetention:  {"unsubscribes": 3},
			StageQuality:    {"deliverability_score": 96},
		},
	},
	"medical": {
		ChannelSocial: {
			StageAwareness:  {"reach": 900, "impressions": 1800},
			StageEngagement: {"engagement_rate": 2.2, "interactions": 45},
			StageConversion: {"link_clicks": 18, "cta_clicks": 9},
			StageRetention:  {"follower_growth": 4, "repeat_engagement": 12},
			StageAdvocacy:   {"shares": 4, "mentions": 2},
		},
		ChannelWebsite: {
			StageAwareness:  {"sessions": 550, "users": 420},
			StageEngagement: {"pages_per_session": 2.8, "avg_session_duration": 140},
			StageConversion: {"conversions": 12, "conversion_rate": 2.2},
			StageRetention:  {"returning_users": 32, "retention_rate": 22},
			StageAdvocacy:   {"referrals": 6, "social_shares": 8},
		},
		ChannelEmail: {
			StageAwareness:  {"emails_sent": 900, "emails_delivered": 855},
			StageEngagement: {"email_opens": 189, "email_clicks": 25},
			StageResponse:   {"email_replies": 50},
			StageRetention:  {"unsubscribes": 5},
			StageQuality:    {"deliverability_score": 95},
		},
	},
	"default": {
		ChannelSocial: {
			StageAwareness:  {"reach": 1000, "impressions": 2000},
			StageEngagement: {"engagement_rate": 2.5, "interactions": 50},
			StageConversion: {"link_clicks": 20, "cta_clicks": 10},
			StageRetention:  {"follower_growth": 5, "repeat_engagement": 15},
			StageAdvocacy:   {"shares": 5, "mentions": 3},
		},
		ChannelWebsite: {
			StageAwareness:  {"sessions": 500, "users": 400},
			StageEngagement: {"pages_per_session": 2.5, "avg_session_duration": 120},
			StageConversion: {"conversions": 10, "conversion_rate": 2.0},
			StageRetention:  {"returning_users": 30, "retention_rate": 20},
			StageAdvocacy:   {"referrals": 5, "social_shares": 10},
		},
		ChannelEmail: {
			StageAwareness:  {"emails_sent": 1000, "emails_delivered": 950},
			StageEngagement: {"email_opens": 200, "email_clicks": 25},
			StageResponse:   {"email_replies": 50},
			StageRetention:  {"unsubscribes": 5},
			StageQuality:    {"deliverability_score": 95},
		},
	},
}

// Benchmark looks up the target value for a KPI. The industry is matched
// case-insensitively with a fallback to the default table; the KPI is
// matched by bidirectional substring containment against the stage's
// benchmark keys. KPIs with overlapping names can match each other's keys;
// that matching rule is intentional and must not be tightened here.
// Returns 0 when nothing matches.
func Benchmark(industry string, channel Channel, stage Stage, kpi string) float64 {
	table, ok := industryBenchmarks[strings.ToLower(industry)]
	if !ok {
		table = industryBenchmarks["default"]
	}

	stageTable, ok := table[channel][stage]
	if !ok {
		return 0
	}

	needle := canonicalKPIKey(kpi)
	if value, ok := stageTable[needle]; ok {
		return value
	}

	// Sorted iteration keeps the lookup deterministic when more than one
	// key is a substring match.
	keys := make([]string, 0, len(stageTable))
	for key := range stageTable {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if strings.Contains(needle, key) || strings.Contains(key, needle) {
			return stageTable[key]
		}
	}
	return 0
}

// canonicalKPIKey lowers a KPI name and folds spaces and dashes to
// underscores so display names ("Emails Sent") and canonical kinds
// ("emails_sent") match the same benchmark keys.
func canonicalKPIKey(kpi string) string {
	s := strings.ToLower(kpi)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
