// Package journey defines the shared marketing taxonomy: the three data
// channels, the funnel stages each channel reports against, and the fixed
// binding from raw metric kinds to presentable KPIs.
package journey

import "fmt"

// Channel identifies one of the three external data sources.
type Channel string

const (
	ChannelWebsite Channel = "website"
	ChannelSocial  Channel = "social_media"
	ChannelEmail   Channel = "email"
)

// Channels lists all known channels in collection order.
func Channels() []Channel {
	return []Channel{ChannelSocial, ChannelEmail, ChannelWebsite}
}

// ParseChannel validates a channel name from an API request.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWebsite, ChannelSocial, ChannelEmail:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// Stage is a customer-journey funnel phase.
type Stage string

const (
	StageAwareness  Stage = "awareness"
	StageEngagement Stage = "engagement"
	StageConversion Stage = "conversion"
	StageResponse   Stage = "response"
	StageRetention  Stage = "retention"
	StageAdvocacy   Stage = "advocacy"
	StageQuality    Stage = "quality"
)

// Stages returns the funnel stages a channel reports against. Email uses
// response/quality where web and social use conversion/advocacy.
func Stages(c Channel) []Stage {
	if c == ChannelEmail {
		return []Stage{StageAwareness, StageEngagement, StageResponse, StageRetention, StageQuality}
	}
	return []Stage{StageAwareness, StageEngagement, StageConversion, StageRetention, StageAdvocacy}
}

// ParseStage validates a stage name against a channel's stage set.
func ParseStage(c Channel, s string) (Stage, error) {
	for _, stage := range Stages(c) {
		if string(stage) == s {
			return stage, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q for channel %s", s, c)
}

// KPI binds a raw metric kind to its funnel stage and display name. Kind is
// the canonical accumulator key used by adapters, the store and the
// benchmark table.
type KPI struct {
	Kind  string
	Name  string
	Stage Stage
}

var websiteKPIs = []KPI{
	{Kind: "sessions", Name: "Sessions", Stage: StageAwareness},
	{Kind: "users", Name: "Users", Stage: StageAwareness},
	{Kind: "pages_per_session", Name: "Pages per Session", Stage: StageEngagement},
	{Kind: "avg_session_duration", Name: "Avg Session Duration", Stage: StageEngagement},
	{Kind: "conversions", Name: "Conversions", Stage: StageConversion},
	{Kind: "conversion_rate", Name: "Conversion Rate", Stage: StageConversion},
	{Kind: "returning_users", Name: "Returning Users", Stage: StageRetention},
	{Kind: "retention_rate", Name: "Retention Rate", Stage: StageRetention},
	{Kind: "referrals", Name: "Referrals", Stage: StageAdvocacy},
	{Kind: "social_shares", Name: "Social Shares", Stage: StageAdvocacy},
}

var socialKPIs = []KPI{
	{Kind: "reach", Name: "Reach", Stage: StageAwareness},
	{Kind: "impressions", Name: "Impressions", Stage: StageAwareness},
	{Kind: "engagement_rate", Name: "Engagement Rate", Stage: StageEngagement},
	{Kind: "interactions", Name: "Total Interactions", Stage: StageEngagement},
	{Kind: "link_clicks", Name: "Link Clicks", Stage: StageConversion},
	{Kind: "profile_views", Name: "Profile Views", Stage: StageConversion},
	{Kind: "follower_growth", Name: "Follower Count", Stage: StageRetention},
	{Kind: "saved", Name: "Saved Posts", Stage: StageRetention},
	{Kind: "shares", Name: "Shares", Stage: StageAdvocacy},
}

var emailKPIs = []KPI{
	{Kind: "emails_sent", Name: "Emails Sent", Stage: StageAwareness},
	{Kind: "delivery_rate", Name: "Delivery Rate", Stage: StageAwareness},
	{Kind: "open_rate", Name: "Open Rate", Stage: StageEngagement},
	{Kind: "click_rate", Name: "Click Rate", Stage: StageEngagement},
	{Kind: "reply_rate", Name: "Reply Rate", Stage: StageResponse},
	{Kind: "unsubscribe_rate", Name: "Unsubscribe Rate", Stage: StageRetention},
	{Kind: "deliverability_score", Name: "Deliverability Score", Stage: StageQuality},
}

// KPIs returns the fixed metric-kind binding for a channel. The slice order
// is the presentation order and must stay stable.
func KPIs(c Channel) []KPI {
	switch c {
	case ChannelWebsite:
		return websiteKPIs
	case ChannelSocial:
		return socialKPIs
	case ChannelEmail:
		return emailKPIs
	}
	return nil
}
