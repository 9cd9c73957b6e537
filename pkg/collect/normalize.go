package collect

import (
	"time"

	"github.com/nicktill/journeyboard/pkg/bucket"
	"github.com/nicktill/journeyboard/pkg/journey"
	"github.com/nicktill/journeyboard/pkg/source"
	"github.com/nicktill/journeyboard/pkg/store"
)

// Normalize maps an adapter's raw per-month kind totals onto the channel's
// KPI taxonomy: derived rates are computed from the monthly totals, each KPI
// is bound to its funnel stage and display name, and the industry benchmark
// is attached. One record comes out per (month, KPI) with a value present.
func Normalize(cust store.Customer, channel journey.Channel, monthly source.Monthly, windowStart, now time.Time) []store.Record {
	var records []store.Record
	for key, kinds := range monthly {
		values := derive(channel, kinds)
		periodDays := bucket.PeriodDays(key, windowStart, now)

		for _, kpi := range journey.KPIs(channel) {
			value, ok := values[kpi.Kind]
			if !ok {
				continue
			}
			records = append(records, store.Record{
				CustomerID:     cust.ID,
				Channel:        channel,
				Stage:          kpi.Stage,
				KPIName:        kpi.Name,
				KPIValue:       value,
				BenchmarkValue: journey.Benchmark(cust.Industry, channel, kpi.Stage, kpi.Name),
				PeriodDays:     periodDays,
				Year:           key.Year,
				Month:          key.Month,
				RecordedAt:     now,
			})
		}
	}
	return records
}

// derive computes the channel's rate KPIs from raw monthly totals. Every
// ratio treats a zero denominator as 0; a division error must never
// surface from normalization.
func derive(channel journey.Channel, kinds map[string]float64) map[string]float64 {
	values := make(map[string]float64, len(kinds))
	for kind, v := range kinds {
		values[kind] = v
	}

	switch channel {
	case journey.ChannelSocial:
		base := values["reach"]
		if base == 0 {
			base = values["impressions"]
		}
		values["engagement_rate"] = ratio(values["interactions"], base)

	case journey.ChannelEmail:
		sent := values["sent"]
		delivered := values["delivered"]
		values["emails_sent"] = sent
		values["delivery_rate"] = ratio(delivered, sent)
		values["open_rate"] = ratio(values["opened"], delivered)
		values["click_rate"] = ratio(values["clicked"], delivered)
		values["reply_rate"] = ratio(values["replied"], delivered)
		values["unsubscribe_rate"] = ratio(values["unsubscribed"], delivered)
		values["deliverability_score"] = ratio(sent-values["bounced"], sent)

	case journey.ChannelWebsite:
		// The web endpoint reports rates directly; only backfill the
		// conversion rate when the vendor omitted it.
		if _, ok := values["conversion_rate"]; !ok {
			values["conversion_rate"] = ratio(values["conversions"], values["sessions"])
		}
	}
	return values
}

// ratio returns num/denom as a percentage, 0 when denom is 0.
func ratio(num, denom float64) float64 {
	if denom == 0 {
		return 0
	}
	return num / denom * 100
}
