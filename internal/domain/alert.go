package domain

import "time"

// AlertSetting is a subscriber's notification policy.
type AlertSetting struct {
	ID                string
	Email             string
	MinProfit         float64
	MinROI            float64
	WatchedCategories []string
	IsActive          bool
	CreatedAt         time.Time
}

// Matches reports whether an opportunity in the given category passes the
// setting's thresholds and category filter.
func (s AlertSetting) Matches(profit, roi float64, category string) bool {
	if profit < s.MinProfit || roi < s.MinROI {
		return false
	}
	if len(s.WatchedCategories) == 0 {
		return true
	}
	for _, c := range s.WatchedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// AlertHistory records that a setting was notified about an opportunity.
// The (AlertSettingID, OpportunityID) pair is unique.
type AlertHistory struct {
	ID             string
	AlertSettingID string
	OpportunityID  string
	Email          string
	Subject        string
	SentAt         time.Time
}
