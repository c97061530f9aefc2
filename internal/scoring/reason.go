package scoring

import v1 "github.com/aevon-lab/scoreboard/internal/api/v1"

// Reason classifies why an event may not earn points.
type Reason string

const (
	ReasonNone Reason = ""

	// Soft denials: expected, user-facing, the event is still logged.
	ReasonAlreadyEarned    Reason = "ALREADY_EARNED"
	ReasonDailyLimit       Reason = "DAILY_LIMIT"
	ReasonAlreadySentToday Reason = "ALREADY_SENT_TODAY"
	ReasonDailyCap         Reason = "DAILY_CAP"

	// Hard denials: configuration or input errors.
	ReasonFeatureDisabled   Reason = "FEATURE_DISABLED"
	ReasonInvalidInput      Reason = "INVALID_INPUT"
	ReasonRuleMisconfigured Reason = "RULE_MISCONFIGURED"
)

var reasonFlags = map[Reason]string{
	ReasonAlreadyEarned:    v1.FlagAlreadyEarned,
	ReasonDailyLimit:       v1.FlagDailyLimitReached,
	ReasonAlreadySentToday: v1.FlagAlreadySentToday,
	ReasonDailyCap:         v1.FlagDailyCapReached,
}

var reasonMessages = map[Reason]string{
	ReasonAlreadyEarned:     "You already earned points for this.",
	ReasonDailyLimit:        "Daily limit reached for this activity.",
	ReasonAlreadySentToday:  "Already sent to this person today.",
	ReasonDailyCap:          "You reached today's point cap.",
	ReasonFeatureDisabled:   "This activity is not available.",
	ReasonInvalidInput:      "The event is missing required data.",
	ReasonRuleMisconfigured: "This activity is misconfigured.",
}

// Soft reports whether the denial is a normal, user-facing outcome.
func (r Reason) Soft() bool {
	_, ok := reasonFlags[r]
	return ok
}

// Flag returns the result flag of a soft denial, or "".
func (r Reason) Flag() string {
	return reasonFlags[r]
}

// Message is the user-facing text for the denial.
func (r Reason) Message() string {
	return reasonMessages[r]
}
