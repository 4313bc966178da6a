package store

import "campusq/internal/models"

// transitionMap lists, per staff action, the statuses a ticket may be in when
// the action is applied. Served and out appear nowhere: they are terminal.
var transitionMap = map[string][]string{
	"call":  {models.StatusWaiting, models.StatusHold},
	"serve": {models.StatusCalled},
	"hold":  {models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// HoldOutcome decides where a called ticket lands after a no-show strike.
// attempts is the hold count before the strike. A ticket that has already
// burned maxHoldAttempts holds retires as out; the counter never moves past
// the maximum and never resets.
func HoldOutcome(attempts, maxHoldAttempts int) (string, int) {
	if attempts >= maxHoldAttempts {
		return models.StatusOut, attempts
	}
	return models.StatusHold, attempts + 1
}

func IsTerminal(status string) bool {
	return status == models.StatusServed || status == models.StatusOut
}
