package workflow

import (
	"fmt"
	"time"
)

// Transition is one immutable audit record of a lead status change. From is
// nil only on the record written when the lead is created.
type Transition struct {
	ID        int64          `json:"id"`
	LeadID    int64          `json:"lead_id"`
	From      *Stage         `json:"from,omitempty"`
	To        Stage          `json:"to"`
	Automated bool           `json:"automated"`
	ChangedBy *int           `json:"changed_by"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Replay rebuilds a lead's stage from its chronologically ordered history. The
// first record must be the creation record; every following record must start
// where the previous one ended.
func Replay(records []Transition) (Stage, error) {
	if len(records) == 0 {
		return Stage{}, fmt.Errorf("empty history")
	}
	if records[0].From != nil {
		return Stage{}, fmt.Errorf("history of lead %d does not start with a creation record", records[0].LeadID)
	}
	if err := checkActor(records[0]); err != nil {
		return Stage{}, err
	}
	cur := records[0].To
	for i, r := range records[1:] {
		if r.From == nil {
			return Stage{}, fmt.Errorf("record %d: second creation record", r.ID)
		}
		if *r.From != cur {
			return Stage{}, fmt.Errorf("record %d (#%d): starts at %s, expected %s", r.ID, i+1, *r.From, cur)
		}
		if err := checkActor(r); err != nil {
			return Stage{}, err
		}
		cur = r.To
	}
	return cur, nil
}

// checkActor enforces that automated records carry no user and manual ones do.
func checkActor(r Transition) error {
	if r.Automated && r.ChangedBy != nil {
		return fmt.Errorf("record %d: automated record has an actor", r.ID)
	}
	if !r.Automated && r.ChangedBy == nil {
		return fmt.Errorf("record %d: manual record has no actor", r.ID)
	}
	return nil
}
