package aggregate

import "time"

// userState is everything a pass tracks about one user. Funnel and retention
// share the same record so a user's state is never split across maps.
type userState struct {
	// steps[i] is the first qualifying time of funnel step i. A step can only
	// be recorded after the previous one, so the slice only ever grows.
	steps []time.Time

	cohortStart time.Time
	inCohort    bool

	activeDays map[time.Time]struct{}
}

func (u *userState) activeOn(day time.Time) bool {
	_, ok := u.activeDays[day]
	return ok
}

type userTable struct {
	byID map[string]*userState
}

func newUserTable() *userTable {
	return &userTable{byID: make(map[string]*userState)}
}

func (t *userTable) get(userID string) *userState {
	u, ok := t.byID[userID]
	if !ok {
		u = &userState{activeDays: make(map[time.Time]struct{})}
		t.byID[userID] = u
	}
	return u
}

func (t *userTable) len() int {
	return len(t.byID)
}
