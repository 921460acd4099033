package application

import "time"

// Application is one user's bid on one requirement.
type Application struct {
	s Snapshot
}

func New(id, requirementID, applicantID string, now time.Time) *Application {
	ts := stamp(now)
	return &Application{s: Snapshot{
		ID:            id,
		RequirementID: requirementID,
		ApplicantID:   applicantID,
		Status:        StatusPending,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}}
}

func Reconstitute(s Snapshot) *Application {
	return &Application{s: s}
}

func (a *Application) ID() string            { return a.s.ID }
func (a *Application) RequirementID() string { return a.s.RequirementID }
func (a *Application) ApplicantID() string   { return a.s.ApplicantID }
func (a *Application) Status() Status        { return a.s.Status }
func (a *Application) CreatedAt() time.Time  { return a.s.CreatedAt }
func (a *Application) UpdatedAt() time.Time  { return a.s.UpdatedAt }
func (a *Application) Snapshot() Snapshot    { return a.s }

func (a *Application) View() View {
	return View(a.s)
}

func (a *Application) Approve(now time.Time) error {
	return a.resolve(StatusApproved, now)
}

func (a *Application) Reject(now time.Time) error {
	return a.resolve(StatusRejected, now)
}

func (a *Application) resolve(to Status, now time.Time) error {
	if a.s.Status != StatusPending {
		return ErrIllegalState
	}
	a.s.Status = to
	ts := stamp(now)
	if !ts.After(a.s.UpdatedAt) {
		ts = a.s.UpdatedAt.Add(time.Microsecond)
	}
	a.s.UpdatedAt = ts
	return nil
}

func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
