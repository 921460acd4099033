package requirement

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Requirement is a posted task. Its fields are only reachable through methods so
// the title and button text invariants hold after every mutation.
type Requirement struct {
	s Snapshot
}

// New validates d and returns a CREATED requirement.
func New(id string, d Draft, now time.Time) (*Requirement, error) {
	if d.CreatedBy == "" {
		return nil, ErrMissingCreator
	}
	title, err := cleanTitle(d.Title)
	if err != nil {
		return nil, err
	}
	button, err := cleanButtonText(d.AgreementButtonText)
	if err != nil {
		return nil, err
	}
	ts := stamp(now)
	return &Requirement{s: Snapshot{
		ID:                  id,
		Title:               title,
		Description:         d.Description,
		Status:              StatusCreated,
		Agreement:           copyString(d.Agreement),
		AgreementButtonText: button,
		CreatedBy:           d.CreatedBy,
		CreatedAt:           ts,
		UpdatedAt:           ts,
	}}, nil
}

// Reconstitute rebuilds a Requirement from stored fields without re-running
// creation rules.
func Reconstitute(s Snapshot) *Requirement {
	s.Agreement = copyString(s.Agreement)
	s.AgreementButtonText = copyString(s.AgreementButtonText)
	return &Requirement{s: s}
}

func (r *Requirement) ID() string           { return r.s.ID }
func (r *Requirement) Title() string        { return r.s.Title }
func (r *Requirement) Description() string  { return r.s.Description }
func (r *Requirement) Status() Status       { return r.s.Status }
func (r *Requirement) CreatedBy() string    { return r.s.CreatedBy }
func (r *Requirement) CreatedAt() time.Time { return r.s.CreatedAt }
func (r *Requirement) UpdatedAt() time.Time { return r.s.UpdatedAt }
func (r *Requirement) Agreement() *string   { return copyString(r.s.Agreement) }

// ButtonText returns the acknowledgement label, falling back to DefaultButtonText.
func (r *Requirement) ButtonText() string {
	if r.s.AgreementButtonText == nil {
		return DefaultButtonText
	}
	return *r.s.AgreementButtonText
}

func (r *Requirement) IsOwnedBy(userID string) bool {
	return userID != "" && r.s.CreatedBy == userID
}

func (r *Requirement) Snapshot() Snapshot {
	s := r.s
	s.Agreement = copyString(s.Agreement)
	s.AgreementButtonText = copyString(s.AgreementButtonText)
	return s
}

func (r *Requirement) View() View {
	return View{
		ID:                  r.s.ID,
		Title:               r.s.Title,
		Description:         r.s.Description,
		Status:              r.s.Status,
		Agreement:           copyString(r.s.Agreement),
		AgreementButtonText: r.ButtonText(),
		CreatedBy:           r.s.CreatedBy,
		CreatedAt:           r.s.CreatedAt,
		UpdatedAt:           r.s.UpdatedAt,
	}
}

func (r *Requirement) UpdateTitle(title string, now time.Time) error {
	clean, err := cleanTitle(title)
	if err != nil {
		return err
	}
	r.s.Title = clean
	r.touch(now)
	return nil
}

func (r *Requirement) UpdateDescription(description string, now time.Time) {
	r.s.Description = description
	r.touch(now)
}

// UpdateAgreement replaces the agreement text; nil clears it.
func (r *Requirement) UpdateAgreement(text *string, now time.Time) {
	r.s.Agreement = copyString(text)
	r.touch(now)
}

// UpdateAgreementButtonText replaces the label; nil restores the default.
func (r *Requirement) UpdateAgreementButtonText(text *string, now time.Time) error {
	clean, err := cleanButtonText(text)
	if err != nil {
		return err
	}
	r.s.AgreementButtonText = clean
	r.touch(now)
	return nil
}

// UpdateStatus sets any status in the enum domain. Transition legality is the
// caller's concern.
func (r *Requirement) UpdateStatus(status Status, now time.Time) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	r.s.Status = status
	r.touch(now)
	return nil
}

// touch keeps UpdatedAt strictly increasing even when the clock stalls.
func (r *Requirement) touch(now time.Time) {
	ts := stamp(now)
	if !ts.After(r.s.UpdatedAt) {
		ts = r.s.UpdatedAt.Add(time.Microsecond)
	}
	r.s.UpdatedAt = ts
}

// stamp matches the microsecond precision of timestamptz.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func cleanTitle(title string) (string, error) {
	clean := strings.TrimSpace(norm.NFC.String(title))
	if clean == "" {
		return "", ErrBlankTitle
	}
	if utf8.RuneCountInString(clean) > MaxTitleLength {
		return "", ErrInvalidTitle
	}
	return clean, nil
}

func cleanButtonText(text *string) (*string, error) {
	if text == nil {
		return nil, nil
	}
	clean := strings.TrimSpace(norm.NFC.String(*text))
	if clean == "" || utf8.RuneCountInString(clean) > MaxButtonTextLength {
		return nil, ErrInvalidButtonText
	}
	return &clean, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
