package matching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/kidwon/lifetree-app-api/apperr"
	"github.com/kidwon/lifetree-app-api/application"
	"github.com/kidwon/lifetree-app-api/db"
	"github.com/kidwon/lifetree-app-api/requirement"
)

// EventWriter enqueues a payload inside the caller's transaction.
type EventWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload any) error
}

// Recorder receives the outcome of every engine operation.
type Recorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

// Engine applies, approves and rejects applications. Each mutating call is a
// single transaction that locks the requirement row before touching any
// application row, so concurrent calls on one requirement serialize.
type Engine struct {
	pool         db.TxBeginner
	requirements requirement.Store
	applications application.Store
	identities   IdentityLookup
	events       EventWriter
	recorder     Recorder
	log          logrus.FieldLogger
	idGenerator  func() string
	now          func() time.Time
	isolation    pgx.TxIsoLevel
	lookupLimit  int
}

// NewEngine creates an engine over the given stores. A nil identities lookup
// yields id-only identities in the views.
func NewEngine(pool db.TxBeginner, requirements requirement.Store, applications application.Store, identities IdentityLookup) *Engine {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Engine{
		pool:         pool,
		requirements: requirements,
		applications: applications,
		identities:   identities,
		log:          discard,
		idGenerator:  func() string { return uuid.NewString() },
		now:          time.Now,
		isolation:    pgx.ReadCommitted,
		lookupLimit:  8,
	}
}

// WithEvents enqueues application events in the same transaction as the write.
func (e *Engine) WithEvents(w EventWriter) *Engine {
	e.events = w
	return e
}

// WithRecorder reports the outcome and latency of every operation.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

// WithLogger replaces the default discard logger.
func (e *Engine) WithLogger(log logrus.FieldLogger) *Engine {
	e.log = log
	return e
}

// WithIDGenerator overrides the uuid generator for new applications.
func (e *Engine) WithIDGenerator(gen func() string) *Engine {
	e.idGenerator = gen
	return e
}

// WithClock overrides time.Now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithIsolation sets the isolation level of mutating transactions. Row locks
// make read committed sufficient; stricter levels surface conflicts as
// ErrConcurrentModification.
func (e *Engine) WithIsolation(level pgx.TxIsoLevel) *Engine {
	e.isolation = level
	return e
}

// WithLookupLimit bounds concurrent identity lookups during view assembly.
func (e *Engine) WithLookupLimit(n int) *Engine {
	if n > 0 {
		e.lookupLimit = n
	}
	return e
}

// Apply files a PENDING application by applicantID. The requirement itself is
// not modified; any number of applicants may hold pending applications.
func (e *Engine) Apply(ctx context.Context, requirementID, applicantID string) (view requirement.View, err error) {
	defer e.observe("apply", time.Now(), &err)
	if applicantID == "" {
		return requirement.View{}, ErrMissingActor
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: e.isolation})
	if err != nil {
		return requirement.View{}, fmt.Errorf("matching: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := e.requirements.FindByIDForUpdate(ctx, tx, requirementID)
	if err != nil {
		return requirement.View{}, conflict(err)
	}
	if req.CreatedBy() == applicantID {
		return requirement.View{}, ErrSelfApplication
	}
	if !req.Status().AcceptsApplications() {
		return requirement.View{}, ErrNotOpen
	}

	_, err = e.applications.FindActive(ctx, tx, requirementID, applicantID)
	switch {
	case err == nil:
		return requirement.View{}, ErrDuplicateApplication
	case !errors.Is(err, application.ErrNotFound):
		return requirement.View{}, conflict(err)
	}

	app := application.New(e.idGenerator(), requirementID, applicantID, e.now())
	if err := e.applications.Save(ctx, tx, app); err != nil {
		if errors.Is(err, application.ErrDuplicateActive) {
			return requirement.View{}, ErrDuplicateApplication
		}
		return requirement.View{}, conflict(err)
	}
	if err := e.emit(ctx, tx, application.TopicCreated, application.NewEvent(app, applicantID)); err != nil {
		return requirement.View{}, err
	}

	fresh, err := e.requirements.FindByID(ctx, tx, requirementID)
	if err != nil {
		return requirement.View{}, conflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return requirement.View{}, commitErr(err)
	}

	e.log.WithFields(logrus.Fields{
		"requirement_id": requirementID,
		"application_id": app.ID(),
		"applicant_id":   applicantID,
	}).Info("application filed")
	return fresh.View(), nil
}

// Approve accepts a pending application and starts work on a CREATED
// requirement. Other pending applications stay pending.
func (e *Engine) Approve(ctx context.Context, requirementID, approverID, applicationID string) (view requirement.View, err error) {
	defer e.observe("approve", time.Now(), &err)
	return e.resolve(ctx, requirementID, approverID, applicationID, true)
}

// Reject declines a pending application. The requirement status is untouched.
func (e *Engine) Reject(ctx context.Context, requirementID, approverID, applicationID string) (view requirement.View, err error) {
	defer e.observe("reject", time.Now(), &err)
	return e.resolve(ctx, requirementID, approverID, applicationID, false)
}

func (e *Engine) resolve(ctx context.Context, requirementID, approverID, applicationID string, approve bool) (requirement.View, error) {
	if approverID == "" {
		return requirement.View{}, ErrMissingActor
	}

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: e.isolation})
	if err != nil {
		return requirement.View{}, fmt.Errorf("matching: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	req, err := e.requirements.FindByIDForUpdate(ctx, tx, requirementID)
	if err != nil {
		return requirement.View{}, conflict(err)
	}
	if !req.IsOwnedBy(approverID) {
		return requirement.View{}, ErrNotRequirementOwner
	}

	app, err := e.applications.FindByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			return requirement.View{}, ErrApplicationNotFound
		}
		return requirement.View{}, conflict(err)
	}
	if app.RequirementID() != req.ID() {
		return requirement.View{}, ErrApplicationNotFound
	}
	if app.Status() != application.StatusPending {
		return requirement.View{}, ErrAlreadyResolved
	}

	now := e.now()
	topic := application.TopicRejected
	decide := app.Reject
	if approve {
		topic = application.TopicApproved
		decide = app.Approve
	}
	if err := decide(now); err != nil {
		if errors.Is(err, application.ErrIllegalState) {
			return requirement.View{}, ErrAlreadyResolved
		}
		return requirement.View{}, err
	}
	if err := e.applications.Save(ctx, tx, app); err != nil {
		return requirement.View{}, conflict(err)
	}
	if err := e.emit(ctx, tx, topic, application.NewEvent(app, approverID)); err != nil {
		return requirement.View{}, err
	}

	if approve && req.Status() == requirement.StatusCreated {
		previous := req.Status()
		if err := req.UpdateStatus(requirement.StatusInProgress, now); err != nil {
			return requirement.View{}, err
		}
		if err := e.requirements.Save(ctx, tx, req); err != nil {
			return requirement.View{}, conflict(err)
		}
		if err := e.emit(ctx, tx, requirement.TopicStatusChanged, requirement.NewEvent(req, approverID, previous)); err != nil {
			return requirement.View{}, err
		}
	}

	fresh, err := e.requirements.FindByID(ctx, tx, requirementID)
	if err != nil {
		return requirement.View{}, conflict(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return requirement.View{}, commitErr(err)
	}

	e.log.WithFields(logrus.Fields{
		"requirement_id":     requirementID,
		"application_id":     applicationID,
		"approver_id":        approverID,
		"application_status": app.Status(),
		"requirement_status": fresh.Status(),
	}).Info("application resolved")
	return fresh.View(), nil
}

func (e *Engine) emit(ctx context.Context, tx pgx.Tx, topic string, payload any) error {
	if e.events == nil {
		return nil
	}
	if err := e.events.Enqueue(ctx, tx, topic, payload); err != nil {
		return fmt.Errorf("matching: enqueue %s: %w", topic, conflict(err))
	}
	return nil
}

func (e *Engine) observe(op string, start time.Time, errp *error) {
	err := *errp
	if e.recorder != nil {
		e.recorder.ObserveOperation(op, err, time.Since(start))
	}
	if err != nil && apperr.KindOf(err) == nil {
		e.log.WithField("op", op).WithError(err).Error("matching operation failed")
	}
}

// conflict turns a serialization failure into a classified error; everything
// else passes through unchanged.
func conflict(err error) error {
	if db.IsSerializationFailure(err) {
		return ErrConcurrentModification
	}
	return err
}

func commitErr(err error) error {
	if db.IsSerializationFailure(err) {
		return ErrConcurrentModification
	}
	return fmt.Errorf("matching: commit: %w", err)
}
