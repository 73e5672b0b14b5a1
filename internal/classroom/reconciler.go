package classroom

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/classdeck/backend/internal/store"
)

var (
	errMissingStore = errors.New("record store is required")
	noOpLogger      = zap.NewNop()
)

// ServiceError wraps a reconciliation failure with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opReconcilerNew = "classroom.reconciler.new"
	opSyncClasses   = "classroom.sync_classes"
	opSyncBehaviors = "classroom.sync_behavior_cards"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// ReconcilerConfig describes the dependencies of the reconciler.
type ReconcilerConfig struct {
	Store  store.RecordStore
	Logger *zap.Logger
}

// Reconciler brings the remote record set in line with local classroom state.
// Each save pass fetches the current remote scope, matches local entities to
// remote records, and issues creates, updates and a final delete sweep so the
// remote set exactly mirrors local intent.
//
// Per-item write failures are logged and swallowed: partial persistence beats
// hard failure in an interactive UI with no transactional backend. Only the
// initial fetch propagates an error.
type Reconciler struct {
	store  store.RecordStore
	logger *zap.Logger
}

// NewReconciler validates dependencies and constructs a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opReconcilerNew, "missing_store", errMissingStore)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Reconciler{store: cfg.Store, logger: logger}, nil
}

// SyncClasses makes the remote class records for the owner exactly reflect
// the given list. The behavior-card snapshot is persisted verbatim into every
// class record under the "tasks" field; cards are additionally reconciled as
// their own records by SyncBehaviorCards, a redundancy kept for compatibility
// with existing readers of the class record.
//
// The returned classes carry any newly bound remote identifiers. Running the
// same pass twice with no local changes issues no creates and no deletes.
func (r *Reconciler) SyncClasses(ctx context.Context, owner string, classes []*Class, cardsSnapshot []BehaviorCard) ([]*Class, error) {
	if strings.TrimSpace(owner) == "" {
		r.logError(opSyncClasses, "missing_owner", ErrInvalidOwner)
		return nil, newServiceError(opSyncClasses, "missing_owner", ErrInvalidOwner)
	}
	for _, class := range classes {
		if err := class.Validate(); err != nil {
			r.logError(opSyncClasses, "invalid_class", err, zap.String("owner", owner))
			return nil, newServiceError(opSyncClasses, "invalid_class", err)
		}
	}

	remote, err := r.store.List(ctx, store.CollectionClasses, store.NewEqualsFilter(fieldOwner, owner))
	if err != nil {
		r.logError(opSyncClasses, "fetch_failed", err, zap.String("owner", owner))
		return nil, newServiceError(opSyncClasses, "fetch_failed", err)
	}

	index := newRemoteIndex(remote, fieldName)

	for _, class := range classes {
		class.Owner = owner

		fields, truncatedFields, err := classFields(class, cardsSnapshot)
		if err != nil {
			r.logError(opSyncClasses, "encode_failed", err,
				zap.String("owner", owner),
				zap.String("class", class.Name))
			continue
		}
		for _, field := range truncatedFields {
			r.logger.Warn("class field truncated to fit record budget",
				zap.String("owner", owner),
				zap.String("class", class.Name),
				zap.String("field", field))
		}

		if matched, ok := index.match(class.ID, class.Name); ok {
			if _, err := r.store.Update(ctx, store.CollectionClasses, matched.ID, fields); err != nil {
				r.logError(opSyncClasses, "update_failed", err,
					zap.String("owner", owner),
					zap.String("class", class.Name),
					zap.String("record_id", matched.ID))
				continue
			}
			class.ID = NormalizeID(matched.ID)
			continue
		}

		created, err := r.store.Create(ctx, store.CollectionClasses, fields)
		if err != nil {
			r.logError(opSyncClasses, "create_failed", err,
				zap.String("owner", owner),
				zap.String("class", class.Name))
			continue
		}
		class.ID = NormalizeID(created.ID)
		index.claim(created.ID)
	}

	// The sweep runs strictly after every create and update above has
	// settled, so a record produced earlier in this pass is never deleted.
	for _, staleID := range index.unclaimed() {
		if err := r.store.Delete(ctx, store.CollectionClasses, staleID); err != nil {
			r.logError(opSyncClasses, "delete_failed", err,
				zap.String("owner", owner),
				zap.String("record_id", staleID))
		}
	}

	return classes, nil
}

// SyncBehaviorCards reconciles the behavior-card records of one class,
// matching by label. With sweep set, remote cards absent from the given list
// are deleted (full settings save); without it the call is append-only
// (incremental single-card edits). The category of every written card is
// recomputed from the sign of its points.
func (r *Reconciler) SyncBehaviorCards(ctx context.Context, classID string, cards []BehaviorCard, sweep bool) ([]BehaviorCard, error) {
	if strings.TrimSpace(classID) == "" {
		r.logError(opSyncBehaviors, "missing_class_id", ErrInvalidClassID)
		return nil, newServiceError(opSyncBehaviors, "missing_class_id", ErrInvalidClassID)
	}

	remote, err := r.store.List(ctx, store.CollectionBehaviors, store.NewEqualsFilter(fieldClassID, classID))
	if err != nil {
		r.logError(opSyncBehaviors, "fetch_failed", err, zap.String("class_id", classID))
		return nil, newServiceError(opSyncBehaviors, "fetch_failed", err)
	}

	index := newRemoteIndex(remote, fieldLabel)

	reconciled := make([]BehaviorCard, 0, len(cards))
	for _, card := range cards {
		card = card.Normalized()
		fields := behaviorFields(classID, card)

		if matched, ok := index.match(card.ID, card.Label); ok {
			if _, err := r.store.Update(ctx, store.CollectionBehaviors, matched.ID, fields); err != nil {
				r.logError(opSyncBehaviors, "update_failed", err,
					zap.String("class_id", classID),
					zap.String("label", card.Label),
					zap.String("record_id", matched.ID))
				reconciled = append(reconciled, card)
				continue
			}
			card.ID = NormalizeID(matched.ID)
			reconciled = append(reconciled, card)
			continue
		}

		created, err := r.store.Create(ctx, store.CollectionBehaviors, fields)
		if err != nil {
			r.logError(opSyncBehaviors, "create_failed", err,
				zap.String("class_id", classID),
				zap.String("label", card.Label))
			reconciled = append(reconciled, card)
			continue
		}
		card.ID = NormalizeID(created.ID)
		index.claim(created.ID)
		reconciled = append(reconciled, card)
	}

	if sweep {
		for _, staleID := range index.unclaimed() {
			if err := r.store.Delete(ctx, store.CollectionBehaviors, staleID); err != nil {
				r.logError(opSyncBehaviors, "delete_failed", err,
					zap.String("class_id", classID),
					zap.String("record_id", staleID))
			}
		}
	}

	return reconciled, nil
}

// LoadClasses reads every class record for the owner back into entities.
// Malformed structured fields degrade to empty defaults with a warning so
// legacy records never abort the read.
func (r *Reconciler) LoadClasses(ctx context.Context, owner string) ([]*Class, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, newServiceError(opSyncClasses, "missing_owner", ErrInvalidOwner)
	}
	remote, err := r.store.List(ctx, store.CollectionClasses, store.NewEqualsFilter(fieldOwner, owner))
	if err != nil {
		r.logError(opSyncClasses, "fetch_failed", err, zap.String("owner", owner))
		return nil, newServiceError(opSyncClasses, "fetch_failed", err)
	}

	classes := make([]*Class, 0, len(remote))
	for _, record := range remote {
		class, warnings := classFromRecord(record)
		for _, warning := range warnings {
			r.logger.Warn("stored class field unreadable, using empty default",
				zap.String("owner", owner),
				zap.String("record_id", record.ID),
				zap.String("field", warning.field),
				zap.Error(warning.err))
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// LoadClass reads a single class record by identifier.
func (r *Reconciler) LoadClass(ctx context.Context, owner, classID string) (*Class, error) {
	classes, err := r.LoadClasses(ctx, owner)
	if err != nil {
		return nil, err
	}
	wanted := NormalizeID(classID)
	for _, class := range classes {
		if class.ID == wanted {
			return class, nil
		}
	}
	return nil, newServiceError(opSyncClasses, "class_not_found", store.ErrRecordNotFound)
}

func (r *Reconciler) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	r.logger.Error("classroom reconciler error", attrs...)
}
