package dialog

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/internal/secrets"
	"github.com/audacious-software/Simple-Messaging-Dialog-Engine-Support/store"
)

// Variable update operations.
const (
	OperationSet         = "set"
	OperationClearList   = "clear-list"
	OperationAppendList  = "append-list"
	OperationPrependList = "prepend-list"
	OperationRemove      = "remove"
	OperationReplace     = "replace"
	OperationIncrement   = "increment"
)

// VariableService owns the append-only variable log. Records are only ever
// appended; logical mutation happens by appending a newer record for the
// same (dialog key, key, sender).
type VariableService struct {
	store  *store.Store
	codec  *secrets.Codec
	logger *slog.Logger
}

// NewVariableService creates a variable service.
func NewVariableService(st *store.Store, codec *secrets.Codec, logger *slog.Logger) *VariableService {
	return &VariableService{
		store:  st,
		codec:  codec,
		logger: logger,
	}
}

// Name implements Collaborator. The engine's own variable log participates
// in dispatch the same way deployment collaborators do.
func (s *VariableService) Name() string {
	return "dialog.variables"
}

// Append creates a new record carrying the encoded value, with the sender
// protected and the lookup hash precomputed.
func (s *VariableService) Append(ctx context.Context, sender, dialogKey, key string, value Value, now time.Time) (*store.Variable, error) {
	protectedSender, err := s.codec.Protect(sender)
	if err != nil {
		return nil, errors.Wrap(err, "failed to protect sender")
	}

	lookupHash, err := s.codec.LookupHash(sender)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash sender")
	}

	variable, err := s.store.CreateVariable(ctx, &store.Variable{
		Sender:     protectedSender,
		DialogKey:  dialogKey,
		Key:        key,
		Value:      value.Encode(),
		DateSetTs:  now.Unix(),
		LookupHash: &lookupHash,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to append variable")
	}

	return variable, nil
}

// StoreValue implements ValueStore for dispatch of store-value actions.
func (s *VariableService) StoreValue(ctx context.Context, sender, dialogKey, key string, value any) error {
	_, err := s.Append(ctx, sender, dialogKey, key, FromAny(value), time.Now())
	return err
}

// FetchLatest returns the most recent value per key for the sender within
// the inclusive [sinceTs, untilTs] window. A nil bound leaves that side of
// the window open. The lookup hash narrows the scan before any row is
// decrypted; rows that predate hashing are backfilled as they are seen.
func (s *VariableService) FetchLatest(ctx context.Context, sender, dialogKey string, sinceTs, untilTs *int64) (map[string]Value, error) {
	lookupHash, err := s.codec.LookupHash(sender)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash sender")
	}

	variables, err := s.store.ListVariables(ctx, &store.FindVariable{
		DialogKey:       &dialogKey,
		LookupHash:      &lookupHash,
		SetAtOrAfterTs:  sinceTs,
		SetAtOrBeforeTs: untilTs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list variables")
	}

	latest := map[string]Value{}

	for _, variable := range variables {
		revealed, err := s.codec.Reveal(variable.Sender)
		if err != nil {
			s.logger.Warn("skipping undecryptable variable sender", "variable_id", variable.ID)
			continue
		}

		if revealed != sender {
			continue
		}

		if variable.LookupHash == nil {
			// Lazy hash backfill; duplicate identical writes race harmlessly.
			if err := s.store.UpdateVariable(ctx, &store.UpdateVariable{ID: variable.ID, LookupHash: &lookupHash}); err != nil {
				s.logger.Warn("failed to backfill variable lookup hash", "variable_id", variable.ID, "error", err)
			}
		}

		// Rows arrive ordered by (date_set, id) ascending, so the last
		// record seen for a key wins.
		latest[variable.Key] = DecodeStored(variable.Value)
	}

	return latest, nil
}

// latestRecord returns the most recent record for one key, or nil.
func (s *VariableService) latestRecord(ctx context.Context, sender, dialogKey, key string) (*store.Variable, error) {
	lookupHash, err := s.codec.LookupHash(sender)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash sender")
	}

	variables, err := s.store.ListVariables(ctx, &store.FindVariable{
		DialogKey:   &dialogKey,
		Key:         &key,
		LookupHash:  &lookupHash,
		NewestFirst: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list variables")
	}

	for _, variable := range variables {
		revealed, err := s.codec.Reveal(variable.Sender)
		if err != nil {
			continue
		}
		if revealed == sender {
			return variable, nil
		}
	}

	return nil, nil
}

// UpdateValue implements ValueUpdater: it applies an operation to the prior
// value and appends the result as a new record. Operations that change
// nothing (an ineffective remove or replace, or an increment that cannot
// coerce its operand) append nothing.
func (s *VariableService) UpdateValue(ctx context.Context, sender, dialogKey, key string, value any, operation, replacement string) error {
	newValue := FromAny(value)

	prior := Null()
	priorRecord, err := s.latestRecord(ctx, sender, dialogKey, key)
	if err != nil {
		return err
	}
	if priorRecord != nil {
		prior = DecodeStored(priorRecord.Value)
	}

	result, changed := applyOperation(prior, newValue, operation, replacement)
	if !changed {
		return nil
	}

	_, err = s.Append(ctx, sender, dialogKey, key, result, time.Now())
	return err
}

// applyOperation computes the new value for an update operation. The second
// return reports whether a new record should be appended.
func applyOperation(prior, newValue Value, operation, replacement string) (Value, bool) {
	switch operation {
	case OperationSet:
		return newValue, true

	case OperationClearList:
		return List(nil), true

	case OperationAppendList:
		return List(append(coerceList(prior), newValue)), true

	case OperationPrependList:
		return List(append([]Value{newValue}, coerceList(prior)...)), true

	case OperationRemove:
		if priorStr, ok := prior.StringValue(); ok {
			removed, _ := newValue.StringValue()
			result := strings.ReplaceAll(priorStr, removed, "")
			return String(result), result != priorStr
		}
		if items, ok := prior.ListValue(); ok {
			kept := make([]Value, 0, len(items))
			for _, item := range items {
				if !item.Equal(newValue) {
					kept = append(kept, item)
				}
			}
			return List(kept), len(kept) != len(items)
		}
		return prior, false

	case OperationReplace:
		if priorStr, ok := prior.StringValue(); ok {
			target, _ := newValue.StringValue()
			result := strings.ReplaceAll(priorStr, target, replacement)
			return String(result), result != priorStr
		}
		if items, ok := prior.ListValue(); ok {
			replaced := make([]Value, 0, len(items))
			changed := false
			for _, item := range items {
				if item.Equal(newValue) {
					replaced = append(replaced, String(replacement))
					changed = true
				} else {
					replaced = append(replaced, item)
				}
			}
			return List(replaced), changed
		}
		return prior, false

	case OperationIncrement:
		amount, ok := newValue.AsNumber()
		if !ok {
			return prior, false
		}

		if items, isList := prior.ListValue(); isList {
			incremented := make([]Value, 0, len(items))
			for _, item := range items {
				// Elements that do not coerce stay untouched.
				if itemNum, coerced := item.AsNumber(); coerced {
					incremented = append(incremented, Number(itemNum+amount))
				} else {
					incremented = append(incremented, item)
				}
			}
			return List(incremented), true
		}

		// A never-set key increments from zero.
		priorNum := 0.0
		if !prior.IsNull() {
			if coerced, ok := prior.AsNumber(); ok {
				priorNum = coerced
			} else {
				return prior, true
			}
		}
		return Number(priorNum + amount), true

	default:
		return newValue, true
	}
}

// coerceList wraps a scalar prior value into a single-element list. Null
// coerces to an empty list.
func coerceList(prior Value) []Value {
	if items, ok := prior.ListValue(); ok {
		copied := make([]Value, len(items))
		copy(copied, items)
		return copied
	}

	if prior.IsNull() {
		return nil
	}

	return []Value{prior}
}
