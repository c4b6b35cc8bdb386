// Package mongo wraps multi-document transactions and classifies the
// driver's failure modes so callers can tell a genuine occupant's
// duplicate key apart from retryable serialization contention.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

const transientTransactionErrorLabel = "TransientTransactionError"

// writeConflictCode is MongoDB's WriteConflict: two transactions raced
// on overlapping documents and one was rolled back.
const writeConflictCode = 112

type TransactionFunc func(ctx mongo.SessionContext) error

type TransactionManager interface {
	ExecuteTransaction(ctx context.Context, fn TransactionFunc) error
}

type transactionManager struct {
	client *mongo.Client
}

func NewTransactionManager(client *mongo.Client) TransactionManager {
	return &transactionManager{client: client}
}

// ExecuteTransaction runs fn inside one snapshot-isolated transaction.
// It deliberately does NOT retry on transient errors: retry policy
// belongs to the caller, so a transient failure is surfaced as-is and
// the transaction is aborted.
func (m *transactionManager) ExecuteTransaction(ctx context.Context, fn TransactionFunc) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	sessCtx := mongo.NewSessionContext(ctx, session)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txnOpts); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(sessCtx); err != nil {
		if abortErr := session.AbortTransaction(sessCtx); abortErr != nil {
			return fmt.Errorf("failed to abort transaction: %v (caused by: %w)", abortErr, err)
		}
		return err
	}

	if err := session.CommitTransaction(sessCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsDuplicateKey reports whether err is a unique-key violation. During
// a claim this means an authoritative occupant exists: a permanent
// conflict that will not go away on retry.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}

// IsTransientConflict reports whether err is serialization contention
// between concurrent transactions with no definite occupant; retrying
// the identical operation may succeed.
func IsTransientConflict(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.HasErrorLabel(transientTransactionErrorLabel) || cmdErr.Code == writeConflictCode
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		if writeErr.HasErrorLabel(transientTransactionErrorLabel) {
			return true
		}
		for _, we := range writeErr.WriteErrors {
			if we.Code == writeConflictCode {
				return true
			}
		}
	}
	return false
}
