package db

import (
	"context"
	"time"

	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/tenant"

	"gorm.io/gorm"
)

// Store is everything the lending engine persists. Lock* methods take a
// row lock (SELECT ... FOR UPDATE) and are only meaningful inside
// Transaction. Find* methods return ErrNotFound, except the blacklist
// lookups which return (nil, nil) when nothing matches.
type Store interface {
	// Transaction runs fn atomically; fn's Store is bound to the transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	FindItemByID(ctx context.Context, id string) (*models.Item, error)
	LockItem(ctx context.Context, id string) (*models.Item, error)
	SetItemAvailable(ctx context.Context, id string, available int) error

	CreateLending(ctx context.Context, l *models.Lending) error
	FindLendingByID(ctx context.Context, id string) (*models.Lending, error)
	LockLending(ctx context.Context, id string) (*models.Lending, error)
	SaveLending(ctx context.Context, l *models.Lending) error
	CountOpenLendings(ctx context.Context, scope tenant.Tenant, borrowerID string) (int64, error)

	FindBlockingEntry(ctx context.Context, scope tenant.Tenant, userID string, now time.Time) (*models.BlacklistEntry, error)
	LockActiveBlacklist(ctx context.Context, scope tenant.Tenant, userID string) (*models.BlacklistEntry, error)
	LockBlacklistEntry(ctx context.Context, id string) (*models.BlacklistEntry, error)
	CreateBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error
	SaveBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error

	CreateApproval(ctx context.Context, a *models.ApprovalRequest) error
	FindApprovalByID(ctx context.Context, id string) (*models.ApprovalRequest, error)
	LockApproval(ctx context.Context, id string) (*models.ApprovalRequest, error)
	SaveApproval(ctx context.Context, a *models.ApprovalRequest) error

	ListLendings(ctx context.Context, q LendingsQuery) (*PagedLendings, error)
	ListApprovals(ctx context.Context, q ApprovalsQuery) (*PagedApprovals, error)
}

type Repo struct {
	DB    *gorm.DB
	inTx  bool
	retry []RetryOption
}

func NewRepo(db *gorm.DB, retry ...RetryOption) *Repo { return &Repo{DB: db, retry: retry} }

// Transaction re-runs the whole of fn when postgres reports a serialization
// failure or deadlock, so fn must not have effects outside tx.
func (r *Repo) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}
	return RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return translateErr(r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(&Repo{DB: tx, inTx: true})
		}))
	}, r.retry...)
}

// Ping is used by the health check.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
