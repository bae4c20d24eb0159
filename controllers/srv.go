package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/lending"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/penalty"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service is what the HTTP layer needs from the lending engine.
type Service interface {
	Checkout(ctx context.Context, p tenant.Principal, in lending.CheckoutInput) ([]models.Lending, error)
	GetLending(ctx context.Context, p tenant.Principal, id string) (*models.Lending, error)
	StatusOf(l models.Lending) models.LendingState
	Return(ctx context.Context, p tenant.Principal, id string, in lending.ReturnInput) (*lending.ReturnResult, error)
	PreviewPenalty(ctx context.Context, p tenant.Principal, id string, cond penalty.Condition) (penalty.Result, error)
	OverridePenalty(ctx context.Context, p tenant.Principal, id string, amount decimal.Decimal, reason string) (*models.Lending, error)
	Renew(ctx context.Context, p tenant.Principal, id string, dueDate time.Time) (*models.Lending, error)
	ListLendings(ctx context.Context, p tenant.Principal, f lending.LendingFilter) (*db.PagedLendings, error)

	Submit(ctx context.Context, p tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error)
	Decide(ctx context.Context, p tenant.Principal, id string, decision models.ApprovalStatus, notes string) (*lending.DecisionResult, error)
	Cancel(ctx context.Context, p tenant.Principal, id string) (*models.ApprovalRequest, error)
	ListApprovals(ctx context.Context, p tenant.Principal, status models.ApprovalStatus, page db.Page) (*db.PagedApprovals, error)

	AddBlacklist(ctx context.Context, p tenant.Principal, in lending.BlacklistInput) (*models.BlacklistEntry, error)
	RemoveBlacklist(ctx context.Context, p tenant.Principal, id string) (*models.BlacklistEntry, error)
}

type Srv struct {
	Engine Service
	Log    *zap.Logger
}

func GetSrv(a *app.App) *Srv { return NewSrv(a.Engine, a.Log) }

func NewSrv(engine Service, log *zap.Logger) *Srv { return &Srv{Engine: engine, Log: log} }

// --- helpers ---

func (s *Srv) principal(c *gin.Context) (tenant.Principal, bool) {
	p, ok := app.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, app.H{"error": "unauthorized"})
	}
	return p, ok
}

// lendingView adds the derived status clients display.
type lendingView struct {
	models.Lending
	Status models.LendingState `json:"status"`
}

func (s *Srv) view(l models.Lending) lendingView {
	return lendingView{Lending: l, Status: s.Engine.StatusOf(l)}
}

func (s *Srv) views(ls []models.Lending) []lendingView {
	out := make([]lendingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, s.view(l))
	}
	return out
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// pageFrom reads ?page=&size=; the repository clamps bad values.
func pageFrom(c *gin.Context) db.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return db.Page{Page: page, Size: size}
}
