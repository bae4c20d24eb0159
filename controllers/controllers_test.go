package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/db"
	"Gin_postgres_redis_lending_engine/lending"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/penalty"
	"Gin_postgres_redis_lending_engine/tenant"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubService answers with whatever the test wired; unwired calls fail loudly.
type stubService struct {
	checkout  func(tenant.Principal, lending.CheckoutInput) ([]models.Lending, error)
	get       func(string) (*models.Lending, error)
	ret       func(string, lending.ReturnInput) (*lending.ReturnResult, error)
	preview   func(string, penalty.Condition) (penalty.Result, error)
	override  func(string, decimal.Decimal, string) (*models.Lending, error)
	renew     func(string, time.Time) (*models.Lending, error)
	list      func(lending.LendingFilter) (*db.PagedLendings, error)
	submit    func(tenant.Principal, lending.SubmitInput) (*lending.SubmitResult, error)
	decide    func(string, models.ApprovalStatus, string) (*lending.DecisionResult, error)
	cancel    func(string) (*models.ApprovalRequest, error)
	approvals func(models.ApprovalStatus, db.Page) (*db.PagedApprovals, error)
	addBL     func(lending.BlacklistInput) (*models.BlacklistEntry, error)
	removeBL  func(string) (*models.BlacklistEntry, error)
}

var errNotWired = errors.New("not wired")

func (s *stubService) Checkout(_ context.Context, p tenant.Principal, in lending.CheckoutInput) ([]models.Lending, error) {
	if s.checkout == nil {
		return nil, errNotWired
	}
	return s.checkout(p, in)
}

func (s *stubService) GetLending(_ context.Context, _ tenant.Principal, id string) (*models.Lending, error) {
	if s.get == nil {
		return nil, errNotWired
	}
	return s.get(id)
}

func (s *stubService) StatusOf(l models.Lending) models.LendingState { return l.State }

func (s *stubService) Return(_ context.Context, _ tenant.Principal, id string, in lending.ReturnInput) (*lending.ReturnResult, error) {
	if s.ret == nil {
		return nil, errNotWired
	}
	return s.ret(id, in)
}

func (s *stubService) PreviewPenalty(_ context.Context, _ tenant.Principal, id string, cond penalty.Condition) (penalty.Result, error) {
	if s.preview == nil {
		return penalty.Result{}, errNotWired
	}
	return s.preview(id, cond)
}

func (s *stubService) OverridePenalty(_ context.Context, _ tenant.Principal, id string, amount decimal.Decimal, reason string) (*models.Lending, error) {
	if s.override == nil {
		return nil, errNotWired
	}
	return s.override(id, amount, reason)
}

func (s *stubService) Renew(_ context.Context, _ tenant.Principal, id string, due time.Time) (*models.Lending, error) {
	if s.renew == nil {
		return nil, errNotWired
	}
	return s.renew(id, due)
}

func (s *stubService) ListLendings(_ context.Context, _ tenant.Principal, f lending.LendingFilter) (*db.PagedLendings, error) {
	if s.list == nil {
		return nil, errNotWired
	}
	return s.list(f)
}

func (s *stubService) Submit(_ context.Context, p tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error) {
	if s.submit == nil {
		return nil, errNotWired
	}
	return s.submit(p, in)
}

func (s *stubService) Decide(_ context.Context, _ tenant.Principal, id string, d models.ApprovalStatus, notes string) (*lending.DecisionResult, error) {
	if s.decide == nil {
		return nil, errNotWired
	}
	return s.decide(id, d, notes)
}

func (s *stubService) Cancel(_ context.Context, _ tenant.Principal, id string) (*models.ApprovalRequest, error) {
	if s.cancel == nil {
		return nil, errNotWired
	}
	return s.cancel(id)
}

func (s *stubService) ListApprovals(_ context.Context, _ tenant.Principal, status models.ApprovalStatus, page db.Page) (*db.PagedApprovals, error) {
	if s.approvals == nil {
		return nil, errNotWired
	}
	return s.approvals(status, page)
}

func (s *stubService) AddBlacklist(_ context.Context, _ tenant.Principal, in lending.BlacklistInput) (*models.BlacklistEntry, error) {
	if s.addBL == nil {
		return nil, errNotWired
	}
	return s.addBL(in)
}

func (s *stubService) RemoveBlacklist(_ context.Context, _ tenant.Principal, id string) (*models.BlacklistEntry, error) {
	if s.removeBL == nil {
		return nil, errNotWired
	}
	return s.removeBL(id)
}

var (
	lab      = tenant.Tenant{OrgID: "org-a", InstanceID: "lab"}
	staff    = tenant.Principal{UserID: "staff-1", Role: tenant.RoleStaff, Tenant: lab}
	borrower = tenant.Principal{UserID: "u-1", Role: tenant.RoleBorrower, Tenant: lab}
)

func newRouter(svc Service, p tenant.Principal) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { app.SetPrincipal(c, p) })

	s := NewSrv(svc, zap.NewNop())
	lc := NewLendingController(s)
	ac := NewApprovalController(s)
	bc := NewBlacklistController(s)
	r.POST("/api/items/:id/checkout", lc.Checkout)
	r.GET("/api/lendings", lc.ListLendings)
	r.GET("/api/lendings/:id", lc.GetLending)
	r.POST("/api/lendings/:id/return", lc.Return)
	r.GET("/api/lendings/:id/penalty", lc.PreviewPenalty)
	r.PUT("/api/lendings/:id/penalty", app.StaffOnly(), lc.OverridePenalty)
	r.POST("/api/lendings/:id/renew", lc.Renew)
	r.GET("/api/approvals", ac.List)
	r.POST("/api/approvals", ac.Submit)
	r.POST("/api/approvals/:id/decision", app.StaffOnly(), ac.Decide)
	r.POST("/api/approvals/:id/cancel", ac.Cancel)
	r.POST("/api/blacklist", app.StaffOnly(), bc.Add)
	r.DELETE("/api/blacklist/:id", app.StaffOnly(), bc.Remove)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func Test_Checkout_StaffDirect(t *testing.T) {
	var got lending.CheckoutInput
	svc := &stubService{checkout: func(_ tenant.Principal, in lending.CheckoutInput) ([]models.Lending, error) {
		got = in
		return []models.Lending{{ID: "l-1", ItemID: in.ItemID, BorrowerID: in.BorrowerID, State: models.LendingActive}}, nil
	}}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/items/item-1/checkout", `{"borrowerId":"u-1","dueDate":"2026-05-01T00:00:00Z"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "item-1", got.ItemID)
	assert.Equal(t, "u-1", got.BorrowerID)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), got.DueDate)
	body := decode(t, w)
	ls := body["lendings"].([]any)
	require.Len(t, ls, 1)
	assert.Equal(t, "active", ls[0].(map[string]any)["status"])
}

func Test_Checkout_StaffQuantity(t *testing.T) {
	svc := &stubService{checkout: func(_ tenant.Principal, in lending.CheckoutInput) ([]models.Lending, error) {
		assert.Equal(t, 3, in.Quantity)
		out := make([]models.Lending, in.Quantity)
		for i := range out {
			out[i] = models.Lending{ID: fmt.Sprintf("l-%d", i), ItemID: in.ItemID, State: models.LendingActive}
		}
		return out, nil
	}}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/items/item-1/checkout", `{"borrowerId":"u-1","quantity":3}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, decode(t, w)["lendings"].([]any), 3)
}

func Test_Checkout_BorrowerGoesThroughGate(t *testing.T) {
	svc := &stubService{submit: func(p tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error) {
		assert.Equal(t, "u-1", p.UserID)
		assert.Equal(t, models.ApprovalLending, in.Type)
		assert.Equal(t, 2, in.Quantity)
		return &lending.SubmitResult{Approval: &models.ApprovalRequest{ID: "a-1", Status: models.ApprovalPending}}, nil
	}}

	w := do(newRouter(svc, borrower), http.MethodPost, "/api/items/item-1/checkout", `{"quantity":2}`)

	require.Equal(t, http.StatusAccepted, w.Code)
	approval := decode(t, w)["approval"].(map[string]any)
	assert.Equal(t, "a-1", approval["id"])
	assert.Equal(t, "PENDING", approval["status"])
}

func Test_Checkout_BorrowerBypassWithoutBody(t *testing.T) {
	svc := &stubService{submit: func(_ tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error) {
		return &lending.SubmitResult{Lendings: []models.Lending{{ID: "l-1", ItemID: in.ItemID, State: models.LendingActive}}}, nil
	}}

	w := do(newRouter(svc, borrower), http.MethodPost, "/api/items/item-1/checkout", "")

	assert.Equal(t, http.StatusCreated, w.Code)
}

func Test_ErrorMapping(t *testing.T) {
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"tenant", lending.ErrTenantMismatch, http.StatusForbidden, "tenant_mismatch"},
		{"unauthorized", lending.ErrUnauthorized, http.StatusForbidden, "forbidden"},
		{"not found", lending.ErrNotFound, http.StatusNotFound, "not_found"},
		{"wrapped availability", fmt.Errorf("checkout: %w", lending.ErrInsufficientAvailability), http.StatusConflict, "insufficient_availability"},
		{"blacklisted", &lending.BlacklistedError{UserID: "u-1", BlockedUntil: until, Reason: "late"}, http.StatusConflict, "borrower_blacklisted"},
		{"limit", lending.ErrLendingLimitReached, http.StatusConflict, "lending_limit_reached"},
		{"approval required", lending.ErrApprovalRequired, http.StatusConflict, "approval_required"},
		{"due date", lending.ErrInvalidDueDate, http.StatusBadRequest, "invalid_due_date"},
		{"infrastructure", errors.New("connection refused"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubService{checkout: func(tenant.Principal, lending.CheckoutInput) ([]models.Lending, error) { return nil, tc.err }}

			w := do(newRouter(svc, staff), http.MethodPost, "/api/items/item-1/checkout", `{"borrowerId":"u-1"}`)

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tc.code, body["error"])
			if tc.status == http.StatusInternalServerError {
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
			if tc.code == "borrower_blacklisted" {
				assert.Equal(t, "2026-06-01T00:00:00Z", body["blockedUntil"])
			}
		})
	}
}

func Test_Return_ParsesCondition(t *testing.T) {
	svc := &stubService{ret: func(id string, in lending.ReturnInput) (*lending.ReturnResult, error) {
		assert.Equal(t, "l-1", id)
		assert.Equal(t, penalty.ConditionDamaged, in.Condition)
		return &lending.ReturnResult{
			Lending:   &models.Lending{ID: id, State: models.LendingReturned},
			Penalty:   penalty.Result{Kind: penalty.KindDamaged, Amount: decimal.NewFromInt(20), BlacklistDays: 14},
			Blacklist: &models.BlacklistEntry{ID: "b-1"},
		}, nil
	}}
	r := newRouter(svc, staff)

	w := do(r, http.MethodPost, "/api/lendings/l-1/return", `{"condition":"DAMAGED"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "returned", body["lending"].(map[string]any)["state"])
	assert.Equal(t, "20", body["penalty"].(map[string]any)["amount"])
	assert.Equal(t, "b-1", body["blacklist"].(map[string]any)["id"])

	w = do(r, http.MethodPost, "/api/lendings/l-1/return", `{"condition":"stolen"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func Test_PreviewPenalty(t *testing.T) {
	svc := &stubService{preview: func(id string, cond penalty.Condition) (penalty.Result, error) {
		assert.Equal(t, penalty.ConditionGood, cond)
		return penalty.Result{Kind: penalty.KindLate, DaysLate: 2, Amount: decimal.NewFromInt(2), BlacklistDays: 6}, nil
	}}

	w := do(newRouter(svc, borrower), http.MethodGet, "/api/lendings/l-1/penalty", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 6, decode(t, w)["blacklistDays"])
}

func Test_OverridePenalty(t *testing.T) {
	svc := &stubService{override: func(id string, amount decimal.Decimal, reason string) (*models.Lending, error) {
		assert.Equal(t, "12.5", amount.String())
		assert.Equal(t, "goodwill", reason)
		return &models.Lending{ID: id, State: models.LendingReturned, PenaltyOverridden: true}, nil
	}}

	w := do(newRouter(svc, staff), http.MethodPut, "/api/lendings/l-1/penalty", `{"amount":"12.50","reason":"goodwill"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(newRouter(svc, staff), http.MethodPut, "/api/lendings/l-1/penalty", `{"reason":"no amount"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(svc, borrower), http.MethodPut, "/api/lendings/l-1/penalty", `{"amount":1}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func Test_Renew_ByRole(t *testing.T) {
	svc := &stubService{
		renew: func(id string, due time.Time) (*models.Lending, error) {
			assert.True(t, due.IsZero())
			return &models.Lending{ID: id, State: models.LendingActive, RenewalCount: 1}, nil
		},
		submit: func(_ tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error) {
			assert.Equal(t, models.ApprovalExtension, in.Type)
			assert.Equal(t, "l-1", in.LendingID)
			return &lending.SubmitResult{Approval: &models.ApprovalRequest{ID: "a-1"}}, nil
		},
	}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/lendings/l-1/renew", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(newRouter(svc, borrower), http.MethodPost, "/api/lendings/l-1/renew", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func Test_ListLendings_Query(t *testing.T) {
	svc := &stubService{list: func(f lending.LendingFilter) (*db.PagedLendings, error) {
		assert.Equal(t, models.LendingOverdue, f.Status)
		assert.Equal(t, "item-1", f.ItemID)
		assert.Equal(t, 2, f.Page.Page)
		return &db.PagedLendings{Total: 1, Items: []models.Lending{{ID: "l-1", State: models.LendingActive}}}, nil
	}}

	w := do(newRouter(svc, staff), http.MethodGet, "/api/lendings?status=overdue&itemId=item-1&page=2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total"])
}

func Test_Decide(t *testing.T) {
	svc := &stubService{decide: func(id string, d models.ApprovalStatus, notes string) (*lending.DecisionResult, error) {
		assert.Equal(t, models.ApprovalApproved, d)
		return &lending.DecisionResult{
			Approval: &models.ApprovalRequest{ID: id, Status: d},
			Lendings: []models.Lending{{ID: "l-1", State: models.LendingActive}},
		}, nil
	}}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/approvals/a-1/decision", `{"decision":"approved","notes":"ok"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["lendings"], 1)

	w = do(newRouter(svc, staff), http.MethodPost, "/api/approvals/a-1/decision", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(svc, borrower), http.MethodPost, "/api/approvals/a-1/decision", `{"decision":"APPROVED"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func Test_Decide_InvalidTransition(t *testing.T) {
	svc := &stubService{decide: func(string, models.ApprovalStatus, string) (*lending.DecisionResult, error) {
		return nil, fmt.Errorf("%w: request is REJECTED", lending.ErrInvalidTransition)
	}}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/approvals/a-1/decision", `{"decision":"APPROVED"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", decode(t, w)["error"])
}

func Test_SubmitAndCancel(t *testing.T) {
	svc := &stubService{
		submit: func(_ tenant.Principal, in lending.SubmitInput) (*lending.SubmitResult, error) {
			assert.Equal(t, models.ApprovalReservation, in.Type)
			return &lending.SubmitResult{Approval: &models.ApprovalRequest{ID: "a-1"}}, nil
		},
		cancel: func(id string) (*models.ApprovalRequest, error) {
			return &models.ApprovalRequest{ID: id, Status: models.ApprovalCancelled}, nil
		},
		approvals: func(status models.ApprovalStatus, _ db.Page) (*db.PagedApprovals, error) {
			assert.Equal(t, models.ApprovalPending, status)
			return &db.PagedApprovals{}, nil
		},
	}
	r := newRouter(svc, borrower)

	w := do(r, http.MethodPost, "/api/approvals", `{"type":"Reservation","itemId":"item-1"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(r, http.MethodPost, "/api/approvals/a-1/cancel", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	w = do(r, http.MethodGet, "/api/approvals?status=pending", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func Test_Blacklist(t *testing.T) {
	svc := &stubService{
		addBL: func(in lending.BlacklistInput) (*models.BlacklistEntry, error) {
			assert.Equal(t, 7, in.Days)
			return &models.BlacklistEntry{ID: "b-1", UserID: in.UserID, IsActive: true}, nil
		},
		removeBL: func(id string) (*models.BlacklistEntry, error) {
			return nil, lending.ErrNotFound
		},
	}

	w := do(newRouter(svc, staff), http.MethodPost, "/api/blacklist", `{"userId":"u-1","reason":"x","days":7}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(newRouter(svc, staff), http.MethodPost, "/api/blacklist", `{"userId":"u-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(newRouter(svc, staff), http.MethodDelete, "/api/blacklist/b-9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(newRouter(svc, borrower), http.MethodPost, "/api/blacklist", `{"userId":"u-1","reason":"x","days":7}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
