package controllers

import (
	"net/http"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/lending"
	"Gin_postgres_redis_lending_engine/models"
	"Gin_postgres_redis_lending_engine/penalty"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type LendingController struct{ *Srv }

func NewLendingController(s *Srv) *LendingController { return &LendingController{Srv: s} }

type checkoutReq struct {
	BorrowerID string     `json:"borrowerId"`
	DueDate    *time.Time `json:"dueDate"`
	Notes      string     `json:"notes"`
	Quantity   int        `json:"quantity"`
}

// Checkout: staff lend directly; borrowers go through the approval gate and
// get 202 when their request has to wait for a decision.
func (lc *LendingController) Checkout(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	var in checkoutReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	itemID := c.Param("id")

	if p.IsStaff() {
		ls, err := lc.Engine.Checkout(c.Request.Context(), p, lending.CheckoutInput{
			ItemID:     itemID,
			BorrowerID: in.BorrowerID,
			DueDate:    derefTime(in.DueDate),
			Notes:      in.Notes,
			Quantity:   in.Quantity,
		})
		if err != nil {
			lc.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, app.H{"lendings": lc.views(ls)})
		return
	}

	res, err := lc.Engine.Submit(c.Request.Context(), p, lending.SubmitInput{
		Type:     models.ApprovalLending,
		ItemID:   itemID,
		DueDate:  derefTime(in.DueDate),
		Notes:    in.Notes,
		Quantity: in.Quantity,
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	lc.submitted(c, res)
}

func (lc *LendingController) GetLending(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	l, err := lc.Engine.GetLending(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lc.view(*l))
}

func (lc *LendingController) Return(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	var in struct {
		Condition string `json:"condition"`
		Notes     string `json:"notes"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	cond, err := penalty.ParseCondition(in.Condition)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := lc.Engine.Return(c.Request.Context(), p, c.Param("id"), lending.ReturnInput{Condition: cond, Notes: in.Notes})
	if err != nil {
		lc.fail(c, err)
		return
	}
	out := app.H{"lending": lc.view(*res.Lending), "penalty": res.Penalty}
	if res.Blacklist != nil {
		out["blacklist"] = res.Blacklist
	}
	c.JSON(http.StatusOK, out)
}

// ListLendings: ?status=active|overdue|returned&borrowerId=&itemId=&page=&size=
func (lc *LendingController) ListLendings(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	res, err := lc.Engine.ListLendings(c.Request.Context(), p, lending.LendingFilter{
		BorrowerID: c.Query("borrowerId"),
		ItemID:     c.Query("itemId"),
		Status:     models.LendingState(c.Query("status")),
		Page:       pageFrom(c),
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"total": res.Total, "items": lc.views(res.Items)})
}

// PreviewPenalty answers "what would I owe if I returned it now?".
func (lc *LendingController) PreviewPenalty(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	cond, err := penalty.ParseCondition(c.Query("condition"))
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := lc.Engine.PreviewPenalty(c.Request.Context(), p, c.Param("id"), cond)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (lc *LendingController) OverridePenalty(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	var in struct {
		Amount *decimal.Decimal `json:"amount"`
		Reason string           `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	if in.Amount == nil {
		c.JSON(http.StatusBadRequest, app.H{"error": "invalid_input", "message": "amount is required"})
		return
	}
	l, err := lc.Engine.OverridePenalty(c.Request.Context(), p, c.Param("id"), *in.Amount, in.Reason)
	if err != nil {
		lc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lc.view(*l))
}

// Renew: staff extend directly, borrowers submit an extension request.
func (lc *LendingController) Renew(c *gin.Context) {
	p, ok := lc.principal(c)
	if !ok {
		return
	}
	var in struct {
		DueDate *time.Time `json:"dueDate"`
		Notes   string     `json:"notes"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&in); err != nil {
			badRequest(c, err)
			return
		}
	}
	id := c.Param("id")

	if p.IsStaff() {
		l, err := lc.Engine.Renew(c.Request.Context(), p, id, derefTime(in.DueDate))
		if err != nil {
			lc.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, lc.view(*l))
		return
	}

	res, err := lc.Engine.Submit(c.Request.Context(), p, lending.SubmitInput{
		Type:      models.ApprovalExtension,
		LendingID: id,
		DueDate:   derefTime(in.DueDate),
		Notes:     in.Notes,
	})
	if err != nil {
		lc.fail(c, err)
		return
	}
	if res.Pending() {
		c.JSON(http.StatusAccepted, app.H{"approval": res.Approval})
		return
	}
	c.JSON(http.StatusOK, lc.view(res.Lendings[0]))
}

func (s *Srv) submitted(c *gin.Context, res *lending.SubmitResult) {
	if res.Pending() {
		c.JSON(http.StatusAccepted, app.H{"approval": res.Approval})
		return
	}
	c.JSON(http.StatusCreated, app.H{"lendings": s.views(res.Lendings)})
}
