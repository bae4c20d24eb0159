package controllers

import (
	"net/http"
	"strings"
	"time"

	"Gin_postgres_redis_lending_engine/app"
	"Gin_postgres_redis_lending_engine/lending"
	"Gin_postgres_redis_lending_engine/models"

	"github.com/gin-gonic/gin"
)

type ApprovalController struct{ *Srv }

func NewApprovalController(s *Srv) *ApprovalController { return &ApprovalController{Srv: s} }

type submitReq struct {
	Type      string     `json:"type"`
	ItemID    string     `json:"itemId"`
	LendingID string     `json:"lendingId"`
	DueDate   *time.Time `json:"dueDate"`
	Notes     string     `json:"notes"`
	Quantity  int        `json:"quantity"`
}

func (ac *ApprovalController) Submit(c *gin.Context) {
	p, ok := ac.principal(c)
	if !ok {
		return
	}
	var in submitReq
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	res, err := ac.Engine.Submit(c.Request.Context(), p, lending.SubmitInput{
		Type:      models.ApprovalType(strings.ToLower(in.Type)),
		ItemID:    in.ItemID,
		LendingID: in.LendingID,
		DueDate:   derefTime(in.DueDate),
		Notes:     in.Notes,
		Quantity:  in.Quantity,
	})
	if err != nil {
		ac.fail(c, err)
		return
	}
	ac.submitted(c, res)
}

func (ac *ApprovalController) Decide(c *gin.Context) {
	p, ok := ac.principal(c)
	if !ok {
		return
	}
	var in struct {
		Decision string `json:"decision" binding:"required"`
		Notes    string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	res, err := ac.Engine.Decide(c.Request.Context(), p, c.Param("id"),
		models.ApprovalStatus(strings.ToUpper(in.Decision)), in.Notes)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"approval": res.Approval, "lendings": ac.views(res.Lendings)})
}

func (ac *ApprovalController) Cancel(c *gin.Context) {
	p, ok := ac.principal(c)
	if !ok {
		return
	}
	a, err := ac.Engine.Cancel(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// List: staff get the tenant queue, borrowers their own requests.
func (ac *ApprovalController) List(c *gin.Context) {
	p, ok := ac.principal(c)
	if !ok {
		return
	}
	res, err := ac.Engine.ListApprovals(c.Request.Context(), p,
		models.ApprovalStatus(strings.ToUpper(c.Query("status"))), pageFrom(c))
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
