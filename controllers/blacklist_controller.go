package controllers

import (
	"net/http"
	"time"

	"Gin_postgres_redis_lending_engine/lending"

	"github.com/gin-gonic/gin"
)

type BlacklistController struct{ *Srv }

func NewBlacklistController(s *Srv) *BlacklistController { return &BlacklistController{Srv: s} }

func (bc *BlacklistController) Add(c *gin.Context) {
	p, ok := bc.principal(c)
	if !ok {
		return
	}
	var in struct {
		UserID       string     `json:"userId" binding:"required"`
		InstanceID   string     `json:"instanceId"`
		Reason       string     `json:"reason" binding:"required"`
		BlockedUntil *time.Time `json:"blockedUntil"`
		Days         int        `json:"days"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	e, err := bc.Engine.AddBlacklist(c.Request.Context(), p, lending.BlacklistInput{
		UserID:       in.UserID,
		InstanceID:   in.InstanceID,
		Reason:       in.Reason,
		BlockedUntil: derefTime(in.BlockedUntil),
		Days:         in.Days,
	})
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (bc *BlacklistController) Remove(c *gin.Context) {
	p, ok := bc.principal(c)
	if !ok {
		return
	}
	e, err := bc.Engine.RemoveBlacklist(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		bc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}
