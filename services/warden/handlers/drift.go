// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
)

// SimulateDrift handles POST /v1/drift/simulate.
//
// The simulation runs on a context detached from the request so that a
// client hanging up does not leave it half applied.
func SimulateDrift(sim *simulator.Simulator) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := sim.Simulate(context.WithoutCancel(c.Request.Context()))
		if err != nil {
			if res.Outcome == simulator.OutcomeFailed {
				c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "result": res})
				return
			}
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// OpenResolver handles POST /v1/sources/:id/resolver.
func OpenResolver(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Open(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// GetResolver handles GET /v1/sources/:id/resolver.
func GetResolver(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Get(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// GenerateProposal handles POST /v1/sources/:id/resolver/generate.
func GenerateProposal(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Generate(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// ResolverBack handles POST /v1/sources/:id/resolver/back.
func ResolverBack(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Back(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// ResolverReview handles POST /v1/sources/:id/resolver/review.
func ResolverReview(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := m.Review(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// PreviewProposal handles GET /v1/sources/:id/resolver/preview.
func PreviewProposal(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := m.Preview(c.Param("id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// executeQuery selects blocking execution with ?wait=true.
type executeQuery struct {
	Wait bool `form:"wait"`
}

// ExecutePatch handles POST /v1/sources/:id/resolver/execute.
//
// By default the patch starts in the background and 202 is returned with
// the EXECUTING session. With ?wait=true the call blocks until the patch
// is committed or a phase fails.
func ExecutePatch(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q executeQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		id := c.Param("id")
		if !q.Wait {
			s, err := m.Start(c.Request.Context(), id)
			if err != nil {
				abortWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, s)
			return
		}
		s, err := m.Execute(c.Request.Context(), id)
		if err != nil {
			if s.SourceID != "" {
				c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error(), "session": s})
				return
			}
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, s)
	}
}

// CancelResolver handles DELETE /v1/sources/:id/resolver.
func CancelResolver(m *resolver.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := m.Cancel(c.Param("id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
