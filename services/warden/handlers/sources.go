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
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DriftWarden/services/warden/app"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
)

// HealthCheck reports liveness plus the AI mode and source count.
func HealthCheck(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"ai_mode": a.AI.Mode(),
			"sources": len(a.Registry.All()),
		})
	}
}

// ListSources handles GET /v1/sources.
func ListSources(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q datatypes.SourceQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		if err := q.Validate(); err != nil {
			badRequest(c, err)
			return
		}
		sources := reg.List(q)
		c.JSON(http.StatusOK, gin.H{"sources": sources, "count": len(sources)})
	}
}

// GetStats handles GET /v1/sources/stats.
func GetStats(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.Stats())
	}
}

// GetSource handles GET /v1/sources/:id.
func GetSource(reg *registry.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		src, ok := reg.Get(id)
		if !ok {
			abortWithError(c, fmt.Errorf("%w: %s", registry.ErrNotFound, id))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"source":  src,
			"version": src.DisplayVersion(),
			"patches": src.PatchCount(),
		})
	}
}

// ResetDemo handles POST /v1/demo/reset.
func ResetDemo(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := a.ResetDemo(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sources": sources, "stats": datatypes.ComputeStats(sources)})
	}
}
