// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/DriftWarden/services/warden/app"
	"github.com/AleutianAI/DriftWarden/services/warden/handlers"
)

// SetupRoutes registers the warden API on router. A nil gatherer leaves
// /metrics unregistered.
func SetupRoutes(router *gin.Engine, a *app.App, gatherer prometheus.Gatherer) {
	router.GET("/health", handlers.HealthCheck(a))
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	{
		sources := v1.Group("/sources")
		{
			sources.GET("", handlers.ListSources(a.Registry))
			sources.GET("/stats", handlers.GetStats(a.Registry))
			sources.GET("/:id", handlers.GetSource(a.Registry))

			res := sources.Group("/:id/resolver")
			{
				res.POST("", handlers.OpenResolver(a.Resolver))
				res.GET("", handlers.GetResolver(a.Resolver))
				res.DELETE("", handlers.CancelResolver(a.Resolver))
				res.POST("/generate", handlers.GenerateProposal(a.Resolver))
				res.POST("/back", handlers.ResolverBack(a.Resolver))
				res.POST("/review", handlers.ResolverReview(a.Resolver))
				res.GET("/preview", handlers.PreviewProposal(a.Resolver))
				res.POST("/execute", handlers.ExecutePatch(a.Resolver))
			}
		}

		v1.POST("/drift/simulate", handlers.SimulateDrift(a.Simulator))

		logs := v1.Group("/logs")
		{
			logs.GET("", handlers.ListLogs(a.Events))
			logs.DELETE("", handlers.ClearLogs(a.Events))
			logs.GET("/ws", handlers.StreamLogs(a.Events, a.Logger))
		}

		v1.POST("/demo/reset", handlers.ResetDemo(a))
	}
}
