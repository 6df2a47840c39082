// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the warden HTTP API on gin.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/DriftWarden/services/warden/analysis"
	"github.com/AleutianAI/DriftWarden/services/warden/app"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/registry"
	"github.com/AleutianAI/DriftWarden/services/warden/resolver"
	"github.com/AleutianAI/DriftWarden/services/warden/simulator"
)

// statusFor maps a workflow error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, resolver.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, resolver.ErrInvalidState),
		errors.Is(err, resolver.ErrBusy),
		errors.Is(err, resolver.ErrNotInterruptible),
		errors.Is(err, simulator.ErrBusy),
		errors.Is(err, simulator.ErrNotHealthy),
		errors.Is(err, app.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, analysis.ErrUnavailable), errors.Is(err, resolver.ErrPhaseFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, datatypes.ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
}
