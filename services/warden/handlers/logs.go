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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/DriftWarden/pkg/logging"
	"github.com/AleutianAI/DriftWarden/services/warden/datatypes"
	"github.com/AleutianAI/DriftWarden/services/warden/eventlog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// ListLogs handles GET /v1/logs.
func ListLogs(events *eventlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q datatypes.LogQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			badRequest(c, err)
			return
		}
		if err := q.Validate(); err != nil {
			badRequest(c, err)
			return
		}
		entries := q.Apply(events.List())
		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"count":   len(entries),
			"evicted": events.Evicted(),
		})
	}
}

// ClearLogs handles DELETE /v1/logs.
func ClearLogs(events *eventlog.Log) gin.HandlerFunc {
	return func(c *gin.Context) {
		events.Clear()
		c.Status(http.StatusNoContent)
	}
}

// StreamLogs handles GET /v1/logs/ws.
//
// Each event log entry is sent as one JSON text message. The retained
// entries are replayed first unless ?backlog=false.
func StreamLogs(events *eventlog.Log, logger *logging.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With("component", "log_stream")
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("failed to upgrade log stream", "remote", c.ClientIP(), "error", err)
			return
		}
		defer ws.Close()
		logger.Debug("log stream opened", "remote", c.ClientIP())

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		// Subscribe before replaying so nothing appended in between is lost.
		live := events.Subscribe(ctx, 0)
		seen := make(map[string]struct{})
		if c.Query("backlog") != "false" {
			for _, e := range events.List() {
				if err := writeEntry(ws, e); err != nil {
					logger.Debug("log stream closed", "error", err)
					return
				}
				seen[e.ID] = struct{}{}
			}
		}

		go func() {
			defer cancel()
			for {
				if _, _, err := ws.NextReader(); err != nil {
					return
				}
			}
		}()

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			select {
			case e, ok := <-live:
				if !ok {
					return
				}
				if _, dup := seen[e.ID]; dup {
					delete(seen, e.ID)
					continue
				}
				if err := writeEntry(ws, e); err != nil {
					logger.Debug("log stream closed", "error", err)
					return
				}
			case <-ping.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}

func writeEntry(ws *websocket.Conn, e datatypes.LogEntry) error {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return ws.WriteJSON(e)
}
