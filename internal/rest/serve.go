// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package rest serves read-only pipeline progress over HTTP while an
// offline stacking run is in flight. Strictly observational: it never
// mutates the registration context.
package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/astroluck/luckystack/internal/driver"
)

// Serve blocks, listening on addr and answering status queries against
// the given driver's progress counters.
func Serve(addr string, d *driver.Driver) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/status", getStatus(d))
		}
	}
	return r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func getStatus(d *driver.Driver) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, d.Progress().Snapshot())
	}
}
