// Copyright (C) 2025 Harborline Technologies (engineering@harborline.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/harborline/claimguard/services/claims/handlers"
	"github.com/harborline/claimguard/services/decision"
	"github.com/harborline/claimguard/services/retrieval"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, orch *decision.ValidationOrchestrator,
	ingestor *retrieval.PolicyIngestor) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/claims/validate", handlers.ValidateClaim(orch))
		v1.POST("/policies", handlers.IngestPolicyDocument(ingestor))
	}
}
