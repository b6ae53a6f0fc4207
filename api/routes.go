package api

import "github.com/gin-gonic/gin"

func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/api/status", handlers.GetStatus)
	router.GET("/api/stats", handlers.GetStats)
	router.POST("/api/stats/reset", handlers.ResetStats)
	router.POST("/api/send", handlers.SendPacket)
	router.POST("/api/exchange", handlers.Exchange)
	router.POST("/api/latency", handlers.MeasureLatency)
	router.POST("/api/stress", handlers.StressTest)
	router.POST("/api/dut/command", handlers.DUTCommand)
}
