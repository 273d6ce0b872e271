// Package gin reads the run-trace header in gin routers.
//
//	router := gin.New()
//	router.Use(lsgin.Middleware())
//	router.POST("/runs", func(c *gin.Context) {
//	    tc := lsgin.TraceContext(c)
//	    ...
//	})
package gin
