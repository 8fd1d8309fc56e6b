package utils

import "github.com/gin-gonic/gin"

// SendErrorResponse writes a standard error envelope
func SendErrorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// SendDataResponse writes a standard data envelope
func SendDataResponse(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"data": data})
}
