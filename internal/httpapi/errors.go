package httpapi

import "github.com/gin-gonic/gin"

// rejection is the body of a refused delivery. Accepted deliveries answer
// with the receiver's ack as is.
type rejection struct {
	Error    string `json:"error"`
	Endpoint string `json:"endpoint,omitempty"`
}

func reject(c *gin.Context, status int, endpoint, message string) {
	c.AbortWithStatusJSON(status, rejection{Error: message, Endpoint: endpoint})
}
