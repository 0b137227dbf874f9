package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPWhitelist returns a middleware that only allows requests from specified
// IPs or CIDR ranges. If the whitelist is empty, all IPs are allowed.
func IPWhitelist(ips []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(ips))
	var nets []*net.IPNet
	for _, ip := range ips {
		if strings.Contains(ip, "/") {
			if _, n, err := net.ParseCIDR(ip); err == nil {
				nets = append(nets, n)
			}
			continue
		}
		allowed[ip] = true
	}
	permit := func(client string) bool {
		if allowed[client] {
			return true
		}
		ip := net.ParseIP(client)
		for _, n := range nets {
			if ip != nil && n.Contains(ip) {
				return true
			}
		}
		return false
	}
	return func(c *gin.Context) {
		if len(ips) == 0 {
			c.Next()
			return
		}
		if !permit(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}
