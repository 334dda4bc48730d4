package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"lifeplan/internal/log"
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	BlockedRequests    int64
	InvalidIPAttempts  int64
}

// Detector flags suspicious requests and resolves client addresses behind
// trusted proxies.
type Detector struct {
	suspicious int64
	blocked    int64
	invalidIP  int64

	mu             sync.RWMutex
	trustedProxies []*net.IPNet
}

var (
	suspiciousPatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	suspiciousAgents = []string{
		"sqlmap", "nmap", "nikto", "gobuster", "dirb",
		"masscan", "zgrab", "scanner",
	}
	unusualMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

const maxURLLength = 2048

// NewDetector trusts loopback and the private ranges as proxies.
func NewDetector() *Detector {
	return &Detector{
		trustedProxies: []*net.IPNet{
			parseCIDR("127.0.0.0/8"),
			parseCIDR("10.0.0.0/8"),
			parseCIDR("172.16.0.0/12"),
			parseCIDR("192.168.0.0/16"),
			parseCIDR("::1/128"),
		},
	}
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// Inspect returns the reason a request looks like probing, if any.
func (d *Detector) Inspect(r *http.Request) (string, bool) {
	path := strings.ToLower(r.URL.Path)
	query := r.URL.RawQuery
	if unescaped, err := url.QueryUnescape(query); err == nil {
		query = unescaped
	}
	query = strings.ToLower(query)
	for _, p := range suspiciousPatterns {
		if strings.Contains(path, p) {
			return "path:" + p, true
		}
		if strings.Contains(query, p) {
			return "query:" + p, true
		}
	}

	ua := strings.ToLower(r.Header.Get("User-Agent"))
	for _, a := range suspiciousAgents {
		if strings.Contains(ua, a) {
			return "agent:" + a, true
		}
	}

	if unusualMethods[r.Method] {
		return "method:" + r.Method, true
	}
	if len(r.URL.String()) > maxURLLength {
		return "url_length", true
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5 {
		return "forwarded_hops", true
	}
	return "", false
}

// DetectSuspiciousRequest counts and reports whether r looks like probing.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	_, suspicious := d.Inspect(r)
	if suspicious {
		atomic.AddInt64(&d.suspicious, 1)
	}
	return suspicious
}

// Middleware logs suspicious requests. With block set they are answered with
// 400 instead of reaching next.
func (d *Detector) Middleware(block bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason, suspicious := d.Inspect(r)
			if !suspicious {
				next.ServeHTTP(w, r)
				return
			}
			atomic.AddInt64(&d.suspicious, 1)
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				"reason", reason,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			if block {
				atomic.AddInt64(&d.blocked, 1)
				http.Error(w, "Bad request", http.StatusBadRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractClientIP extracts the real client IP, validating forwarded headers
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !d.isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if net.ParseIP(first) != nil {
			return first
		}
		atomic.AddInt64(&d.invalidIP, 1)
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
		atomic.AddInt64(&d.invalidIP, 1)
	}

	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// GetMetrics returns current security metrics
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.suspicious),
		BlockedRequests:    atomic.LoadInt64(&d.blocked),
		InvalidIPAttempts:  atomic.LoadInt64(&d.invalidIP),
	}
}

// AddTrustedProxy adds a trusted proxy network
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}

	d.mu.Lock()
	d.trustedProxies = append(d.trustedProxies, network)
	d.mu.Unlock()
	return nil
}
