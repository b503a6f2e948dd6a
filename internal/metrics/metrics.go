// Package metrics exposes Prometheus counters for the identity flows.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records OTP and sign-in outcomes
type Collector struct {
	otpIssued         *prometheus.CounterVec
	otpRateLimited    *prometheus.CounterVec
	otpDeliveryFailed *prometheus.CounterVec
	otpVerifications  *prometheus.CounterVec
	logins            *prometheus.CounterVec
}

// NewCollector registers the counters on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bharatgpt_otp_issued_total",
			Help: "One-time codes stored and delivered, by purpose.",
		}, []string{"purpose"}),
		otpRateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bharatgpt_otp_rate_limited_total",
			Help: "Code requests rejected by the resend cooldown, by purpose.",
		}, []string{"purpose"}),
		otpDeliveryFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bharatgpt_otp_delivery_failed_total",
			Help: "Codes rolled back because the mail could not be sent, by purpose.",
		}, []string{"purpose"}),
		otpVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bharatgpt_otp_verifications_total",
			Help: "Code verification attempts, by purpose and result.",
		}, []string{"purpose", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bharatgpt_logins_total",
			Help: "Session issuance attempts, by method and result.",
		}, []string{"method", "result"}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpRateLimited,
		c.otpDeliveryFailed,
		c.otpVerifications,
		c.logins,
	)

	return c
}

func (c *Collector) OTPIssued(purpose string) {
	c.otpIssued.WithLabelValues(purpose).Inc()
}

func (c *Collector) OTPRateLimited(purpose string) {
	c.otpRateLimited.WithLabelValues(purpose).Inc()
}

func (c *Collector) OTPDeliveryFailed(purpose string) {
	c.otpDeliveryFailed.WithLabelValues(purpose).Inc()
}

func (c *Collector) OTPVerification(purpose, result string) {
	c.otpVerifications.WithLabelValues(purpose, result).Inc()
}

// Login records a sign-in attempt; method is password, otp, registration or google
func (c *Collector) Login(method, result string) {
	c.logins.WithLabelValues(method, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
