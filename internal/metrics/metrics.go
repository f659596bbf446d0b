package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics: метрики сервиса, зарегистрированные в собственном реестре.
type Metrics struct {
	registry *prometheus.Registry

	// VerificationIssued: выдачи кодов подтверждения e-mail по результату
	// (issued, rate_limited, cooldown, error).
	VerificationIssued *prometheus.CounterVec
	// VerificationConsumed: попытки подтверждения по способу (code, token)
	// и результату (ok, invalid, error).
	VerificationConsumed *prometheus.CounterVec
	// RecoveryEvents: события восстановления пароля по действию и результату.
	RecoveryEvents *prometheus.CounterVec
	// EmailsSent: отправка писем по шаблону и результату.
	EmailsSent *prometheus.CounterVec
	// RegistrationAttempts: попытки регистрации по результату.
	RegistrationAttempts *prometheus.CounterVec
	LoginAttempts        *prometheus.CounterVec
	// RequestDuration: время обработки HTTP-запросов.
	RequestDuration *prometheus.HistogramVec
	// RateLimited: запросы, отклонённые лимитером по IP.
	RateLimited *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		VerificationIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_email_verification_issued_total",
			Help: "Email verification challenges issued, by result",
		}, []string{"result"}),
		VerificationConsumed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_email_verification_consumed_total",
			Help: "Email verification consume attempts, by method and result",
		}, []string{"method", "result"}),
		RecoveryEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_password_recovery_events_total",
			Help: "Password recovery events, by action and result",
		}, []string{"action", "result"}),
		EmailsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_emails_sent_total",
			Help: "Outgoing emails, by template and result",
		}, []string{"template", "result"}),
		RegistrationAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_registration_attempts_total",
			Help: "Registration attempts, by result",
		}, []string{"result"}),
		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_login_attempts_total",
			Help: "Login attempts, by result",
		}, []string{"result"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vibe_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vibe_http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter, by route",
		}, []string{"route"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
