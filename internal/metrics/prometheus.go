package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginCodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resalehub_login_codes_issued_total",
		Help: "Login codes handed out, split by fresh and reused",
	}, []string{"reused"})

	CodeVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resalehub_code_verifications_total",
		Help: "Login code verification attempts by result",
	}, []string{"result"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resalehub_redemptions_total",
		Help: "Redemption key submissions by result",
	}, []string{"result"})

	ExpiredCodesReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resalehub_expired_codes_reaped_total",
		Help: "Expired login codes removed by the reaper job",
	})

	VipUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "resalehub_vip_users",
		Help: "Current number of users with an active paid tier",
	})

	BotUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "resalehub_bot_updates_total",
		Help: "Telegram updates processed by the bot, by outcome",
	}, []string{"outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resalehub_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func IncLoginCodeIssued(reused bool) {
	label := "false"
	if reused {
		label = "true"
	}
	LoginCodesIssued.WithLabelValues(label).Inc()
}

func IncVerify(result string) {
	CodeVerifications.WithLabelValues(normalizeLabel(result)).Inc()
}

func IncRedeem(result string) {
	Redemptions.WithLabelValues(normalizeLabel(result)).Inc()
}

func AddExpiredCodesReaped(count int64) {
	if count > 0 {
		ExpiredCodesReaped.Add(float64(count))
	}
}

func SetVipUsers(count int64) {
	if count < 0 {
		count = 0
	}
	VipUsers.Set(float64(count))
}

func IncBotUpdate(outcome string) {
	BotUpdates.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func ObserveRequestDuration(route, status string, duration time.Duration) {
	RequestDuration.WithLabelValues(normalizeLabel(route), normalizeLabel(status)).Observe(duration.Seconds())
}

func normalizeLabel(raw string) string {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "unknown"
	}
	return label
}
