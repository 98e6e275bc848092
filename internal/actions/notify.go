package actions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pipewise/pipewise/agent-core/internal/ratelimit"
	"github.com/pipewise/pipewise/agent-core/internal/store"
	"github.com/pipewise/pipewise/agent-core/pkg/models"
)

// NotificationDispatcher sends notifications. Channel selection follows the
// org's role-routing table when the action names a role, otherwise urgency
// picks defaults. Non-urgent sends inside quiet hours are suppressed, and a
// fixed-window per-recipient rate limit prevents notification storms. Every
// attempt is recorded with its terminal status; suppressed and rate-limited
// sends are outcomes, not errors.
type NotificationDispatcher struct {
	store    store.Store
	settings models.AgentSettings
	limiter  ratelimit.Limiter
	now      func() time.Time
}

func NewNotificationDispatcher(s store.Store, settings models.AgentSettings, limiter ratelimit.Limiter) *NotificationDispatcher {
	return &NotificationDispatcher{
		store:    s,
		settings: settings,
		limiter:  limiter,
		now:      time.Now,
	}
}

// SetClock overrides the time source, for quiet-hours tests.
func (h *NotificationDispatcher) SetClock(now func() time.Time) { h.now = now }

func (h *NotificationDispatcher) Kind() models.ActionKind { return models.ActionSendNotification }

func (h *NotificationDispatcher) Execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	params := req.Action.SendNotification

	recipients, err := h.resolveRecipients(ctx, req.OrgID, params)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, &NotFoundError{Entity: "recipients for role", Key: params.Role}
	}

	channels := h.channelsFor(params)
	urgent := params.Urgency == models.UrgencyHigh || params.Urgency == models.UrgencyCritical
	quiet := !urgent && h.inQuietHours(h.now())
	window := time.Duration(h.settings.RateWindowMinutes) * time.Minute

	counts := map[models.NotificationStatus]int{}
	for _, recipient := range recipients {
		status := models.NotificationSent
		if quiet {
			status = models.NotificationSuppressed
		} else {
			allowed, err := h.limiter.Allow(ctx, "notify:"+req.OrgID+":"+recipient,
				h.settings.NotificationRateLimit, window)
			if err != nil {
				return nil, fmt.Errorf("rate limit check: %w", err)
			}
			if !allowed {
				status = models.NotificationRateLimited
			}
		}

		for _, channel := range channels {
			n := &models.Notification{
				ID:        uuid.NewString(),
				OrgID:     req.OrgID,
				Recipient: recipient,
				Channel:   channel,
				Subject:   params.Subject,
				Body:      params.Body,
				Urgency:   params.Urgency,
				Status:    status,
				CreatedAt: h.now().UTC(),
			}
			if err := h.store.CreateNotification(ctx, n); err != nil {
				return nil, fmt.Errorf("record notification: %w", err)
			}
		}
		counts[status]++

		if status != models.NotificationSent {
			log.Debug().
				Str("org_id", req.OrgID).
				Str("recipient", recipient).
				Str("status", string(status)).
				Msg("notification not delivered")
		}
	}

	return map[string]interface{}{
		"recipients":   len(recipients),
		"channels":     channelNames(channels),
		"sent":         counts[models.NotificationSent],
		"suppressed":   counts[models.NotificationSuppressed],
		"rate_limited": counts[models.NotificationRateLimited],
	}, nil
}

// resolveRecipients returns the explicit recipient list, or expands a role
// to the emails of every pipeline member holding it.
func (h *NotificationDispatcher) resolveRecipients(ctx context.Context, orgID string, params *models.SendNotificationParams) ([]string, error) {
	if len(params.Recipients) > 0 {
		return params.Recipients, nil
	}

	pipelines, err := h.store.ListPipelines(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}

	seen := map[string]bool{}
	var recipients []string
	for _, p := range pipelines {
		for _, m := range p.Members {
			if !strings.EqualFold(m.Role, params.Role) || m.Email == "" || seen[m.Email] {
				continue
			}
			seen[m.Email] = true
			recipients = append(recipients, m.Email)
		}
	}
	return recipients, nil
}

func (h *NotificationDispatcher) channelsFor(params *models.SendNotificationParams) []models.NotificationChannel {
	if params.Role != "" {
		if channels, ok := h.settings.RoleRouting[params.Role]; ok && len(channels) > 0 {
			return channels
		}
	}
	switch params.Urgency {
	case models.UrgencyCritical:
		return []models.NotificationChannel{models.ChannelEmail, models.ChannelSMS, models.ChannelPush}
	case models.UrgencyHigh:
		return []models.NotificationChannel{models.ChannelEmail, models.ChannelPush}
	default:
		return []models.NotificationChannel{models.ChannelInApp}
	}
}

// inQuietHours reports whether t falls in the configured window. Windows
// crossing midnight (22:00 → 07:00) are supported.
func (h *NotificationDispatcher) inQuietHours(t time.Time) bool {
	q := h.settings.QuietHours
	if !q.Enabled() {
		return false
	}

	loc := time.UTC
	if q.Timezone != "" {
		if parsed, err := time.LoadLocation(q.Timezone); err == nil {
			loc = parsed
		} else {
			log.Warn().Str("timezone", q.Timezone).Msg("unknown quiet-hours timezone, using UTC")
		}
	}

	start, okStart := parseClock(q.Start)
	end, okEnd := parseClock(q.End)
	if !okStart || !okEnd {
		log.Warn().Str("start", q.Start).Str("end", q.End).Msg("malformed quiet-hours window, ignoring")
		return false
	}

	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	// Crosses midnight.
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" to minutes past midnight.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s, "%d:%d", &hh, &mm); err != nil {
		return 0, false
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, false
	}
	return hh*60 + mm, true
}

func channelNames(channels []models.NotificationChannel) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = string(c)
	}
	return names
}
