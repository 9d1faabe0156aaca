package engine

import (
	"context"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/controltower/notifier/internal/metrics"
	"github.com/controltower/notifier/internal/models"
	"github.com/controltower/notifier/pkg/utils"
)

// Directory is the user lookup capability the resolver depends on.
// Name matching is exact; that fragility is owned by the collaborator,
// not worked around here.
type Directory interface {
	FindUsersByName(ctx context.Context, name string) ([]*models.User, error)
	FindUsersByRole(ctx context.Context, role string) ([]*models.User, error)
}

// ResolveOptions controls recipient resolution variants
type ResolveOptions struct {
	// IncludeBroadcastRole adds every holder of the broadcast role,
	// ignoring the deployment's recipient toggles. Used by the daily
	// scheduled path only.
	IncludeBroadcastRole bool
}

// Resolver computes deduplicated notification recipient sets
type Resolver struct {
	directory      Directory
	broadcastRole  string
	logger         *logrus.Entry
	metricsManager *metrics.Manager
}

// NewResolver creates a recipient resolver
func NewResolver(directory Directory, broadcastRole string, metricsManager *metrics.Manager) *Resolver {
	return &Resolver{
		directory:      directory,
		broadcastRole:  broadcastRole,
		logger:         utils.ComponentLogger("resolver"),
		metricsManager: metricsManager,
	}
}

// ResolveRecipients combines explicit recipient lists with role-based
// lookups into a deduplicated set of email addresses. A failed or empty
// lookup for any single name contributes nothing; resolution as a whole
// never fails.
func (r *Resolver) ResolveRecipients(ctx context.Context, dep *models.Deployment, product *models.Product, cfg *models.AlertConfig, opts ResolveOptions) []string {
	set := make(map[string]struct{})

	add := func(email string) {
		email = strings.TrimSpace(email)
		if email != "" {
			set[email] = struct{}{}
		}
	}

	for _, email := range dep.NotificationEmails {
		add(email)
	}

	if cfg != nil {
		for _, email := range cfg.AdditionalEmails {
			add(email)
		}
	}

	if product != nil {
		if cfg == nil || cfg.NotifyProductOwners == nil || *cfg.NotifyProductOwners {
			r.addByName(ctx, set, product.ProductOwner)
		}
		if cfg == nil || cfg.NotifyEngineeringOwner == nil || *cfg.NotifyEngineeringOwner {
			r.addByName(ctx, set, product.EngineeringOwner)
		}
		if cfg == nil || cfg.NotifyDeliveryLead == nil || *cfg.NotifyDeliveryLead {
			r.addByName(ctx, set, product.DeliveryLead)
		}
	}

	// Deployment owner and delivery person are always consulted,
	// regardless of config toggles.
	r.addByName(ctx, set, dep.OwnerName)
	r.addByName(ctx, set, dep.DeliveryPerson)

	if opts.IncludeBroadcastRole {
		r.addByRole(ctx, set, r.broadcastRole)
	}

	recipients := make([]string, 0, len(set))
	for email := range set {
		recipients = append(recipients, email)
	}
	sort.Strings(recipients)

	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordRecipientsResolved(len(recipients))
	}

	return recipients
}

// addByName resolves a free-text name to user emails
func (r *Resolver) addByName(ctx context.Context, set map[string]struct{}, name string) {
	if name == "" {
		return
	}

	users, err := r.directory.FindUsersByName(ctx, name)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"name": name, "error": err}).Warn("User lookup failed")
		r.recordLookupFailure()
		return
	}
	if len(users) == 0 {
		r.logger.WithField("name", name).Warn("No user found for name")
		r.recordLookupFailure()
		return
	}

	for _, user := range users {
		if user.Email != "" {
			set[user.Email] = struct{}{}
		}
	}
}

// addByRole resolves every holder of a role
func (r *Resolver) addByRole(ctx context.Context, set map[string]struct{}, role string) {
	if role == "" {
		return
	}

	users, err := r.directory.FindUsersByRole(ctx, role)
	if err != nil {
		r.logger.WithFields(logrus.Fields{"role": role, "error": err}).Warn("Role lookup failed")
		r.recordLookupFailure()
		return
	}

	for _, user := range users {
		if user.Email != "" {
			set[user.Email] = struct{}{}
		}
	}
}

func (r *Resolver) recordLookupFailure() {
	if r.metricsManager != nil {
		r.metricsManager.GetPrometheusMetrics().RecordLookupFailure()
	}
}

// ResolveChatWebhook returns the chat webhook URL for a deployment.
// Precedence is strict: deployment override, then product default
// (unless the deployment opted out of it), then the process-wide
// default. The first non-empty value wins.
func ResolveChatWebhook(dep *models.Deployment, product *models.Product, defaultURL string) string {
	cfg := dep.AlertConfig
	if cfg != nil && cfg.GoogleChat != nil {
		if cfg.GoogleChat.WebhookURL != "" {
			return cfg.GoogleChat.WebhookURL
		}
		if cfg.GoogleChat.UseProductWebhook != nil && !*cfg.GoogleChat.UseProductWebhook {
			return defaultURL
		}
	}

	if url := product.ChatWebhookURL(); url != "" {
		return url
	}

	return defaultURL
}
