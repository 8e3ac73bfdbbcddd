package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"gorm.io/gorm"

	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/pulseboard/backend/internal/models"
)

// ErrCircuitOpen is returned when a provider's circuit breaker rejects a send.
var ErrCircuitOpen = errors.New("notification provider circuit is open")

// SendFunc delivers one message to a shoutrrr service URL.
type SendFunc func(url, message string) error

// DeliveryConfig tunes retries and the per-provider circuit breaker.
type DeliveryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	BreakerTimeout  time.Duration
}

func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		BreakerTimeout:  60 * time.Second,
	}
}

type NotificationService struct {
	DB       *gorm.DB
	send     SendFunc
	delivery DeliveryConfig

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
	wg       sync.WaitGroup
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		DB: db,
		send: func(url, message string) error {
			return shoutrrr.Send(url, message)
		},
		delivery: DefaultDeliveryConfig(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
}

// WithSender replaces the delivery function and retry settings. Used by tests.
func (s *NotificationService) WithSender(send SendFunc, cfg DeliveryConfig) *NotificationService {
	s.send = send
	s.delivery = cfg
	return s
}

var discordWebhookRegex = regexp.MustCompile(`^https://discord(?:app)?\.com/api/webhooks/(\d+)/([a-zA-Z0-9_-]+)`)

func normalizeURL(serviceType, rawURL string) string {
	if serviceType == "discord" {
		matches := discordWebhookRegex.FindStringSubmatch(rawURL)
		if len(matches) == 3 {
			id := matches[1]
			token := matches[2]
			return fmt.Sprintf("discord://%s@%s", token, id)
		}
	}
	return rawURL
}

// Internal Notifications (DB)

// DefaultNotificationLimit caps List when the filter sets no limit.
const DefaultNotificationLimit = 100

// NotificationFilter narrows the inbox listing.
type NotificationFilter struct {
	UnreadOnly bool
	Entity     *models.EntityRef
	Limit      int
}

func (s *NotificationService) Create(nType models.NotificationType, title, message string) (*models.Notification, error) {
	return s.store(&models.Notification{Type: nType, Title: title, Message: message})
}

// CreateForEntity stores an inbox entry linked to ref.
func (s *NotificationService) CreateForEntity(ref models.EntityRef, nType models.NotificationType, title, message string) (*models.Notification, error) {
	return s.store(&models.Notification{
		Type:       nType,
		Title:      title,
		Message:    message,
		EntityKind: ref.Kind,
		EntityID:   ref.ID,
	})
}

func (s *NotificationService) store(n *models.Notification) (*models.Notification, error) {
	if err := s.DB.Create(n).Error; err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	return n, nil
}

// List returns inbox entries newest first.
func (s *NotificationService) List(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultNotificationLimit
	}
	q := s.DB.WithContext(ctx).Order("created_at desc").Limit(limit)
	if f.UnreadOnly {
		q = q.Where("read = ?", false)
	}
	if f.Entity != nil {
		q = q.Where("entity_kind = ? AND entity_id = ?", f.Entity.Kind, f.Entity.ID)
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification read: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead returns how many entries changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("read = ?", false).Update("read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark notifications read: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// NotifyStatusChange stores an internal notification and fans out to external
// providers that subscribe to uptime events.
func (s *NotificationService) NotifyStatusChange(_ context.Context, c StatusChange) {
	name := c.Name
	if name == "" {
		name = c.Ref.String()
	}
	title := fmt.Sprintf("%s %s is %s", c.Ref.Kind, name, c.To)

	nType := models.NotificationTypeError
	if c.To.IsOperational() {
		nType = models.NotificationTypeSuccess
	} else if c.To.Severity() < models.StatusMajorOutage.Severity() {
		nType = models.NotificationTypeWarning
	}

	message := fmt.Sprintf("%s %s changed status from %s to %s.", c.Ref.Kind, name, c.From, c.To)
	if c.Message != "" {
		message += " " + c.Message
	}
	if _, err := s.CreateForEntity(c.Ref, nType, title, message); err != nil {
		logger.ForEntity(string(c.Ref.Kind), c.Ref.ID).WithError(err).Error("failed to store status notification")
	}
	s.SendExternal(models.EventStatusChange, title, message)
}

// External Notifications (Shoutrrr)

// SendExternal delivers asynchronously to every enabled provider subscribed to event.
func (s *NotificationService) SendExternal(event models.NotificationEvent, title, message string) {
	var providers []models.NotificationProvider
	if err := s.DB.Where("enabled = ?", true).Find(&providers).Error; err != nil {
		logger.Component("notifications").WithError(err).Error("failed to fetch notification providers")
		return
	}

	for _, provider := range providers {
		if !provider.Wants(event) {
			continue
		}
		s.wg.Add(1)
		go func(p models.NotificationProvider) {
			defer s.wg.Done()
			if err := s.deliver(context.Background(), p, fmt.Sprintf("%s\n\n%s", title, message)); err != nil {
				logger.WithFields(logrus.Fields{"provider": p.Name, "type": p.Type}).
					WithError(err).Warn("failed to send notification")
			}
		}(provider)
	}
}

// Wait blocks until all asynchronous deliveries have finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

// deliver retries transient failures with exponential backoff behind a
// per-provider circuit breaker.
func (s *NotificationService) deliver(ctx context.Context, p models.NotificationProvider, message string) error {
	url := normalizeURL(p.Type, p.URL)
	// Validate HTTP/HTTPS destinations used by shoutrrr to reduce SSRF risk
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		if _, err := validateWebhookURL(url); err != nil {
			metrics.IncNotification(p.Type, "failed")
			return backoff.Permanent(fmt.Errorf("invalid destination: %w", err))
		}
	}

	cb := s.breaker(p.ID)
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.delivery.InitialInterval
	bo.MaxInterval = s.delivery.MaxInterval
	bo.MaxElapsedTime = 0

	operation := func() error {
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, s.send(url, message)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, s.delivery.MaxRetries), ctx))
	if err != nil {
		metrics.IncNotification(p.Type, "failed")
		return err
	}
	metrics.IncNotification(p.Type, "sent")
	return nil
}

func (s *NotificationService) breaker(providerID string) *gobreaker.CircuitBreaker[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb, ok := s.breakers[providerID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notify-" + providerID,
		MaxRequests: 1,
		Timeout:     s.delivery.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Info("notification circuit breaker changed state")
		},
	})
	s.breakers[providerID] = cb
	return cb
}

// isPrivateIP returns true for RFC1918, loopback and link-local addresses.
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// IPv4 RFC1918
	if ip4 := ip.To4(); ip4 != nil {
		switch {
		case ip4[0] == 10:
			return true
		case ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31:
			return true
		case ip4[0] == 192 && ip4[1] == 168:
			return true
		}
	}

	// IPv6 unique local addresses fc00::/7
	if ip.To16() != nil && strings.HasPrefix(ip.String(), "fc") {
		return true
	}

	return false
}

// validateWebhookURL parses and validates webhook URLs and ensures
// the resolved addresses are not private/local.
func validateWebhookURL(raw string) (*neturl.URL, error) {
	u, err := neturl.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("missing host")
	}

	// Allow explicit loopback/localhost addresses for local tests.
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return u, nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("disallowed host IP: %s", ip.String())
		}
	}
	return u, nil
}

func (s *NotificationService) TestProvider(provider models.NotificationProvider) error {
	return s.deliver(context.Background(), provider, "Test notification from Pulseboard")
}

// Provider Management

func (s *NotificationService) ListProviders() ([]models.NotificationProvider, error) {
	var providers []models.NotificationProvider
	result := s.DB.Order("name ASC").Find(&providers)
	return providers, result.Error
}

func (s *NotificationService) CreateProvider(provider *models.NotificationProvider) error {
	if strings.TrimSpace(provider.URL) == "" {
		return fmt.Errorf("%w: provider url is required", ErrValidation)
	}
	if err := s.DB.Create(provider).Error; err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	// column defaults replace false on insert
	if !provider.NotifyUptime || !provider.NotifyIncidents || !provider.NotifyMaintenance {
		return s.DB.Model(provider).
			Select("notify_uptime", "notify_incidents", "notify_maintenance").
			Updates(provider).Error
	}
	return nil
}

// UpdateProvider replaces a stored provider and resets its circuit breaker.
func (s *NotificationService) UpdateProvider(provider *models.NotificationProvider) error {
	if strings.TrimSpace(provider.URL) == "" {
		return fmt.Errorf("%w: provider url is required", ErrValidation)
	}
	var existing models.NotificationProvider
	if err := s.DB.Select("id", "created_at").First(&existing, "id = ?", provider.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("load provider: %w", err)
	}
	provider.CreatedAt = existing.CreatedAt
	s.resetBreaker(provider.ID)
	return s.DB.Save(provider).Error
}

func (s *NotificationService) DeleteProvider(id string) error {
	res := s.DB.Delete(&models.NotificationProvider{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("delete provider: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProviderNotFound
	}
	s.resetBreaker(id)
	return nil
}

func (s *NotificationService) resetBreaker(id string) {
	s.mu.Lock()
	delete(s.breakers, id)
	s.mu.Unlock()
}
