package event

import (
	"context"
	"fmt"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	pkgkafka "github.com/Mukulsharnagat01/Collegedunia/pkg/kafka"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/logger"
)

// Kafka topics for user domain events.
var (
	TopicUserSignedUp        = pkgkafka.Topic("user", "signed_up")
	TopicUserRoleChanged     = pkgkafka.Topic("user", "role_changed")
	TopicUserSessionsRevoked = pkgkafka.Topic("user", "sessions_revoked")
)

// SourceAuthService identifies events originating from this service.
const SourceAuthService = "auth-service"

// Reasons carried by a sessions_revoked event.
const (
	ReasonPasswordChanged = "password_changed"
	ReasonAdminRevoked    = "admin_revoked"
)

// UserSignedUpData is the payload for a user.signed_up event.
type UserSignedUpData struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	City   string `json:"city,omitempty"`
	Course string `json:"course,omitempty"`
}

// UserRoleChangedData is the payload for a user.role_changed event.
type UserRoleChangedData struct {
	UserID    string `json:"user_id"`
	OldRole   string `json:"old_role"`
	NewRole   string `json:"new_role"`
	ChangedBy string `json:"changed_by"`
}

// UserSessionsRevokedData is the payload for a user.sessions_revoked event.
type UserSessionsRevokedData struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// Publisher is the part of pkgkafka.Producer used here.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// Producer publishes auth domain events. A Producer built with a nil
// Publisher is disabled and every method returns nil.
type Producer struct {
	kafka Publisher
}

// NewProducer creates a new event producer. kafka may be nil.
func NewProducer(kafka Publisher) *Producer {
	return &Producer{kafka: kafka}
}

// Enabled reports whether events are actually sent.
func (p *Producer) Enabled() bool {
	return p != nil && p.kafka != nil
}

// PublishUserSignedUp publishes a user.signed_up event.
func (p *Producer) PublishUserSignedUp(ctx context.Context, user *domain.User) error {
	return p.publish(ctx, TopicUserSignedUp, user.ID, UserSignedUpData{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
		City:   user.City,
		Course: user.Course,
	})
}

// PublishUserRoleChanged publishes a user.role_changed event.
func (p *Producer) PublishUserRoleChanged(ctx context.Context, userID, oldRole, newRole, changedBy string) error {
	return p.publish(ctx, TopicUserRoleChanged, userID, UserRoleChangedData{
		UserID:    userID,
		OldRole:   oldRole,
		NewRole:   newRole,
		ChangedBy: changedBy,
	})
}

// PublishUserSessionsRevoked publishes a user.sessions_revoked event.
func (p *Producer) PublishUserSessionsRevoked(ctx context.Context, userID, reason string) error {
	return p.publish(ctx, TopicUserSessionsRevoked, userID, UserSessionsRevokedData{
		UserID: userID,
		Reason: reason,
	})
}

func (p *Producer) publish(ctx context.Context, topic, userID string, data any) error {
	if !p.Enabled() {
		return nil
	}

	event, err := pkgkafka.NewEvent(topic, userID, SourceAuthService, data)
	if err != nil {
		return err
	}
	event.CorrelationID = logger.CorrelationIDFromContext(ctx)

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}
