package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// NewClientInput данные нового профиля
type NewClientInput struct {
	TelegramID *int64
	FullName   string
	ClientType model.ClientType
	IsAdmin    bool
}

type ClientService struct {
	clients ClientRepository
	clock   func() time.Time
	logger  *zap.Logger
}

func NewClientService(repos Repositories, clock func() time.Time, logger *zap.Logger) *ClientService {
	return &ClientService{
		clients: repos.Clients,
		clock:   clock,
		logger:  logger,
	}
}

// Get получает профиль клиента
func (s *ClientService) Get(ctx context.Context, clientID int64) (*model.Client, error) {
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	if client == nil {
		return nil, ErrClientNotFound
	}
	return client, nil
}

// Create регистрирует профиль. Новый клиент ждёт одобрения, админ одобрен сразу.
func (s *ClientService) Create(ctx context.Context, input NewClientInput) (*model.Client, error) {
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if input.ClientType == "" {
		input.ClientType = model.ClientTypeFlexible
	}
	if !input.ClientType.Valid() {
		return nil, fmt.Errorf("%w: unknown client type %q", ErrInvalidInput, input.ClientType)
	}

	client := &model.Client{
		TelegramID:     input.TelegramID,
		FullName:       name,
		IsAdmin:        input.IsAdmin,
		Balance:        decimal.Zero,
		ClientType:     input.ClientType,
		ApprovalStatus: model.ApprovalStatusPending,
		CreatedAt:      s.clock(),
	}
	if input.IsAdmin {
		client.ApprovalStatus = model.ApprovalStatusApproved
	}

	if err := s.clients.Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	s.logger.Info("Client registered",
		zap.Int64("client_id", client.ID),
		zap.Bool("is_admin", client.IsAdmin),
	)

	return client, nil
}

// SetApproval админ одобряет или отклоняет регистрацию клиента
func (s *ClientService) SetApproval(ctx context.Context, adminID, clientID int64, status model.ApprovalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown approval status %q", ErrInvalidInput, status)
	}
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return err
	}

	updated, err := s.clients.UpdateApproval(ctx, clientID, status)
	if err != nil {
		return fmt.Errorf("update approval: %w", err)
	}
	if !updated {
		return ErrClientNotFound
	}

	s.logger.Info("Client approval changed",
		zap.Int64("client_id", clientID),
		zap.String("status", string(status)),
	)
	return nil
}

// SetClientType переключает клиента между постоянным и гибким расписанием
func (s *ClientService) SetClientType(ctx context.Context, adminID, clientID int64, clientType model.ClientType) error {
	if !clientType.Valid() {
		return fmt.Errorf("%w: unknown client type %q", ErrInvalidInput, clientType)
	}
	if err := requireAdmin(ctx, s.clients, adminID); err != nil {
		return err
	}

	updated, err := s.clients.UpdateType(ctx, clientID, clientType)
	if err != nil {
		return fmt.Errorf("update client type: %w", err)
	}
	if !updated {
		return ErrClientNotFound
	}

	s.logger.Info("Client type changed",
		zap.Int64("client_id", clientID),
		zap.String("type", string(clientType)),
	)
	return nil
}

// RequireAdmin проверяет, что пользователь администратор
func (s *ClientService) RequireAdmin(ctx context.Context, userID int64) error {
	return requireAdmin(ctx, s.clients, userID)
}

func requireAdmin(ctx context.Context, clients ClientRepository, userID int64) error {
	user, err := clients.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil || !user.IsAdmin {
		return ErrNotAdmin
	}
	return nil
}
