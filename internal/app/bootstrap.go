package app

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/trainer_booking/internal/model"
	"github.com/Freeeeeet/trainer_booking/internal/service"
	"go.uber.org/zap"
)

type AdminLister interface {
	ListAdminIDs(ctx context.Context) ([]int64, error)
}

// EnsureAdmin создаёт первого администратора, если в базе нет ни одного
func EnsureAdmin(ctx context.Context, admins AdminLister, clients *service.ClientService, name string, logger *zap.Logger) (*model.Client, error) {
	if name == "" {
		return nil, nil
	}
	ids, err := admins.ListAdminIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	if len(ids) > 0 {
		return nil, nil
	}

	admin, err := clients.Create(ctx, service.NewClientInput{FullName: name, IsAdmin: true})
	if err != nil {
		return nil, fmt.Errorf("create bootstrap admin: %w", err)
	}
	logger.Info("Bootstrap admin created", zap.Int64("admin_id", admin.ID))
	return admin, nil
}
