package service

import (
	"context"
	"fmt"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"go.uber.org/zap"
)

// DependencyOwner 声明依赖的包；新包的 ID 为 0
type DependencyOwner struct {
	ID             uint
	NormalizedName string
}

// DependencyResolver 依赖项检查
type DependencyResolver interface {
	// ResolveAll 检查每个依赖项的 (id, normalizedName) 都对应已有的包，遇到第一个不存在的即返回
	ResolveAll(ctx context.Context, owner DependencyOwner, deps []model.UploadDependency) error
}

type dependencyResolver struct {
	packageRepo repository.PackageRepository
	logger      *zap.Logger
}

// NewDependencyResolver 创建依赖项检查器
func NewDependencyResolver(packageRepo repository.PackageRepository, logger *zap.Logger) DependencyResolver {
	return &dependencyResolver{
		packageRepo: packageRepo,
		logger:      logger,
	}
}

// ResolveAll 检查依赖项
func (r *dependencyResolver) ResolveAll(ctx context.Context, owner DependencyOwner, deps []model.UploadDependency) error {
	for _, dep := range deps {
		// 新包尚未分配序号，任何已有包都不是它自身；同名不同游戏类型的包是另一个包
		if owner.ID != 0 && dep.ID == owner.ID {
			return errors.New(errors.ErrDependency,
				fmt.Sprintf("包不能依赖自身: %d (%s)", dep.ID, dep.NormalizedName))
		}

		exists, err := r.packageRepo.ExistsByIDAndName(ctx, dep.ID, dep.NormalizedName)
		if err != nil {
			r.logger.Error("failed to resolve dependency",
				zap.Uint("dependency_id", dep.ID),
				zap.String("dependency_name", dep.NormalizedName),
				zap.Error(err))
			return errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err)
		}
		if !exists {
			return errors.New(errors.ErrDependency,
				fmt.Sprintf("%s: %d (%s)", errors.ErrDependencyMsg.Message, dep.ID, dep.NormalizedName))
		}
	}
	return nil
}
