package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSequenceUnavailable 序列未能返回有效序号
var ErrSequenceUnavailable = errors.New("package id sequence returned no value")

// PackageRepository 包数据访问接口
type PackageRepository interface {
	// List 获取包列表，activeOnly 为 true 时只返回启用的包
	List(ctx context.Context, activeOnly bool) ([]*model.Package, error)
	// GetByID 根据ID获取包（含版本与依赖）
	GetByID(ctx context.Context, id uint) (*model.Package, error)
	// GetByIDAndName 根据ID与规范名称获取包
	GetByIDAndName(ctx context.Context, id uint, normalizedName string, activeOnly bool) (*model.Package, error)
	// ExistsByIDAndName 检查ID与规范名称是否对应同一个包
	ExistsByIDAndName(ctx context.Context, id uint, normalizedName string) (bool, error)
	// NextID 从序列中取下一个包序号，取出即占用，失败也不回收
	NextID(ctx context.Context) (uint, error)
	// CreateAggregate 在一个事务中写入包、版本、依赖并更新最后修改时间
	CreateAggregate(ctx context.Context, pkg *model.Package) error
	// AddVersion 在一个事务中为已有包写入新版本并更新最后修改时间
	AddVersion(ctx context.Context, v *model.PackageVersion) error
	// IncrementDownloadCount 下载次数加一
	IncrementDownloadCount(ctx context.Context, versionID uint) error
	// GetLastModified 获取包列表最后修改时间
	GetLastModified(ctx context.Context) (time.Time, error)
	// ListVersions 获取所有版本（不含依赖），用于文件巡检
	ListVersions(ctx context.Context) ([]*model.PackageVersion, error)
}

// packageRepository 包数据访问实现
type packageRepository struct {
	db *gorm.DB
}

// NewPackageRepository 创建包数据访问实例
func NewPackageRepository(db *gorm.DB) PackageRepository {
	return &packageRepository{db: db}
}

func preloadAggregate(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Versions.Dependencies", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		})
}

// List 获取包列表
func (r *packageRepository) List(ctx context.Context, activeOnly bool) ([]*model.Package, error) {
	var packages []*model.Package

	query := preloadAggregate(r.db.WithContext(ctx))
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.Order("id ASC").Find(&packages).Error; err != nil {
		return nil, err
	}
	for _, p := range packages {
		p.SortVersions()
	}
	return packages, nil
}

// GetByID 根据ID获取包
func (r *packageRepository) GetByID(ctx context.Context, id uint) (*model.Package, error) {
	var pkg model.Package
	err := preloadAggregate(r.db.WithContext(ctx)).First(&pkg, id).Error
	if err != nil {
		return nil, err
	}
	pkg.SortVersions()
	return &pkg, nil
}

// GetByIDAndName 根据ID与规范名称获取包
func (r *packageRepository) GetByIDAndName(ctx context.Context, id uint, normalizedName string, activeOnly bool) (*model.Package, error) {
	var pkg model.Package

	query := preloadAggregate(r.db.WithContext(ctx)).
		Where("id = ? AND normalized_name = ?", id, normalizedName)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	if err := query.First(&pkg).Error; err != nil {
		return nil, err
	}
	pkg.SortVersions()
	return &pkg, nil
}

// ExistsByIDAndName 检查ID与规范名称是否对应同一个包
func (r *packageRepository) ExistsByIDAndName(ctx context.Context, id uint, normalizedName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Package{}).
		Where("id = ? AND normalized_name = ?", id, normalizedName).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NextID 从序列中取下一个包序号
// PostgreSQL 使用原生序列，其余数据库向自增序列表插入一行并取其主键
func (r *packageRepository) NextID(ctx context.Context) (uint, error) {
	db := r.db.WithContext(ctx)

	if db.Dialector.Name() == "postgres" {
		var ids []int64
		if err := db.Raw(fmt.Sprintf("SELECT nextval('%s')", model.PackageIDSequenceName)).Scan(&ids).Error; err != nil {
			return 0, err
		}
		if len(ids) == 0 || ids[0] <= 0 {
			return 0, ErrSequenceUnavailable
		}
		return uint(ids[0]), nil
	}

	seq := &model.PackageIDSequence{CreatedAt: time.Now().UTC()}
	if err := db.Create(seq).Error; err != nil {
		return 0, err
	}
	if seq.ID == 0 {
		return 0, ErrSequenceUnavailable
	}
	return seq.ID, nil
}

// CreateAggregate 在一个事务中写入包、版本、依赖并更新最后修改时间
func (r *packageRepository) CreateAggregate(ctx context.Context, pkg *model.Package) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(pkg).Error; err != nil {
			return err
		}
		return touchLastModified(tx)
	})
}

// AddVersion 在一个事务中为已有包写入新版本并更新最后修改时间
func (r *packageRepository) AddVersion(ctx context.Context, v *model.PackageVersion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(v).Error; err != nil {
			return err
		}
		return touchLastModified(tx)
	})
}

// touchLastModified 更新（不存在时插入）唯一一行的最后修改时间
func touchLastModified(tx *gorm.DB) error {
	marker := &model.UpdateTime{
		ID:                  model.UpdateTimeID,
		PackageLastModified: time.Now().UTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"package_last_modified"}),
	}).Create(marker).Error
}

// IncrementDownloadCount 下载次数加一
func (r *packageRepository) IncrementDownloadCount(ctx context.Context, versionID uint) error {
	result := r.db.WithContext(ctx).
		Model(&model.PackageVersion{}).
		Where("id = ?", versionID).
		UpdateColumn("download_count", gorm.Expr("download_count + ?", 1))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetLastModified 获取包列表最后修改时间
func (r *packageRepository) GetLastModified(ctx context.Context) (time.Time, error) {
	var marker model.UpdateTime
	err := r.db.WithContext(ctx).First(&marker, model.UpdateTimeID).Error
	if err != nil {
		return time.Time{}, err
	}
	return marker.PackageLastModified, nil
}

// ListVersions 获取所有版本
func (r *packageRepository) ListVersions(ctx context.Context) ([]*model.PackageVersion, error) {
	var versions []*model.PackageVersion
	err := r.db.WithContext(ctx).Order("id ASC").Find(&versions).Error
	return versions, err
}
