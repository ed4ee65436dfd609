package service

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Archive 待下载的包文件，调用方负责关闭 Body
type Archive struct {
	Package *model.Package
	Version *model.PackageVersion
	Size    int64
	Body    io.ReadCloser
}

// PackageService 包查询与下载服务接口
type PackageService interface {
	// List 获取全部包
	List(ctx context.Context) ([]*model.Package, error)
	// ListActive 获取启用的包
	ListActive(ctx context.Context) ([]*model.Package, error)
	// Get 根据ID获取包
	Get(ctx context.Context, id uint) (*model.Package, error)
	// LastModified 获取包列表最后修改时间
	LastModified(ctx context.Context) (time.Time, error)
	// OpenArchive 打开包文件，version 为空时取最高版本
	OpenArchive(ctx context.Context, id uint, normalizedName, version string) (*Archive, error)
	// RecordDownload 记录一次完整下载，失败只记日志
	RecordDownload(ctx context.Context, archive *Archive)
}

// packageService 包服务实现
type packageService struct {
	packageRepo repository.PackageRepository
	blobs       storage.BlobStore
	logger      *zap.Logger
}

// NewPackageService 创建包服务实例
func NewPackageService(
	packageRepo repository.PackageRepository,
	blobs storage.BlobStore,
	logger *zap.Logger,
) PackageService {
	return &packageService{
		packageRepo: packageRepo,
		blobs:       blobs,
		logger:      logger,
	}
}

// List 获取全部包
func (s *packageService) List(ctx context.Context) ([]*model.Package, error) {
	return s.list(ctx, false)
}

// ListActive 获取启用的包
func (s *packageService) ListActive(ctx context.Context) ([]*model.Package, error) {
	return s.list(ctx, true)
}

func (s *packageService) list(ctx context.Context, activeOnly bool) ([]*model.Package, error) {
	packages, err := s.packageRepo.List(ctx, activeOnly)
	if err != nil {
		s.logger.Error("failed to list packages", zap.Bool("active_only", activeOnly), zap.Error(err))
		return nil, errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err)
	}
	return packages, nil
}

// Get 根据ID获取包
func (s *packageService) Get(ctx context.Context, id uint) (*model.Package, error) {
	pkg, err := s.packageRepo.GetByID(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPackageNotFoundMsg
		}
		s.logger.Error("failed to get package", zap.Uint("package_id", id), zap.Error(err))
		return nil, errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err)
	}
	return pkg, nil
}

// LastModified 获取包列表最后修改时间
func (s *packageService) LastModified(ctx context.Context) (time.Time, error) {
	t, err := s.packageRepo.GetLastModified(ctx)
	if err != nil {
		s.logger.Error("failed to get last modified time", zap.Error(err))
		return time.Time{}, errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err)
	}
	return t, nil
}

// OpenArchive 打开包文件
func (s *packageService) OpenArchive(ctx context.Context, id uint, normalizedName, version string) (*Archive, error) {
	pkg, err := s.packageRepo.GetByIDAndName(ctx, id, normalizedName, true)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPackageNotFoundMsg
		}
		s.logger.Error("failed to get package", zap.Uint("package_id", id), zap.Error(err))
		return nil, errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err)
	}

	var v *model.PackageVersion
	if version == "" {
		v = pkg.LatestVersion()
	} else {
		v = pkg.FindVersion(version)
	}
	if v == nil {
		return nil, errors.ErrVersionNotFoundMsg
	}

	info, err := s.blobs.Stat(ctx, v.Tarball)
	if err != nil {
		return nil, s.blobError(pkg, v, err)
	}
	body, err := s.blobs.Open(ctx, v.Tarball)
	if err != nil {
		return nil, s.blobError(pkg, v, err)
	}

	return &Archive{Package: pkg, Version: v, Size: info.Size, Body: body}, nil
}

// blobError 元数据存在而文件缺失属于数据不一致，记为错误日志
func (s *packageService) blobError(pkg *model.Package, v *model.PackageVersion, err error) error {
	fields := []zap.Field{
		zap.Uint("package_id", pkg.ID),
		zap.String("version", v.Version),
		zap.String("tarball", v.Tarball),
		zap.Error(err),
	}
	if stderrors.Is(err, storage.ErrNotExist) {
		s.logger.Error("archive missing for committed version", fields...)
		return errors.ErrArchiveNotFoundMsg
	}
	s.logger.Error("failed to open archive", fields...)
	return errors.Wrap(errors.ErrBlobStore, errors.ErrBlobStoreMsg.Message, err)
}

// RecordDownload 下载次数加一
func (s *packageService) RecordDownload(ctx context.Context, archive *Archive) {
	if err := s.packageRepo.IncrementDownloadCount(ctx, archive.Version.ID); err != nil {
		s.logger.Warn("failed to increment download count",
			zap.Uint("package_id", archive.Package.ID),
			zap.String("version", archive.Version.Version),
			zap.Error(err))
	}
}
