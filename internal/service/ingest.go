package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Stage 上传处理阶段
type Stage int

const (
	StageReceived Stage = iota
	StageValidated
	StageDependenciesChecked
	StageIntegrityVerified
	StageIDAllocated
	StagePersisted
	StageBlobStored
	StageDone
	StageFailed
)

var stageNames = [...]string{
	"received",
	"validated",
	"dependencies_checked",
	"integrity_verified",
	"id_allocated",
	"persisted",
	"blob_stored",
	"done",
	"failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// IDAllocator 包序号分配
type IDAllocator interface {
	NextID(ctx context.Context) (uint, error)
}

// UploadRequest 一次上传请求
// Archive 需要可回退，摘要计算与写入存储各读取一次
type UploadRequest struct {
	Descriptor *model.UploadDescriptor
	Archive    io.ReadSeeker
	Size       int64
}

// IngestionCoordinator 包上传流程
type IngestionCoordinator interface {
	// Upload 上传新包
	Upload(ctx context.Context, req *UploadRequest) (*model.Package, error)
	// PublishVersion 为已有包发布新版本
	PublishVersion(ctx context.Context, packageID uint, req *UploadRequest) (*model.Package, error)
}

// ingestionCoordinator 包上传流程实现
type ingestionCoordinator struct {
	validator   PackageValidator
	resolver    DependencyResolver
	hasher      ContentHasher
	allocator   IDAllocator
	packageRepo repository.PackageRepository
	blobs       storage.BlobStore
	archiveExt  string
	logger      *zap.Logger
}

// NewIngestionCoordinator 创建包上传流程实例
func NewIngestionCoordinator(
	validator PackageValidator,
	resolver DependencyResolver,
	hasher ContentHasher,
	allocator IDAllocator,
	packageRepo repository.PackageRepository,
	blobs storage.BlobStore,
	archiveExt string,
	logger *zap.Logger,
) IngestionCoordinator {
	return &ingestionCoordinator{
		validator:   validator,
		resolver:    resolver,
		hasher:      hasher,
		allocator:   allocator,
		packageRepo: packageRepo,
		blobs:       blobs,
		archiveExt:  archiveExt,
		logger:      logger,
	}
}

// ParseDescriptor 解析 packageInfoJson
func ParseDescriptor(raw string) (*model.UploadDescriptor, error) {
	if raw == "" {
		return nil, errors.New(errors.ErrMalformedDescriptor, "包信息不能为空")
	}
	var d model.UploadDescriptor
	if err := binding.JSON.BindBody([]byte(raw), &d); err != nil {
		return nil, errors.Wrap(errors.ErrMalformedDescriptor, errors.ErrMalformedDescriptorMsg.Message, err)
	}
	return &d, nil
}

// ArchiveFilename 生成存储文件名 {id}-{normalizedName}-{version}.{ext}
func ArchiveFilename(id uint, normalizedName, version, ext string) string {
	return fmt.Sprintf("%d-%s-%s.%s", id, normalizedName, version, ext)
}

// ingestion 单次上传的状态
type ingestion struct {
	stage  Stage
	logger *zap.Logger
}

func (in *ingestion) advance(next Stage) {
	in.logger.Debug("ingestion stage",
		zap.Stringer("from", in.stage),
		zap.Stringer("to", next))
	in.stage = next
}

func (in *ingestion) fail(err error) error {
	level := in.logger.Info
	if apiErr, ok := errors.As(err); !ok || apiErr.IsServerError() {
		level = in.logger.Error
	}
	level("ingestion failed",
		zap.Stringer("stage", in.stage),
		zap.Error(err))
	in.stage = StageFailed
	return err
}

// Upload 上传新包
func (c *ingestionCoordinator) Upload(ctx context.Context, req *UploadRequest) (*model.Package, error) {
	d := req.Descriptor
	in := &ingestion{
		stage: StageReceived,
		logger: c.logger.With(
			zap.String("normalized_name", d.NormalizedName),
			zap.String("arch", d.Arch),
			zap.String("version", d.Version)),
	}

	if err := c.validate(d); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageValidated)

	owner := DependencyOwner{NormalizedName: d.NormalizedName}
	if err := c.resolver.ResolveAll(ctx, owner, d.Dependencies); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageDependenciesChecked)

	if err := c.verifyIntegrity(ctx, req); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageIntegrityVerified)

	id, err := c.allocator.NextID(ctx)
	if err != nil || id == 0 {
		if err == nil {
			err = repository.ErrSequenceUnavailable
		}
		return nil, in.fail(errors.Wrap(errors.ErrIDAllocation, errors.ErrIDAllocationMsg.Message, err))
	}
	in.logger = in.logger.With(zap.Uint("package_id", id))
	in.advance(StageIDAllocated)

	version := c.newVersion(id, d)
	pkg := &model.Package{
		ID:             id,
		Name:           d.Name,
		NormalizedName: d.NormalizedName,
		Description:    d.Description,
		Arch:           d.Arch,
		IsActive:       true,
		Author:         d.Author,
		License:        d.License,
		Repository:     d.Repository,
		Homepage:       d.Homepage,
		Versions:       []model.PackageVersion{*version},
	}

	if err := c.packageRepo.CreateAggregate(ctx, pkg); err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, in.fail(errors.ErrPackageAlreadyExistsMsg)
		}
		return nil, in.fail(errors.Wrap(errors.ErrDatabase, "保存包信息失败", err))
	}
	in.advance(StagePersisted)

	if err := c.storeArchive(ctx, req, pkg.Versions[0].Tarball); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageBlobStored)

	in.advance(StageDone)
	in.logger.Info("package uploaded", zap.String("tarball", pkg.Versions[0].Tarball))
	return pkg, nil
}

// PublishVersion 为已有包发布新版本，不分配新的包序号
func (c *ingestionCoordinator) PublishVersion(ctx context.Context, packageID uint, req *UploadRequest) (*model.Package, error) {
	d := req.Descriptor
	in := &ingestion{
		stage: StageReceived,
		logger: c.logger.With(
			zap.Uint("package_id", packageID),
			zap.String("normalized_name", d.NormalizedName),
			zap.String("version", d.Version)),
	}

	if err := c.validate(d); err != nil {
		return nil, in.fail(err)
	}

	pkg, err := c.packageRepo.GetByID(ctx, packageID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, in.fail(errors.ErrPackageNotFoundMsg)
		}
		return nil, in.fail(errors.Wrap(errors.ErrDatabase, errors.ErrDatabaseMsg.Message, err))
	}
	if pkg.NormalizedName != d.NormalizedName || pkg.Arch != d.Arch {
		return nil, in.fail(errors.ErrPackageMismatchMsg)
	}
	if pkg.FindVersion(d.Version) != nil {
		return nil, in.fail(errors.ErrVersionAlreadyExistsMsg)
	}
	in.advance(StageValidated)

	owner := DependencyOwner{ID: pkg.ID, NormalizedName: pkg.NormalizedName}
	if err := c.resolver.ResolveAll(ctx, owner, d.Dependencies); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageDependenciesChecked)

	if err := c.verifyIntegrity(ctx, req); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageIntegrityVerified)

	version := c.newVersion(pkg.ID, d)
	version.PackageID = pkg.ID
	if err := c.packageRepo.AddVersion(ctx, version); err != nil {
		if stderrors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, in.fail(errors.ErrVersionAlreadyExistsMsg)
		}
		return nil, in.fail(errors.Wrap(errors.ErrDatabase, "保存版本信息失败", err))
	}
	in.advance(StagePersisted)

	if err := c.storeArchive(ctx, req, version.Tarball); err != nil {
		return nil, in.fail(err)
	}
	in.advance(StageBlobStored)

	pkg.Versions = append(pkg.Versions, *version)
	pkg.SortVersions()

	in.advance(StageDone)
	in.logger.Info("package version published", zap.String("tarball", version.Tarball))
	return pkg, nil
}

func (c *ingestionCoordinator) validate(d *model.UploadDescriptor) error {
	if msgs := c.validator.Validate(d); len(msgs) > 0 {
		return errors.NewWithDetails(errors.ErrValidation, errors.ErrValidationMsg.Message, msgs...)
	}
	return nil
}

// verifyIntegrity 从头读取上传文件计算摘要，与声明值比较
func (c *ingestionCoordinator) verifyIntegrity(ctx context.Context, req *UploadRequest) error {
	if _, err := req.Archive.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(errors.ErrInternalServer, "读取上传文件失败", err)
	}
	computed, err := c.hasher.Digest(ctx, req.Archive)
	if err != nil {
		return errors.Wrap(errors.ErrInternalServer, "读取上传文件失败", err)
	}
	if !IntegrityMatches(req.Descriptor.DeclaredDigest(), computed) {
		return errors.ErrIntegrityMismatchMsg
	}
	return nil
}

func (c *ingestionCoordinator) newVersion(id uint, d *model.UploadDescriptor) *model.PackageVersion {
	return &model.PackageVersion{
		Version:      d.Version,
		Integrity:    d.Integrity,
		Tarball:      ArchiveFilename(id, d.NormalizedName, d.Version, c.archiveExt),
		UploadTime:   time.Now().UTC(),
		Dependencies: d.ToDependencies(),
	}
}

// storeArchive 元数据已提交后写入文件
// 失败时数据库中的版本指向不存在的文件，需要单独记录以便运维修复
func (c *ingestionCoordinator) storeArchive(ctx context.Context, req *UploadRequest, filename string) error {
	if _, err := req.Archive.Seek(0, io.SeekStart); err != nil {
		c.logBlobFailure(filename, err)
		return errors.Wrap(errors.ErrBlobStore, errors.ErrBlobStoreMsg.Message, err)
	}
	if _, err := c.blobs.Save(ctx, filename, req.Archive, req.Size); err != nil {
		c.logBlobFailure(filename, err)
		return errors.Wrap(errors.ErrBlobStore, errors.ErrBlobStoreMsg.Message, err)
	}
	return nil
}

func (c *ingestionCoordinator) logBlobFailure(filename string, err error) {
	c.logger.Error("archive write failed after metadata commit, metadata references a missing archive",
		zap.String("tarball", filename),
		zap.Error(err))
}
