package handler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/middleware"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/service"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var archiveContentTypes = map[string]string{
	".zip": "application/zip",
	".7z":  "application/x-7z-compressed",
	".gz":  "application/gzip",
	".tar": "application/x-tar",
}

// 审计操作类型
const (
	AuditActionUpload         = "package.upload"
	AuditActionPublishVersion = "package.publish_version"
)

// PackageHandler 包处理器
type PackageHandler struct {
	packageService service.PackageService
	coordinator    service.IngestionCoordinator
	logger         *zap.Logger
}

// NewPackageHandler 创建包处理器实例
func NewPackageHandler(
	packageService service.PackageService,
	coordinator service.IngestionCoordinator,
	logger *zap.Logger,
) *PackageHandler {
	return &PackageHandler{
		packageService: packageService,
		coordinator:    coordinator,
		logger:         logger,
	}
}

// List 获取全部包
func (h *PackageHandler) List(c *gin.Context) {
	packages, err := h.packageService.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	response.Success(c, nonNil(packages))
}

// ListActive 获取启用的包
func (h *PackageHandler) ListActive(c *gin.Context) {
	packages, err := h.packageService.ListActive(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	response.Success(c, nonNil(packages))
}

// Get 获取包详情
func (h *PackageHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "packageId")
	if !ok {
		response.BadRequest(c, "包ID格式不正确")
		return
	}

	pkg, err := h.packageService.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	response.Success(c, pkg)
}

// LastModified 获取包列表最后修改时间
func (h *PackageHandler) LastModified(c *gin.Context) {
	t, err := h.packageService.LastModified(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	response.Success(c, gin.H{"packageLastModified": t})
}

// Upload 上传新包
func (h *PackageHandler) Upload(c *gin.Context) {
	req, closeFn, err := h.bindUpload(c)
	if err != nil {
		middleware.SetAudit(c, AuditActionUpload, "", auditMessage(err))
		fail(c, h.logger, err)
		return
	}
	defer closeFn()

	pkg, err := h.coordinator.Upload(c.Request.Context(), req)
	if err != nil {
		middleware.SetAudit(c, AuditActionUpload, "", auditMessage(err))
		fail(c, h.logger, err)
		return
	}

	middleware.SetAudit(c, AuditActionUpload, packageResource(pkg.ID),
		fmt.Sprintf("%s %s (%s)", pkg.NormalizedName, req.Descriptor.Version, pkg.Arch))
	response.Created(c, pkg)
}

// PublishVersion 为已有包发布新版本
func (h *PackageHandler) PublishVersion(c *gin.Context) {
	id, ok := parseUintParam(c, "packageId")
	if !ok {
		response.BadRequest(c, "包ID格式不正确")
		return
	}

	req, closeFn, err := h.bindUpload(c)
	if err != nil {
		middleware.SetAudit(c, AuditActionPublishVersion, packageResource(id), auditMessage(err))
		fail(c, h.logger, err)
		return
	}
	defer closeFn()

	pkg, err := h.coordinator.PublishVersion(c.Request.Context(), id, req)
	if err != nil {
		middleware.SetAudit(c, AuditActionPublishVersion, packageResource(id), auditMessage(err))
		fail(c, h.logger, err)
		return
	}

	middleware.SetAudit(c, AuditActionPublishVersion, packageResource(pkg.ID),
		fmt.Sprintf("%s %s", pkg.NormalizedName, req.Descriptor.Version))
	response.Created(c, pkg)
}

// bindUpload 读取 multipart 表单中的 packageInfoJson 与 file
func (h *PackageHandler) bindUpload(c *gin.Context) (*service.UploadRequest, func(), error) {
	descriptor, err := service.ParseDescriptor(c.PostForm("packageInfoJson"))
	if err != nil {
		return nil, nil, err
	}

	fileHeader, err := c.FormFile("file")
	if err != nil || fileHeader.Size == 0 {
		return nil, nil, errors.ErrArchiveMissingFromUploadMsg
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, nil, errors.Wrap(errors.ErrInternalServer, "读取上传文件失败", err)
	}
	closeFn := func() {
		if err := file.Close(); err != nil {
			h.logger.Warn("failed to close upload", zap.Error(err))
		}
	}

	return &service.UploadRequest{
		Descriptor: descriptor,
		Archive:    file,
		Size:       fileHeader.Size,
	}, closeFn, nil
}

// Download 下载包文件
// 未指定 version 时下载最高版本；完整发送后下载次数加一
func (h *PackageHandler) Download(c *gin.Context) {
	id, ok := parseUintQuery(c, "packageId")
	if !ok {
		response.BadRequest(c, "包ID格式不正确")
		return
	}
	name := c.Query("packageNormalizedName")
	if name == "" {
		response.BadRequest(c, "包规范名称不能为空")
		return
	}

	archive, err := h.packageService.OpenArchive(c.Request.Context(), id, name, c.Query("version"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	defer archive.Body.Close()

	c.Header("Content-Type", contentType(archive.Version.Tarball))
	c.Header("Content-Length", strconv.FormatInt(archive.Size, 10))
	c.Header("Content-Disposition", mime.FormatMediaType("attachment",
		map[string]string{"filename": archive.Version.Tarball}))
	c.Status(http.StatusOK)

	written, err := io.Copy(c.Writer, archive.Body)
	if err != nil || written != archive.Size {
		h.logger.Warn("download interrupted",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Uint("package_id", archive.Package.ID),
			zap.String("tarball", archive.Version.Tarball),
			zap.Int64("written", written),
			zap.Int64("size", archive.Size),
			zap.Error(err))
		return
	}

	// 客户端已收到完整文件，断开连接也要计数
	h.packageService.RecordDownload(context.WithoutCancel(c.Request.Context()), archive)
}

// contentType 精简镜像中通常没有 mime.types，常用的包格式直接给出类型
func contentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := archiveContentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func packageResource(id uint) string {
	return fmt.Sprintf("package:%d", id)
}

func auditMessage(err error) string {
	if apiErr, ok := errors.As(err); ok {
		return apiErr.Message
	}
	return errors.ErrInternalServerMsg.Message
}

// nonNil 空列表返回 [] 而不是 null
func nonNil(packages []*model.Package) []*model.Package {
	if packages == nil {
		return []*model.Package{}
	}
	return packages
}
