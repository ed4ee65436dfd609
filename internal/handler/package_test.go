package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/middleware"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/model"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/service"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/database"
	"github.com/Paradox-Developer-Foundation/PackageManager/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// envelope 响应结构，data 保留原始JSON
type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
	ErrorCode int             `json:"errorCode"`
}

// PackageHandlerTestSuite 包接口测试套件
type PackageHandlerTestSuite struct {
	suite.Suite
	db        *gorm.DB
	repo      repository.PackageRepository
	auditRepo repository.AuditLogRepository
	auditor   *middleware.Auditor
	blobDir   string
	router    *gin.Engine
}

// SetupTest 每个测试使用独立的数据库与存储目录
func (s *PackageHandlerTestSuite) SetupTest() {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(s.T(), err)
	sqlDB, err := db.DB()
	require.NoError(s.T(), err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(s.T(), database.AutoMigrate(db, zap.NewNop()))
	s.db = db

	s.blobDir = s.T().TempDir()
	blobs, err := storage.NewLocalStore(s.blobDir)
	require.NoError(s.T(), err)

	logger := zap.NewNop()
	s.repo = repository.NewPackageRepository(db)
	s.auditRepo = repository.NewAuditLogRepository(db)

	coordinator := service.NewIngestionCoordinator(
		service.NewPackageValidator(),
		service.NewDependencyResolver(s.repo, logger),
		service.NewContentHasher(),
		s.repo,
		s.repo,
		blobs,
		"zip",
		logger,
	)
	packageService := service.NewPackageService(s.repo, blobs, logger)
	s.auditor = middleware.NewAuditor(s.auditRepo, logger)

	s.router = NewRouter(&config.ServerConfig{
		Mode:               gin.TestMode,
		MaxMultipartMemory: 1 << 20,
	}, RouterDeps{
		Package: NewPackageHandler(packageService, coordinator, logger),
		Health:  NewHealthHandler(db, logger),
		Auditor: s.auditor,
		Logger:  logger,
	})
}

// TearDownTest 关闭数据库
func (s *PackageHandlerTestSuite) TearDownTest() {
	s.auditor.Wait()
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func TestPackageHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(PackageHandlerTestSuite))
}

func integrityOf(content []byte) string {
	sum := sha256.Sum256(content)
	return model.IntegrityPrefix + hex.EncodeToString(sum[:])
}

func descriptorFor(normalizedName, version string, content []byte) map[string]interface{} {
	return map[string]interface{}{
		"name":           "Test Mod " + normalizedName,
		"normalizedName": normalizedName,
		"arch":           model.ArchHoi4,
		"version":        version,
		"integrity":      integrityOf(content),
		"author":         "tester",
	}
}

// multipartBody 构造上传表单，content 为nil时不附带文件
func (s *PackageHandlerTestSuite) multipartBody(descriptor interface{}, content []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	if descriptor != nil {
		var raw string
		switch d := descriptor.(type) {
		case string:
			raw = d
		default:
			b, err := json.Marshal(d)
			s.Require().NoError(err)
			raw = string(b)
		}
		s.Require().NoError(w.WriteField("packageInfoJson", raw))
	}
	if content != nil {
		part, err := w.CreateFormFile("file", "mod.zip")
		s.Require().NoError(err)
		_, err = part.Write(content)
		s.Require().NoError(err)
	}
	s.Require().NoError(w.Close())
	return body, w.FormDataContentType()
}

func (s *PackageHandlerTestSuite) do(method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *PackageHandlerTestSuite) decode(rec *httptest.ResponseRecorder) envelope {
	var env envelope
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func (s *PackageHandlerTestSuite) upload(descriptor interface{}, content []byte) *httptest.ResponseRecorder {
	body, ct := s.multipartBody(descriptor, content)
	return s.do(http.MethodPost, "/api/packages/upload", body, ct)
}

// mustUpload 上传并返回包
func (s *PackageHandlerTestSuite) mustUpload(normalizedName string, content []byte) *model.Package {
	rec := s.upload(descriptorFor(normalizedName, "1.0", content), content)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var pkg model.Package
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &pkg))
	return &pkg
}

func (s *PackageHandlerTestSuite) TestUpload_Success() {
	content := []byte("archive bytes")
	rec := s.upload(descriptorFor("modone", "1.0", content), content)

	s.Equal(http.StatusCreated, rec.Code)
	s.NotEmpty(rec.Header().Get(middleware.RequestIDHeader))

	env := s.decode(rec)
	s.Equal(http.StatusCreated, env.Code)
	s.Zero(env.ErrorCode)

	var pkg model.Package
	s.Require().NoError(json.Unmarshal(env.Data, &pkg))
	s.NotZero(pkg.ID)
	s.Equal("modone", pkg.NormalizedName)
	s.Require().Len(pkg.Versions, 1)

	filename := fmt.Sprintf("%d-modone-1.0.zip", pkg.ID)
	s.Equal(filename, pkg.Versions[0].Tarball)
	stored, err := os.ReadFile(filepath.Join(s.blobDir, filename))
	s.Require().NoError(err)
	s.Equal(content, stored)
}

func (s *PackageHandlerTestSuite) TestUpload_MissingFile() {
	rec := s.upload(descriptorFor("modone", "1.0", []byte("x")), nil)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(int(errors.ErrArchiveMissingFromUpload), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestUpload_MalformedDescriptor() {
	rec := s.upload("{not json", []byte("x"))

	s.Equal(http.StatusBadRequest, rec.Code)
	env := s.decode(rec)
	s.Equal(int(errors.ErrMalformedDescriptor), env.ErrorCode)
	s.Equal("null", string(env.Data))
}

func (s *PackageHandlerTestSuite) TestUpload_ValidationErrorsInData() {
	content := []byte("x")
	d := descriptorFor("Mod-One", "1", content)

	rec := s.upload(d, content)
	s.Equal(http.StatusBadRequest, rec.Code)

	env := s.decode(rec)
	s.Equal(int(errors.ErrValidation), env.ErrorCode)
	var msgs []string
	s.Require().NoError(json.Unmarshal(env.Data, &msgs))
	s.Len(msgs, 2)
}

func (s *PackageHandlerTestSuite) TestUpload_IntegrityMismatch() {
	d := descriptorFor("modone", "1.0", []byte("declared"))

	rec := s.upload(d, []byte("actual"))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(int(errors.ErrIntegrityMismatch), s.decode(rec).ErrorCode)

	rec = s.do(http.MethodGet, "/api/packages", nil, "")
	s.JSONEq("[]", string(s.decode(rec).Data))
}

func (s *PackageHandlerTestSuite) TestUpload_Conflict() {
	s.mustUpload("modone", []byte("first"))

	content := []byte("second")
	rec := s.upload(descriptorFor("modone", "2.0", content), content)
	s.Equal(http.StatusConflict, rec.Code)
	s.Equal(int(errors.ErrPackageAlreadyExists), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestUpload_AuditRecorded() {
	pkg := s.mustUpload("modone", []byte("x"))
	resource := fmt.Sprintf("package:%d", pkg.ID)

	s.auditor.Wait()

	logs, total, err := s.auditRepo.ListByResource(context.Background(), resource, 1, 10)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), total)
	s.Equal(AuditActionUpload, logs[0].Action)
	s.True(logs[0].IsSuccess())
}

func (s *PackageHandlerTestSuite) TestListAndGet() {
	rec := s.do(http.MethodGet, "/api/packages", nil, "")
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq("[]", string(s.decode(rec).Data))

	pkg := s.mustUpload("modone", []byte("x"))

	rec = s.do(http.MethodGet, "/api/packages/active", nil, "")
	var active []model.Package
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &active))
	s.Require().Len(active, 1)
	s.Equal(pkg.ID, active[0].ID)

	rec = s.do(http.MethodGet, "/api/packages/"+strconv.Itoa(int(pkg.ID)), nil, "")
	s.Equal(http.StatusOK, rec.Code)
	var got model.Package
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &got))
	s.Equal("modone", got.NormalizedName)
}

func (s *PackageHandlerTestSuite) TestGet_InvalidAndMissing() {
	rec := s.do(http.MethodGet, "/api/packages/abc", nil, "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(int(errors.ErrInvalidParams), s.decode(rec).ErrorCode)

	rec = s.do(http.MethodGet, "/api/packages/999", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(errors.ErrPackageNotFound), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestLastModified() {
	rec := s.do(http.MethodGet, "/api/packages/last-modified", nil, "")
	s.Equal(http.StatusOK, rec.Code)

	var data map[string]string
	s.Require().NoError(json.Unmarshal(s.decode(rec).Data, &data))
	s.NotEmpty(data["packageLastModified"])
}

func (s *PackageHandlerTestSuite) TestDownload_RoundTrip() {
	content := bytes.Repeat([]byte("paradox"), 1024)
	pkg := s.mustUpload("modone", content)

	target := fmt.Sprintf("/api/packages/files?packageId=%d&packageNormalizedName=modone", pkg.ID)
	rec := s.do(http.MethodGet, target, nil, "")

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(content, rec.Body.Bytes())
	s.Equal(strconv.Itoa(len(content)), rec.Header().Get("Content-Length"))
	s.Equal("application/zip", rec.Header().Get("Content-Type"))
	s.Contains(rec.Header().Get("Content-Disposition"), fmt.Sprintf("%d-modone-1.0.zip", pkg.ID))

	stored, err := s.repo.GetByID(context.Background(), pkg.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stored.Versions[0].DownloadCount)
}

func (s *PackageHandlerTestSuite) TestDownload_SpecificVersion() {
	pkg := s.mustUpload("modone", []byte("v1"))

	v2 := []byte("v2")
	body, ct := s.multipartBody(descriptorFor("modone", "1.1", v2), v2)
	rec := s.do(http.MethodPost, fmt.Sprintf("/api/packages/%d/versions", pkg.ID), body, ct)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	base := fmt.Sprintf("/api/packages/files?packageId=%d&packageNormalizedName=modone", pkg.ID)
	rec = s.do(http.MethodGet, base, nil, "")
	s.Equal(v2, rec.Body.Bytes())

	rec = s.do(http.MethodGet, base+"&version=1.0", nil, "")
	s.Equal([]byte("v1"), rec.Body.Bytes())

	rec = s.do(http.MethodGet, base+"&version=9.9", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(errors.ErrVersionNotFound), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestDownload_BadParams() {
	rec := s.do(http.MethodGet, "/api/packages/files?packageNormalizedName=modone", nil, "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/packages/files?packageId=1", nil, "")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/packages/files?packageId=1&packageNormalizedName=modone", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(errors.ErrPackageNotFound), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestDownload_WrongName() {
	pkg := s.mustUpload("modone", []byte("x"))

	rec := s.do(http.MethodGet, fmt.Sprintf("/api/packages/files?packageId=%d&packageNormalizedName=other", pkg.ID), nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *PackageHandlerTestSuite) TestDownload_MissingArchive() {
	pkg := s.mustUpload("modone", []byte("x"))
	s.Require().NoError(os.Remove(filepath.Join(s.blobDir, pkg.Versions[0].Tarball)))

	rec := s.do(http.MethodGet, fmt.Sprintf("/api/packages/files?packageId=%d&packageNormalizedName=modone", pkg.ID), nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(errors.ErrArchiveNotFound), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestPublishVersion_Mismatch() {
	pkg := s.mustUpload("modone", []byte("x"))

	content := []byte("y")
	body, ct := s.multipartBody(descriptorFor("modtwo", "1.1", content), content)
	rec := s.do(http.MethodPost, fmt.Sprintf("/api/packages/%d/versions", pkg.ID), body, ct)

	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(int(errors.ErrPackageMismatch), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestPublishVersion_InvalidID() {
	content := []byte("y")
	body, ct := s.multipartBody(descriptorFor("modone", "1.1", content), content)
	rec := s.do(http.MethodPost, "/api/packages/0/versions", body, ct)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/zip", contentType("1-modone-1.0.zip"))
	assert.Equal(t, "application/zip", contentType("1-modone-1.0.ZIP"))
	assert.Equal(t, "application/octet-stream", contentType("1-modone-1.0.unknownext"))
}

func (s *PackageHandlerTestSuite) TestUnknownRoute() {
	rec := s.do(http.MethodGet, "/api/unknown", nil, "")
	s.Equal(http.StatusNotFound, rec.Code)
	s.Equal(int(errors.ErrNotFound), s.decode(rec).ErrorCode)
}

func (s *PackageHandlerTestSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", nil, "")
	s.Equal(http.StatusOK, rec.Code)

	var data struct {
		Status  string `json:"status"`
		Version struct {
			Version string `json:"version"`
		} `json:"version"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &data))
	s.Equal("ok", data.Status)
	s.NotEmpty(data.Version.Version)
}

func (s *PackageHandlerTestSuite) TestCORSPreflight() {
	req := httptest.NewRequest(http.MethodOptions, "/api/packages/upload", nil)
	req.Header.Set("Origin", "chrome-extension://abc")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
}
