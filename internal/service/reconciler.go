package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// MissingArchive 元数据存在但文件缺失的版本
type MissingArchive struct {
	PackageID uint
	Version   string
	Tarball   string
}

// ReconcileReport 一次巡检结果
type ReconcileReport struct {
	Checked  int
	Missing  []MissingArchive
	Duration time.Duration
}

// BlobReconciler 包文件巡检服务
// 上传时元数据先提交，文件写入失败会留下指向不存在文件的版本，这里定期找出这类版本
type BlobReconciler struct {
	packageRepo repository.PackageRepository
	blobs       storage.BlobStore
	logger      *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	last    *ReconcileReport
	timeout time.Duration
}

// NewBlobReconciler 创建包文件巡检服务实例
func NewBlobReconciler(packageRepo repository.PackageRepository, blobs storage.BlobStore, logger *zap.Logger) *BlobReconciler {
	return &BlobReconciler{
		packageRepo: packageRepo,
		blobs:       blobs,
		logger:      logger,
		timeout:     10 * time.Minute,
	}
}

// Reconcile 检查所有版本的文件是否存在
func (r *BlobReconciler) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	start := time.Now()
	r.logger.Info("starting archive reconciliation")

	versions, err := r.packageRepo.ListVersions(ctx)
	if err != nil {
		r.logger.Error("failed to list versions", zap.Error(err))
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	report := &ReconcileReport{}
	for _, v := range versions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Checked++

		_, err := r.blobs.Stat(ctx, v.Tarball)
		if err == nil {
			continue
		}
		if !stderrors.Is(err, storage.ErrNotExist) {
			r.logger.Warn("failed to stat archive",
				zap.Uint("package_id", v.PackageID),
				zap.String("tarball", v.Tarball),
				zap.Error(err))
			continue
		}

		r.logger.Error("archive missing for committed version",
			zap.Uint("package_id", v.PackageID),
			zap.String("version", v.Version),
			zap.String("tarball", v.Tarball))
		report.Missing = append(report.Missing, MissingArchive{
			PackageID: v.PackageID,
			Version:   v.Version,
			Tarball:   v.Tarball,
		})
	}
	report.Duration = time.Since(start)

	r.logger.Info("archive reconciliation completed",
		zap.Int("checked", report.Checked),
		zap.Int("missing", len(report.Missing)),
		zap.Duration("duration", report.Duration))

	r.mu.Lock()
	r.last = report
	r.mu.Unlock()

	return report, nil
}

// LastReport 最近一次巡检结果，尚未执行时返回nil
func (r *BlobReconciler) LastReport() *ReconcileReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Start 按 cron 表达式定时巡检
func (r *BlobReconciler) Start(schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return fmt.Errorf("reconciler already started")
	}

	logger := cronLogger{s: r.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := c.AddFunc(schedule, r.run); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c

	r.logger.Info("archive reconciler started", zap.String("schedule", schedule))
	return nil
}

// Stop 停止定时巡检，等待正在执行的巡检结束
func (r *BlobReconciler) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.logger.Info("archive reconciler stopped")
}

func (r *BlobReconciler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.Reconcile(ctx); err != nil {
		r.logger.Error("archive reconciliation failed", zap.Error(err))
	}
}

// cronLogger 将 cron 日志写入 zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
