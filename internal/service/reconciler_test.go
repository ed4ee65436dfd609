package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/repository"
	"github.com/Paradox-Developer-Foundation/PackageManager/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBlobReconciler_Reconcile(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPackageRepository(db)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	logger := zap.NewNop()
	coordinator := NewIngestionCoordinator(NewPackageValidator(), NewDependencyResolver(repo, logger),
		NewContentHasher(), repo, repo, blobs, "zip", logger)

	ctx := context.Background()
	var tarballs []string
	for _, name := range []string{"kept", "lost"} {
		content := []byte(name)
		pkg, err := coordinator.Upload(ctx, &UploadRequest{
			Descriptor: newDescriptor(name, content),
			Archive:    newReadSeeker(content),
			Size:       int64(len(content)),
		})
		require.NoError(t, err)
		tarballs = append(tarballs, pkg.Versions[0].Tarball)
	}
	require.NoError(t, os.Remove(filepath.Join(blobs.Root(), tarballs[1])))

	reconciler := NewBlobReconciler(repo, blobs, logger)
	assert.Nil(t, reconciler.LastReport())

	report, err := reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Missing, 1)
	assert.Equal(t, tarballs[1], report.Missing[0].Tarball)
	assert.Equal(t, "1.0", report.Missing[0].Version)
	assert.Same(t, report, reconciler.LastReport())
}

func TestBlobReconciler_StartStop(t *testing.T) {
	db := newTestDB(t)
	repo := repository.NewPackageRepository(db)
	blobs, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	reconciler := NewBlobReconciler(repo, blobs, zap.NewNop())
	assert.Error(t, reconciler.Start("not a schedule"))

	require.NoError(t, reconciler.Start("@every 1h"))
	assert.Error(t, reconciler.Start("@every 1h"), "already started")
	reconciler.Stop()
	reconciler.Stop()
}
