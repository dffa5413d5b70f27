// Package reliability provides database backup and maintenance jobs.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aristath/tradeguard/internal/database"
	"github.com/rs/zerolog"
)

const (
	backupFilePrefix    = "tradeguard-backup-"
	backupFileSuffix    = ".tar.gz"
	backupTimestamp     = "2006-01-02-150405"
	manifestFilename    = "manifest.json"
	minBackupsToKeep    = 3
	backupFormatVersion = "1"
)

// Manifest is written as the last entry of every archive
type Manifest struct {
	CreatedAt time.Time       `json:"created_at"`
	Format    string          `json:"format"`
	Databases []ManifestEntry `json:"databases"`
}

// ManifestEntry describes one database snapshot inside an archive
type ManifestEntry struct {
	Database string `json:"database"`
	File     string `json:"file"`
	Bytes    int64  `json:"bytes"`
	SHA256   string `json:"sha256"`
}

// StoredBackup is an archive found in the object store
type StoredBackup struct {
	Key     string        `json:"key"`
	TakenAt time.Time     `json:"taken_at"`
	Bytes   int64         `json:"bytes"`
	Age     time.Duration `json:"-"`
}

// BackupResult describes a completed upload
type BackupResult struct {
	Key       string
	SizeBytes int64
	Duration  time.Duration
}

// BackupService snapshots databases into a tar.gz archive and ships it to an ObjectStore
type BackupService struct {
	store      ObjectStore
	databases  map[string]*database.DB
	stagingDir string
	prefix     string
	now        func() time.Time
	log        zerolog.Logger
}

// NewBackupService creates a new backup service.
// Archives are stored under prefix; stagingDir holds temporary copies while an archive is built.
func NewBackupService(
	store ObjectStore,
	databases map[string]*database.DB,
	stagingDir string,
	prefix string,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:      store,
		databases:  databases,
		stagingDir: stagingDir,
		prefix:     strings.Trim(prefix, "/"),
		now:        time.Now,
		log:        log.With().Str("service", "backup").Logger(),
	}
}

// DatabaseNames returns the backed-up database names in stable order
func (s *BackupService) DatabaseNames() []string {
	names := make([]string, 0, len(s.databases))
	for name := range s.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *BackupService) objectKey(filename string) string {
	if s.prefix == "" {
		return filename
	}
	return path.Join(s.prefix, filename)
}

// CreateAndUploadBackup snapshots every database, packs the snapshots and a
// manifest into one tar.gz and uploads it
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) (*BackupResult, error) {
	began := time.Now()
	takenAt := s.now().UTC()

	workDir, err := os.MkdirTemp(s.stagingDir, "backup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	archiveName := backupFilePrefix + takenAt.Format(backupTimestamp) + backupFileSuffix
	archivePath := filepath.Join(workDir, archiveName)

	manifest, err := s.buildArchive(archivePath, workDir, takenAt)
	if err != nil {
		return nil, err
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	stat, err := archive.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	key := s.objectKey(archiveName)
	if err := s.store.Upload(ctx, key, archive, stat.Size()); err != nil {
		return nil, fmt.Errorf("failed to upload backup: %w", err)
	}

	result := &BackupResult{Key: key, SizeBytes: stat.Size(), Duration: time.Since(began)}
	s.log.Info().
		Str("key", key).
		Int("databases", len(manifest.Databases)).
		Int64("bytes", result.SizeBytes).
		Dur("elapsed", result.Duration).
		Msg("Backup uploaded")
	return result, nil
}

// buildArchive writes a consistent copy of each database into the archive,
// hashing each copy as it streams through, then appends the manifest
func (s *BackupService) buildArchive(archivePath, workDir string, takenAt time.Time) (manifest Manifest, err error) {
	out, err := os.Create(archivePath)
	if err != nil {
		return manifest, fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	gz := gzip.NewWriter(out)
	tw := tar.NewWriter(gz)

	manifest = Manifest{CreatedAt: takenAt, Format: backupFormatVersion}
	for _, name := range s.DatabaseNames() {
		file := name + ".db"
		snapshot := filepath.Join(workDir, file)
		if err := s.databases[name].VacuumInto(snapshot); err != nil {
			return manifest, fmt.Errorf("failed to snapshot %s: %w", name, err)
		}

		entry, err := appendSnapshot(tw, snapshot, file, takenAt)
		if err != nil {
			return manifest, fmt.Errorf("failed to archive %s: %w", name, err)
		}
		entry.Database = name
		manifest.Databases = append(manifest.Databases, entry)

		// The copy is in the archive now
		os.Remove(snapshot)
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return manifest, fmt.Errorf("failed to encode manifest: %w", err)
	}
	hdr := &tar.Header{Name: manifestFilename, Mode: 0o644, Size: int64(len(body)), ModTime: takenAt}
	if err := tw.WriteHeader(hdr); err != nil {
		return manifest, err
	}
	if _, err := tw.Write(body); err != nil {
		return manifest, err
	}

	if err := tw.Close(); err != nil {
		return manifest, err
	}
	return manifest, gz.Close()
}

func appendSnapshot(tw *tar.Writer, snapshot, file string, takenAt time.Time) (ManifestEntry, error) {
	f, err := os.Open(snapshot)
	if err != nil {
		return ManifestEntry{}, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return ManifestEntry{}, err
	}

	hdr := &tar.Header{Name: file, Mode: 0o600, Size: stat.Size(), ModTime: takenAt}
	if err := tw.WriteHeader(hdr); err != nil {
		return ManifestEntry{}, err
	}

	digest := sha256.New()
	n, err := io.Copy(io.MultiWriter(tw, digest), f)
	if err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{File: file, Bytes: n, SHA256: hex.EncodeToString(digest.Sum(nil))}, nil
}

// ListBackups returns the archives under the prefix, newest first.
// Objects whose names do not carry a backup timestamp are ignored.
func (s *BackupService) ListBackups(ctx context.Context) ([]StoredBackup, error) {
	objects, err := s.store.List(ctx, s.objectKey(backupFilePrefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := s.now()
	var backups []StoredBackup
	for _, obj := range objects {
		takenAt, ok := parseBackupName(path.Base(obj.Key))
		if !ok {
			s.log.Debug().Str("key", obj.Key).Msg("Ignoring object without backup timestamp")
			continue
		}
		backups = append(backups, StoredBackup{
			Key:     obj.Key,
			TakenAt: takenAt,
			Bytes:   obj.SizeBytes,
			Age:     now.Sub(takenAt),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].TakenAt.After(backups[j].TakenAt) })
	return backups, nil
}

// parseBackupName extracts the timestamp from tradeguard-backup-2026-01-08-143022.tar.gz
func parseBackupName(name string) (time.Time, bool) {
	stamp, ok := strings.CutPrefix(name, backupFilePrefix)
	if !ok {
		return time.Time{}, false
	}
	stamp, ok = strings.CutSuffix(stamp, backupFileSuffix)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(backupTimestamp, stamp)
	return t, err == nil
}

// RotateOldBackups deletes archives older than retentionDays.
// The newest minBackupsToKeep always survive; retentionDays <= 0 disables rotation.
func (s *BackupService) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	if len(backups) <= minBackupsToKeep {
		return 0, nil
	}

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted := 0
	for _, b := range backups[minBackupsToKeep:] {
		if !b.TakenAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, b.Key); err != nil {
			s.log.Error().Err(err).Str("key", b.Key).Msg("Failed to delete expired backup")
			continue
		}
		deleted++
	}

	s.log.Info().Int("deleted", deleted).Int("kept", len(backups)-deleted).Msg("Backups rotated")
	return deleted, nil
}
