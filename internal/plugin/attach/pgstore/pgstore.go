package pgstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/chirino/weave-service/internal/config"
	registryattach "github.com/chirino/weave-service/internal/registry/attach"
	"github.com/chirino/weave-service/internal/tempfiles"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// chunkSize is the lo_put/lo_get page size.
const chunkSize = 64 * 1024

func init() {
	registryattach.Register(registryattach.Plugin{
		Name:   "postgres",
		Loader: load,
	})
}

func load(ctx context.Context) (registryattach.ArtifactStore, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("pgstore: WEAVE_DB_URL is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("pgstore: %w", err)
	}
	return &PgArtifactStore{db: db, tempDir: cfg.ResolvedTempDir()}, nil
}

// PgArtifactStore keeps artifact bytes in PostgreSQL large objects. The
// storage key is the large object OID; the key requested by the caller is
// ignored. It cannot presign URLs, so clients download through the service.
type PgArtifactStore struct {
	db      *gorm.DB
	tempDir string
}

func (s *PgArtifactStore) Put(ctx context.Context, _ string, data io.Reader, maxSize int64, _ string) (*registryattach.PutResult, error) {
	tmp, err := tempfiles.Create(s.tempDir, "weave-pg-upload-*")
	if err != nil {
		return nil, fmt.Errorf("pgstore: create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	total, err := io.Copy(io.MultiWriter(tmp, hasher), io.LimitReader(data, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("pgstore: buffer upload: %w", err)
	}
	if total > maxSize {
		return nil, &registryattach.TooLargeError{MaxSize: maxSize}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("pgstore: rewind temp file: %w", err)
	}

	var oid int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw("SELECT lo_create(0)").Scan(&oid).Error; err != nil {
			return fmt.Errorf("pgstore: lo_create: %w", err)
		}
		buf := make([]byte, chunkSize)
		offset := int64(0)
		for {
			n, readErr := io.ReadFull(tmp, buf)
			if n > 0 {
				if err := tx.Exec("SELECT lo_put(?, ?, ?)", oid, offset, buf[:n]).Error; err != nil {
					return fmt.Errorf("pgstore: lo_put at offset %d: %w", offset, err)
				}
				offset += int64(n)
			}
			if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
				return nil
			}
			if readErr != nil {
				return fmt.Errorf("pgstore: read upload buffer: %w", readErr)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return &registryattach.PutResult{
		StorageKey: strconv.FormatInt(oid, 10),
		Size:       total,
		SHA256:     hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Get spools the large object to a temp file that is removed on Close, so no
// database connection is held while the caller streams.
func (s *PgArtifactStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	oid, err := parseOID(key)
	if err != nil {
		return nil, err
	}
	tmp, err := tempfiles.Create(s.tempDir, "weave-pg-download-*")
	if err != nil {
		return nil, fmt.Errorf("pgstore: create temp file: %w", err)
	}
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}

	db := s.db.WithContext(ctx)
	for offset := int64(0); ; offset += chunkSize {
		var page []byte
		if err := db.Raw("SELECT lo_get(?, ?, ?)", oid, offset, chunkSize).Row().Scan(&page); err != nil {
			cleanup()
			return nil, fmt.Errorf("pgstore: lo_get %s: %w", key, err)
		}
		if _, err := tmp.Write(page); err != nil {
			cleanup()
			return nil, fmt.Errorf("pgstore: spool large object: %w", err)
		}
		if len(page) < chunkSize {
			break
		}
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		cleanup()
		return nil, fmt.Errorf("pgstore: rewind temp file: %w", err)
	}
	return tempfiles.NewDeleteOnClose(tmp), nil
}

func (s *PgArtifactStore) Delete(ctx context.Context, key string) error {
	oid, err := parseOID(key)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Exec("SELECT lo_unlink(?)", oid).Error; err != nil {
		return fmt.Errorf("pgstore: lo_unlink %s: %w", key, err)
	}
	return nil
}

func (s *PgArtifactStore) PresignGet(context.Context, string, time.Duration) (*url.URL, error) {
	return nil, registryattach.ErrPresignUnsupported
}

func parseOID(key string) (int64, error) {
	oid, err := strconv.ParseInt(key, 10, 64)
	if err != nil || oid <= 0 {
		return 0, fmt.Errorf("pgstore: invalid storage key %q", key)
	}
	return oid, nil
}

var _ registryattach.ArtifactStore = (*PgArtifactStore)(nil)
