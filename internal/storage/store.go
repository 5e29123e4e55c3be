// Package storage implements the filesystem result store. Port scan
// artifacts are timestamped XML files, topology artifacts are a single
// current topology.json plus a bounded history of snapshots in
// topology-history/.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scanward/scanward/internal/config"
	"github.com/scanward/scanward/internal/errors"
	"github.com/scanward/scanward/internal/logging"
)

const (
	dirPerm  = 0750
	filePerm = 0640

	scanPrefix      = "scan_"
	scanSuffix      = ".xml"
	topologyFile    = "topology.json"
	historyDirName  = "topology-history"
	historyPrefix   = "topology_"
	historySuffix   = ".json"
	timestampLayout = "20060102T150405Z"
)

// Ref identifies a stored artifact.
type Ref struct {
	Name    string    `json:"name"`
	Path    string    `json:"-"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modified_at"`
}

// Store writes and lists result artifacts under a base directory.
type Store struct {
	dir        string
	historyDir string
	maxHistory int
	logger     *logging.Logger
	now        func() time.Time
}

// New creates the store, ensuring the base and history directories exist.
func New(cfg config.StorageConfig, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Default()
	}
	historyDir := filepath.Join(cfg.ResultsDir, historyDirName)
	for _, dir := range []string{cfg.ResultsDir, historyDir} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, errors.WrapStorageError(errors.CodeStorageWriteFailed,
				"failed to create results directory", err).WithPath(dir)
		}
	}
	return &Store{
		dir:        cfg.ResultsDir,
		historyDir: historyDir,
		maxHistory: cfg.MaxHistoryFiles,
		logger:     logger.WithComponent("storage"),
		now:        time.Now,
	}, nil
}

// Dir returns the base results directory.
func (s *Store) Dir() string {
	return s.dir
}

// WriteScan stores a port scan artifact under a timestamped name and
// returns its ref.
func (s *Store) WriteScan(data []byte) (Ref, error) {
	name := scanPrefix + s.now().UTC().Format(timestampLayout) + scanSuffix
	path := filepath.Join(s.dir, name)

	if err := s.writeAtomic(path, data); err != nil {
		return Ref{}, err
	}

	s.logger.Info("scan artifact written", "name", name, "bytes", len(data))
	return s.refFor(path)
}

// WriteTopology replaces the current topology document and records a
// history snapshot, pruning snapshots beyond the configured retention.
func (s *Store) WriteTopology(data []byte) (Ref, error) {
	current := filepath.Join(s.dir, topologyFile)
	if err := s.writeAtomic(current, data); err != nil {
		return Ref{}, err
	}

	snapshot := historyPrefix + s.now().UTC().Format(timestampLayout) + historySuffix
	if err := s.writeAtomic(filepath.Join(s.historyDir, snapshot), data); err != nil {
		return Ref{}, err
	}

	if err := s.pruneHistory(); err != nil {
		// Retention failure must not fail the job; the artifact is stored.
		s.logger.Error("failed to prune topology history", "error", err)
	}

	s.logger.Info("topology artifact written", "snapshot", snapshot, "bytes", len(data))
	return s.refFor(current)
}

// ListScans returns refs of all scan artifacts, newest first.
func (s *Store) ListScans() ([]Ref, error) {
	return s.list(s.dir, scanPrefix, scanSuffix)
}

// LatestScan returns the ref of the newest scan artifact, if any exists.
func (s *Store) LatestScan() (Ref, bool, error) {
	refs, err := s.ListScans()
	if err != nil {
		return Ref{}, false, err
	}
	if len(refs) == 0 {
		return Ref{}, false, nil
	}
	return refs[0], true, nil
}

// ScanCount returns the number of stored scan artifacts.
func (s *Store) ScanCount() (int, error) {
	refs, err := s.ListScans()
	if err != nil {
		return 0, err
	}
	return len(refs), nil
}

// HasTopology reports whether a current topology document exists.
func (s *Store) HasTopology() bool {
	_, err := os.Stat(filepath.Join(s.dir, topologyFile))
	return err == nil
}

// ReadTopology returns the current topology document.
func (s *Store) ReadTopology() ([]byte, error) {
	path := filepath.Join(s.dir, topologyFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStorageError(errors.CodeNotFound,
				"no topology document available").WithPath(path)
		}
		return nil, errors.WrapStorageError(errors.CodeStorageReadFailed,
			"failed to read topology document", err).WithPath(path)
	}
	return data, nil
}

// Read returns the contents of an artifact by ref.
func (s *Store) Read(ref Ref) ([]byte, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewStorageError(errors.CodeNotFound,
				"artifact does not exist").WithPath(ref.Path)
		}
		return nil, errors.WrapStorageError(errors.CodeStorageReadFailed,
			"failed to read artifact", err).WithPath(ref.Path)
	}
	return data, nil
}

// ReadNamed returns an artifact's contents by bare file name, as used
// in request paths. The name is validated against directory escapes.
func (s *Store) ReadNamed(name string) ([]byte, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	return s.Read(Ref{Name: name, Path: filepath.Join(s.dir, name)})
}

// ListTopologyHistory returns refs of topology snapshots, newest first.
func (s *Store) ListTopologyHistory() ([]Ref, error) {
	return s.list(s.historyDir, historyPrefix, historySuffix)
}

// writeAtomic writes through a temp file and renames it into place so
// readers never observe a partial artifact.
func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.ErrStorageWrite(path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.ErrStorageWrite(path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.ErrStorageWrite(path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.ErrStorageWrite(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.ErrStorageWrite(path, err)
	}
	return nil
}

// refFor builds a ref for a stored artifact by statting it.
func (s *Store) refFor(path string) (Ref, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Ref{}, errors.WrapStorageError(errors.CodeStorageReadFailed,
			"failed to stat artifact", err).WithPath(path)
	}
	return Ref{
		Name:    filepath.Base(path),
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

func (s *Store) list(dir, prefix, suffix string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.WrapStorageError(errors.CodeStorageReadFailed,
			"failed to list artifacts", err).WithPath(dir)
	}

	var refs []Ref
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		refs = append(refs, Ref{
			Name:    name,
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	// Timestamped names sort chronologically; newest first.
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Name > refs[j].Name
	})
	return refs, nil
}

// pruneHistory removes the oldest snapshots beyond the retention limit.
// A limit of zero disables pruning.
func (s *Store) pruneHistory() error {
	if s.maxHistory <= 0 {
		return nil
	}
	refs, err := s.ListTopologyHistory()
	if err != nil {
		return err
	}
	if len(refs) <= s.maxHistory {
		return nil
	}
	for _, ref := range refs[s.maxHistory:] {
		if err := os.Remove(ref.Path); err != nil {
			return errors.WrapStorageError(errors.CodeStorageWriteFailed,
				"failed to remove expired snapshot", err).WithPath(ref.Path)
		}
		s.logger.Debug("pruned topology snapshot", "name", ref.Name)
	}
	return nil
}

// Timestamp extracts the artifact's timestamp from its name, falling
// back to the file mod time for names that do not parse.
func (r Ref) Timestamp() time.Time {
	name := r.Name
	for _, prefix := range []string{scanPrefix, historyPrefix} {
		name = strings.TrimPrefix(name, prefix)
	}
	for _, suffix := range []string{scanSuffix, historySuffix} {
		name = strings.TrimSuffix(name, suffix)
	}
	ts, err := time.Parse(timestampLayout, name)
	if err != nil {
		return r.ModTime
	}
	return ts
}

// String renders the ref as its artifact name.
func (r Ref) String() string {
	return r.Name
}

// ValidateName rejects artifact names that could escape the store
// directory when used in request paths.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return errors.NewStorageError(errors.CodeValidation,
			fmt.Sprintf("invalid artifact name %q", name))
	}
	return nil
}
