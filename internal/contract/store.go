package contract

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/datawarden-io/datawarden/internal/config"
)

// archiveDirName is the namespace for pre-replace contract copies.
const archiveDirName = "archive"

// archiveTimeFormat names archive copies down to the second.
const archiveTimeFormat = "20060102_150405"

// Sentinel errors for store operations.
var (
	// ErrContractNotFound indicates no contract matches the table.
	ErrContractNotFound = errors.New("no contract found for table")

	// ErrStoreDirEmpty indicates the store was built without a directory.
	ErrStoreDirEmpty = errors.New("contracts directory is required")

	// ErrNotAContractFile indicates a path outside the recognized extensions.
	ErrNotAContractFile = errors.New("not a contract file")
)

type (
	// Store reads and writes contract documents under one directory.
	// Replacements are serialized per file and always archive the prior
	// contents first.
	Store struct {
		dir    string
		logger *slog.Logger

		mu        sync.Mutex
		fileLocks map[string]*sync.Mutex
	}

	// StoreOption configures optional Store behavior.
	StoreOption func(*Store)

	// Located pairs a parsed contract with the file it came from.
	Located struct {
		Path     string
		Document *Document
	}

	// Diagnostic reports a contract file that could not be parsed.
	// Parse failures never abort discovery of sibling files.
	Diagnostic struct {
		Path string
		Err  error
	}
)

// WithStoreLogger sets the structured logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a contract store rooted at dir.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrStoreDirEmpty
	}

	store := &Store{
		dir: dir,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("DATAWARDEN_LOG_LEVEL", slog.LevelInfo),
		})),
		fileLocks: make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

// Load reads and validates one contract file.
func (s *Store) Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contract %s: %w", path, err)
	}

	doc, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("contract %s: %w", path, err)
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("contract %s: %w", path, err)
	}

	return doc, nil
}

// Locate resolves the contract for a table. A file named after the table
// wins; otherwise every contract in the directory is scanned for a
// matching table_name.
func (s *Store) Locate(table string) (*Located, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		direct := filepath.Join(s.dir, table+ext)

		if _, err := os.Stat(direct); err != nil {
			continue
		}

		doc, err := s.Load(direct)
		if err != nil {
			s.logger.Warn("Skipping unreadable contract", slog.String("path", direct), slog.Any("error", err))
			continue
		}

		return &Located{Path: direct, Document: doc}, nil
	}

	entries, _, err := s.List()
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.Document.TableName == table {
			return &entry, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrContractNotFound, table)
}

// List parses every contract in the directory, collecting a diagnostic
// for each file that fails instead of aborting the scan. The archive
// namespace and temp files are skipped.
func (s *Store) List() ([]Located, []Diagnostic, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read contracts directory %s: %w", s.dir, err)
	}

	var (
		located     []Located
		diagnostics []Diagnostic
	)

	for _, entry := range dirEntries {
		if entry.IsDir() || !isContractFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())

		doc, err := s.Load(path)
		if err != nil {
			diagnostics = append(diagnostics, Diagnostic{Path: path, Err: err})
			continue
		}

		located = append(located, Located{Path: path, Document: doc})
	}

	return located, diagnostics, nil
}

// isContractFile filters directory entries down to active contracts.
func isContractFile(name string) bool {
	if strings.HasPrefix(name, ".") || strings.Contains(name, ".backup") || strings.HasSuffix(name, ".tmp") {
		return false
	}

	ext := filepath.Ext(name)

	return ext == ".yaml" || ext == ".yml"
}

// Archive copies the file at path into the archive namespace with a
// versioned, timestamped name, returning the archive path.
func (s *Store) Archive(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("archive %s: %w", path, err)
	}

	version := "0"
	if doc, decErr := Decode(data); decErr == nil && doc.Info.Version != "" {
		version = doc.Info.Version
	}

	archiveDir := filepath.Join(s.dir, archiveDirName)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	stamp := time.Now().UTC().Format(archiveTimeFormat)

	target := filepath.Join(archiveDir, fmt.Sprintf("%s_v%s_%s%s", stem, version, stamp, ext))
	for n := 1; ; n++ {
		if _, statErr := os.Stat(target); os.IsNotExist(statErr) {
			break
		}

		target = filepath.Join(archiveDir, fmt.Sprintf("%s_v%s_%s_%d%s", stem, version, stamp, n, ext))
	}

	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("write archive copy: %w", err)
	}

	s.logger.Info("Archived contract",
		slog.String("path", path),
		slog.String("archive", target),
	)

	return target, nil
}

// Replace atomically swaps the contract at path with doc, archiving the
// current contents first. Replacements on the same file are serialized.
func (s *Store) Replace(path string, doc *Document) error {
	if !isContractFile(filepath.Base(path)) {
		return fmt.Errorf("%w: %s", ErrNotAContractFile, path)
	}

	if err := doc.Validate(); err != nil {
		return err
	}

	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.Archive(path); err != nil {
		return err
	}

	return s.writeAtomic(path, doc)
}

// SaveDraft writes a contract for a table that has none yet. An existing
// file is archived and replaced instead.
func (s *Store) SaveDraft(table string, doc *Document) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, table+".yaml")

	lock := s.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	if _, err := os.Stat(path); err == nil {
		if _, err := s.Archive(path); err != nil {
			return "", err
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create contracts directory: %w", err)
	}

	if err := s.writeAtomic(path, doc); err != nil {
		return "", err
	}

	return path, nil
}

func (s *Store) writeAtomic(path string, doc *Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write contract: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace contract: %w", err)
	}

	s.logger.Info("Wrote contract",
		slog.String("path", path),
		slog.String("table", doc.TableName),
	)

	return nil
}

// fileLock returns the mutex serializing writes to one contract path.
func (s *Store) fileLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := filepath.Clean(path)

	lock, ok := s.fileLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.fileLocks[key] = lock
	}

	return lock
}
