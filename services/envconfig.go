package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/n8nhost/console/db"
)

const customGroup = "Custom"

var (
	envKeyPattern      = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)
	envBackupPattern   = regexp.MustCompile(`^env-[0-9]{8}-[0-9]{6}\.[0-9]{3}\.env$`)
	envBackupTimestamp = "20060102-150405.000"
)

const riskMarker = ".risk-acknowledged"

// EnvSchema describes the variables the console knows about.
type EnvSchema struct {
	Variables []db.EnvVariable `yaml:"variables"`
}

// LoadEnvSchema reads the YAML schema file.
func LoadEnvSchema(path string) (EnvSchema, error) {
	var schema EnvSchema
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema, fmt.Errorf("failed to read env schema: %w", err)
	}
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return schema, fmt.Errorf("failed to parse env schema: %w", err)
	}
	for i := range schema.Variables {
		v := &schema.Variables[i]
		if v.Type == "" {
			v.Type = "string"
		}
		if v.Group == "" {
			v.Group = "General"
		}
	}
	return schema, nil
}

func (s EnvSchema) lookup(key string) (db.EnvVariable, bool) {
	for _, v := range s.Variables {
		if v.Key == key {
			return v, true
		}
	}
	return db.EnvVariable{}, false
}

// EnvConfigService edits the n8n deployment's .env file. Every write goes
// through a temp file and rename.
type EnvConfigService struct {
	EnvFile   string
	BackupDir string
	Schema    EnvSchema
	Docker    ContainerRestarter

	mu  sync.Mutex
	now func() time.Time
}

func NewEnvConfigService(envFile, backupDir string, schema EnvSchema, docker ContainerRestarter) *EnvConfigService {
	return &EnvConfigService{
		EnvFile:   envFile,
		BackupDir: backupDir,
		Schema:    schema,
		Docker:    docker,
		now:       time.Now,
	}
}

func (s *EnvConfigService) read() (map[string]string, error) {
	values, err := godotenv.Read(s.EnvFile)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return values, nil
}

func (s *EnvConfigService) write(values map[string]string) error {
	content, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode env file: %w", err)
	}
	tmp := s.EnvFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(content+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	if err := os.Rename(tmp, s.EnvFile); err != nil {
		return fmt.Errorf("failed to replace env file: %w", err)
	}
	return nil
}

func (s *EnvConfigService) riskAcknowledged() bool {
	_, err := os.Stat(filepath.Join(s.BackupDir, riskMarker))
	return err == nil
}

// GetConfig returns variables grouped in schema order, with sensitive values
// masked. Variables present only in the file form the Custom group.
func (s *EnvConfigService) GetConfig() (db.EnvConfigResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := db.EnvConfigResponse{Groups: []db.EnvGroup{}, RiskAcknowledged: s.riskAcknowledged()}
	values, err := s.read()
	if err != nil {
		return resp, err
	}

	index := map[string]int{}
	add := func(v db.EnvVariable) {
		i, ok := index[v.Group]
		if !ok {
			i = len(resp.Groups)
			index[v.Group] = i
			resp.Groups = append(resp.Groups, db.EnvGroup{Name: v.Group, Variables: []db.EnvVariable{}})
		}
		resp.Groups[i].Variables = append(resp.Groups[i].Variables, v)
	}

	known := map[string]bool{}
	for _, v := range s.Schema.Variables {
		known[v.Key] = true
		v.Value = values[v.Key]
		if v.Sensitive {
			v.Value = MaskSecret(v.Value)
		}
		add(v)
	}

	var custom []string
	for key := range values {
		if !known[key] {
			custom = append(custom, key)
		}
	}
	sort.Strings(custom)
	for _, key := range custom {
		add(db.EnvVariable{Key: key, Value: values[key], Label: key, Editable: true, IsCustom: true, Type: "string", Group: customGroup})
	}
	return resp, nil
}

// AcknowledgeRisk records that the operator accepted the warning and takes
// a backup of the current file.
func (s *EnvConfigService) AcknowledgeRisk() (db.EnvBackup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup, err := s.backupLocked()
	if err != nil {
		return backup, err
	}
	marker := filepath.Join(s.BackupDir, riskMarker)
	if err := os.WriteFile(marker, []byte(s.now().Format(time.RFC3339)), 0o600); err != nil {
		return backup, fmt.Errorf("failed to record acknowledgment: %w", err)
	}
	return backup, nil
}

// ValidateValue checks value against a variable's declared type. Empty
// values are handled by the required check.
func ValidateValue(v db.EnvVariable, value string) error {
	if value == "" {
		return nil
	}
	switch v.Type {
	case "number":
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s must be a number", v.Key)
		}
	case "boolean":
		if _, err := strconv.ParseBool(value); err != nil {
			return fmt.Errorf("%s must be true or false", v.Key)
		}
	case "url":
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL", v.Key)
		}
	case "email":
		if _, err := mail.ParseAddress(value); err != nil {
			return fmt.Errorf("%s must be an email address", v.Key)
		}
	}
	return nil
}

func (s *EnvConfigService) SetValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.read()
	if err != nil {
		return err
	}
	if v, ok := s.Schema.lookup(key); ok {
		if !v.Editable {
			return invalid("%s is read-only", key)
		}
		if v.Required && value == "" {
			return invalid("%s is required", key)
		}
		if err := ValidateValue(v, value); err != nil {
			return invalid("%v", err)
		}
	} else if _, exists := values[key]; !exists {
		return notFound("variable " + key)
	}
	values[key] = value
	return s.write(values)
}

func (s *EnvConfigService) AddCustom(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !envKeyPattern.MatchString(key) {
		return invalid("key must be upper case letters, digits and underscores, starting with a letter")
	}
	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := s.Schema.lookup(key); ok {
		return conflict("variable %s already exists", key)
	}
	if _, ok := values[key]; ok {
		return conflict("variable %s already exists", key)
	}
	values[key] = value
	return s.write(values)
}

// DeleteCustom removes a variable that is not part of the schema.
func (s *EnvConfigService) DeleteCustom(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Schema.lookup(key); ok {
		return invalid("%s is a managed variable and cannot be deleted", key)
	}
	values, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return notFound("variable " + key)
	}
	delete(values, key)
	return s.write(values)
}

// BACKUPS

func (s *EnvConfigService) backupLocked() (db.EnvBackup, error) {
	if err := os.MkdirAll(s.BackupDir, 0o700); err != nil {
		return db.EnvBackup{}, fmt.Errorf("failed to create backup dir: %w", err)
	}
	content, err := os.ReadFile(s.EnvFile)
	if errors.Is(err, fs.ErrNotExist) {
		content = nil
	} else if err != nil {
		return db.EnvBackup{}, fmt.Errorf("failed to read env file: %w", err)
	}
	now := s.now()
	name := "env-" + now.Format(envBackupTimestamp) + ".env"
	if err := os.WriteFile(filepath.Join(s.BackupDir, name), content, 0o600); err != nil {
		return db.EnvBackup{}, fmt.Errorf("failed to write backup: %w", err)
	}
	return db.EnvBackup{Filename: name, CreatedAt: now, Size: int64(len(content))}, nil
}

func (s *EnvConfigService) CreateBackup() (db.EnvBackup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupLocked()
}

// ListBackups returns backups newest first.
func (s *EnvConfigService) ListBackups() ([]db.EnvBackup, error) {
	backups := []db.EnvBackup{}
	entries, err := os.ReadDir(s.BackupDir)
	if errors.Is(err, fs.ErrNotExist) {
		return backups, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !envBackupPattern.MatchString(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		created, err := time.ParseInLocation(envBackupTimestamp,
			strings.TrimSuffix(strings.TrimPrefix(e.Name(), "env-"), ".env"), time.Local)
		if err != nil {
			created = info.ModTime()
		}
		backups = append(backups, db.EnvBackup{Filename: e.Name(), CreatedAt: created, Size: info.Size()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].Filename > backups[j].Filename })
	return backups, nil
}

// Restore replaces the whole env file with a backup, snapshotting the
// current file first.
func (s *EnvConfigService) Restore(filename string) (db.EnvBackup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if filepath.Base(filename) != filename || !envBackupPattern.MatchString(filename) {
		return db.EnvBackup{}, invalid("invalid backup filename")
	}
	content, err := os.ReadFile(filepath.Join(s.BackupDir, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return db.EnvBackup{}, notFound("backup")
	}
	if err != nil {
		return db.EnvBackup{}, fmt.Errorf("failed to read backup: %w", err)
	}

	snapshot, err := s.backupLocked()
	if err != nil {
		return snapshot, err
	}
	tmp := s.EnvFile + ".tmp"
	if err := os.WriteFile(tmp, content, 0o600); err != nil {
		return snapshot, fmt.Errorf("failed to write env file: %w", err)
	}
	if err := os.Rename(tmp, s.EnvFile); err != nil {
		return snapshot, fmt.Errorf("failed to replace env file: %w", err)
	}
	return snapshot, nil
}

// HEALTH CHECK AND CONTAINERS

// HealthCheck validates pending changes against the schema without writing.
func (s *EnvConfigService) HealthCheck(changes map[string]string) (db.HealthCheckResult, error) {
	s.mu.Lock()
	values, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return db.HealthCheckResult{}, err
	}

	result := db.HealthCheckResult{Errors: []string{}, Warnings: []string{}}
	merged := make(map[string]string, len(values)+len(changes))
	for k, v := range values {
		merged[k] = v
	}
	for k, v := range changes {
		merged[k] = v
	}

	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		v, known := s.Schema.lookup(key)
		if !known {
			if _, exists := values[key]; !exists {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s is not a known variable and will be added as custom", key))
			}
			continue
		}
		if !v.Editable {
			result.Errors = append(result.Errors, fmt.Sprintf("%s is read-only", key))
		}
		if err := ValidateValue(v, changes[key]); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		if v.Sensitive {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s is sensitive, dependent services must be restarted", key))
		}
		if v.Warning != "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", key, v.Warning))
		}
	}
	for _, v := range s.Schema.Variables {
		if v.Required && merged[v.Key] == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("%s is required", v.Key))
		}
	}

	switch {
	case len(result.Errors) > 0:
		result.Status = db.CheckFailure
	case len(result.Warnings) > 0:
		result.Status = db.CheckWarning
	default:
		result.Status = db.CheckSuccess
	}
	return result, nil
}

// AffectedContainers lists the containers that read key.
func (s *EnvConfigService) AffectedContainers(key string) []string {
	if v, ok := s.Schema.lookup(key); ok && v.Containers != nil {
		return v.Containers
	}
	return []string{}
}

func (s *EnvConfigService) managedContainers() map[string]bool {
	out := map[string]bool{}
	for _, v := range s.Schema.Variables {
		for _, c := range v.Containers {
			out[c] = true
		}
	}
	return out
}

// RestartContainers restarts each requested container the schema knows
// about. Failures are reported per container; nothing is rolled back.
func (s *EnvConfigService) RestartContainers(ctx context.Context, names []string) []db.RestartResult {
	managed := s.managedContainers()
	results := make([]db.RestartResult, 0, len(names))
	for _, name := range names {
		r := db.RestartResult{Container: name}
		switch {
		case !managed[name]:
			r.Error = "container is not managed by the console"
		case s.Docker == nil:
			r.Error = "docker is not configured"
		default:
			if err := s.Docker.Restart(ctx, name); err != nil {
				r.Error = err.Error()
			} else {
				r.Success = true
			}
		}
		results = append(results, r)
	}
	return results
}
