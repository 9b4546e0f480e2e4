package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB
)

// sections lists the top-level keys environment variables may set.
// Values are subsections whose fields are addressed as SECTION_SUB_FIELD.
var sections = map[string][]string{
	"server":      nil,
	"vectorstore": {"chromem", "qdrant"},
	"embeddings":  nil,
	"generator":   nil,
	"chunking":    {"document", "web"},
	"ingest":      nil,
	"cache":       nil,
	"query":       nil,
	"logging":     nil,
	"telemetry":   nil,
}

// envAliases maps well-known provider variables onto config keys.
var envAliases = map[string]string{
	"GROQ_API_KEY": "generator.api_key",
}

// DefaultPath returns ~/.config/ragvisor/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Dir returns the ragvisor config directory, ~/.config/ragvisor.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "ragvisor"), nil
}

// LoadWithFile loads configuration from YAML file, then overrides with environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_HTTP_PORT, GENERATOR_API_KEY, etc.)
//  2. YAML config file (~/.config/ragvisor/config.yaml)
//  3. Hardcoded defaults
//
// A missing file is not an error.
//
// # Security Considerations
//
// The file must live in ~/.config/ragvisor/ or /etc/ragvisor/, must have
// 0600 or 0400 permissions and must not exceed 1MB.
//
// # Environment Variable Mapping
//
// Variables split on the first underscore into section and field. Sections
// with subsections split once more:
//
//	SERVER_HTTP_PORT          -> server.http_port
//	GENERATOR_API_KEY         -> generator.api_key
//	VECTORSTORE_QDRANT_HOST   -> vectorstore.qdrant.host
//	CHUNKING_DOCUMENT_SIZE    -> chunking.document.size
//	GROQ_API_KEY              -> generator.api_key
//
// Variables outside the known sections are ignored.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		configPath = p
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate the opened descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := newConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envKey maps an environment variable name to a config key. An empty
// result tells koanf to skip the variable.
func envKey(s string) string {
	if key, ok := envAliases[s]; ok {
		return key
	}

	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) != 2 {
		return ""
	}

	section, field := parts[0], parts[1]
	subs, ok := sections[section]
	if !ok {
		return ""
	}
	for _, sub := range subs {
		if rest, found := strings.CutPrefix(field, sub+"_"); found {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// EnsureConfigDir creates the ragvisor config directory with 0700 permissions.
func EnsureConfigDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return nil
}

// validateConfigPath checks if path is in allowed directories.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Symlinks must not escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet are validated as given.
		resolvedPath = absPath
	}

	dir, err := Dir()
	if err != nil {
		return err
	}

	for _, allowed := range []string{dir, "/etc/ragvisor"} {
		if resolvedPath == allowed || strings.HasPrefix(resolvedPath, allowed+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/ragvisor/ or /etc/ragvisor/")
}

// validateConfigFileProperties checks file permissions and size.
// Takes FileInfo from an already-opened file descriptor to avoid TOCTOU race.
func validateConfigFileProperties(info os.FileInfo) error {
	// Skip on Windows (different permission model)
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// Template is the commented config file written by "ragvisor init".
const Template = `# ragvisor configuration
# Environment variables override these values, e.g. GENERATOR_API_KEY or GROQ_API_KEY.

server:
  http_host: 127.0.0.1
  http_port: 8080
  shutdown_timeout: 10s
  max_upload_mb: 50

vectorstore:
  provider: chromem        # chromem | qdrant
  collection: rag_collection
  chromem:
    path: ~/.local/share/ragvisor/vectorstore
    compress: false
  qdrant:
    host: localhost
    port: 6334
    use_tls: false

embeddings:
  provider: fastembed      # fastembed | tei
  model: sentence-transformers/all-MiniLM-L6-v2
  # base_url: http://localhost:8080   # tei only

generator:
  base_url: https://api.groq.com/openai/v1
  model: llama3-70b-8192
  # api_key: set GROQ_API_KEY instead of storing it here
  temperature: 0.3
  max_tokens: 400
  timeout: 60s
  rate_per_minute: 30
  max_retries: 2

chunking:
  document: {size: 1000, overlap: 200}
  web: {size: 500, overlap: 100}

ingest:
  batch_size: 100
  web_timeout: 10s
  web_max_chars: 10000
  watch_debounce: 2s

cache:
  capacity: 100

query:
  top_k: 3
  timeout: 30s

logging:
  level: info
  format: json

telemetry:
  enabled: false
  endpoint: localhost:4317
  protocol: grpc
  service_name: ragvisor
`
