package plugin

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-plugin"
)

// Loader launches plugin binaries using HashiCorp go-plugin.
type Loader struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[string]*plugin.Client
}

// NewLoader creates a new plugin loader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger,
		clients: make(map[string]*plugin.Client),
	}
}

// LoadOptions contains options for loading a plugin.
type LoadOptions struct {
	// Manifest is the plugin manifest.
	Manifest *Manifest

	// Remote configures timeouts and the circuit breaker for hook calls.
	Remote RemoteConfig

	// SecureMode enables checksum verification.
	SecureMode bool
}

// Load launches the plugin and returns its hooks. The caller must Bind a
// host before the hooks are dispatched.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*RemoteHooks, error) {
	if opts.Manifest == nil {
		return nil, fmt.Errorf("manifest is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest := opts.Manifest
	sanitizedPath, err := l.resolveBinary(manifest, opts.SecureMode)
	if err != nil {
		return nil, err
	}

	l.logger.Info("loading plugin",
		"plugin_id", manifest.ID,
		"binary", sanitizedPath,
	)

	// #nosec G204 -- binary path is validated by validateBinaryPath
	cmd := exec.Command(sanitizedPath)
	cmd.Env = append(os.Environ(), manifestEnv(manifest)...)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins:         PluginMap(),
		Cmd:             cmd,
		Logger:          newHclogAdapter(l.logger),
		AllowedProtocols: []plugin.Protocol{
			plugin.ProtocolGRPC,
		},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, NewLoadError(sanitizedPath, "failed to connect", err)
	}

	raw, err := rpcClient.Dispense(PluginName)
	if err != nil {
		client.Kill()
		return nil, NewLoadError(sanitizedPath, "failed to dispense", err)
	}

	caller, ok := raw.(Caller)
	if !ok {
		client.Kill()
		return nil, NewLoadError(sanitizedPath, "plugin does not implement the hooks interface", nil)
	}

	l.mu.Lock()
	if prev, exists := l.clients[manifest.ID]; exists {
		prev.Kill()
	}
	l.clients[manifest.ID] = client
	l.mu.Unlock()

	l.logger.Info("plugin loaded successfully",
		"plugin_id", manifest.ID,
		"version", manifest.Version,
	)

	return NewRemoteHooks(manifest.ID, caller, opts.Remote, l.logger), nil
}

// Check validates a manifest and its binary without launching it. The
// checksum is verified when the manifest carries one.
func (l *Loader) Check(manifest *Manifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is required")
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	_, err := l.resolveBinary(manifest, true)
	return err
}

func (l *Loader) resolveBinary(manifest *Manifest, verify bool) (string, error) {
	binaryPath := manifest.BinaryAbsPath()

	sanitizedPath, err := l.validateBinaryPath(binaryPath)
	if err != nil {
		return "", NewLoadError(binaryPath, "binary path validation failed", err)
	}

	info, err := os.Stat(sanitizedPath)
	if err != nil {
		return "", NewLoadError(sanitizedPath, "binary not found", err)
	}

	// Directories and devices are rejected.
	if !info.Mode().IsRegular() {
		return "", NewLoadError(sanitizedPath, "binary path is not a regular file", nil)
	}

	if verify && manifest.Checksum != "" {
		if err := l.verifyChecksum(sanitizedPath, manifest.Checksum); err != nil {
			return "", NewLoadError(sanitizedPath, "checksum verification failed", err)
		}
	}
	return sanitizedPath, nil
}

// Unload stops a plugin.
func (l *Loader) Unload(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	client, exists := l.clients[id]
	if !exists {
		return nil
	}

	client.Kill()
	delete(l.clients, id)

	l.logger.Info("plugin unloaded", "plugin_id", id)
	return nil
}

// UnloadAll stops all plugins.
func (l *Loader) UnloadAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, client := range l.clients {
		client.Kill()
		l.logger.Info("plugin unloaded", "plugin_id", id)
	}
	l.clients = make(map[string]*plugin.Client)
}

// IsLoaded checks if a plugin is currently loaded.
func (l *Loader) IsLoaded(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, exists := l.clients[id]
	return exists
}

func manifestEnv(m *Manifest) []string {
	keys := make([]string, 0, len(m.Env))
	for k := range m.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+m.Env[k])
	}
	return env
}

// validateBinaryPath ensures the path is absolute, free of shell
// metacharacters and resolved through symlinks.
func (l *Loader) validateBinaryPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("binary path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("binary path must be absolute: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r", "\\", "'", "\""}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return "", fmt.Errorf("binary path contains forbidden character %q: %s", char, path)
		}
	}

	resolvedPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		// Existence is checked by the caller.
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", fmt.Errorf("failed to resolve binary path: %w", err)
	}

	l.logger.Debug("binary path validated",
		"original", path,
		"resolved", resolvedPath,
	)

	return resolvedPath, nil
}

// verifyChecksum verifies the SHA256 checksum of a file.
// Expected format: "sha256:HEXHASH" or just "HEXHASH".
func (l *Loader) verifyChecksum(path, expected string) error {
	algorithm := "sha256"
	hash := expected

	if strings.Contains(expected, ":") {
		parts := strings.SplitN(expected, ":", 2)
		algorithm = strings.ToLower(parts[0])
		hash = parts[1]
	}

	if algorithm != "sha256" {
		return fmt.Errorf("unsupported checksum algorithm: %s (only sha256 is supported)", algorithm)
	}

	// #nosec G304 - path is validated by validateBinaryPath before calling verifyChecksum
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	computed := hex.EncodeToString(hasher.Sum(nil))

	if !strings.EqualFold(computed, hash) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", hash, computed)
	}

	l.logger.Debug("checksum verified",
		"path", path,
		"algorithm", algorithm,
	)

	return nil
}
