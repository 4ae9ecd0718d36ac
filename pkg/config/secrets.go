package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Secrets file configuration.
const (
	secretsFileName = "secrets.json.enc"
	secretsDirName  = ".recast"
	saltSize        = 16
	nonceSize       = 12
	scryptN         = 32768 // 2^15
	scryptR         = 8
	scryptP         = 1
	keySize         = 32 // AES-256
)

// API key environment variables per provider.
var apiKeyEnvVars = map[string]string{
	ProviderGoogle:    "GEMINI_API_KEY",
	ProviderAnthropic: "ANTHROPIC_API_KEY",
	ProviderOpenAI:    "OPENAI_API_KEY",
}

// Secrets holds decrypted secret values for one process. Unlike persisted
// state, it lives only in memory and is passed explicitly to the components
// that need keys.
type Secrets struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSecrets returns an empty in-memory secret store.
func NewSecrets() *Secrets {
	return &Secrets{values: make(map[string]string)}
}

// Get returns a secret by name: the decrypted file wins, environment
// variables are the fallback.
func (s *Secrets) Get(name string) (string, error) {
	s.mu.RLock()
	if v, ok := s.values[name]; ok && v != "" {
		s.mu.RUnlock()
		return v, nil
	}
	s.mu.RUnlock()

	if v := os.Getenv(name); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// Set stores a secret value in memory.
func (s *Secrets) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}

// Names returns the stored secret names (not values).
func (s *Secrets) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	return names
}

// APIKey resolves the API key for a provider. Ollama needs none.
func (s *Secrets) APIKey(provider string) (string, error) {
	if provider == ProviderOllama {
		return "", nil
	}
	envVar, ok := apiKeyEnvVars[provider]
	if !ok {
		return "", fmt.Errorf("no API key variable known for provider %q", provider)
	}
	return s.Get(envVar)
}

// SecretsFileExists checks for secrets.json.enc under dir/.recast.
func SecretsFileExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, secretsDirName, secretsFileName))
	return err == nil
}

// Save encrypts and writes the secrets to dir/.recast/secrets.json.enc with
// 0600 permissions. File layout: [salt][nonce][ciphertext+tag].
func (s *Secrets) Save(dir, password string) error {
	s.mu.RLock()
	snapshot := make(map[string]string, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	s.mu.RUnlock()

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	fileData := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = append(fileData, ciphertext...)

	secretsDir := filepath.Join(dir, secretsDirName)
	if err := os.MkdirAll(secretsDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", secretsDirName, err)
	}

	path := filepath.Join(secretsDir, secretsFileName)
	if err := os.WriteFile(path, fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// LoadSecrets decrypts dir/.recast/secrets.json.enc with the given password.
func LoadSecrets(dir, password string) (*Secrets, error) {
	path := filepath.Join(dir, secretsDirName, secretsFileName)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	// Loose permissions are a security problem; tighten them rather than fail.
	if info.Mode().Perm() != 0600 {
		if chmodErr := os.Chmod(path, 0600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix secrets file permissions: %w", chmodErr)
		}
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize {
		return nil, fmt.Errorf("secrets file is truncated (%d bytes)", len(fileData))
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := scrypt.Key(passwordBytes, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets (wrong password?): %w", err)
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}

	return &Secrets{values: values}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
