package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
)

// globalConfig stores the configuration loaded at process start so that
// packages other than cmd/helper can reach it without threading it through
// every constructor.
var (
	globalConfig *Config
	configMutex  sync.Mutex
)

// Config holds the helper process configuration.
type Config struct {
	Helper  HelperConfig  `json:"helper"`
	GPU     GPUConfig     `json:"gpu"`
	Logging LoggingConfig `json:"logging"`
}

// LoadOptions holds command-line override options accepted by cmd/helper.
type LoadOptions struct {
	LogLevel string
	Daemon   bool
}

// HelperConfig holds the H process's IPC and framing configuration. The two
// file descriptors are handed down by xrdp/Xorg at fork time, not opened by
// the helper itself, so they arrive as env vars rather than paths.
type HelperConfig struct {
	DisplayFD     int  `json:"displayFd" env:"XORGXRDP_XORG_FD" default:"0"`
	RDPFD         int  `json:"rdpFd" env:"XORGXRDP_RDP_FD" default:"0"`
	Daemon        bool `json:"daemon" env:"XORGXRDP_DAEMON" default:"false"`
	MaxFrameBytes int  `json:"maxFrameBytes" env:"XORGXRDP_MAX_FRAME_BYTES" default:"131072"`
	EncodeBufCap  int  `json:"encodeBufCap" env:"XORGXRDP_ENCODE_BUF_CAP" default:"16777216"`
}

// GPUConfig holds the configuration for the GPU backend and hardware
// encoder selection.
type GPUConfig struct {
	DRMDevice      string `json:"drmDevice" env:"VA_DRM_DEVICE" default:"/dev/dri/renderD128"`
	VendorBLibPath string `json:"vendorBLibPath" env:"XRDP_VENDOR_B_LIB" default:"/opt/yami/lib/libyami_inf.so"`
	Display        string `json:"display" env:"DISPLAY" default:""`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level        string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format       string `json:"format" env:"LOG_FORMAT" default:"text"`
	EnableCaller bool   `json:"enableCaller" env:"LOG_ENABLE_CALLER" default:"false"`
	File         string `json:"file" env:"LOG_FILE" default:""`
}

// Load loads configuration from environment variables with defaults.
func Load() (*Config, error) {
	return LoadWithOverrides(LoadOptions{})
}

// LoadWithOverrides loads configuration with command-line overrides.
func LoadWithOverrides(opts LoadOptions) (*Config, error) {
	config := &Config{}

	// Helper config
	config.Helper.DisplayFD = getIntWithDefault("XORGXRDP_XORG_FD", 0)
	config.Helper.RDPFD = getIntWithDefault("XORGXRDP_RDP_FD", 0)
	config.Helper.Daemon = getBoolWithDefault("XORGXRDP_DAEMON", false) || opts.Daemon
	config.Helper.MaxFrameBytes = getIntWithDefault("XORGXRDP_MAX_FRAME_BYTES", 131072)
	config.Helper.EncodeBufCap = getIntWithDefault("XORGXRDP_ENCODE_BUF_CAP", 16777216)

	// GPU config
	config.GPU.DRMDevice = getEnvWithDefault("VA_DRM_DEVICE", "/dev/dri/renderD128")
	config.GPU.VendorBLibPath = getEnvWithDefault("XRDP_VENDOR_B_LIB", "/opt/yami/lib/libyami_inf.so")
	config.GPU.Display = getEnvWithDefault("DISPLAY", "")

	// Logging config
	config.Logging.Level = getOverrideOrEnv(opts.LogLevel, "LOG_LEVEL", "info")
	config.Logging.Format = getEnvWithDefault("LOG_FORMAT", "text")
	config.Logging.EnableCaller = getBoolWithDefault("LOG_ENABLE_CALLER", false)
	config.Logging.File = getEnvWithDefault("LOG_FILE", "")

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	configMutex.Lock()
	globalConfig = config
	configMutex.Unlock()

	return config, nil
}

// GetGlobalConfig returns the configuration loaded by cmd/helper at startup,
// for packages (gpu, encoder, gfx) that need it without it being threaded
// through every call site.
func GetGlobalConfig() *Config {
	configMutex.Lock()
	defer configMutex.Unlock()
	return globalConfig
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Helper.DisplayFD < 0 {
		return fmt.Errorf("display fd must not be negative: %d", c.Helper.DisplayFD)
	}

	if c.Helper.RDPFD < 0 {
		return fmt.Errorf("rdp fd must not be negative: %d", c.Helper.RDPFD)
	}

	if c.Helper.MaxFrameBytes <= 0 {
		return fmt.Errorf("max frame bytes must be positive")
	}

	if c.Helper.EncodeBufCap <= 0 {
		return fmt.Errorf("encode buffer capacity must be positive")
	}

	if c.GPU.DRMDevice == "" {
		return fmt.Errorf("drm device path cannot be empty")
	}

	if c.GPU.VendorBLibPath == "" {
		return fmt.Errorf("vendor B library path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}

	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getOverrideOrEnv returns the command-line override value, env value, or default.
func getOverrideOrEnv(override, envKey, defaultValue string) string {
	if override != "" {
		return override
	}
	return getEnvWithDefault(envKey, defaultValue)
}
