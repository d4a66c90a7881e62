package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/mosaicnetworks/herald/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the private
	// key that signs messages.
	DefaultKeyfile = "sign_key"

	// DefaultUpdateKeyfile is the default name of the file containing the
	// private key that signs identity revisions.
	DefaultUpdateKeyfile = "update_key"

	// DefaultIdentityFile is the default name of the file containing the
	// node's identity document.
	DefaultIdentityFile = "identity.json"

	// DefaultFriendsFile is the default name of the friends list.
	DefaultFriendsFile = "friends.json"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// databases
	DefaultBadgerFile = "badger_db"

	// DefaultCertFile is the default name of the file containing the TLS
	// certificate of the push realm.
	DefaultCertFile = "cert.pem"

	// DefaultCertKeyFile is the default name of the file containing the TLS
	// key of the push realm.
	DefaultCertKeyFile = "key.pem"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultStore            = false
	DefaultCacheSize        = 10000
	DefaultEnforceTimeOrder = true
	DefaultSendAttempts     = 3
	DefaultMinBudget        = 500 * time.Millisecond
	DefaultPushAddr         = "127.0.0.1:1443"
	DefaultPushRealm        = "herald"
	DefaultPushTopicPrefix  = "herald.client"
	DefaultMaxPayloadSize   = 126 * 1024
	DefaultPullTimeout      = 10 * time.Second
	DefaultPullRetries      = 3
	DefaultPullRate         = 10.0
	DefaultPullBurst        = 20
	DefaultCatchUpBatch     = 50
	DefaultCredentialsTTL   = time.Hour
)

// Config contains all the configuration properties of a Herald node.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, if set, also writes the logs to this file, without colors.
	LogFile string `mapstructure:"log-file"`

	// ServiceAddr is the address:port of the HTTP service exposing the inbox
	// and the auth handshake.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistant storage. Otherwise everything is kept in
	// memory and lost on exit.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of public key mappings cached in memory.
	CacheSize int `mapstructure:"cache-size"`

	// EnforceTimeOrder rejects inbound messages whose time does not advance
	// past the author's previous message. Disable it where clocks are not
	// reliable.
	EnforceTimeOrder bool `mapstructure:"enforce-time-order"`

	// SendAttempts is the number of attempts at claiming a sequence number
	// before Send gives up.
	SendAttempts int `mapstructure:"send-attempts"`

	// MinBudget is the time left before a request deadline under which no
	// new retry attempt is started.
	MinBudget time.Duration `mapstructure:"min-budget"`

	// NoPush disables the push realm. Messages are then only delivered to
	// friend providers, or picked up by clients catching up.
	NoPush bool `mapstructure:"no-push"`

	// PushAddr is the address:port of the websocket server of the push realm.
	PushAddr string `mapstructure:"push-listen"`

	// PushURL is the URL handed to clients to reach the push realm. It
	// defaults to the URL of PushAddr.
	PushURL string `mapstructure:"push-advertise"`

	// PushRealm is the WAMP realm of the push channel.
	PushRealm string `mapstructure:"push-realm"`

	// PushTopicPrefix prefixes the private topics of clients.
	PushTopicPrefix string `mapstructure:"push-topic-prefix"`

	// MaxPayloadSize is the ceiling on the serialized size of a pushed batch.
	MaxPayloadSize int `mapstructure:"max-payload"`

	// PullTimeout is the timeout of a single request to a friend's inbox.
	PullTimeout time.Duration `mapstructure:"pull-timeout"`

	// PullRetries is the number of retries of a failed request to a friend's
	// inbox.
	PullRetries int `mapstructure:"pull-retries"`

	// PullRate and PullBurst limit the requests per second to each friend.
	PullRate  float64 `mapstructure:"pull-rate"`
	PullBurst int     `mapstructure:"pull-burst"`

	// CatchUpBatch is the number of envelopes delivered per catch-up step.
	CatchUpBatch int `mapstructure:"catchup-batch"`

	// CredentialsTTL is the lifetime of the credentials issued to clients.
	CredentialsTTL time.Duration `mapstructure:"credentials-ttl"`

	// Passphrase seals the key files. Empty means plain key files.
	Passphrase string `mapstructure:"passphrase"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		ServiceAddr:      DefaultServiceAddr,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		CacheSize:        DefaultCacheSize,
		EnforceTimeOrder: DefaultEnforceTimeOrder,
		SendAttempts:     DefaultSendAttempts,
		MinBudget:        DefaultMinBudget,
		PushAddr:         DefaultPushAddr,
		PushRealm:        DefaultPushRealm,
		PushTopicPrefix:  DefaultPushTopicPrefix,
		MaxPayloadSize:   DefaultMaxPayloadSize,
		PullTimeout:      DefaultPullTimeout,
		PullRetries:      DefaultPullRetries,
		PullRate:         DefaultPullRate,
		PullBurst:        DefaultPullBurst,
		CatchUpBatch:     DefaultCatchUpBatch,
		CredentialsTTL:   DefaultCredentialsTTL,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the signing key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// UpdateKeyfile returns the full path of the file containing the identity
// update key.
func (c *Config) UpdateKeyfile() string {
	return filepath.Join(c.DataDir, DefaultUpdateKeyfile)
}

// IdentityFile returns the full path of the node's identity document.
func (c *Config) IdentityFile() string {
	return filepath.Join(c.DataDir, DefaultIdentityFile)
}

// FriendsFile returns the full path of the friends list.
func (c *Config) FriendsFile() string {
	return filepath.Join(c.DataDir, DefaultFriendsFile)
}

// KVDir returns the directory of the key-value database.
func (c *Config) KVDir() string {
	return filepath.Join(c.DatabaseDir, "kv")
}

// BlobDir returns the directory of the blob database.
func (c *Config) BlobDir() string {
	return filepath.Join(c.DatabaseDir, "blobs")
}

// CertFile returns the full path of the push realm's TLS certificate.
func (c *Config) CertFile() string {
	return filepath.Join(c.DataDir, DefaultCertFile)
}

// CertKeyFile returns the full path of the push realm's TLS key.
func (c *Config) CertKeyFile() string {
	return filepath.Join(c.DataDir, DefaultCertKeyFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "herald".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.DebugLevel: c.LogFile,
					logrus.InfoLevel:  c.LogFile,
					logrus.WarnLevel:  c.LogFile,
					logrus.ErrorLevel: c.LogFile,
					logrus.FatalLevel: c.LogFile,
					logrus.PanicLevel: c.LogFile,
				},
				&logrus.TextFormatter{DisableColors: true},
			))
		}
	}
	return c.logger.WithField("prefix", "herald")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Herald")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Herald")
		} else {
			return filepath.Join(home, ".herald")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
