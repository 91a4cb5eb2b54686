// Package cfg parses process configuration from the environment using
// struct tags and caarlos0/env instead of hand-rolled os.Getenv calls.
package cfg

import "github.com/caarlos0/env/v11"

const (
	DefaultCacheRoot       = "/var/lib/forgehost/cache"
	DefaultBaseDir         = "/var/lib/forgehost/servers"
	DefaultListenAddr      = ":8080"
	DefaultJavaOpts        = ""
	DefaultBackupRetention = 7
	DefaultBackupCron      = "0 3 * * *"
)

// Config is every environment variable the process consumes, covering both
// core server management and the surrounding ambient stack (cache root,
// listen address, backup schedule).
type Config struct {
	ServersBaseDir      string `env:"SERVERS_BASE_DIR" envDefault:"/var/lib/forgehost/servers"`
	HostServersPath     string `env:"HOST_SERVERS_PATH"`
	NsenterPrefix       string `env:"HOST_SERVERS_NSENTER_PREFIX"`
	CatalogAPIKey       string `env:"CATALOG_API_KEY"`
	DefaultJavaOpts     string `env:"DEFAULT_JAVA_OPTS"`
	BackupRetentionDays int    `env:"BACKUP_RETENTION_DAYS" envDefault:"7"`
	BackupCron          string `env:"BACKUP_CRON" envDefault:"0 3 * * *"`
	DatabaseURL         string `env:"DATABASE_URL" envDefault:"forgehost.db"`
	AuthSecret          string `env:"AUTH_SECRET"`

	CacheRoot  string `env:"CACHE_ROOT" envDefault:"/var/lib/forgehost/cache"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
}

// Parse reads and validates the process configuration.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
