package board

import (
	"time"

	"github.com/labstack/gommon/log"
)

// Configuration of the scalarboard server.
//
// To get a `BoardConfig` instance, use `Unmarshal` or `LoadBoardConfig`.
type BoardConfig struct {
	port        int32
	logLevel    log.Lvl
	store       *StoreConfig
	fetch       *FetchConfig
	engine      *EngineConfig
	autoRefresh *AutoRefreshConfig
	metrics     *MetricsConfig
}

func (c *BoardConfig) Port() int32 {
	return c.port
}

// LogLevel of the server. default = info
func (c *BoardConfig) LogLevel() log.Lvl {
	return c.logLevel
}

func (c *BoardConfig) Store() *StoreConfig {
	return c.store
}

func (c *BoardConfig) Fetch() *FetchConfig {
	return c.fetch
}

func (c *BoardConfig) Engine() *EngineConfig {
	return c.engine
}

func (c *BoardConfig) AutoRefresh() *AutoRefreshConfig {
	return c.autoRefresh
}

func (c *BoardConfig) Metrics() *MetricsConfig {
	return c.metrics
}

type StoreBackend string

const (
	Memory   StoreBackend = "memory"
	Postgres StoreBackend = "postgres"
	Etcd     StoreBackend = "etcd"
)

// Where settings are persisted.
type StoreConfig struct {
	backend  StoreBackend
	postgres *PostgresConfig
	etcd     *EtcdConfig
}

// default = memory
func (s *StoreConfig) Backend() StoreBackend {
	return s.backend
}

// Postgres is nil unless the backend is postgres.
func (s *StoreConfig) Postgres() *PostgresConfig {
	return s.postgres
}

// Etcd is nil unless the backend is etcd.
func (s *StoreConfig) Etcd() *EtcdConfig {
	return s.etcd
}

type PostgresConfig struct {
	uri string
}

// Connection string for database.
func (p *PostgresConfig) URI() string {
	return p.uri
}

type EtcdConfig struct {
	endpoints []string
	prefix    string
	timeout   time.Duration
}

func (e *EtcdConfig) Endpoints() []string {
	return append([]string{}, e.endpoints...)
}

// Key prefix of settings records. default = "/scalarboard/settings/"
func (e *EtcdConfig) Prefix() string {
	return e.prefix
}

// Timeout for each request. default = 5s
func (e *EtcdConfig) Timeout() time.Duration {
	return e.timeout
}

// How scalars are fetched.
type FetchConfig struct {
	apiRoot string
	timeout time.Duration
}

// URL where the experiment-tracking API is served.
func (f *FetchConfig) APIRoot() string {
	return f.apiRoot
}

// default = 30s
func (f *FetchConfig) Timeout() time.Duration {
	return f.timeout
}

type EngineConfig struct {
	firstLoadLimit    int
	smoothingDebounce time.Duration
}

// How many entries are displayed on the first load of an experiment. default = 20
func (e *EngineConfig) FirstLoadLimit() int {
	return e.firstLoadLimit
}

// Quiet period before smoothing changes are applied to charts. default = 75ms
func (e *EngineConfig) SmoothingDebounce() time.Duration {
	return e.smoothingDebounce
}

type AutoRefreshConfig struct {
	interval     time.Duration
	autoDebounce time.Duration
}

// Period of the shared timer. default = 10s
func (a *AutoRefreshConfig) Interval() time.Duration {
	return a.interval
}

// Quiet period of automatic refresh. default = 5s
func (a *AutoRefreshConfig) AutoDebounce() time.Duration {
	return a.autoDebounce
}

type MetricsConfig struct {
	statsd string
	tags   []string
}

// Address of the statsd agent. Empty means metrics are disabled.
func (m *MetricsConfig) Statsd() string {
	return m.statsd
}

func (m *MetricsConfig) Tags() []string {
	return append([]string{}, m.tags...)
}
