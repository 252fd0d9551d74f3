package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/scalarboard/pkg/autorefresh"
	"github.com/opst/scalarboard/pkg/db/etcd"
	"github.com/opst/scalarboard/pkg/grouping"
	"github.com/opst/scalarboard/pkg/scheduler"
	"github.com/opst/scalarboard/pkg/utils/echoutil"
)

const (
	DefaultPort         = 8080
	DefaultFetchTimeout = 30 * time.Second
	DefaultEtcdTimeout  = 5 * time.Second
	DefaultInterval     = 10 * time.Second
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
// `Unmarshal` recovers it as ErrInvalidConfig.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of the scalarboard server.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `BoardConfig`.
type BoardConfigMarshall struct {
	Port        int32                     `yaml:"port,omitempty"`
	LogLevel    string                    `yaml:"loglevel,omitempty"`
	Store       *StoreConfigMarshall       `yaml:"store,omitempty"`
	Fetch       *FetchConfigMarshall       `yaml:"fetch"`
	Engine      *EngineConfigMarshall      `yaml:"engine,omitempty"`
	AutoRefresh *AutoRefreshConfigMarshall `yaml:"autorefresh,omitempty"`
	Metrics     *MetricsConfigMarshall     `yaml:"metrics,omitempty"`
}

var _ Marshalled[*BoardConfig] = &BoardConfigMarshall{}

func (b *BoardConfigMarshall) trySeal(path string) *BoardConfig {
	port := b.Port
	if port == 0 {
		port = DefaultPort
	}
	if port < 0 || 65535 < port {
		panic(fmt.Sprintf("%s.port is out of range: %d", path, port))
	}
	return &BoardConfig{
		port:        port,
		logLevel:    logLevel(b.LogLevel, path+".loglevel"),
		store:       orZero(b.Store).trySeal(path + ".store"),
		fetch:       nonnil(b.Fetch, path+".fetch").trySeal(path + ".fetch"),
		engine:      orZero(b.Engine).trySeal(path + ".engine"),
		autoRefresh: orZero(b.AutoRefresh).trySeal(path + ".autorefresh"),
		metrics:     orZero(b.Metrics).trySeal(path + ".metrics"),
	}
}

type StoreConfigMarshall struct {
	Backend  string                  `yaml:"backend,omitempty"`
	Postgres *PostgresConfigMarshall `yaml:"postgres,omitempty"`
	Etcd     *EtcdConfigMarshall     `yaml:"etcd,omitempty"`
}

func (s *StoreConfigMarshall) trySeal(path string) *StoreConfig {
	switch backend := StoreBackend(s.Backend); backend {
	case "", Memory:
		return &StoreConfig{backend: Memory}
	case Postgres:
		return &StoreConfig{
			backend:  Postgres,
			postgres: nonnil(s.Postgres, path+".postgres").trySeal(path + ".postgres"),
		}
	case Etcd:
		return &StoreConfig{
			backend: Etcd,
			etcd:    nonnil(s.Etcd, path+".etcd").trySeal(path + ".etcd"),
		}
	default:
		panic(fmt.Sprintf(
			"%s.backend should be one of %s, %s or %s: %s",
			path, Memory, Postgres, Etcd, backend,
		))
	}
}

type PostgresConfigMarshall struct {
	URI string `yaml:"uri"`
}

func (p *PostgresConfigMarshall) trySeal(path string) *PostgresConfig {
	return &PostgresConfig{uri: required(p.URI, path+".uri")}
}

type EtcdConfigMarshall struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix,omitempty"`
	Timeout   string   `yaml:"timeout,omitempty"`
}

func (e *EtcdConfigMarshall) trySeal(path string) *EtcdConfig {
	if len(e.Endpoints) == 0 {
		panic(path + ".endpoints is required")
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = etcd.DefaultPrefix
	}
	return &EtcdConfig{
		endpoints: append([]string{}, e.Endpoints...),
		prefix:    prefix,
		timeout:   duration(e.Timeout, DefaultEtcdTimeout, path+".timeout"),
	}
}

type FetchConfigMarshall struct {
	APIRoot string `yaml:"api_root"`
	Timeout string `yaml:"timeout,omitempty"`
}

func (f *FetchConfigMarshall) trySeal(path string) *FetchConfig {
	return &FetchConfig{
		apiRoot: strings.TrimSuffix(required(f.APIRoot, path+".api_root"), "/"),
		timeout: duration(f.Timeout, DefaultFetchTimeout, path+".timeout"),
	}
}

type EngineConfigMarshall struct {
	FirstLoadLimit    int    `yaml:"first_load_limit,omitempty"`
	SmoothingDebounce string `yaml:"smoothing_debounce,omitempty"`
}

func (e *EngineConfigMarshall) trySeal(path string) *EngineConfig {
	limit := e.FirstLoadLimit
	if limit == 0 {
		limit = grouping.DefaultFirstLoadLimit
	}
	if limit < 0 {
		panic(fmt.Sprintf("%s.first_load_limit should be positive: %d", path, limit))
	}
	return &EngineConfig{
		firstLoadLimit:    limit,
		smoothingDebounce: duration(e.SmoothingDebounce, scheduler.DefaultSmoothingDebounce, path+".smoothing_debounce"),
	}
}

type AutoRefreshConfigMarshall struct {
	Interval     string `yaml:"interval,omitempty"`
	AutoDebounce string `yaml:"auto_debounce,omitempty"`
}

func (a *AutoRefreshConfigMarshall) trySeal(path string) *AutoRefreshConfig {
	interval := duration(a.Interval, DefaultInterval, path+".interval")
	autoDebounce := duration(a.AutoDebounce, autorefresh.DefaultAutoDebounce, path+".auto_debounce")

	// each tick restarts the quiet period, so a refresh would never fire.
	if interval <= autoDebounce {
		panic(fmt.Sprintf(
			"%s.interval (%s) should be longer than %s.auto_debounce (%s)",
			path, interval, path, autoDebounce,
		))
	}
	return &AutoRefreshConfig{
		interval:     interval,
		autoDebounce: autoDebounce,
	}
}

type MetricsConfigMarshall struct {
	Statsd string   `yaml:"statsd,omitempty"`
	Tags   []string `yaml:"tags,omitempty"`
}

func (m *MetricsConfigMarshall) trySeal(string) *MetricsConfig {
	return &MetricsConfig{
		statsd: m.Statsd,
		tags:   append([]string{}, m.Tags...),
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

// orZero returns v, or a new zero value for an omitted section.
func orZero[T any](v *T) *T {
	if v == nil {
		return new(T)
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func duration(s string, fallback time.Duration, path string) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("%s can not be parsed: %s", path, err))
	}
	if d <= 0 {
		panic(fmt.Sprintf("%s should be positive: %s", path, s))
	}
	return d
}

func logLevel(s string, path string) log.Lvl {
	lvl, err := echoutil.ParseLevel(s)
	if err != nil {
		panic(fmt.Sprintf("%s should be one of debug, info, warn, error or off: %s", path, s))
	}
	return lvl
}
