package config

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/logger"
	"github.com/goran-ethernal/ChainSyncer/pkg/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MatchOrderDeclaration = "declaration"
	MatchOrderOperationID = "operation_id"
)

// Config represents the complete configuration for ChainSyncer.
type Config struct {
	// Database contains the state database configuration
	Database DatabaseConfig `yaml:"database" json:"database" toml:"database"`

	// Datasources maps datasource names to their configuration
	Datasources map[string]*DatasourceConfig `yaml:"datasources" json:"datasources" toml:"datasources"`

	// Contracts maps contract aliases to addresses and code hashes
	Contracts map[string]*ContractConfig `yaml:"contracts,omitempty" json:"contracts,omitempty" toml:"contracts,omitempty"`

	// Templates are index configs with <placeholder> values, instantiated by indexes with a template field
	Templates map[string]*IndexConfig `yaml:"templates,omitempty" json:"templates,omitempty" toml:"templates,omitempty"`

	// Indexes maps index names to their configuration
	Indexes map[string]*IndexConfig `yaml:"indexes" json:"indexes" toml:"indexes"`

	// Advanced contains engine tunables
	Advanced AdvancedConfig `yaml:"advanced,omitempty" json:"advanced,omitempty" toml:"advanced,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`

	// API contains the status API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Cache contains the optional datasource response cache configuration
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty" toml:"cache,omitempty"`

	// Notifier contains the optional NATS event publisher configuration
	Notifier *NotifierConfig `yaml:"notifier,omitempty" json:"notifier,omitempty" toml:"notifier,omitempty"`
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Driver is the database backend: "sqlite" or "postgres"
	Driver string `yaml:"driver" json:"driver" toml:"driver"`

	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// DSN is the PostgreSQL connection string
	DSN string `yaml:"dsn" json:"dsn" toml:"dsn"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the SQLite synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// CacheSize is the size of the page cache (negative = KB, positive = pages)
	CacheSize int `yaml:"cache_size" json:"cache_size" toml:"cache_size"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`

	// EnableForeignKeys enables foreign key constraint enforcement
	EnableForeignKeys bool `yaml:"enable_foreign_keys" json:"enable_foreign_keys" toml:"enable_foreign_keys"`

	// Maintenance configures periodic WAL checkpoints and VACUUM for SQLite
	Maintenance *MaintenanceConfig `yaml:"maintenance,omitempty" json:"maintenance,omitempty" toml:"maintenance,omitempty"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.Driver == "" {
		d.Driver = DriverSQLite
	}
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.CacheSize == 0 {
		d.CacheSize = 10000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 25
	}
	if d.MaxIdleConnections == 0 {
		d.MaxIdleConnections = 5
	}
	if d.Maintenance != nil {
		d.Maintenance.ApplyDefaults()
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case DriverPostgres:
		if d.DSN == "" {
			return fmt.Errorf("database.dsn is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("database.driver must be one of: sqlite, postgres")
	}

	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("database.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("database.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if d.Maintenance != nil {
		return d.Maintenance.Validate()
	}

	return nil
}

// MaintenanceConfig configures database maintenance behavior.
type MaintenanceConfig struct {
	// Enabled controls whether background maintenance runs
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// CheckInterval is how often to run maintenance (e.g., "30m", "1h")
	CheckInterval common.Duration `yaml:"check_interval" json:"check_interval" toml:"check_interval"`

	// VacuumOnStartup runs maintenance immediately on startup
	VacuumOnStartup bool `yaml:"vacuum_on_startup" json:"vacuum_on_startup" toml:"vacuum_on_startup"`

	// WALCheckpointMode controls the WAL checkpoint aggressiveness
	// Options: PASSIVE, FULL, RESTART, TRUNCATE
	WALCheckpointMode string `yaml:"wal_checkpoint_mode" json:"wal_checkpoint_mode" toml:"wal_checkpoint_mode"`
}

// ApplyDefaults sets default values for optional maintenance configuration fields.
func (m *MaintenanceConfig) ApplyDefaults() {
	if m.CheckInterval.Duration == 0 {
		m.CheckInterval = common.NewDuration(30 * time.Minute) //nolint:mnd
	}
	if m.WALCheckpointMode == "" {
		m.WALCheckpointMode = "TRUNCATE"
	}
}

// Validate checks if the maintenance configuration is valid.
func (m *MaintenanceConfig) Validate() error {
	if !slices.Contains([]string{"PASSIVE", "FULL", "RESTART", "TRUNCATE"}, m.WALCheckpointMode) {
		return fmt.Errorf("database.maintenance.wal_checkpoint_mode must be one of: PASSIVE, FULL, RESTART, TRUNCATE")
	}
	if m.CheckInterval.Duration <= 0 {
		return fmt.Errorf("database.maintenance.check_interval must be positive")
	}

	return nil
}

// HTTPConfig configures the REST request surface of a datasource.
type HTTPConfig struct {
	// RetryCount is the maximum number of attempts (including the initial request)
	RetryCount int `yaml:"retry_count" json:"retry_count" toml:"retry_count"`

	// RetrySleep is the backoff before the first retry
	RetrySleep common.Duration `yaml:"retry_sleep" json:"retry_sleep" toml:"retry_sleep"`

	// RetryMultiplier is the multiplier for exponential backoff
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier" toml:"retry_multiplier"`

	// MaxRetrySleep caps the backoff between attempts
	MaxRetrySleep common.Duration `yaml:"max_retry_sleep" json:"max_retry_sleep" toml:"max_retry_sleep"`

	// RatelimitRPS is the sustained request rate, 0 disables rate limiting
	RatelimitRPS float64 `yaml:"ratelimit_rps" json:"ratelimit_rps" toml:"ratelimit_rps"`

	// RatelimitBurst is the token bucket size
	RatelimitBurst int `yaml:"ratelimit_burst" json:"ratelimit_burst" toml:"ratelimit_burst"`

	// ConnectionTimeout bounds a single request
	ConnectionTimeout common.Duration `yaml:"connection_timeout" json:"connection_timeout" toml:"connection_timeout"`

	// RequestLimit is the page size of paginated requests
	RequestLimit int `yaml:"request_limit" json:"request_limit" toml:"request_limit"`
}

// ApplyDefaults sets default values for HTTP configuration.
func (h *HTTPConfig) ApplyDefaults() {
	if h.RetryCount == 0 {
		h.RetryCount = 10
	}
	if h.RetrySleep.Duration == 0 {
		h.RetrySleep = common.NewDuration(time.Second)
	}
	if h.RetryMultiplier == 0 {
		h.RetryMultiplier = 2.0
	}
	if h.MaxRetrySleep.Duration == 0 {
		h.MaxRetrySleep = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if h.RatelimitBurst == 0 {
		h.RatelimitBurst = 1
	}
	if h.ConnectionTimeout.Duration == 0 {
		h.ConnectionTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if h.RequestLimit == 0 {
		h.RequestLimit = 10000
	}
}

// Validate checks if the HTTP configuration is valid.
func (h *HTTPConfig) Validate() error {
	if h.RetryCount < 1 {
		return fmt.Errorf("retry_count must be at least 1")
	}
	if h.RetryMultiplier < 1 {
		return fmt.Errorf("retry_multiplier must be at least 1")
	}
	if h.RatelimitRPS < 0 {
		return fmt.Errorf("ratelimit_rps must not be negative")
	}
	if h.RequestLimit < 1 {
		return fmt.Errorf("request_limit must be at least 1")
	}

	return nil
}

const defaultBufferSize = 2

// DatasourceConfig represents an indexer API datasource.
type DatasourceConfig struct {
	// URL is the base URL of the indexer REST API
	URL string `yaml:"url" json:"url" toml:"url"`

	// WSURL is the websocket endpoint for realtime subscriptions; empty enables polling mode
	WSURL string `yaml:"ws_url,omitempty" json:"ws_url,omitempty" toml:"ws_url,omitempty"`

	// HTTP configures requests, retries and rate limits
	HTTP HTTPConfig `yaml:"http,omitempty" json:"http,omitempty" toml:"http,omitempty"`

	// BufferSize is the number of most recent realtime levels held back to absorb rollbacks;
	// 0 yields every level as soon as it arrives
	BufferSize *int `yaml:"buffer_size,omitempty" json:"buffer_size,omitempty" toml:"buffer_size,omitempty"`

	// PollInterval is how often the head is polled in polling mode
	PollInterval common.Duration `yaml:"poll_interval" json:"poll_interval" toml:"poll_interval"`
}

// ApplyDefaults sets default values for datasource configuration.
func (d *DatasourceConfig) ApplyDefaults() {
	d.HTTP.ApplyDefaults()
	if d.BufferSize == nil {
		size := defaultBufferSize
		d.BufferSize = &size
	}
	if d.PollInterval.Duration == 0 {
		d.PollInterval = common.NewDuration(10 * time.Second) //nolint:mnd
	}
}

// GetBufferSize returns the configured buffer size, or the default when it is not set.
func (d *DatasourceConfig) GetBufferSize() int {
	if d.BufferSize == nil {
		return defaultBufferSize
	}
	return *d.BufferSize
}

// Validate checks if the datasource configuration is valid.
func (d *DatasourceConfig) Validate() error {
	if d.URL == "" {
		return fmt.Errorf("url is required")
	}
	if d.GetBufferSize() < 0 {
		return fmt.Errorf("buffer_size must not be negative")
	}

	return d.HTTP.Validate()
}

// ContractConfig is an alias for an on-chain contract.
type ContractConfig struct {
	// Address is the contract address
	Address string `yaml:"address,omitempty" json:"address,omitempty" toml:"address,omitempty"`

	// CodeHash matches every contract deployed with the same code
	CodeHash int64 `yaml:"code_hash,omitempty" json:"code_hash,omitempty" toml:"code_hash,omitempty"`

	// Typename is an optional name of the contract type used by handlers
	Typename string `yaml:"typename,omitempty" json:"typename,omitempty" toml:"typename,omitempty"`
}

// Validate checks if the contract configuration is valid.
func (c *ContractConfig) Validate() error {
	if c.Address == "" && c.CodeHash == 0 {
		return fmt.Errorf("either address or code_hash is required")
	}

	return nil
}

// PatternConfig is a single step of an operation handler pattern.
type PatternConfig struct {
	// Type is the operation type: transaction, origination, sr_execute or sr_cement
	Type models.OperationType `yaml:"type" json:"type" toml:"type"`

	// Source is the contract alias of the operation sender
	Source string `yaml:"source,omitempty" json:"source,omitempty" toml:"source,omitempty"`

	// Destination is the contract alias of the transaction target or smart rollup
	Destination string `yaml:"destination,omitempty" json:"destination,omitempty" toml:"destination,omitempty"`

	// Entrypoint restricts transactions to a single entrypoint
	Entrypoint string `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty" toml:"entrypoint,omitempty"`

	// OriginatedContract is the contract alias an origination must produce
	OriginatedContract string `yaml:"originated_contract,omitempty" json:"originated_contract,omitempty" toml:"originated_contract,omitempty"` //nolint:lll

	// Optional patterns may be absent from a matched operation group
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty" toml:"optional,omitempty"`
}

// HandlerConfig binds a registered callback to a filter.
type HandlerConfig struct {
	// Callback is the name of a callback registered in the handler registry
	Callback string `yaml:"callback" json:"callback" toml:"callback"`

	// Pattern is the operation sequence matched by operation handlers
	Pattern []PatternConfig `yaml:"pattern,omitempty" json:"pattern,omitempty" toml:"pattern,omitempty"`

	// Contract is the contract alias for big map, event and token transfer handlers
	Contract string `yaml:"contract,omitempty" json:"contract,omitempty" toml:"contract,omitempty"`

	// Path is the big map path
	Path string `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`

	// Tag is the event tag
	Tag string `yaml:"tag,omitempty" json:"tag,omitempty" toml:"tag,omitempty"`

	// TokenID restricts token transfers to a single token
	TokenID string `yaml:"token_id,omitempty" json:"token_id,omitempty" toml:"token_id,omitempty"`

	// From restricts token transfers by sender alias
	From string `yaml:"from,omitempty" json:"from,omitempty" toml:"from,omitempty"`

	// To restricts token transfers by recipient alias
	To string `yaml:"to,omitempty" json:"to,omitempty" toml:"to,omitempty"`
}

// IndexConfig represents the configuration for a single index.
type IndexConfig struct {
	// Kind is the index kind: operation, big_map, event, token_transfer or head
	Kind models.IndexKind `yaml:"kind,omitempty" json:"kind,omitempty" toml:"kind,omitempty"`

	// Template instantiates a config from the templates section
	Template string `yaml:"template,omitempty" json:"template,omitempty" toml:"template,omitempty"`

	// Values substitutes <placeholder> strings in the template
	Values map[string]string `yaml:"values,omitempty" json:"values,omitempty" toml:"values,omitempty"`

	// Datasources are the names of datasources feeding this index
	Datasources []string `yaml:"datasources,omitempty" json:"datasources,omitempty" toml:"datasources,omitempty"`

	// LastMileDatasources serve the final levels before the head
	LastMileDatasources []string `yaml:"last_mile_datasources,omitempty" json:"last_mile_datasources,omitempty" toml:"last_mile_datasources,omitempty"` //nolint:lll

	// FirstLevel is the first level to index
	FirstLevel uint64 `yaml:"first_level,omitempty" json:"first_level,omitempty" toml:"first_level,omitempty"`

	// LastLevel bounds the index; it is disabled once this level is reached. 0 means unbounded.
	LastLevel uint64 `yaml:"last_level,omitempty" json:"last_level,omitempty" toml:"last_level,omitempty"`

	// Types are the operation types fetched by operation indexes
	Types []models.OperationType `yaml:"types,omitempty" json:"types,omitempty" toml:"types,omitempty"`

	// Contracts are aliases whose transactions are fetched regardless of handler patterns
	Contracts []string `yaml:"contracts,omitempty" json:"contracts,omitempty" toml:"contracts,omitempty"`

	// Handlers are matched in declaration order
	Handlers []HandlerConfig `yaml:"handlers,omitempty" json:"handlers,omitempty" toml:"handlers,omitempty"`
}

// ApplyDefaults sets default values for index configuration.
func (i *IndexConfig) ApplyDefaults() {
	if i.Kind == models.IndexKindOperation && len(i.Types) == 0 {
		i.Types = []models.OperationType{models.OperationTypeTransaction}
	}
}

// Validate checks an index configuration against the datasources and contracts it references.
func (i *IndexConfig) Validate(cfg *Config) error {
	switch i.Kind {
	case models.IndexKindOperation, models.IndexKindBigMap, models.IndexKindEvent,
		models.IndexKindTokenTransfer, models.IndexKindHead:
	default:
		return fmt.Errorf("kind must be one of: operation, big_map, event, token_transfer, head")
	}

	if len(i.Datasources) == 0 {
		return fmt.Errorf("at least one datasource is required")
	}
	for _, name := range append(slices.Clone(i.Datasources), i.LastMileDatasources...) {
		if _, ok := cfg.Datasources[name]; !ok {
			return fmt.Errorf("unknown datasource '%s'", name)
		}
	}

	if i.LastLevel != 0 && i.LastLevel < i.FirstLevel {
		return fmt.Errorf("last_level %d is lower than first_level %d", i.LastLevel, i.FirstLevel)
	}

	for _, typ := range i.Types {
		switch typ {
		case models.OperationTypeTransaction, models.OperationTypeOrigination,
			models.OperationTypeSmartRollupExecute, models.OperationTypeSmartRollupCement:
		default:
			return fmt.Errorf("unknown operation type '%s'", typ)
		}
	}

	checkContract := func(alias string) error {
		if alias == "" {
			return nil
		}
		if _, ok := cfg.Contracts[alias]; !ok {
			return fmt.Errorf("unknown contract '%s'", alias)
		}
		return nil
	}

	for _, alias := range i.Contracts {
		if err := checkContract(alias); err != nil {
			return err
		}
	}

	if i.Kind != models.IndexKindHead && len(i.Handlers) == 0 {
		return fmt.Errorf("at least one handler is required")
	}

	for j, h := range i.Handlers {
		if h.Callback == "" {
			return fmt.Errorf("handler[%d]: callback is required", j)
		}
		if i.Kind == models.IndexKindOperation && len(h.Pattern) == 0 {
			return fmt.Errorf("handler[%d]: pattern is required", j)
		}
		for _, alias := range []string{h.Contract, h.From, h.To} {
			if err := checkContract(alias); err != nil {
				return fmt.Errorf("handler[%d]: %w", j, err)
			}
		}
		for k, p := range h.Pattern {
			if !slices.Contains(i.Types, p.Type) {
				return fmt.Errorf("handler[%d].pattern[%d]: type '%s' is not listed in index types", j, k, p.Type)
			}
			for _, alias := range []string{p.Source, p.Destination, p.OriginatedContract} {
				if err := checkContract(alias); err != nil {
					return fmt.Errorf("handler[%d].pattern[%d]: %w", j, k, err)
				}
			}
		}
	}

	return nil
}

// AdvancedConfig contains engine tunables.
type AdvancedConfig struct {
	// ReadaheadLimit is the number of levels fetched ahead of processing during sync, 0 disables readahead
	ReadaheadLimit int `yaml:"readahead_limit" json:"readahead_limit" toml:"readahead_limit"`

	// RollbackDepth is the number of levels below the sync level whose model updates are kept for rollback
	RollbackDepth uint64 `yaml:"rollback_depth" json:"rollback_depth" toml:"rollback_depth"`

	// UnfilteredOperations fetches every operation of an index type when no filter applies
	UnfilteredOperations bool `yaml:"unfiltered_operations" json:"unfiltered_operations" toml:"unfiltered_operations"`

	// OperationMatchOrder is either "declaration" or "operation_id"
	OperationMatchOrder string `yaml:"operation_match_order" json:"operation_match_order" toml:"operation_match_order"`

	// LastMileTrigger switches to last mile datasources once this close to the sync level
	LastMileTrigger uint64 `yaml:"last_mile_trigger" json:"last_mile_trigger" toml:"last_mile_trigger"`

	// LevelsLeftTrigger is the distance from the sync level where primary datasources stop
	LevelsLeftTrigger uint64 `yaml:"levels_left_trigger" json:"levels_left_trigger" toml:"levels_left_trigger"`

	// IdleInterval is the pause between dispatcher ticks when no index made progress
	IdleInterval common.Duration `yaml:"idle_interval" json:"idle_interval" toml:"idle_interval"`

	// ReindexOnConfigChange wipes an index whose stored config hash differs instead of failing
	ReindexOnConfigChange bool `yaml:"reindex_on_config_change" json:"reindex_on_config_change" toml:"reindex_on_config_change"` //nolint:lll

	// PruneInterval is how often model updates below the rollback depth are pruned
	PruneInterval common.Duration `yaml:"prune_interval" json:"prune_interval" toml:"prune_interval"`
}

// ApplyDefaults sets default values for advanced configuration.
func (a *AdvancedConfig) ApplyDefaults() {
	if a.RollbackDepth == 0 {
		a.RollbackDepth = 60
	}
	if a.OperationMatchOrder == "" {
		a.OperationMatchOrder = MatchOrderDeclaration
	}
	if a.LastMileTrigger == 0 {
		a.LastMileTrigger = 10
	}
	if a.LevelsLeftTrigger == 0 {
		a.LevelsLeftTrigger = 5
	}
	if a.IdleInterval.Duration == 0 {
		a.IdleInterval = common.NewDuration(time.Second)
	}
	if a.PruneInterval.Duration == 0 {
		a.PruneInterval = common.NewDuration(10 * time.Minute) //nolint:mnd
	}
}

// Validate checks if the advanced configuration is valid.
func (a *AdvancedConfig) Validate() error {
	if a.ReadaheadLimit < 0 {
		return fmt.Errorf("advanced.readahead_limit must not be negative")
	}
	if a.OperationMatchOrder != MatchOrderDeclaration && a.OperationMatchOrder != MatchOrderOperationID {
		return fmt.Errorf("advanced.operation_match_order must be one of: declaration, operation_id")
	}
	if a.LevelsLeftTrigger > a.LastMileTrigger {
		return fmt.Errorf("advanced.levels_left_trigger must not exceed advanced.last_mile_trigger")
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - dispatcher: Index orchestration
	//   - index: Index state machines
	//   - fetcher: Level-ordered fetching during sync
	//   - datasource: Indexer API datasources and realtime subscriptions
	//   - message-buffer: Realtime rollback buffer
	//   - rpc: REST request surface
	//   - state-store: Index state and model update log
	//   - maintenance: Model update pruning
	//   - notifier: Event publishing
	//   - api: Status API
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// CORSConfig configures cross-origin requests to the status API.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" toml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" toml:"allowed_origins"`
}

// APIConfig configures the status API server.
type APIConfig struct {
	Enabled       bool            `yaml:"enabled" json:"enabled" toml:"enabled"`
	ListenAddress string          `yaml:"listen_address" json:"listen_address" toml:"listen_address"`
	ReadTimeout   common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`
	WriteTimeout  common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`
	IdleTimeout   common.Duration `yaml:"idle_timeout" json:"idle_timeout" toml:"idle_timeout"`
	CORS          CORSConfig      `yaml:"cors" json:"cors" toml:"cors"`
}

// ApplyDefaults sets default values for the API configuration.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.IdleTimeout.Duration == 0 {
		a.IdleTimeout = common.NewDuration(60 * time.Second) //nolint:mnd
	}
	if a.CORS.Enabled && len(a.CORS.AllowedOrigins) == 0 {
		a.CORS.AllowedOrigins = []string{"*"}
	}
}

const (
	CacheBackendBadger = "badger"
	CacheBackendRedis  = "redis"
)

// CacheConfig configures the datasource response cache.
type CacheConfig struct {
	// Backend is "badger" or "redis"
	Backend string `yaml:"backend" json:"backend" toml:"backend"`

	// Path is the badger directory
	Path string `yaml:"path,omitempty" json:"path,omitempty" toml:"path,omitempty"`

	// URL is the redis connection URL
	URL string `yaml:"url,omitempty" json:"url,omitempty" toml:"url,omitempty"`

	// TTL is how long cached responses are kept
	TTL common.Duration `yaml:"ttl" json:"ttl" toml:"ttl"`
}

// ApplyDefaults sets default values for the cache configuration.
func (c *CacheConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = CacheBackendBadger
	}
	if c.TTL.Duration == 0 {
		c.TTL = common.NewDuration(24 * time.Hour) //nolint:mnd
	}
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case CacheBackendBadger:
		if c.Path == "" {
			return fmt.Errorf("cache.path is required for badger")
		}
	case CacheBackendRedis:
		if c.URL == "" {
			return fmt.Errorf("cache.url is required for redis")
		}
	default:
		return fmt.Errorf("cache.backend must be one of: badger, redis")
	}

	return nil
}

// NotifierConfig configures the NATS event publisher.
type NotifierConfig struct {
	URL           string `yaml:"url" json:"url" toml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" json:"subject_prefix" toml:"subject_prefix"`
}

// ApplyDefaults sets default values for the notifier configuration.
func (n *NotifierConfig) ApplyDefaults() {
	if n.SubjectPrefix == "" {
		n.SubjectPrefix = "chainsyncer"
	}
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Database.ApplyDefaults()

	for _, ds := range c.Datasources {
		if ds != nil {
			ds.ApplyDefaults()
		}
	}

	for _, idx := range c.Indexes {
		if idx != nil {
			idx.ApplyDefaults()
		}
	}

	c.Advanced.ApplyDefaults()

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}

	if c.Cache != nil {
		c.Cache.ApplyDefaults()
	}

	if c.Notifier != nil {
		c.Notifier.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
// Templates must be resolved before validation, an unresolved index has no kind.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}

	if len(c.Datasources) == 0 {
		return fmt.Errorf("at least one datasource must be configured")
	}

	for _, name := range sortedKeys(c.Datasources) {
		ds := c.Datasources[name]
		if ds == nil {
			return fmt.Errorf("datasource %s: empty configuration", name)
		}
		if err := ds.Validate(); err != nil {
			return fmt.Errorf("datasource %s: %w", name, err)
		}
	}

	for _, name := range sortedKeys(c.Contracts) {
		if err := c.Contracts[name].Validate(); err != nil {
			return fmt.Errorf("contract %s: %w", name, err)
		}
	}

	if len(c.Indexes) == 0 {
		return fmt.Errorf("at least one index must be configured")
	}

	for _, name := range sortedKeys(c.Indexes) {
		idx := c.Indexes[name]
		if idx == nil {
			return fmt.Errorf("index %s: empty configuration", name)
		}
		if err := idx.Validate(c); err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
	}

	if err := c.Advanced.Validate(); err != nil {
		return err
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.Cache != nil {
		if err := c.Cache.Validate(); err != nil {
			return err
		}
	}

	if c.Notifier != nil && c.Notifier.URL == "" {
		return fmt.Errorf("notifier.url is required")
	}

	return nil
}

// IndexNames returns index names in a stable order.
func (c *Config) IndexNames() []string {
	return sortedKeys(c.Indexes)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}
