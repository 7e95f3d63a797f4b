package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/goran-ethernal/ChainSyncer/internal/cache"
	"github.com/goran-ethernal/ChainSyncer/internal/common"
	"github.com/goran-ethernal/ChainSyncer/internal/datasource"
	"github.com/goran-ethernal/ChainSyncer/internal/db"
	"github.com/goran-ethernal/ChainSyncer/internal/dispatcher"
	"github.com/goran-ethernal/ChainSyncer/internal/metrics"
	"github.com/goran-ethernal/ChainSyncer/internal/notify"
	"github.com/goran-ethernal/ChainSyncer/internal/rpc"
	"github.com/goran-ethernal/ChainSyncer/internal/state"
	"github.com/goran-ethernal/ChainSyncer/pkg/api"
	"github.com/goran-ethernal/ChainSyncer/pkg/config"
	pkgds "github.com/goran-ethernal/ChainSyncer/pkg/datasource"
	"github.com/goran-ethernal/ChainSyncer/pkg/handler"
	"github.com/spf13/cobra"
)

func runSyncer(_ *cobra.Command, _ []string) error {
	fmt.Printf(banner, version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := componentLogger(cfg, common.ComponentDispatcher)
	defer log.Close() //nolint:errcheck

	metrics.BuildInfoSet(version)

	metricsServer := metrics.NewServer(cfg.Metrics, componentLogger(cfg, common.ComponentAPI))
	if err := metricsServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		if err := metricsServer.Stop(context.Background()); err != nil {
			log.Warnf("Failed to stop metrics server: %v", err)
		}
	}()

	responseCache, err := cache.New(cfg.Cache, componentLogger(cfg, common.ComponentRPC))
	if err != nil {
		return fmt.Errorf("failed to create response cache: %w", err)
	}
	defer responseCache.Close()

	log.Info("Opening state database...")
	database, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer database.Close()

	maintenance := db.NewMaintenanceCoordinator(cfg.Database, database.DB, componentLogger(cfg, common.ComponentMaintenance))

	store, err := state.NewStore(
		database,
		maintenance,
		cfg.Advanced.RollbackDepth,
		componentLogger(cfg, common.ComponentStateStore),
		handler.Migrations()...,
	)
	if err != nil {
		return err
	}

	datasources, err := newDatasources(cfg, responseCache)
	if err != nil {
		return err
	}
	defer func() {
		for _, ds := range datasources {
			if err := ds.Close(); err != nil {
				log.Warnf("Failed to close datasource %s: %v", ds.Name(), err)
			}
		}
	}()

	notifier, err := notify.New(cfg.Notifier, componentLogger(cfg, common.ComponentNotifier))
	if err != nil {
		return err
	}
	defer notifier.Close()

	d, err := dispatcher.New(cfg, store, datasources, notifier, log)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// prune right before vacuum so the freed pages are reclaimed in the same run
	maintenance.AddTask(d.PruneTask())
	if err := maintenance.Start(ctx); err != nil {
		return fmt.Errorf("failed to start database maintenance: %w", err)
	}
	defer func() {
		if err := maintenance.Stop(); err != nil {
			log.Warnf("Failed to stop database maintenance: %v", err)
		}
	}()

	if cfg.API != nil && cfg.API.Enabled {
		apiServer := api.NewServer(cfg.API, d, componentLogger(cfg, common.ComponentAPI))
		go func() {
			if err := apiServer.Start(ctx); err != nil {
				log.Errorf("API server error: %v", err)
			}
		}()
	}

	log.Infof("Starting ChainSyncer with %d index(es)...", len(cfg.Indexes))

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		metrics.ErrorsInc(common.ComponentDispatcher, metrics.SeverityFatal)
		return fmt.Errorf("dispatcher failed: %w", err)
	}

	log.Info("ChainSyncer stopped successfully")
	return nil
}

// newDatasources creates a REST client and a datasource for every configured datasource.
// Datasource health is reported by the realtime connection callbacks.
func newDatasources(cfg *config.Config, responseCache cache.Cache) (map[string]pkgds.Datasource, error) {
	rpcLog := componentLogger(cfg, common.ComponentRPC)
	dsLog := componentLogger(cfg, common.ComponentDatasource)

	out := make(map[string]pkgds.Datasource, len(cfg.Datasources))
	for _, name := range slices.Sorted(maps.Keys(cfg.Datasources)) {
		dsCfg := cfg.Datasources[name]

		client, err := rpc.NewClient(name, dsCfg.URL, &dsCfg.HTTP, responseCache, rpcLog)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}

		ds, err := datasource.New(name, dsCfg, client, nil, cfg.Advanced.RollbackDepth, dsLog)
		if err != nil {
			return nil, fmt.Errorf("datasource %s: %w", name, err)
		}

		ds.CallOnConnected(func(_ context.Context, ds pkgds.Datasource) error {
			metrics.ComponentHealthSet(common.ComponentDatasource+"."+ds.Name(), true)
			return nil
		})
		ds.CallOnDisconnected(func(_ context.Context, ds pkgds.Datasource) error {
			metrics.ComponentHealthSet(common.ComponentDatasource+"."+ds.Name(), false)
			return nil
		})

		out[name] = ds
	}

	return out, nil
}
