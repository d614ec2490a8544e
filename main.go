package main

import (
	"context"
	"log"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
	fsjetstream "github.com/go-monolith/mono/plugin/fs-jetstream"
	"github.com/uvuchan/chanchu/config"
	"github.com/uvuchan/chanchu/modules/activity"
	"github.com/uvuchan/chanchu/modules/api"
	"github.com/uvuchan/chanchu/modules/broadcast"
	"github.com/uvuchan/chanchu/modules/registry"
	"github.com/uvuchan/chanchu/modules/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Println("=== Shared File Registry ===")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Max Upload Size: %d bytes", cfg.MaxUploadSize)
	log.Printf("Metadata: %s (%s)", cfg.Metadata.Backend, cfg.Metadata.Path)
	log.Printf("Blobs: %s", cfg.Blobs.Backend)

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.JetStreamDir()),
		mono.WithNATSPort(cfg.NATSPort),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// The object store plugin is only needed when blobs live in JetStream.
	if cfg.Blobs.Backend == config.BlobJetStream {
		storagePlugin, err := fsjetstream.New(fsjetstream.Config{
			Buckets: []fsjetstream.BucketConfig{
				{
					Name:        cfg.Blobs.JetStreamBucket,
					Description: "Shared file registry contents",
					MaxBytes:    cfg.Blobs.JetStreamMaxBytes,
					Storage:     fsjetstream.FileStorage,
					Compression: true,
				},
			},
		})
		if err != nil {
			log.Fatalf("Failed to create storage plugin: %v", err)
		}
		if err := app.RegisterPlugin(storagePlugin, store.PluginAlias); err != nil {
			log.Fatalf("Failed to register storage plugin: %v", err)
		}
	}

	// Create modules
	storeModule := store.NewModule(cfg, app.Logger())
	broadcastModule := broadcast.NewModule(app.Logger())
	registryModule := registry.NewModule(cfg.MaxUploadSize, app.Logger())
	activityModule := activity.NewModule(activity.DefaultCapacity, app.Logger())
	apiModule, err := api.NewModule(cfg, app.Logger())
	if err != nil {
		log.Fatalf("Failed to create api module: %v", err)
	}

	// Wire up in-process dependencies. Registry changes reach sessions
	// directly so per-session order matches commit order; the event bus
	// carries the same changes to the activity module.
	registryModule.SetStoreModule(storeModule)
	registryModule.AddNotifier(broadcastModule.Hub())
	apiModule.SetRegistryModule(registryModule)
	apiModule.SetHub(broadcastModule.Hub())
	apiModule.SetActivity(activityModule)

	// Register modules in dependency order:
	// - store: metadata and blob backends (UsePluginModule)
	// - broadcast: session hub
	// - registry: authoritative file list (ServiceProvider + EventEmitter)
	// - activity: event consumer, depends on registry services
	// - api: Fiber HTTP/WebSocket server
	app.Register(storeModule)
	app.Register(broadcastModule)
	app.Register(registryModule)
	app.Register(activityModule)
	app.Register(apiModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Printf("HTTP Endpoints (http://localhost:%d):", cfg.HTTPPort)
	log.Println("  GET    /health                 - Health check")
	log.Println("  GET    /metrics                - Prometheus metrics")
	log.Println("  POST   /api/v1/files           - Upload a file (multipart: file, uploadedBy, relativePath)")
	log.Println("  POST   /api/v1/files/batch     - Upload several files (multipart: files, relativePaths, uploadedBy)")
	log.Println("  GET    /api/v1/files           - List files")
	log.Println("  GET    /api/v1/files/:id       - Get file metadata")
	log.Println("  DELETE /api/v1/files/:id       - Delete a file")
	log.Println("  GET    /api/v1/activity        - Recent uploads and deletions")
	log.Println("  GET    /download/:id           - Download file contents")
	log.Println("  GET    /get_all_files          - All file records as an array")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%d/ws?uploadedBy=yourname):", cfg.HTTPPort)
	log.Println("  Push events: files_list, file_updated, file_deleted, upload_complete, error")
	log.Println("  Client messages: upload_file, delete_file")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
