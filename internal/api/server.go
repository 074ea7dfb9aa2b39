package api

import (
	"apkforge/internal/apikey"
	"apkforge/internal/builder"
	"apkforge/internal/catalog"
	"apkforge/internal/config"
	"apkforge/internal/jobs"
	"apkforge/internal/toolchain"
)

// Server holds the dependencies the HTTP handlers need.
type Server struct {
	config  *config.Config
	jobs    *jobs.Store
	keys    *apikey.Store
	builder *builder.Service
}

// NewServer wires the handlers together. Keystore credentials from the
// template registry can be overridden field by field via the environment.
func NewServer(cfg *config.Config, registry *catalog.Registry, jobsStore *jobs.Store, keyStore *apikey.Store, runner toolchain.Runner) *Server {
	svc := builder.NewService(builder.Options{
		Registry:     registry,
		Jobs:         jobsStore,
		Runner:       runner,
		Keystore:     mergeKeystore(registry.Keystore(), cfg.Keystore),
		ApktoolBin:   cfg.ApktoolBin,
		JarsignerBin: cfg.JarsignerBin,
		WorkRoot:     cfg.WorkDir,
		GeneratedDir: cfg.GeneratedDir(),
	})

	return &Server{
		config:  cfg,
		jobs:    jobsStore,
		keys:    keyStore,
		builder: svc,
	}
}

func mergeKeystore(base catalog.Keystore, over config.KeystoreOverrides) builder.Keystore {
	ks := builder.Keystore{
		Path:      base.Path,
		Alias:     base.Alias,
		StorePass: base.StorePass,
		KeyPass:   base.KeyPass,
	}
	if over.Path != "" {
		ks.Path = over.Path
	}
	if over.Alias != "" {
		ks.Alias = over.Alias
	}
	if over.StorePass != "" {
		ks.StorePass = over.StorePass
	}
	if over.KeyPass != "" {
		ks.KeyPass = over.KeyPass
	}
	return ks
}
