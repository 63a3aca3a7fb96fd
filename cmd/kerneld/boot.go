package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oriys/domaincore/internal/auditlog"
	"github.com/oriys/domaincore/internal/capsurface"
	"github.com/oriys/domaincore/internal/config"
	"github.com/oriys/domaincore/internal/continuation"
	"github.com/oriys/domaincore/internal/control"
	"github.com/oriys/domaincore/internal/domain"
	"github.com/oriys/domaincore/internal/drivers/blockdev"
	"github.com/oriys/domaincore/internal/heap"
	"github.com/oriys/domaincore/internal/imagesrc"
	"github.com/oriys/domaincore/internal/klog"
	"github.com/oriys/domaincore/internal/ledger"
	"github.com/oriys/domaincore/internal/logging"
	"github.com/oriys/domaincore/internal/loader"
	"github.com/oriys/domaincore/internal/metrics"
	"github.com/oriys/domaincore/internal/observability"
	"github.com/oriys/domaincore/internal/pages"
	"github.com/oriys/domaincore/internal/proxy"
	"github.com/oriys/domaincore/internal/registry"
	"github.com/spf13/cobra"

	_ "github.com/oriys/domaincore/internal/drivers/cacheblock"
	_ "github.com/oriys/domaincore/internal/drivers/devenum"
	_ "github.com/oriys/domaincore/internal/drivers/gpu"
	_ "github.com/oriys/domaincore/internal/drivers/plic"
	_ "github.com/oriys/domaincore/internal/drivers/rtc"
	_ "github.com/oriys/domaincore/internal/drivers/shadowblock"
	_ "github.com/oriys/domaincore/internal/drivers/taskdom"
	_ "github.com/oriys/domaincore/internal/drivers/uart"
)

// kernel bundles the process-wide services booted once and handed down
// by value/handle rather than as package globals.
type kernel struct {
	cfg      *config.Config
	registry *registry.Registry
	ledger   *ledger.Ledger
	pages    *pages.Allocator
	heap     *heap.Heap
	harts    *continuation.HartSet
	console  *klog.Console
	control  *control.Manager
	bootTime time.Time
	audit    *auditlog.Log
	s3       *imagesrc.S3Source
}

func bootCmd() *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "boot",
		Short: "Boot the domain core and serve the control plane",
		Long:  "Loads every configured domain image, activates it behind a guarding proxy, and blocks serving the control plane until signaled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}

			logging.SetLevelFromString(cfg.Logging.Level)
			logging.InitStructured("text", cfg.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    "otlp-http",
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Metrics.Namespace, nil)
			}

			k, err := newKernel(cfg)
			if err != nil {
				return err
			}
			defer k.close()

			if err := k.bootDomains(context.Background()); err != nil {
				return fmt.Errorf("boot domains: %w", err)
			}

			return k.serve()
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func newKernel(cfg *config.Config) (*kernel, error) {
	alloc, err := pages.NewAllocator(cfg.PagesTotal)
	if err != nil {
		return nil, fmt.Errorf("new page allocator: %w", err)
	}

	k := &kernel{
		cfg:      cfg,
		registry: registry.New(),
		ledger:   ledger.New(),
		pages:    alloc,
		heap:     heap.New(),
		harts:    continuation.NewHartSet(cfg.HartPoolSize()),
		console:  klog.Default(),
		control:  control.NewManager(),
		bootTime: time.Now(),
	}

	k.registry.SetDeviceSpace(cfg.DeviceSpace)

	if cfg.Audit.Enabled {
		l, err := auditlog.Open(context.Background(), cfg.Audit.DSN)
		if err != nil {
			logging.Op().Warn("audit log disabled: failed to connect", "error", err)
		} else {
			k.audit = l
		}
	}

	if cfg.ImageSource.Enabled {
		src, err := imagesrc.NewS3SourceWithCredentials(context.Background(), cfg.ImageSource.Region, cfg.ImageSource.Bucket,
			cfg.ImageSource.AccessKeyID, cfg.ImageSource.SecretAccessKey)
		if err != nil {
			logging.Op().Warn("s3 image source disabled", "error", err)
		} else {
			k.s3 = src
		}
	}

	if cfg.Boundary.Enabled {
		logging.Op().Info("vsock boundary configured for GPU domains", "context_id", cfg.Boundary.ContextID, "port", cfg.Boundary.Port)
	}

	return k, nil
}

func (k *kernel) close() {
	k.pages.Close()
	if k.audit != nil {
		k.audit.Close()
	}
}

// bootDomains loads every configured domain concurrently: images are
// independent until a ShadowBlockDevice/CacheBlockDevice peer lookup
// happens at call time (not at load time), so there is no ordering
// constraint between DomainSpecs themselves.
func (k *kernel) bootDomains(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, spec := range k.cfg.Domains {
		spec := spec
		g.Go(func() error {
			return k.bootOne(gctx, spec)
		})
	}
	return g.Wait()
}

func (k *kernel) bootOne(ctx context.Context, spec config.DomainSpec) error {
	image, err := k.loadImage(ctx, spec)
	if err != nil {
		return fmt.Errorf("load image for domain %q: %w", spec.Name, err)
	}

	id := k.registry.NextID()
	hart := k.harts.Acquire()
	callCtx := continuation.WithHart(context.Background(), hart)

	deps := capsurface.Deps{
		Registry: k.registry,
		Ledger:   k.ledger,
		Pages:    k.pages,
		Console:  k.console,
		BootTime: k.bootTime,
		Switcher: k.switchTask,
	}
	shimFn := func(_ domain.ID) loader.Shims {
		return loader.Shims{
			Syscall:   capsurface.New(id, spec.Name, deps),
			Heap:      k.heap,
			Allocator: k.pages,
		}
	}

	var controllable proxy.Controllable
	switch spec.Kind {
	case domain.KindBlockDevice:
		slot, err := proxy.NewSlot[domain.BlockDevice](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.BlockDevice])
		if err != nil {
			return err
		}
		// Replay the device's identity against every future restart's
		// capability: the backing media survives a crash on its own
		// (internal/drivers/blockdev keys it by domain ID, not by the
		// per-activation Device value), but Testable Property 2 still
		// requires every recorded init argument to be replayed exactly
		// once, so the capacity this domain booted with is reapplied here.
		if capacity, err := slot.Capability().Capacity(); err == nil {
			info := domain.DeviceInfo{Name: spec.Name, Capacity: capacity}
			slot.RecordReplay(func(d domain.BlockDevice) error {
				dev, ok := d.(*blockdev.Device)
				if !ok {
					return nil
				}
				return dev.Init(info)
			})
		}
		k.registry.Register(spec.Name, proxy.NewBlockDeviceProxy(callCtx, slot))
		controllable = slot
	case domain.KindShadowBlockDevice:
		slot, err := proxy.NewSlot[domain.ShadowBlockDevice](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.ShadowBlockDevice])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewShadowBlockDeviceProxy(callCtx, slot))
		controllable = slot
	case domain.KindCacheBlockDevice:
		slot, err := proxy.NewSlot[domain.CacheBlockDevice](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.CacheBlockDevice])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewCacheBlockDeviceProxy(callCtx, slot))
		controllable = slot
	case domain.KindRTC:
		slot, err := proxy.NewSlot[domain.RTC](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.RTC])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewRTCProxy(callCtx, slot))
		controllable = slot
	case domain.KindGPU:
		slot, err := proxy.NewSlot[domain.GPU](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.GPU])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewGPUProxy(callCtx, slot))
		controllable = slot
	case domain.KindUART:
		slot, err := proxy.NewSlot[domain.UART](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.UART])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewUARTProxy(callCtx, slot))
		controllable = slot
	case domain.KindPLIC:
		slot, err := proxy.NewSlot[domain.PLIC](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.PLIC])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewPLICProxy(callCtx, slot))
		controllable = slot
	case domain.KindDeviceEnum:
		slot, err := proxy.NewSlot[domain.DeviceEnumeration](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.DeviceEnumeration])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewDeviceEnumerationProxy(callCtx, slot))
		controllable = slot
	case domain.KindTask:
		slot, err := proxy.NewSlot[domain.Task](id, spec.Name, image, k.ledger, k.pages, shimFn, castTo[domain.Task])
		if err != nil {
			return err
		}
		k.registry.Register(spec.Name, proxy.NewTaskProxy(callCtx, slot))
		controllable = slot
	default:
		return fmt.Errorf("domain %q: unknown kind %q", spec.Name, spec.Kind)
	}

	k.control.Register(spec.Name, spec.Kind, controllable)
	logging.Op().Info("domain loaded", "name", spec.Name, "kind", spec.Kind, "id", id)
	return nil
}

// castTo is the generic Cast[K] every bootOne branch shares: the loader
// entry point for kind K always returns a domain.Base whose concrete type
// already implements K, so the assertion only ever fails on a
// misconfigured DomainSpec (image registered under the wrong kind).
func castTo[K domain.Base](b domain.Base) (K, bool) {
	k, ok := b.(K)
	return k, ok
}

// switchTask is the TaskSwitcher every capsurface.Surface shares: this
// port has no register file to save, so it is a pure bookkeeping no-op
// that logs the switch.
func (k *kernel) switchTask(prev, next uint64) error {
	logging.Op().Debug("task switch", "prev", prev, "next", next)
	return nil
}

func (k *kernel) loadImage(ctx context.Context, spec config.DomainSpec) (domain.Image, error) {
	if isS3Ref(spec.Image) {
		if k.s3 == nil {
			return domain.Image{}, fmt.Errorf("domain %q references %q but no image_source is configured", spec.Name, spec.Image)
		}
		return k.s3.Fetch(ctx, spec.Image, spec.Driver, spec.Kind)
	}
	data, err := loadLocalImage(spec.Image)
	if err != nil {
		return domain.Image{}, err
	}
	return domain.Image{Bytes: data, Driver: spec.Driver, Kind: spec.Kind}, nil
}

func (k *kernel) serve() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var httpSrv *http.Server
	if k.cfg.Control.Enabled && k.cfg.Control.HTTPAddr != "" {
		httpSrv = &http.Server{Addr: k.cfg.Control.HTTPAddr, Handler: k.control.HTTPHandler()}
		go func() {
			logging.Op().Info("control HTTP API listening", "addr", k.cfg.Control.HTTPAddr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Op().Error("control HTTP API stopped", "error", err)
			}
		}()
	}

	if k.cfg.Control.Enabled && k.cfg.Control.HealthAddr != "" {
		go func() {
			logging.Op().Info("control health service listening", "addr", k.cfg.Control.HealthAddr)
			if err := k.control.ServeHealth(ctx, k.cfg.Control.HealthAddr); err != nil {
				logging.Op().Error("control health service stopped", "error", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	logging.Op().Info("domain core booted, waiting for signals", "domains", len(k.cfg.Domains))
	<-sigCh

	logging.Op().Info("shutdown signal received")
	cancel()
	if httpSrv != nil {
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		httpSrv.Shutdown(shCtx)
	}
	return nil
}

func isS3Ref(ref string) bool {
	return len(ref) > 5 && ref[:5] == "s3://"
}
