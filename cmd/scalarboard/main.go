package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/opst/scalarboard/cmd/scalarboard/handlers"
	"github.com/opst/scalarboard/pkg/autorefresh"
	"github.com/opst/scalarboard/pkg/buildtime"
	"github.com/opst/scalarboard/pkg/configs/board"
	"github.com/opst/scalarboard/pkg/db"
	"github.com/opst/scalarboard/pkg/db/etcd"
	"github.com/opst/scalarboard/pkg/db/postgres"
	"github.com/opst/scalarboard/pkg/engine"
	"github.com/opst/scalarboard/pkg/fetch/rest"
	"github.com/opst/scalarboard/pkg/loop"
	"github.com/opst/scalarboard/pkg/metrics"
	"github.com/opst/scalarboard/pkg/scheduler"
	"github.com/opst/scalarboard/pkg/settings"
	"github.com/opst/scalarboard/pkg/utils/debounce"
	"github.com/opst/scalarboard/pkg/utils/echoutil"
	"github.com/opst/scalarboard/pkg/utils/filewatch"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config-path", "", "scalarboard config path")
	pcert := flag.String("cert", "", "certification file for TLS")
	pkey := flag.String("certkey", "", "key of certification file for TLS")
	pversion := flag.Bool("version", false, "show version")
	flag.Parse()

	if *pversion {
		fmt.Println(buildtime.VersionString())
		return
	}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.AddTrailingSlash())

	conf, err := board.LoadBoardConfig(*configPath)
	if err != nil {
		e.Logger.Fatalf("can not read configuration: %s", err)
	}

	// set log
	lvl := conf.LogLevel()
	logger := func(prefix string) *log.Logger {
		l := log.New(prefix)
		l.SetLevel(lvl)
		return l
	}
	echoutil.SetLevel(e, lvl)
	e.Logger.Infof("scalarboard %s", buildtime.VersionString())
	e.HTTPErrorHandler = func(err error, ctx echo.Context) {
		e.DefaultHTTPErrorHandler(err, ctx)
		e.Logger.Error(err)
	}
	e.Use(echoutil.LogHandlerFunc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		wctx, cancel, err := filewatch.UntilModifyContext(ctx, *configPath)
		if err != nil {
			e.Logger.Fatalf("can not watch configuration: %s", err)
		}
		defer cancel()
		context.AfterFunc(wctx, func() {
			if errors.Is(context.Cause(wctx), filewatch.ErrModified) {
				e.Logger.Infof("config file is updated. quit to restart server: %s", context.Cause(wctx))
				stop()
			}
		})
	}

	persist, closePersist, err := persistence(ctx, conf.Store())
	if err != nil {
		e.Logger.Fatalf("can not connect settings store: %s", err)
	}
	defer closePersist()

	store := settings.NewStore(
		settings.WithPersistence(persist),
		settings.WithLogger(logger("settings")),
	)

	fetcher, err := rest.New(conf.Fetch().APIRoot(), rest.WithTimeout(conf.Fetch().Timeout()))
	if err != nil {
		e.Logger.Fatalf("fetch.api_root is invalid: %s", err)
	}

	recorder, err := metrics.New(conf.Metrics().Statsd(), conf.Metrics().Tags()...)
	if err != nil {
		e.Logger.Fatalf("can not connect statsd: %s", err)
	}

	reg := engine.NewRegistry(func(name string) *engine.View {
		return engine.New(
			store, fetcher,
			engine.WithScheduler(scheduler.New(
				scheduler.WithSmoothingDebouncer(debounce.New(conf.Engine().SmoothingDebounce())),
			)),
			engine.WithAutoRefresh(
				autorefresh.WithDebouncer(debounce.New(conf.AutoRefresh().AutoDebounce())),
			),
			engine.WithRecorder(recorder),
			engine.WithLogger(logger("view "+name)),
			engine.WithFirstLoadLimit(conf.Engine().FirstLoadLimit()),
		)
	})
	defer reg.Close()

	routes(e, reg)
	e.Logger.Info("registered routes:")
	for _, r := range e.Routes() {
		e.Logger.Info(r.Method, " ", r.Path)
	}

	ticker := logger("ticker")
	go loop.Every(ctx, conf.AutoRefresh().Interval(), func(context.Context) {
		if n := reg.Tick(); 0 < n {
			ticker.Debugf("auto refresh is scheduled for %d views", n)
		}
	})

	go func() {
		addr := fmt.Sprintf(":%d", conf.Port())
		var err error
		if cert, key := *pcert, *pkey; cert != "" && key != "" {
			err = e.StartTLS(addr, cert, key)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Error(err)
			stop()
		}
	}()

	<-ctx.Done()

	graceful, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(graceful); err != nil {
		e.Logger.Errorf("error on shutdown: %s", err)
	}
	reg.Close()
	if err := store.Close(graceful); err != nil {
		e.Logger.Warnf("some settings may not be saved: %s", err)
	}
}

func api(p ...string) string {
	return path.Join(append([]string{"/api"}, p...)...) + "/"
}

func routes(e *echo.Echo, reg *engine.Registry) {
	view := "view"

	e.GET(api("views"), handlers.GetViewsHandler(reg))
	e.GET(api("views/:view"), handlers.GetViewHandler(reg, view))
	e.DELETE(api("views/:view"), handlers.DeleteViewHandler(reg, view))
	e.PUT(api("views/:view/scope"), handlers.PutScopeHandler(reg, view))

	e.GET(api("views/:view/settings"), handlers.GetSettingsHandler(reg, view))
	e.GET(api("views/:view/charts"), handlers.GetChartsHandler(reg, view))
	e.GET(api("views/:view/display"), handlers.GetDisplayHandler(reg, view))

	e.PUT(api("views/:view/hidden"), handlers.PutHiddenHandler(reg, view))
	e.PUT(api("views/:view/hidden/toggle"), handlers.PutHiddenToggleHandler(reg, view))
	e.PUT(api("views/:view/smoothing"), handlers.PutSmoothingHandler(reg, view))
	e.PUT(api("views/:view/groupby"), handlers.PutGroupByHandler(reg, view))
	e.PUT(api("views/:view/axis"), handlers.PutAxisHandler(reg, view))
	e.PUT(api("views/:view/originals"), handlers.PutOriginalsHandler(reg, view))
	e.PUT(api("views/:view/flags"), handlers.PutFlagsHandler(reg, view))

	e.POST(api("views/:view/promote"), handlers.PostPromoteHandler(reg, view))
	e.POST(api("views/:view/reset"), handlers.PostResetHandler(reg, view))
	e.POST(api("views/:view/refresh"), handlers.PostRefreshHandler(reg, view))
}

// persistence makes the settings store backend. The returned func closes it.
func persistence(ctx context.Context, conf *board.StoreConfig) (db.SettingsInterface, func(), error) {
	switch conf.Backend() {
	case board.Postgres:
		s, err := postgres.New(ctx, conf.Postgres().URI())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case board.Etcd:
		s, err := etcd.New(etcd.Config{
			Endpoints: conf.Etcd().Endpoints(),
			Prefix:    conf.Etcd().Prefix(),
			Timeout:   conf.Etcd().Timeout(),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error on closing etcd client: %s\n", err)
			}
		}, nil
	default:
		return db.NewMemory(), func() {}, nil
	}
}
