package dig_container

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/gradebook/apps/api/echo"
	"github.com/trezcool/gradebook/core"
	"github.com/trezcool/gradebook/core/gradebook"
	"github.com/trezcool/gradebook/core/user"
	blobsvc "github.com/trezcool/gradebook/services/blob"
	emailsvc "github.com/trezcool/gradebook/services/email"
	logsvc "github.com/trezcool/gradebook/services/logger"
	"github.com/trezcool/gradebook/storage/database"
	inmemdb "github.com/trezcool/gradebook/storage/database/inmem"
	sqlxrepos "github.com/trezcool/gradebook/storage/database/sqlx"
)

type (
	// DBCloser releases the database. It is a no-op for the memory engine.
	DBCloser func() error

	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	Repositories struct {
		dig.Out
		Users     user.Repository
		Gradebook gradebook.Remote
		Templates gradebook.TemplateRepository
		Close     DBCloser
	}

	ServerParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    user.Service
		Sessions   *user.Sessions
		Registry   *gradebook.Registry
		Templates  *gradebook.TemplateService
		Archiver   echoapi.ExportStore
		Gatherer   prometheus.Gatherer
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newRepositories opens and migrates the configured database, or keeps everything in memory.
func newRepositories(conf *core.Config, loggerParam DBLoggerParam) Repositories {
	if conf.Database.Engine == database.EngineMemory {
		db, _ := inmemdb.Open()
		return Repositories{
			Users:     inmemdb.NewUserRepository(db),
			Gradebook: inmemdb.NewGradebookRepository(db),
			Templates: inmemdb.NewTemplateRepository(db),
			Close:     func() error { return nil },
		}
	}

	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		loggerParam.Logger.Fatal("setting up database: creating", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		loggerParam.Logger.Fatal("setting up database: opening", err)
	}
	if err = database.Migrate(ctx, db); err != nil {
		loggerParam.Logger.Fatal("setting up database: migrating", err)
	}
	return Repositories{
		Users:     sqlxrepos.NewUserRepository(db),
		Gradebook: sqlxrepos.NewGradebookRepository(db),
		Templates: sqlxrepos.NewTemplateRepository(db),
		Close:     db.Close,
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", log.LstdFlags))
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetricsRegistry(conf *core.Config) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "gradebook",
		Name:        "build_info",
		Help:        "Build of the running API.",
		ConstLabels: prometheus.Labels{"build": conf.Build, "env": conf.Env},
	}, func() float64 { return 1 }))
	return reg
}

func newRegisterer(reg *prometheus.Registry) prometheus.Registerer { return reg }

func newGatherer(reg *prometheus.Registry) prometheus.Gatherer { return reg }

// newExportStore archives exports to S3 when a bucket is configured.
func newExportStore(conf *core.Config, logger core.Logger) (echoapi.ExportStore, error) {
	if conf.Blob.Bucket == "" {
		logger.Info("export archive disabled: no bucket configured")
		return nil, nil
	}
	archiver, err := blobsvc.NewS3Archiver(context.Background(), conf.Blob)
	if err != nil {
		return nil, errors.Wrap(err, "creating s3 archiver")
	}
	return archiver, nil
}

func newServerDeps(p ServerParams) echoapi.ServerDeps {
	return echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		Sessions:   p.Sessions,
		Registry:   p.Registry,
		Templates:  p.Templates,
		Archiver:   p.Archiver,
		Gatherer:   p.Gatherer,
		Validate:   p.Validate,
		Translator: p.Translator,
	}
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(user.NewSessions))
	must(c.Provide(newMetricsRegistry))
	must(c.Provide(newRegisterer))
	must(c.Provide(newGatherer))
	must(c.Provide(gradebook.NewMetrics))
	must(c.Provide(gradebook.NewRegistry))
	must(c.Provide(gradebook.NewTemplateService))
	must(c.Provide(newExportStore))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
