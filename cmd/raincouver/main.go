package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/raincouver/internal/config"
	"github.com/lox/raincouver/internal/metrics"
	"github.com/lox/raincouver/internal/publish"
	"github.com/lox/raincouver/internal/store"
	"github.com/lox/raincouver/internal/workflow"
)

type Globals struct {
	EnvFile     kongdotenv.ENVFileConfig `kong:"optional,name=env-file,default='.env',help='Path to .env file.'"`
	Config      string                   `help:"Pipeline YAML config; defaults apply when empty." type:"path" env:"RAINCOUVER_CONFIG"`
	DB          string                   `help:"Path to SQLite database." default:"data/raincouver.db" env:"RAINCOUVER_DB"`
	MetricsFile string                   `help:"Write Prometheus metrics to this textfile on exit." env:"RAINCOUVER_METRICS_FILE"`
	FTPUser     string                   `help:"FTP user for --publish." env:"RAINCOUVER_FTP_USER"`
	FTPPassword string                   `help:"FTP password for --publish." env:"RAINCOUVER_FTP_PASSWORD"`
}

type CLI struct {
	Globals

	Download DownloadCmd `cmd:"" help:"Fetch daily observations and write the raw CSV."`
	EDA      EDACmd      `cmd:"" name:"eda" help:"Plot histograms and the correlation table of the raw data."`
	Split    SplitCmd    `cmd:"" help:"Label, drop, split and encode the raw data."`
	Train    TrainCmd    `cmd:"" help:"Compare models, select one and tune it."`
	Evaluate EvaluateCmd `cmd:"" help:"Score the saved pipeline on the test partition."`
	Run      RunCmd      `cmd:"" help:"Run every stage in order."`
	Status   StatusCmd   `cmd:"" help:"Show stored days, cache size and recent fetch failures."`
}

// app is bound into every command's Run method.
type app struct {
	ctx     context.Context
	globals *Globals
	cfg     config.Pipeline
}

func (a *app) runner(withPublish bool) (*workflow.Runner, func(), error) {
	if err := os.MkdirAll(filepath.Dir(a.globals.DB), 0755); err != nil {
		return nil, nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", a.globals.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	r := workflow.New(a.cfg, st)
	if withPublish {
		if a.cfg.Publish.FTPAddr == "" {
			db.Close()
			return nil, nil, fmt.Errorf("--publish needs publish.ftp_addr in the config")
		}
		p, err := publish.NewFTPPublisher(a.cfg.Publish.FTPAddr, a.cfg.Publish.RemoteDir)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		p.SetCredentials(a.globals.FTPUser, a.globals.FTPPassword)
		r.SetPublisher(p)
	}
	return r, func() { db.Close() }, nil
}

type DownloadCmd struct {
	Start string `help:"First day, YYYY-MM-DD (overrides config)."`
	End   string `help:"Last day, YYYY-MM-DD (overrides config)."`
}

func (c *DownloadCmd) Run(a *app) error {
	if c.Start != "" {
		a.cfg.Download.StartDate = c.Start
	}
	if c.End != "" {
		a.cfg.Download.EndDate = c.End
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	r, done, err := a.runner(false)
	if err != nil {
		return err
	}
	defer done()
	_, err = r.Download(a.ctx)
	return err
}

type EDACmd struct{}

func (c *EDACmd) Run(a *app) error {
	r, done, err := a.runner(false)
	if err != nil {
		return err
	}
	defer done()
	_, err = r.EDA(a.ctx)
	return err
}

type SplitCmd struct{}

func (c *SplitCmd) Run(a *app) error {
	r, done, err := a.runner(false)
	if err != nil {
		return err
	}
	defer done()
	_, err = r.Split(a.ctx)
	return err
}

type TrainCmd struct {
	Metric string `help:"Selection metric or report row, e.g. f1 or test_recall (overrides config)."`
}

func (c *TrainCmd) Run(a *app) error {
	if c.Metric != "" {
		a.cfg.Train.SelectionMetric = c.Metric
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}
	r, done, err := a.runner(false)
	if err != nil {
		return err
	}
	defer done()
	res, err := r.Train(a.ctx)
	if err != nil {
		return err
	}
	if res.Stopped {
		log.Printf("train: %s is not tunable; no pipeline written", res.Selection.Model)
	}
	return nil
}

type EvaluateCmd struct {
	Publish bool `help:"Upload the report over FTP."`
}

func (c *EvaluateCmd) Run(a *app) error {
	r, done, err := a.runner(c.Publish)
	if err != nil {
		return err
	}
	defer done()
	if _, err := r.Evaluate(a.ctx); err != nil {
		return err
	}
	return r.Publish(a.ctx)
}

type RunCmd struct {
	EDA     bool `name:"eda" help:"Also run exploratory analysis."`
	Publish bool `help:"Upload reports over FTP."`
}

func (c *RunCmd) Run(a *app) error {
	r, done, err := a.runner(c.Publish)
	if err != nil {
		return err
	}
	defer done()
	res, err := r.Run(a.ctx, c.EDA)
	if err != nil {
		return err
	}
	if res.Train.Stopped {
		log.Printf("run: stopped after training, %s is not tunable", res.Train.Selection.Model)
	}
	return nil
}

type StatusCmd struct {
	Prune time.Duration `help:"Delete cached archive responses older than this first (e.g. 720h)."`
}

func (c *StatusCmd) Run(a *app) error {
	r, done, err := a.runner(false)
	if err != nil {
		return err
	}
	defer done()
	return r.PrintStatus(c.Prune)
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("raincouver"),
		kong.Description("Predict rainy days in Vancouver from Open-Meteo history."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runErr := kctx.Run(&app{ctx: ctx, globals: &cli.Globals, cfg: cfg})

	if cli.MetricsFile != "" {
		if err := metrics.WriteTextfile(cli.MetricsFile); err != nil {
			log.Printf("write metrics: %v", err)
		}
	}
	if runErr != nil {
		log.Fatalf("%s: %v", kctx.Command(), runErr)
	}
}
