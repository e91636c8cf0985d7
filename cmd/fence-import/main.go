// 程序入口：围栏定义维护（目录导入 PostgreSQL、单条写入、列出、删除）
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"geo-attendance/internal/fenceindex"
	"geo-attendance/internal/logger"
	"geo-attendance/internal/migrate"
	"geo-attendance/internal/store"
	"geo-attendance/internal/utils"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var flagDir = &cli.StringFlag{
	Name:    "dir",
	EnvVars: []string{"FENCE_DIR"},
	Value:   "data/fences",
	Usage:   "directory with fences.json or *.geojson",
}

var flagDryRun = &cli.BoolFlag{
	Name:  "dry-run",
	Usage: "validate the directory without writing to the database",
}

var flagFile = &cli.StringFlag{
	Name:    "file",
	Aliases: []string{"f"},
	Value:   "-",
	Usage:   "one fence record as JSON, - for stdin",
}

var flagID = &cli.StringFlag{
	Name:     "id",
	Required: true,
	Usage:    "geofence id",
}

func openStore(cCtx *cli.Context) (*store.Store, error) {
	db, err := utils.OpenPostgresFromEnv()
	if err != nil {
		return nil, err
	}
	if err := migrate.EnsureSchema(cCtx.Context, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store.AttachDB(db), nil
}

// readRecord：读取单条围栏记录并按构建规则校验
func readRecord(r io.Reader) (fenceindex.Record, error) {
	var rec fenceindex.Record
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return fenceindex.Record{}, fmt.Errorf("decode fence record: %w", err)
	}
	if _, err := rec.Build(); err != nil {
		return fenceindex.Record{}, err
	}
	return rec, nil
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()

	app := &cli.App{
		Name:           "fence-import",
		Usage:          "manage geofence definitions in PostgreSQL",
		DefaultCommand: "import",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "load a fence directory and upsert every fence",
				Flags: []cli.Flag{flagDir, flagDryRun},
				Action: func(cCtx *cli.Context) error {
					fences, err := fenceindex.LoadDir(cCtx.String(flagDir.Name))
					if err != nil {
						return err
					}
					// 重复 ID 与空 ID 在写库前拦截
					if _, err := fenceindex.New(fences, fenceindex.Options{}); err != nil {
						return err
					}
					recs := make([]fenceindex.Record, len(fences))
					for i, f := range fences {
						recs[i] = fenceindex.ToRecord(f)
					}
					if cCtx.Bool(flagDryRun.Name) {
						l.Info("fence_import_dry_run", "count", len(recs))
						return nil
					}
					st, err := openStore(cCtx)
					if err != nil {
						return err
					}
					defer st.Close()
					n, err := st.UpsertFences(cCtx.Context, recs)
					if err != nil {
						return err
					}
					l.Info("fence_import_done", "count", n)
					return nil
				},
			},
			{
				Name:  "put",
				Usage: "upsert a single fence record",
				Flags: []cli.Flag{flagFile},
				Action: func(cCtx *cli.Context) error {
					in := io.Reader(os.Stdin)
					if p := cCtx.String(flagFile.Name); p != "" && p != "-" {
						f, err := os.Open(p)
						if err != nil {
							return err
						}
						defer f.Close()
						in = f
					}
					rec, err := readRecord(in)
					if err != nil {
						return err
					}
					st, err := openStore(cCtx)
					if err != nil {
						return err
					}
					defer st.Close()
					if err := st.UpsertFence(cCtx.Context, rec); err != nil {
						return err
					}
					l.Info("fence_put", "id", rec.ID, "kind", rec.Kind)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "print stored fences as JSON",
				Action: func(cCtx *cli.Context) error {
					st, err := openStore(cCtx)
					if err != nil {
						return err
					}
					defer st.Close()
					recs, err := st.ListFences(cCtx.Context)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(recs)
				},
			},
			{
				Name:  "delete",
				Usage: "delete a stored fence",
				Flags: []cli.Flag{flagID},
				Action: func(cCtx *cli.Context) error {
					st, err := openStore(cCtx)
					if err != nil {
						return err
					}
					defer st.Close()
					id := cCtx.String(flagID.Name)
					ok, err := st.DeleteFence(cCtx.Context, id)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("%w: %s", fenceindex.ErrFenceUnknown, id)
					}
					l.Info("fence_deleted", "id", id)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		l.Error("fence_import_error", "err", err)
		os.Exit(1)
	}
}
