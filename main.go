package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/8agana/uni-sqlite/api"
	"github.com/8agana/uni-sqlite/config"
	"github.com/8agana/uni-sqlite/daos"
	"github.com/8agana/uni-sqlite/tools"
)

func init() {
	godotenv.Load()
}

func main() {
	box, err := daos.NewSandbox(config.Cfg.DataDir)
	if err != nil {
		log.Fatal(err)
	}

	dao := daos.New(box, daos.Options{
		Driver:      config.Cfg.Driver,
		BusyTimeout: config.Cfg.BusyTimeout,
		MaxRows:     config.Cfg.MaxRows,
	})
	defer dao.Close()

	if err := tools.InitAuditLogger(); err != nil {
		log.Fatal(err)
	}
	defer tools.CloseAuditLogger()

	mux := http.NewServeMux()
	api.Run(mux, dao)

	handler := tools.RecoveryMiddleware(
		tools.LoggingMiddleware(
			tools.TimeoutMiddleware(
				tools.RateLimitMiddleware(
					tools.CORSMiddleware(
						tools.AuthMiddleware(mux))))))

	tools.Logger.Info("listening", "port", config.Cfg.Port, "data_dir", box.Root, "driver", config.Cfg.Driver)
	log.Fatal(http.ListenAndServe(config.Cfg.Port, handler))
}
