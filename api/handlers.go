// Package api wires the administrative operations onto an HTTP ServeMux.
// It owns request decoding and response encoding only; every operation's
// semantics live in the daos package.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/8agana/uni-sqlite/config"
	"github.com/8agana/uni-sqlite/daos"
	"github.com/8agana/uni-sqlite/tools"
)

// Server dispatches administrative requests to the data access layer.
type Server struct {
	dao     *daos.Dao
	maxBody int64
}

// Run registers all administrative routes on the mux.
func Run(mux *http.ServeMux, dao *daos.Dao) {
	srv := &Server{dao: dao, maxBody: config.Cfg.MaxRequestBody}

	mux.HandleFunc("POST /connect", srv.handleConnect)
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("POST /query", srv.handleQuery)
	mux.HandleFunc("POST /transaction", srv.handleTransaction)
	mux.HandleFunc("POST /tables", srv.handleCreateTable)
	mux.HandleFunc("GET /tables", srv.handleListTables)
	mux.HandleFunc("GET /tables/{name}", srv.handleDescribeTable)
	mux.HandleFunc("POST /batch-insert", srv.handleBatchInsert)
	mux.HandleFunc("POST /export-csv", srv.handleExportCsv)
	mux.HandleFunc("POST /import-csv", srv.handleImportCsv)
	mux.HandleFunc("POST /backup", srv.handleBackup)
	mux.HandleFunc("GET /integrity", srv.handleIntegrity)
	mux.HandleFunc("GET /stats", srv.handleStats)
}

// decode reads a size-limited JSON request body into dst.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(tools.APIError{
			Code:    tools.CodeInvalidRequest,
			Message: "invalid request body: " + err.Error(),
		})
		return err
	}
	return nil
}

// respond writes v as a JSON response body.
func respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// boolDefault resolves an optional boolean field against its default.
func boolDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

type connectRequest struct {
	Path            string `json:"path"`
	CreateIfMissing bool   `json:"create_if_missing"`
	Readonly        bool   `json:"readonly"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.Connect(r.Context(), req.Path, req.CreateIfMissing, req.Readonly)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	res, err := s.dao.Health(r.Context())
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type queryRequest struct {
	SQL        string `json:"sql"`
	Parameters []any  `json:"parameters"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.Query(r.Context(), req.SQL, req.Parameters)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type transactionRequest struct {
	Queries         []daos.TxStep `json:"queries"`
	RollbackOnError *bool         `json:"rollback_on_error"`
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.Transaction(r.Context(), req.Queries, boolDefault(req.RollbackOnError, true))
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type createTableRequest struct {
	TableName   string `json:"table_name"`
	Columns     string `json:"columns"`
	IfNotExists bool   `json:"if_not_exists"`
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req createTableRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.CreateTable(r.Context(), req.TableName, req.Columns, req.IfNotExists)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	res, err := s.dao.ListTables(r.Context())
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

func (s *Server) handleDescribeTable(w http.ResponseWriter, r *http.Request) {
	res, err := s.dao.DescribeTable(r.Context(), r.PathValue("name"))
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type batchInsertRequest struct {
	TableName         string   `json:"table_name"`
	Columns           []string `json:"columns"`
	Rows              [][]any  `json:"rows"`
	ReplaceOnConflict bool     `json:"replace_on_conflict"`
}

func (s *Server) handleBatchInsert(w http.ResponseWriter, r *http.Request) {
	var req batchInsertRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.BatchInsert(r.Context(), req.TableName, req.Columns, req.Rows, req.ReplaceOnConflict)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type exportCsvRequest struct {
	Query          string `json:"query"`
	OutputPath     string `json:"output_path"`
	IncludeHeaders *bool  `json:"include_headers"`
}

func (s *Server) handleExportCsv(w http.ResponseWriter, r *http.Request) {
	var req exportCsvRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.ExportCsv(r.Context(), req.Query, req.OutputPath, boolDefault(req.IncludeHeaders, true))
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type importCsvRequest struct {
	TableName   string   `json:"table_name"`
	InputPath   string   `json:"input_path"`
	HasHeaders  *bool    `json:"has_headers"`
	ColumnNames []string `json:"column_names"`
}

func (s *Server) handleImportCsv(w http.ResponseWriter, r *http.Request) {
	var req importCsvRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.ImportCsv(r.Context(), req.TableName, req.InputPath, boolDefault(req.HasHeaders, true), req.ColumnNames)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

type backupRequest struct {
	DestinationPath string `json:"destination_path"`
}

func (s *Server) handleBackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if s.decode(w, r, &req) != nil {
		return
	}
	res, err := s.dao.Backup(r.Context(), req.DestinationPath)
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	res, err := s.dao.IntegrityCheck(r.Context())
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	res, err := s.dao.Stats(r.Context())
	if err != nil {
		tools.RespErr(w, err)
		return
	}
	respond(w, res)
}
