/*
Copyright © 2026 AVI COHEN
*/
package cmd

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/aviciot/queryscope/internal/analyzer"
	"github.com/aviciot/queryscope/internal/dbconn"
	"github.com/aviciot/queryscope/internal/history"
	"github.com/aviciot/queryscope/internal/pipeline"
	"github.com/aviciot/queryscope/internal/profile"
	"github.com/aviciot/queryscope/internal/qerror"
	"github.com/aviciot/queryscope/internal/validator"
)

// readSQL loads the statement from a file argument, or stdin for "-".
func readSQL(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", qerror.Wrap(qerror.UsageError, err,
				"reading stdin failed", "pipe the statement or pass a file path")
		}
		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", qerror.Wrap(qerror.UsageError, err,
			"reading input failed", "pass a SQL file path, or - for stdin")
	}
	return string(data), nil
}

// buildEnv wires a pipeline environment from the effective profile. The
// returned closer releases both pools.
func buildEnv(ctx context.Context, dsnFlag, profileName string) (*pipeline.Env, func(), error) {
	prof, err := profile.ResolveProfile(dsnFlag, profileName)
	if err != nil {
		return nil, nil, err
	}
	if prof == nil || prof.ConnStr == "" {
		return nil, nil, qerror.New(qerror.UsageError,
			"no database specified",
			"pass --db, --profile, or set a default with 'queryscope profile default'")
	}

	opts := dbconn.DefaultOptions
	cfg := analyzer.Config{}
	if s := prof.Settings; s != nil {
		if s.PoolMinConns > 0 {
			opts.MinConns = s.PoolMinConns
		}
		if s.PoolMaxConns > 0 {
			opts.MaxConns = s.PoolMaxConns
		}
		if s.ConnectTimeoutSec > 0 {
			opts.ConnectTimeout = time.Duration(s.ConnectTimeoutSec) * time.Second
		}
		if s.StatementTimeoutSec > 0 {
			opts.StatementTimeout = time.Duration(s.StatementTimeoutSec) * time.Second
		}
		if s.StaleStatsDays > 0 {
			cfg.StaleStatsAfter = time.Duration(s.StaleStatsDays) * 24 * time.Hour
		}
	}

	conn, err := dbconn.Open(ctx, prof.ConnStr, opts)
	if err != nil {
		return nil, nil, err
	}

	closer := conn.Close
	store, histClose, err := openStore(ctx, conn, prof, opts)
	if err != nil {
		log.Warn().Err(err).Msg("history storage unavailable; analyses will not be recorded")
	} else if histClose != nil {
		base := closer
		closer = func() { histClose(); base() }
	}

	instanceID, err := profile.InstanceID()
	if err != nil || instanceID == "" {
		instanceID, _ = os.Hostname()
	}

	dbName := prof.Name
	if dbName == "" {
		dbName = "default"
	}

	env := &pipeline.Env{
		DB:         conn,
		DBName:     dbName,
		InstanceID: instanceID,
		Catalog:    dbconn.NewCatalog(conn),
		Store:      store,
		Limits:     validator.DefaultLimits,
		Analyzer:   cfg,
		Log:        log,
	}
	return env, closer, nil
}

// openStore prefers a dedicated history database when the profile names
// one, otherwise snapshots live alongside the analyzed data.
func openStore(ctx context.Context, conn *dbconn.Conn, prof *profile.Profile, opts dbconn.Options) (history.Store, func(), error) {
	pool := conn.Pool()
	var closer func()

	if prof.HistoryDSN != "" {
		histConn, err := dbconn.Open(ctx, prof.HistoryDSN, opts)
		if err != nil {
			return nil, nil, err
		}
		pool = histConn.Pool()
		closer = histConn.Close
	}

	store := history.NewPGStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		if closer != nil {
			closer()
		}
		return nil, nil, err
	}
	return store, closer, nil
}
