package main

import (
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	Limit    int
	Actor    string
	Listener string
	Pos      *[3]int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/world.sqlite)")
	limit := fs.Int("limit", 20, "result limit")
	actor := fs.String("actor", "", "actor filter (audits)")
	listener := fs.String("listener", "", "listener id filter (failures)")
	at := fs.String("at", "", "position filter x,y,z (audits, events)")
	_ = fs.Parse(args)

	q := "audits"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "world.sqlite")
	}
	opts := dbQuery{Limit: *limit, Actor: strings.TrimSpace(*actor), Listener: strings.TrimSpace(*listener)}
	if s := strings.TrimSpace(*at); s != "" {
		p, err := parseVec3(s)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -at:", err)
			os.Exit(2)
		}
		opts.Pos = &p
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := queryIndex(db, q, opts, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-limit N] [-actor A] [-listener L] [-at x,y,z] audits|events|failures|catalogs")
		os.Exit(1)
	}
}

func queryIndex(db *sql.DB, q string, opts dbQuery, w io.Writer) error {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	switch q {
	case "audits":
		where, args := []string{}, []any{}
		if opts.Actor != "" {
			where = append(where, "actor=?")
			args = append(args, opts.Actor)
		}
		if opts.Pos != nil {
			where = append(where, "x=? AND y=? AND z=?")
			args = append(args, opts.Pos[0], opts.Pos[1], opts.Pos[2])
		}
		args = append(args, opts.Limit)
		rows, err := db.Query(`SELECT seq,time,actor,action,x,y,z,from_state,to_state,flags,COALESCE(reason,'') FROM audits`+whereClause(where)+` ORDER BY seq DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq    int64  `json:"seq"`
				Time   string `json:"time"`
				Actor  string `json:"actor"`
				Action string `json:"action"`
				Pos    [3]int `json:"pos"`
				From   int    `json:"from"`
				To     int    `json:"to"`
				Flags  int    `json:"flags,omitempty"`
				Reason string `json:"reason,omitempty"`
			}
			if err := rows.Scan(&r.Seq, &r.Time, &r.Actor, &r.Action, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.From, &r.To, &r.Flags, &r.Reason); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "events":
		where, args := []string{}, []any{}
		if opts.Pos != nil {
			where = append(where, "x=? AND y=? AND z=?")
			args = append(args, opts.Pos[0], opts.Pos[1], opts.Pos[2])
		}
		args = append(args, opts.Limit)
		rows, err := db.Query(`SELECT seq,time,kind,name,x,y,z,data FROM world_events`+whereClause(where)+` ORDER BY seq DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq   int64  `json:"seq"`
				Time  string `json:"time"`
				Event int32  `json:"event"`
				Name  string `json:"name"`
				Pos   [3]int `json:"pos"`
				Data  int32  `json:"data"`
			}
			if err := rows.Scan(&r.Seq, &r.Time, &r.Event, &r.Name, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Data); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	case "failures":
		where, args := []string{}, []any{}
		if opts.Listener != "" {
			where = append(where, "listener_id=?")
			args = append(args, opts.Listener)
		}
		args = append(args, opts.Limit)
		rows, err := db.Query(`SELECT seq,time,listener_id,name,kind,reason,error,elapsed_ns,discarded_cancel FROM listener_failures`+whereClause(where)+` ORDER BY seq DESC LIMIT ?`, args...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq             int64  `json:"seq"`
				Time            string `json:"time"`
				Listener        string `json:"listener"`
				Name            string `json:"name,omitempty"`
				Kind            string `json:"kind"`
				Reason          string `json:"reason"`
				Error           string `json:"error,omitempty"`
				ElapsedNS       int64  `json:"elapsed_ns"`
				DiscardedCancel bool   `json:"discarded_cancel,omitempty"`
			}
			var discarded int
			if err := rows.Scan(&r.Seq, &r.Time, &r.Listener, &r.Name, &r.Kind, &r.Reason, &r.Error, &r.ElapsedNS, &discarded); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			r.DiscardedCancel = discarded != 0
			printJSON(w, r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			printJSON(w, r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}
